// Package emldir is the directory sink of the bulk export pipeline.
package emldir

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhcgn/pst-viewer/attachment"
	"github.com/dhcgn/pst-viewer/longpath"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/runner"
	"github.com/dhcgn/pst-viewer/stats"
)

// hashPrefix is the number of hash characters used in file names.
const hashPrefix = 16

type Options struct {
	Dir       string
	Extension string
	DryRun    bool
}

// Writer stores each rendered message as <dir>/<folder path>/<hash>-<n><ext>.
type Writer struct {
	opts    Options
	runner  *runner.Runner
	logger  *slog.Logger
	written int
}

func NewWriter(opts Options, r *runner.Runner, logger *slog.Logger) (*Writer, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if opts.Extension == "" {
		opts.Extension = ".eml"
	}
	if r.Tracker() == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	w := &Writer{opts: opts, runner: r, logger: logger}
	r.AddStage("dir", w.run)
	return w, nil
}

// Path returns the destination of msg when it is the n-th message written.
func (w *Writer) Path(msg model.Rendered, n int) string {
	parts := make([]string, 0, len(msg.FolderPath)+2)
	parts = append(parts, w.opts.Dir)
	for _, name := range msg.FolderPath {
		parts = append(parts, attachment.Sanitize(name))
	}
	hash := msg.Hash
	if len(hash) > hashPrefix {
		hash = hash[:hashPrefix]
	}
	parts = append(parts, fmt.Sprintf("%s-%d%s", hash, n, w.opts.Extension))
	return filepath.Join(parts...)
}

func (w *Writer) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-w.runner.Outbox():
			if !ok {
				return nil
			}
			if err := w.handle(msg); err != nil {
				w.runner.EmitEvent(stats.Event{Stage: stats.StageDir, Type: stats.EventTypeError, MessageID: msg.ID.String(), Err: err})
				return err
			}
		}
	}
}

func (w *Writer) handle(msg model.Rendered) error {
	id := msg.ID.String()
	path := w.Path(msg, w.written)

	if w.opts.DryRun {
		if err := w.runner.Commit(msg, stats.StageDir, stats.EventTypeDryRunUpload, path); err != nil {
			return err
		}
		w.written++
		if w.logger != nil {
			w.logger.Debug("dry-run write", "messageID", id, "path", path)
		}
		return nil
	}

	target := longpath.Normalize(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create folder directory: %w", err)
	}
	if err := os.WriteFile(target, msg.Raw, 0o644); err != nil {
		return fmt.Errorf("write message %s: %w", id, err)
	}
	if !msg.ReceivedAt.IsZero() {
		if err := os.Chtimes(target, msg.ReceivedAt, msg.ReceivedAt); err != nil && w.logger != nil {
			w.logger.Debug("cannot set file time", "path", path, "err", err)
		}
	}
	if err := w.runner.Commit(msg, stats.StageDir, stats.EventTypeWritten, path); err != nil {
		return err
	}

	w.written++
	if w.logger != nil {
		w.logger.Debug("wrote message", "messageID", id, "path", path)
	}
	return nil
}
