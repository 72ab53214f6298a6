// Package archive is the producer stage of the bulk export pipeline. It
// walks an open archive and renders every message for the sinks.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dhcgn/pst-viewer/export"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/runner"
)

var ErrUnknownFolder = errors.New("unknown folder")

// Source is the query surface the producer reads from.
type Source interface {
	RootFolders() ([]model.FolderNode, error)
	MessageCount(id model.FolderID) (int, error)
	ListMessages(id model.FolderID) ([]model.MessageSummary, error)
	GetMessage(id model.MessageID) (model.Message, error)
}

type Options struct {
	// Folder limits the export to one sub-tree. Zero exports everything.
	Folder   model.FolderID
	Strategy export.Strategy
}

// FolderRef is a folder selected for export.
type FolderRef struct {
	ID   model.FolderID
	Path []string
}

// Folders returns the folders to export in depth-first order.
func Folders(src Source, root model.FolderID) ([]FolderRef, error) {
	roots, err := src.RootFolders()
	if err != nil {
		return nil, err
	}

	var (
		out   []FolderRef
		found = root == 0
	)
	var walk func(nodes []model.FolderNode, parent []string, selected bool)
	walk = func(nodes []model.FolderNode, parent []string, selected bool) {
		for _, n := range nodes {
			path := append(parent[:len(parent):len(parent)], n.Name)
			inside := selected || n.ID == root
			if n.ID == root {
				found = true
			}
			if inside {
				out = append(out, FolderRef{ID: n.ID, Path: path})
			}
			walk(n.Children, path, inside)
		}
	}
	walk(roots, nil, root == 0)

	if !found {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFolder, root)
	}
	return out, nil
}

// Count sums the message counts of the selected folders.
func Count(src Source, root model.FolderID) (int, error) {
	folders, err := Folders(src, root)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, f := range folders {
		n, err := src.MessageCount(f.ID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Render serializes msg with s for the pipeline.
func Render(msg model.Message, folderPath []string, s export.Strategy) (model.Rendered, error) {
	var buf bytes.Buffer
	if err := s.Export(&buf, msg); err != nil {
		return model.Rendered{}, fmt.Errorf("render %s: %w", msg.ID, err)
	}
	raw := buf.Bytes()
	sum := sha256.Sum256(raw)
	return model.Rendered{
		ID:         msg.ID,
		FolderPath: folderPath,
		Subject:    msg.Subject,
		Hash:       hex.EncodeToString(sum[:]),
		ReceivedAt: msg.Time,
		Size:       int64(len(raw)),
		Raw:        raw,
	}, nil
}

type Producer struct {
	src    Source
	opts   Options
	runner *runner.Runner
	logger *slog.Logger
}

// NewProducer registers the producer stage on r. The source is only used
// from that stage's goroutine.
func NewProducer(src Source, opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	if src == nil {
		return nil, fmt.Errorf("archive source is nil")
	}
	if opts.Strategy == nil {
		opts.Strategy = export.EML
	}
	p := &Producer{src: src, opts: opts, runner: r, logger: logger}
	r.AddStage("archive", p.run)
	return p, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseMessages()

	folders, err := Folders(p.src, p.opts.Folder)
	if err != nil {
		return err
	}

	for _, f := range folders {
		summaries, err := p.src.ListMessages(f.ID)
		if err != nil {
			return fmt.Errorf("list folder %d: %w", f.ID, err)
		}
		if p.logger != nil {
			p.logger.Debug("exporting folder", "folder", f.ID, "path", f.Path, "messages", len(summaries))
		}

		for _, s := range summaries {
			if err := ctx.Err(); err != nil {
				return err
			}
			env := p.envelope(s.ID, f.Path)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case p.runner.MessageWriter() <- env:
			}
		}
	}
	return nil
}

func (p *Producer) envelope(id model.MessageID, path []string) model.Envelope {
	msg, err := p.src.GetMessage(id)
	if err != nil {
		return model.Envelope{Err: fmt.Errorf("message %s: %w", id, err)}
	}
	rendered, err := Render(msg, path, p.opts.Strategy)
	if err != nil {
		return model.Envelope{Err: err}
	}
	return model.Envelope{Message: rendered}
}
