// Package readpst is the fallback backend. It converts the archive with the
// external readpst tool into a tree of mbox files and reads that tree.
package readpst

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhcgn/pst-viewer/mbox"
	"github.com/dhcgn/pst-viewer/native"
)

const (
	Name          = "readpst"
	DefaultBinary = "readpst"
	// DefaultTimeout bounds one conversion run.
	DefaultTimeout = 30 * time.Minute
)

// RunFunc executes binary with args.
type RunFunc func(ctx context.Context, binary string, args ...string) ([]byte, error)

// Backend converts archives with readpst.
type Backend struct {
	Binary  string
	Timeout time.Duration
	TempDir string
	Logger  *slog.Logger

	run      RunFunc
	lookPath func(string) (string, error)
}

// New returns a backend for the given binary; an empty name uses readpst from PATH.
func New(binary string, logger *slog.Logger) *Backend {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &Backend{
		Binary:   binary,
		Timeout:  DefaultTimeout,
		Logger:   logger,
		run:      runCommand,
		lookPath: exec.LookPath,
	}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Available() error {
	if _, err := b.lookPath(b.Binary); err != nil {
		return fmt.Errorf("%w: %s: %w", native.ErrUnavailable, b.Binary, err)
	}
	return nil
}

// Open converts path into a temporary mbox tree. The tree is removed when
// the store is closed.
func (b *Backend) Open(path string) (native.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	out, err := os.MkdirTemp(b.TempDir, "pstview-readpst-*")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(out) }

	ctx := context.Background()
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	start := time.Now()
	// -r keeps the folder hierarchy, -b skips RTF bodies, -q silences progress.
	output, err := b.run(ctx, b.Binary, "-q", "-r", "-b", "-o", out, path)
	if err != nil {
		_ = cleanup()
		msg := strings.TrimSpace(string(output))
		if msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", b.Binary, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", b.Binary, err)
	}
	if b.Logger != nil {
		b.Logger.Debug("readpst conversion finished", "path", path, "dir", out, "duration", time.Since(start))
	}

	root, err := treeRoot(out)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	return mbox.OpenTree(root, cleanup)
}

// treeRoot returns the directory holding the top-level folders. readpst
// writes a single directory named after the store; descend into it when
// it is the only entry and carries no messages itself.
func treeRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read conversion output: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

func runCommand(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() == 0 {
			return nil, err
		}
		return stderr.Bytes(), err
	}
	return nil, nil
}
