// Package cmd implements the pstview command line.
package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dhcgn/pst-viewer/config"
	"github.com/dhcgn/pst-viewer/gopst"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/native"
	"github.com/dhcgn/pst-viewer/reader"
	"github.com/dhcgn/pst-viewer/readpst"
)

// app is the state shared by the commands of one invocation.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error

	// backends overrides the configured backends.
	backends []native.Backend
}

// Option customizes the root command.
type Option func(*app)

// WithBackends replaces the configured PST backends.
func WithBackends(backends ...native.Backend) Option {
	return func(a *app) {
		a.backends = backends
	}
}

// NewRootCommand builds the pstview command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           "pstview",
		Short:         "Browse and export Outlook PST archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closeLog, err := setupLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg, a.logger, a.closeLog = cfg, logger, closeLog
			slog.SetDefault(logger)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog == nil {
				return nil
			}
			return a.closeLog()
		},
	}

	config.RegisterFlags(root)

	root.AddCommand(
		newFoldersCommand(a),
		newListCommand(a),
		newShowCommand(a),
		newExportCommand(a),
		newAttachmentsCommand(a),
		newSaveAttachmentsCommand(a),
		newExportAllCommand(a),
		newStatsCommand(a),
	)
	return root
}

func (a *app) configuredBackends() []native.Backend {
	if a.backends != nil {
		return a.backends
	}
	primary := gopst.Backend{}
	fallback := readpst.New(a.cfg.ReadpstPath, a.logger)
	switch a.cfg.Backend {
	case config.BackendGoPST:
		return []native.Backend{primary}
	case config.BackendReadpst:
		return []native.Backend{fallback}
	}
	return []native.Backend{primary, fallback}
}

// open returns a reader with the archive at path loaded. The caller closes it.
func (a *app) open(path string) (*reader.Reader, error) {
	r := reader.New(a.logger, a.configuredBackends()...)
	if err := r.Open(path); err != nil {
		return nil, err
	}
	return r, nil
}

func parseFolderID(s string) (model.FolderID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: folder %q", reader.ErrNotFound, s)
	}
	return model.FolderID(n), nil
}

func parseMessageID(s string) (model.MessageID, error) {
	id, err := model.ParseMessageID(s)
	if err != nil {
		return model.MessageID{}, fmt.Errorf("%w: %w", reader.ErrNotFound, err)
	}
	return id, nil
}
