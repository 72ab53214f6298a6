package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dhcgn/pst-viewer/archive"
	"github.com/dhcgn/pst-viewer/config"
	"github.com/dhcgn/pst-viewer/emldir"
	"github.com/dhcgn/pst-viewer/export"
	"github.com/dhcgn/pst-viewer/filter"
	"github.com/dhcgn/pst-viewer/imap"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/progress"
	"github.com/dhcgn/pst-viewer/runner"
)

func newExportAllCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-all <archive.pst>",
		Short: "Export every message of an archive to a directory or an IMAP mailbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.LoadExportConfig(cmd)
			if err != nil {
				return err
			}
			return a.exportAll(args[0], opts)
		},
	}
	config.RegisterExportFlags(cmd)
	return cmd
}

func (a *app) exportAll(path string, opts config.ExportConfig) error {
	stateDir, err := a.cfg.ResolveStateDir()
	if err != nil {
		return err
	}
	strategy, err := export.StrategyByName(opts.Format)
	if err != nil {
		return err
	}
	f, err := filter.New(filter.Options{
		IncludeHeader: opts.IncludeHeader,
		IncludeBody:   opts.IncludeBody,
		ExcludeHeader: opts.ExcludeHeader,
		ExcludeBody:   opts.ExcludeBody,
	})
	if err != nil {
		return fmt.Errorf("filter.New: %w", err)
	}

	src, err := a.open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	folder := model.FolderID(opts.Folder)
	total, err := archive.Count(src, folder)
	if err != nil {
		return err
	}

	uploaderOpts := imap.Options{
		Host:               opts.IMAPHost,
		Port:               opts.IMAPPort,
		Username:           opts.IMAPUser,
		Password:           opts.IMAPPass,
		UseTLS:             opts.UseTLS,
		InsecureSkipVerify: opts.InsecureSkipVerify,
		TargetFolder:       opts.TargetFolder,
		KeepFolders:        opts.KeepFolders,
		MarkSeen:           opts.MarkSeen,
		DryRun:             opts.DryRun,
	}
	target := uploaderOpts.Target()
	if !opts.UsesIMAP() {
		if target, err = filepath.Abs(opts.OutputDir); err != nil {
			return fmt.Errorf("resolve output directory: %w", err)
		}
	}

	r, err := runner.New(runner.Options{
		StateDir: stateDir,
		Target:   target,
		DryRun:   opts.DryRun,
		Filter:   f,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	a.logger.Info("starting export",
		"archive", path,
		"backend", src.Backend(),
		"target", target,
		"messages", total,
		"run", r.RunID(),
		"dryRun", opts.DryRun,
	)

	bar := progress.New(total, r.Tracker().Len(), a.cfg.LogLevel)
	progress.NewReporter(r, bar, a.logger)

	if _, err := archive.NewProducer(src, archive.Options{Folder: folder, Strategy: strategy}, r, a.logger); err != nil {
		return fmt.Errorf("archive.NewProducer: %w", err)
	}

	if opts.UsesIMAP() {
		if _, err := imap.NewUploader(uploaderOpts, r, a.logger); err != nil {
			return fmt.Errorf("imap.NewUploader: %w", err)
		}
	} else {
		writerOpts := emldir.Options{
			Dir:       opts.OutputDir,
			Extension: strategy.Extension(),
			DryRun:    opts.DryRun,
		}
		if _, err := emldir.NewWriter(writerOpts, r, a.logger); err != nil {
			return fmt.Errorf("emldir.NewWriter: %w", err)
		}
	}

	return r.Start()
}
