// Package imap is the mailbox sink of the bulk export pipeline: it appends
// each rendered message to an IMAP folder.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/runner"
	"github.com/dhcgn/pst-viewer/stats"
)

const (
	// DefaultDelimiter separates mailbox levels when folders are kept.
	DefaultDelimiter = "/"
	// DefaultTarget receives messages when no target folder is configured.
	DefaultTarget = "INBOX"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	// KeepFolders appends the archive folder path to TargetFolder.
	KeepFolders bool
	Delimiter   string
	// MarkSeen stores uploaded messages with the \Seen flag.
	MarkSeen bool
	DryRun   bool
}

// Target identifies the destination mailbox account, e.g. for the export journal.
func (o Options) Target() string {
	u := url.URL{
		Scheme: "imap",
		User:   url.User(o.Username),
		Host:   net.JoinHostPort(o.Host, strconv.Itoa(o.Port)),
		Path:   "/" + o.TargetFolder,
	}
	return u.String()
}

type Uploader struct {
	opts   Options
	runner *runner.Runner
	logger *slog.Logger
}

func NewUploader(opts Options, r *runner.Runner, logger *slog.Logger) (*Uploader, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if r.Tracker() == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	if opts.TargetFolder == "" {
		opts.TargetFolder = DefaultTarget
	}
	if opts.Delimiter == "" {
		opts.Delimiter = DefaultDelimiter
	}
	u := &Uploader{opts: opts, runner: r, logger: logger}
	r.AddStage("imap", u.run)
	return u, nil
}

func (u *Uploader) run(ctx context.Context) error {
	var sess *session
	defer func() {
		if sess != nil {
			sess.close(ctx)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-u.runner.Outbox():
			if !ok {
				return nil
			}
			id := msg.ID.String()
			mailbox := u.mailbox(msg.FolderPath)

			if u.opts.DryRun {
				if err := u.runner.Commit(msg, stats.StageIMAP, stats.EventTypeDryRunUpload, mailbox); err != nil {
					return err
				}
				u.debug("dry-run upload", "messageID", id, "mailbox", mailbox, "hash", msg.Hash)
				continue
			}

			if sess == nil {
				var err error
				if sess, err = u.dial(ctx); err != nil {
					u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, MessageID: id, Err: err})
					return err
				}
			}
			if err := sess.deliver(mailbox, msg, u.opts.MarkSeen); err != nil {
				err = fmt.Errorf("upload message %s: %w", id, err)
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, MessageID: id, Err: err})
				return err
			}
			if err := u.runner.Commit(msg, stats.StageIMAP, stats.EventTypeUploaded, mailbox); err != nil {
				return err
			}
			u.debug("uploaded message", "messageID", id, "mailbox", mailbox, "hash", msg.Hash)
		}
	}
}

// mailbox returns the destination for a message from folderPath.
func (u *Uploader) mailbox(folderPath []string) string {
	target := u.opts.TargetFolder
	if target == "" {
		target = DefaultTarget
	}
	if !u.opts.KeepFolders || len(folderPath) == 0 {
		return target
	}
	delim := u.opts.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}
	parts := []string{target}
	for _, name := range folderPath {
		name = strings.TrimSpace(strings.ReplaceAll(name, delim, "_"))
		if name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, delim)
}

func (u *Uploader) dial(ctx context.Context) (*session, error) {
	address := net.JoinHostPort(u.opts.Host, strconv.Itoa(u.opts.Port))

	var (
		client *imapclient.Client
		err    error
	)
	if u.opts.UseTLS {
		client, err = imapclient.DialTLS(address, &imapclient.Options{TLSConfig: &tls.Config{
			ServerName:         u.opts.Host,
			InsecureSkipVerify: u.opts.InsecureSkipVerify,
		}})
	} else {
		client, err = imapclient.DialInsecure(address, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(u.opts.Username, u.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}
	u.debug("imap connection established", "address", address, "user", u.opts.Username, "keepFolders", u.opts.KeepFolders, "tls", u.opts.UseTLS)

	return &session{
		client:    client,
		logger:    u.logger,
		ensured:   make(map[string]bool),
		stopClose: context.AfterFunc(ctx, func() { _ = client.Close() }),
	}, nil
}

func (u *Uploader) debug(msg string, args ...any) {
	if u.logger != nil {
		u.logger.Debug(msg, args...)
	}
}

// session is one logged-in connection.
type session struct {
	client    *imapclient.Client
	logger    *slog.Logger
	stopClose func() bool
	// ensured holds the mailboxes created or found on this connection.
	ensured map[string]bool
}

func (s *session) deliver(mailbox string, msg model.Rendered, seen bool) error {
	if err := s.ensureMailbox(mailbox); err != nil {
		return err
	}

	opts := &imapv2.AppendOptions{Time: msg.ReceivedAt}
	if seen {
		opts.Flags = []imapv2.Flag{imapv2.FlagSeen}
	}
	cmd := s.client.Append(mailbox, int64(len(msg.Raw)), opts)
	if _, err := cmd.Write(msg.Raw); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("append write: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}
	return nil
}

func (s *session) ensureMailbox(mailbox string) error {
	if s.ensured[mailbox] {
		return nil
	}
	err := s.client.Create(mailbox, nil).Wait()
	var respErr *imapv2.Error
	switch {
	case err == nil:
		if s.logger != nil {
			s.logger.Info("imap mailbox created", "mailbox", mailbox)
		}
	case errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists:
	default:
		return fmt.Errorf("ensure mailbox %s: %w", mailbox, err)
	}
	s.ensured[mailbox] = true
	return nil
}

func (s *session) close(ctx context.Context) {
	s.stopClose()
	if ctx.Err() == nil {
		if err := s.client.Logout().Wait(); err != nil && s.logger != nil {
			s.logger.Warn("imap logout failed", "err", err)
		}
	}
	if err := s.client.Close(); err != nil && s.logger != nil {
		s.logger.Debug("imap connection closed", "err", err)
	}
}
