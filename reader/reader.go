// Package reader is the single entry point for opening an archive and
// querying it. It picks a parsing backend and guards every query against
// use before a successful open.
package reader

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dhcgn/pst-viewer/adapter"
	"github.com/dhcgn/pst-viewer/export"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/native"
)

var (
	// ErrLibraryUnavailable marks a backend whose parser is not installed.
	ErrLibraryUnavailable = native.ErrUnavailable
	ErrOpenFailure        = adapter.ErrOpenFailure
	ErrNotFound           = adapter.ErrNotFound
	ErrIO                 = adapter.ErrIO
	ErrInvalidState       = errors.New("no archive open")
	ErrNoAdapter          = fmt.Errorf("no adapter available: %w", ErrLibraryUnavailable)
)

// State is the lifecycle position of a Reader.
type State int

const (
	Unopened State = iota
	Opening
	Open
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Opening:
		return "opening"
	case Open:
		return "open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Reader owns at most one open archive. It is not safe for concurrent use.
type Reader struct {
	backends []native.Backend
	logger   *slog.Logger

	state   State
	path    string
	adapter *adapter.Adapter
}

// New returns a reader trying backends in order.
func New(logger *slog.Logger, backends ...native.Backend) *Reader {
	return &Reader{backends: backends, logger: logger}
}

// State returns the current lifecycle state.
func (r *Reader) State() State {
	return r.state
}

// Path returns the path of the open archive, or "".
func (r *Reader) Path() string {
	return r.path
}

// Backend returns the name of the backend serving the open archive.
func (r *Reader) Backend() string {
	if r.adapter == nil {
		return ""
	}
	return r.adapter.Backend()
}

// Open loads the archive at path, replacing any archive already open.
// A backend that is installed but fails to parse the file ends the attempt;
// only unavailable backends are skipped in favour of the next one.
func (r *Reader) Open(path string) error {
	if err := r.Close(); err != nil {
		r.warn("closing previous archive failed", "path", r.path, "err", err)
	}
	r.state = Opening

	var skipped []string
	for _, b := range r.backends {
		if err := b.Available(); err != nil {
			r.debug("backend unavailable", "backend", b.Name(), "err", err)
			skipped = append(skipped, b.Name())
			continue
		}

		a := adapter.New(b, r.logger)
		if err := a.Open(path); err != nil {
			r.state = Unopened
			return err
		}
		r.adapter = a
		r.path = path
		r.state = Open
		if r.logger != nil {
			r.logger.Info("archive opened", "path", path, "backend", b.Name())
		}
		return nil
	}

	r.state = Unopened
	if len(skipped) == 0 {
		return ErrNoAdapter
	}
	return fmt.Errorf("%w (tried %s)", ErrNoAdapter, strings.Join(skipped, ", "))
}

// Close releases the open archive. Closing an unopened reader is a no-op.
func (r *Reader) Close() error {
	if r.adapter == nil {
		r.state = Unopened
		return nil
	}
	err := r.adapter.Close()
	r.adapter = nil
	r.path = ""
	r.state = Unopened
	return err
}

func (r *Reader) open() (*adapter.Adapter, error) {
	if r.state != Open || r.adapter == nil {
		return nil, ErrInvalidState
	}
	return r.adapter, nil
}

func (r *Reader) RootFolders() ([]model.FolderNode, error) {
	a, err := r.open()
	if err != nil {
		return nil, err
	}
	return a.RootFolders(), nil
}

func (r *Reader) FolderPath(id model.FolderID) ([]string, error) {
	a, err := r.open()
	if err != nil {
		return nil, err
	}
	return a.FolderPath(id)
}

// MessageCount returns the item count the backend reports for a folder.
func (r *Reader) MessageCount(id model.FolderID) (int, error) {
	a, err := r.open()
	if err != nil {
		return 0, err
	}
	return a.MessageCount(id)
}

func (r *Reader) ListMessages(id model.FolderID) ([]model.MessageSummary, error) {
	a, err := r.open()
	if err != nil {
		return nil, err
	}
	return a.ListMessages(id), nil
}

// Search returns the summaries of a folder's messages whose subject, sender,
// text body or HTML body contain term, ignoring case. Bodies are resolved
// per message; a message that cannot be resolved is matched on its summary.
func (r *Reader) Search(id model.FolderID, term string) ([]model.MessageSummary, error) {
	summaries, err := r.ListMessages(id)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return summaries, nil
	}

	var out []model.MessageSummary
	for _, s := range summaries {
		fields := []string{s.Subject, s.Sender}
		if msg, err := r.GetMessage(s.ID); err != nil {
			r.debug("search without body", "message", s.ID.String(), "err", err)
		} else {
			fields = append(fields, msg.BodyText, msg.BodyHTML)
		}
		if strings.Contains(strings.ToLower(strings.Join(fields, " ")), term) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Reader) GetMessage(id model.MessageID) (model.Message, error) {
	a, err := r.open()
	if err != nil {
		return model.Message{}, err
	}
	return a.GetMessage(id)
}

func (r *Reader) ExportEML(id model.MessageID, path string) error {
	return r.Export(id, path, export.EML)
}

// Export writes one message to path in the given format.
func (r *Reader) Export(id model.MessageID, path string, s export.Strategy) error {
	a, err := r.open()
	if err != nil {
		return err
	}
	return a.Export(id, path, s)
}

func (r *Reader) ListAttachments(id model.MessageID) ([]string, error) {
	a, err := r.open()
	if err != nil {
		return nil, err
	}
	return a.ListAttachments(id)
}

// Attachments returns structured attachment descriptors.
func (r *Reader) Attachments(id model.MessageID) ([]model.AttachmentInfo, error) {
	a, err := r.open()
	if err != nil {
		return nil, err
	}
	return a.Attachments(id)
}

func (r *Reader) SaveAttachments(id model.MessageID, dir string) ([]string, error) {
	a, err := r.open()
	if err != nil {
		return nil, err
	}
	return a.SaveAttachments(id, dir)
}

// Walk calls fn for every folder in depth-first order with its path.
func (r *Reader) Walk(fn func(node model.FolderNode, path []string) error) error {
	roots, err := r.RootFolders()
	if err != nil {
		return err
	}
	var walk func(nodes []model.FolderNode, parent []string) error
	walk = func(nodes []model.FolderNode, parent []string) error {
		for _, n := range nodes {
			path := append(parent[:len(parent):len(parent)], n.Name)
			if err := fn(n, path); err != nil {
				return err
			}
			if err := walk(n.Children, path); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(roots, nil)
}

func (r *Reader) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Reader) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
