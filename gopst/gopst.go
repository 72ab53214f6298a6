// Package gopst is the pure-Go PST backend built on github.com/mooijtech/go-pst.
package gopst

import (
	"errors"
	"fmt"
	"io"
	"os"

	charsets "github.com/emersion/go-message/charset"
	pst "github.com/mooijtech/go-pst/v6/pkg"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"

	"github.com/dhcgn/pst-viewer/native"
)

func init() {
	pst.ExtendCharsets(func(name string, enc encoding.Encoding) {
		charsets.RegisterEncoding(name, enc)
	})
}

const Name = "gopst"

// Backend opens archives with go-pst.
type Backend struct{}

func (Backend) Name() string { return Name }

// Available always succeeds; the parser is compiled in.
func (Backend) Available() error { return nil }

func (Backend) Open(path string) (native.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	file, err := pst.New(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &store{osFile: f, file: file}, nil
}

type store struct {
	osFile *os.File
	file   *pst.File
}

func (s *store) Root() (native.Folder, error) {
	root, err := s.file.GetRootFolder()
	if err != nil {
		return nil, fmt.Errorf("root folder: %w", err)
	}
	return newFolder(&root), nil
}

func (s *store) Close() error {
	s.file.Cleanup()
	return s.osFile.Close()
}

// messageIterator and attachmentIterator are the parts of go-pst's
// iterators the wrappers consume.
type messageIterator interface {
	Next() bool
	Value() *pst.Message
	Err() error
}

type attachmentIterator interface {
	Next() bool
	Value() *pst.Attachment
	Err() error
}

type folder struct {
	name       string
	count      int
	listSubs   func() ([]pst.Folder, error)
	listMsgs   func() (messageIterator, error)
	wrapMsg    func(*pst.Message) native.Message
	subs       []pst.Folder
	subsErr    error
	subsLoaded bool
}

func newFolder(f *pst.Folder) *folder {
	return &folder{
		name:  f.Name,
		count: int(f.MessageCount),
		listSubs: func() ([]pst.Folder, error) {
			if !f.HasSubFolders {
				return nil, nil
			}
			return f.GetSubFolders()
		},
		listMsgs: func() (messageIterator, error) {
			it, err := f.GetMessageIterator()
			if err != nil {
				return nil, err
			}
			return &it, nil
		},
		wrapMsg: newMessage,
	}
}

func (f *folder) Name() (string, error) { return f.name, nil }

func (f *folder) subFolders() ([]pst.Folder, error) {
	if !f.subsLoaded {
		f.subsLoaded = true
		f.subs, f.subsErr = f.listSubs()
	}
	return f.subs, f.subsErr
}

func (f *folder) SubFolderCount() (int, error) {
	subs, err := f.subFolders()
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

func (f *folder) SubFolder(i int) (native.Folder, error) {
	subs, err := f.subFolders()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(subs) {
		return nil, fmt.Errorf("sub-folder %d of %q: out of range", i, f.name)
	}
	return newFolder(&subs[i]), nil
}

func (f *folder) MessageCount() (int, error) {
	return f.count, nil
}

// EachMessage walks the folder's message iterator. Index i counts every
// item the iterator yields, so it matches Message(i).
func (f *folder) EachMessage(fn func(i int, m native.Message) error) error {
	it, err := f.listMsgs()
	if eris.Is(err, pst.ErrMessagesNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("messages of %q: %w", f.name, err)
	}

	i := 0
	for it.Next() {
		if err := fn(i, f.wrapMsg(it.Value())); err != nil {
			return err
		}
		i++
	}
	return it.Err()
}

var errStop = eris.New("stop iteration")

func (f *folder) Message(i int) (native.Message, error) {
	var found native.Message
	err := f.EachMessage(func(j int, m native.Message) error {
		if j == i {
			found = m
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("message %d of %q: out of range", i, f.name)
	}
	return found, nil
}

type message struct {
	props       any
	attachments func() (attachmentIterator, error)
	wrapAtt     func(*pst.Attachment) native.Attachment
}

func newMessage(m *pst.Message) native.Message {
	return &message{
		props: m.Properties,
		attachments: func() (attachmentIterator, error) {
			it, err := m.GetAttachmentIterator()
			if err != nil {
				return nil, err
			}
			return &it, nil
		},
		wrapAtt: newAttachment,
	}
}

func (m *message) Property(name string) (any, error) {
	getter, ok := messageGetters[name]
	if !ok {
		return nil, native.ErrNoProperty
	}
	return getter(m.props)
}

func (m *message) all() ([]*pst.Attachment, error) {
	it, err := m.attachments()
	if eris.Is(err, pst.ErrAttachmentsNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var out []*pst.Attachment
	for it.Next() {
		out = append(out, it.Value())
	}
	return out, it.Err()
}

func (m *message) AttachmentCount() (int, error) {
	atts, err := m.all()
	return len(atts), err
}

func (m *message) Attachment(i int) (native.Attachment, error) {
	atts, err := m.all()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(atts) {
		return nil, fmt.Errorf("attachment %d: out of range", i)
	}
	return m.wrapAtt(atts[i]), nil
}

type attachment struct {
	props   any
	payload io.WriterTo
}

func newAttachment(a *pst.Attachment) native.Attachment {
	return &attachment{props: a, payload: a}
}

func (a *attachment) Property(name string) (any, error) {
	getter, ok := attachmentGetters[name]
	if !ok {
		return nil, native.ErrNoProperty
	}
	return getter(a.props)
}

// WriteTo streams the attachment payload.
func (a *attachment) WriteTo(w io.Writer) (int64, error) {
	return a.payload.WriteTo(w)
}
