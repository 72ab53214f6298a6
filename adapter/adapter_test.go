package adapter

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/native"
)

type props map[string]any

func (p props) Property(name string) (any, error) {
	if v, ok := p[name]; ok {
		if err, isErr := v.(error); isErr {
			return nil, err
		}
		return v, nil
	}
	return nil, native.ErrNoProperty
}

type fakeAttachment struct {
	props
	data []byte
}

func (f fakeAttachment) Data() ([]byte, error) { return f.data, nil }

type fakeMessage struct {
	props
	attachments []native.Attachment
}

func (m fakeMessage) AttachmentCount() (int, error) { return len(m.attachments), nil }
func (m fakeMessage) Attachment(i int) (native.Attachment, error) {
	return m.attachments[i], nil
}

type fakeFolder struct {
	name     string
	children []native.Folder
	messages []native.Message
	// broken makes sub-folder enumeration fail.
	broken bool
	// panicAt makes SubFolder(i) panic.
	panicAt int
}

func (f *fakeFolder) Name() (string, error) { return f.name, nil }
func (f *fakeFolder) SubFolderCount() (int, error) {
	if f.broken {
		return 0, errors.New("corrupt sub-folder table")
	}
	return len(f.children), nil
}
func (f *fakeFolder) SubFolder(i int) (native.Folder, error) {
	if f.panicAt > 0 && i == f.panicAt-1 {
		panic("corrupt node")
	}
	return f.children[i], nil
}
func (f *fakeFolder) MessageCount() (int, error) { return len(f.messages), nil }
func (f *fakeFolder) Message(i int) (native.Message, error) {
	if i < 0 || i >= len(f.messages) {
		return nil, errors.New("index out of range")
	}
	return f.messages[i], nil
}

type fakeStore struct {
	root   native.Folder
	closed bool
}

func (s *fakeStore) Root() (native.Folder, error) { return s.root, nil }
func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

type fakeBackend struct {
	store *fakeStore
	err   error
}

func (b fakeBackend) Name() string     { return "fake" }
func (b fakeBackend) Available() error { return nil }
func (b fakeBackend) Open(string) (native.Store, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.store, nil
}

func sampleTree() *fakeFolder {
	inbox := &fakeFolder{
		name: "Inbox",
		messages: []native.Message{
			fakeMessage{props: props{
				native.PropSubject:          "Quarterly report",
				native.PropSenderName:       "",
				native.PropSenderEmail:      "alice@example.com",
				native.PropDisplayTo:        "Bob",
				native.PropDisplayCc:        []byte("Carol\x00"),
				native.PropClientSubmitTime: int64(1700000000),
				native.PropPlainTextBody:    "line one\r\nline two",
				native.PropHTMLBody:         "<p>line one</p>",
			}, attachments: []native.Attachment{
				fakeAttachment{props: props{native.PropLongFilename: "report.pdf"}, data: []byte("%PDF-1.4")},
				fakeAttachment{props: props{native.PropIsEmbedded: true}},
				fakeAttachment{props: props{native.PropLongFilename: "notes"}},
			}},
			fakeMessage{props: props{
				native.PropSubject:  "Newsletter",
				native.PropFrom:     "news@example.com",
				native.PropHTMLBody: "<p>Read <a href=\"https://example.com\">more</a></p><img src=\"x.png\">",
				native.PropDate:     "Mon, 02 Jan 2006 15:04:05 -0700",
			}},
		},
		children: []native.Folder{&fakeFolder{name: "Projects"}},
	}
	broken := &fakeFolder{name: "Broken", broken: true}
	sent := &fakeFolder{name: "", children: []native.Folder{&fakeFolder{name: "Archive"}, nil}, panicAt: 2}
	top := &fakeFolder{name: "Top of Personal Folders", children: []native.Folder{inbox, broken, sent}}
	return &fakeFolder{children: []native.Folder{top}}
}

func openSample(t *testing.T) (*Adapter, *fakeStore) {
	t.Helper()
	store := &fakeStore{root: sampleTree()}
	a := New(fakeBackend{store: store}, nil)
	require.NoError(t, a.Open("archive.pst"))
	return a, store
}

func TestOpen_FolderTree(t *testing.T) {
	a, _ := openSample(t)

	roots := a.RootFolders()
	require.Len(t, roots, 1)
	top := roots[0]
	assert.Equal(t, model.FolderID(1), top.ID)
	assert.Equal(t, "Top of Personal Folders", top.Name)

	require.Len(t, top.Children, 3)
	assert.Equal(t, "Inbox", top.Children[0].Name)
	assert.Equal(t, model.FolderID(2), top.Children[0].ID)
	assert.Equal(t, model.FolderID(3), top.Children[0].Children[0].ID, "depth-first numbering")
	assert.Equal(t, "Broken", top.Children[1].Name)
	assert.Empty(t, top.Children[1].Children)

	unnamed := top.Children[2]
	assert.Equal(t, "Folder", unnamed.Name)
	require.Len(t, unnamed.Children, 1, "panicking sub-folder is skipped")
	assert.Equal(t, "Archive", unnamed.Children[0].Name)

	path, err := a.FolderPath(top.Children[0].Children[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Top of Personal Folders", "Inbox", "Projects"}, path)
}

func TestOpen_Failure(t *testing.T) {
	a := New(fakeBackend{err: errors.New("bad header")}, nil)
	err := a.Open("broken.pst")
	require.ErrorIs(t, err, ErrOpenFailure)
	assert.Contains(t, err.Error(), "bad header")
}

func TestOpen_ClosesPrevious(t *testing.T) {
	a, first := openSample(t)
	a.backend = fakeBackend{store: &fakeStore{root: sampleTree()}}
	require.NoError(t, a.Open("other.pst"))
	assert.True(t, first.closed)
}

func TestListMessages(t *testing.T) {
	a, _ := openSample(t)

	msgs := a.ListMessages(2)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.MessageID{Folder: 2, Index: 0}, msgs[0].ID)
	assert.Equal(t, "Quarterly report", msgs[0].Subject)
	assert.Equal(t, "alice@example.com", msgs[0].Sender, "empty sender name falls through")
	assert.Equal(t, time.Unix(1700000000, 0).UTC().Format(time.RFC1123Z), msgs[0].Date)
	assert.Equal(t, "news@example.com", msgs[1].Sender)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 -0700", msgs[1].Date)

	assert.Empty(t, a.ListMessages(999), "unknown folder yields no messages")
}

func TestGetMessage(t *testing.T) {
	a, _ := openSample(t)

	msg, err := a.GetMessage(model.MessageID{Folder: 2, Index: 0})
	require.NoError(t, err)
	assert.Equal(t, "Bob", msg.To)
	assert.Equal(t, "Carol", msg.Cc)
	assert.Equal(t, "line one\nline two", msg.BodyText)
	assert.Equal(t, "<p>line one</p>", msg.BodyHTML)
	assert.Equal(t, []string{
		"report.pdf (application/pdf)",
		"embedded message 1 (message/rfc822)",
		"notes (application/octet-stream)",
	}, msg.Attachments)

	html, err := a.GetMessage(model.MessageID{Folder: 2, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "Read [more](https://example.com)", html.BodyText)
	assert.Contains(t, html.BodyHTML, "<img")
}

func TestGetMessage_NotFound(t *testing.T) {
	a, _ := openSample(t)

	for _, id := range []model.MessageID{
		{Folder: 999, Index: 0},
		{Folder: 2, Index: 2},
		{Folder: 2, Index: -1},
	} {
		_, err := a.GetMessage(id)
		assert.ErrorIs(t, err, ErrNotFound, id.String())
	}
}

func TestSaveAttachments(t *testing.T) {
	a, _ := openSample(t)
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := a.SaveAttachments(model.MessageID{Folder: 2, Index: 0}, dir)
	require.NoError(t, err)
	require.Len(t, paths, 1, "embedded and unreadable attachments are skipped")
	assert.Equal(t, "report.pdf", filepath.Base(paths[0]))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	again, err := a.SaveAttachments(model.MessageID{Folder: 2, Index: 0}, dir)
	require.NoError(t, err)
	assert.Equal(t, "report (1).pdf", filepath.Base(again[0]))
}

func TestExportEML(t *testing.T) {
	a, _ := openSample(t)
	path := filepath.Join(t.TempDir(), "nested", "msg.eml")

	require.NoError(t, a.ExportEML(model.MessageID{Folder: 2, Index: 0}, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: Quarterly report\r\n")
	assert.Contains(t, string(raw), "multipart/alternative")

	err = a.ExportEML(model.MessageID{Folder: 42, Index: 0}, path)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveBodies(t *testing.T) {
	text, html := resolveBodies("", "")
	assert.Empty(t, text)
	assert.Empty(t, html)

	text, html = resolveBodies("a\rb", "<b>x</b>\r\n")
	assert.Equal(t, "a\nb", text)
	assert.Equal(t, "<b>x</b>\n", html)
}

// rangerFolder enumerates sequentially and under-reports its count, like
// backends whose table count disagrees with the iterator.
type rangerFolder struct {
	*fakeFolder
}

func (f rangerFolder) MessageCount() (int, error) { return 0, nil }

func (f rangerFolder) EachMessage(fn func(i int, m native.Message) error) error {
	for i, m := range f.messages {
		if err := fn(i, m); err != nil {
			return err
		}
	}
	return nil
}

func openRanger(t *testing.T) *Adapter {
	t.Helper()
	delivered := time.Date(2023, 5, 18, 7, 0, 0, 0, time.UTC)
	ranged := rangerFolder{&fakeFolder{
		name: "Ranged",
		messages: []native.Message{
			fakeMessage{props: props{native.PropSubject: "first", native.PropClientSubmitTime: int64(1700000000)}},
			fakeMessage{props: props{native.PropSubject: "delivered only", native.PropDeliveryTime: delivered}},
		},
	}}
	store := &fakeStore{root: &fakeFolder{children: []native.Folder{ranged}}}
	a := New(fakeBackend{store: store}, nil)
	require.NoError(t, a.Open("ranged.pst"))
	return a
}

func TestRangerFolder(t *testing.T) {
	a := openRanger(t)

	msgs := a.ListMessages(1)
	require.Len(t, msgs, 2, "ranger enumeration ignores the reported count")

	msg, err := a.GetMessage(model.MessageID{Folder: 1, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "delivered only", msg.Subject)

	for _, idx := range []int{2, 50} {
		_, err = a.GetMessage(model.MessageID{Folder: 1, Index: idx})
		assert.ErrorIs(t, err, ErrNotFound, "index %d", idx)
	}
}

func TestDeliveryTimeIsNotASubmitDate(t *testing.T) {
	a := openRanger(t)

	msgs := a.ListMessages(1)
	require.Len(t, msgs, 2)
	assert.NotEmpty(t, msgs[0].Date)
	assert.Empty(t, msgs[1].Date)
	assert.True(t, msgs[1].Time.IsZero())
}

func TestSaveAttachments_UnreadableLoggedAtWarn(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	a := New(fakeBackend{store: &fakeStore{root: sampleTree()}}, logger)
	require.NoError(t, a.Open("archive.pst"))

	_, err := a.SaveAttachments(model.MessageID{Folder: 2, Index: 0}, t.TempDir())
	require.NoError(t, err)

	var line string
	for _, l := range strings.Split(logs.String(), "\n") {
		if strings.Contains(l, "attachment unreadable") {
			line = l
		}
	}
	require.NotEmpty(t, line, logs.String())
	assert.Contains(t, line, "level=WARN")
	assert.Contains(t, line, "index=2")
}
