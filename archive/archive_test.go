package archive

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/pst-viewer/export"
	"github.com/dhcgn/pst-viewer/model"
)

// memSource serves a fixed folder tree; messages[folder] holds its messages.
type memSource struct {
	roots    []model.FolderNode
	messages map[model.FolderID][]model.Message
	broken   map[model.MessageID]bool
}

func (m *memSource) RootFolders() ([]model.FolderNode, error) { return m.roots, nil }

func (m *memSource) MessageCount(id model.FolderID) (int, error) {
	return len(m.messages[id]), nil
}

func (m *memSource) ListMessages(id model.FolderID) ([]model.MessageSummary, error) {
	var out []model.MessageSummary
	for _, msg := range m.messages[id] {
		out = append(out, msg.MessageSummary)
	}
	return out, nil
}

func (m *memSource) GetMessage(id model.MessageID) (model.Message, error) {
	if m.broken[id] {
		return model.Message{}, errors.New("corrupt")
	}
	return m.messages[id.Folder][id.Index], nil
}

func message(folder model.FolderID, index int, subject string) model.Message {
	return model.Message{
		MessageSummary: model.MessageSummary{
			ID:      model.MessageID{Folder: folder, Index: index},
			Subject: subject,
			Sender:  "alice@example.com",
			Date:    "Tue, 14 Nov 2023 22:13:20 +0000",
			Time:    time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		},
		To:       "bob@example.com",
		BodyText: "body of " + subject,
	}
}

func sampleSource() *memSource {
	return &memSource{
		roots: []model.FolderNode{{
			ID: 1, Name: "Top",
			Children: []model.FolderNode{
				{ID: 2, Name: "Inbox", Children: []model.FolderNode{{ID: 3, Name: "Receipts"}}},
				{ID: 4, Name: "Sent"},
			},
		}},
		messages: map[model.FolderID][]model.Message{
			2: {message(2, 0, "hello"), message(2, 1, "again")},
			3: {message(3, 0, "receipt")},
			4: {message(4, 0, "reply")},
		},
		broken: map[model.MessageID]bool{},
	}
}

func TestFolders(t *testing.T) {
	src := sampleSource()

	all, err := Folders(src, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, FolderRef{ID: 3, Path: []string{"Top", "Inbox", "Receipts"}}, all[2])

	sub, err := Folders(src, 2)
	require.NoError(t, err)
	assert.Equal(t, []FolderRef{
		{ID: 2, Path: []string{"Top", "Inbox"}},
		{ID: 3, Path: []string{"Top", "Inbox", "Receipts"}},
	}, sub)

	_, err = Folders(src, 99)
	assert.ErrorIs(t, err, ErrUnknownFolder)
}

func TestCount(t *testing.T) {
	src := sampleSource()

	n, err := Count(src, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = Count(src, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRender(t *testing.T) {
	msg := message(2, 0, "hello")

	r, err := Render(msg, []string{"Top", "Inbox"}, export.EML)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, r.ID)
	assert.Len(t, r.Hash, 64)
	assert.Equal(t, int64(len(r.Raw)), r.Size)
	assert.Equal(t, msg.Time, r.ReceivedAt)
	assert.Contains(t, string(r.Raw), "Subject: hello\r\n")

	again, err := Render(msg, nil, export.EML)
	require.NoError(t, err)
	assert.Equal(t, r.Hash, again.Hash, "rendering is deterministic")
}
