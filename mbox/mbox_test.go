package mbox

import (
	"bytes"
	_ "embed"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/pst-viewer/native"
)

//go:embed test_data/sample.mbox
var sampleMbox []byte

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"Inbox", "Inbox/Reports", "Sent Items"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "Inbox", FileName), sampleMbox, 0o644))
	return root
}

func TestReadFrom(t *testing.T) {
	var subjects []string
	err := ReadFrom(bytes.NewReader(sampleMbox), func(idx int, raw []byte) error {
		msg, err := Parse(raw)
		require.NoError(t, err)
		v, _ := msg.Property(native.PropSubject)
		subjects = append(subjects, v.(string))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Plain hello", "Quarterly report", "Café news"}, subjects)
}

func TestReadFrom_Stop(t *testing.T) {
	calls := 0
	err := ReadFrom(bytes.NewReader(sampleMbox), func(int, []byte) error {
		calls++
		return ErrStop
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestParse_Multipart(t *testing.T) {
	var raw []byte
	require.NoError(t, ReadFrom(bytes.NewReader(sampleMbox), func(idx int, r []byte) error {
		if idx == 1 {
			raw = r
			return ErrStop
		}
		return nil
	}))

	msg, err := Parse(raw)
	require.NoError(t, err)

	prop := func(name string) any {
		v, err := msg.Property(name)
		require.NoError(t, err, name)
		return v
	}
	assert.Equal(t, "Carol", prop(native.PropSenderName))
	assert.Equal(t, "carol@example.com", prop(native.PropSenderEmail))
	assert.Equal(t, "Dave <dave@example.com>", prop(native.PropCc))
	assert.Equal(t, "Quarterly numbers attached.", prop(native.PropPlainTextBody))
	assert.Equal(t, "<p>Quarterly numbers attached.</p>", prop(native.PropHTMLBody))

	count, err := msg.AttachmentCount()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	att, err := msg.Attachment(0)
	require.NoError(t, err)
	name, _ := att.Property(native.PropLongFilename)
	assert.Equal(t, "report.csv", name)
	data, err := att.(native.PayloadReader).Data()
	require.NoError(t, err)
	assert.Equal(t, "id,total\n1,42\n", string(data))

	embedded, err := msg.Attachment(1)
	require.NoError(t, err)
	flag, _ := embedded.Property(native.PropIsEmbedded)
	assert.Equal(t, true, flag)

	_, err = msg.Attachment(2)
	assert.Error(t, err)
}

func TestTree(t *testing.T) {
	store, err := OpenTree(writeTree(t), nil)
	require.NoError(t, err)
	defer store.Close()

	root, err := store.Root()
	require.NoError(t, err)
	n, err := root.SubFolderCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	inbox, err := root.SubFolder(0)
	require.NoError(t, err)
	name, _ := inbox.Name()
	assert.Equal(t, "Inbox", name)

	count, err := inbox.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	msg, err := inbox.Message(2)
	require.NoError(t, err)
	html, _ := msg.Property(native.PropHTMLBody)
	assert.Contains(t, html, "the news")

	_, err = inbox.Message(3)
	assert.Error(t, err)

	var seen []int
	require.NoError(t, inbox.(native.MessageRanger).EachMessage(func(i int, _ native.Message) error {
		seen = append(seen, i)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2}, seen)

	sent, err := root.SubFolder(1)
	require.NoError(t, err)
	count, err = sent.MessageCount()
	require.NoError(t, err)
	assert.Zero(t, count, "folder without mbox file is empty")
}

func TestOpenTree_Cleanup(t *testing.T) {
	cleaned := false
	store, err := OpenTree(t.TempDir(), func() error {
		cleaned = true
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.True(t, cleaned)

	_, err = OpenTree(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
