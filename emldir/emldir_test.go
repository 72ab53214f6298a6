package emldir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dhcgn/pst-viewer/archive"
	"github.com/dhcgn/pst-viewer/export"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/runner"
	"github.com/dhcgn/pst-viewer/state"
	"github.com/dhcgn/pst-viewer/stats"
)

type source struct {
	messages []model.Message
}

func (s source) RootFolders() ([]model.FolderNode, error) {
	return []model.FolderNode{{ID: 1, Name: "Inbox: 2024"}}, nil
}
func (s source) MessageCount(model.FolderID) (int, error) { return len(s.messages), nil }
func (s source) ListMessages(model.FolderID) ([]model.MessageSummary, error) {
	out := make([]model.MessageSummary, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.MessageSummary)
	}
	return out, nil
}
func (s source) GetMessage(id model.MessageID) (model.Message, error) {
	return s.messages[id.Index], nil
}

var received = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

func newSource() source {
	msg := func(i int, subject string) model.Message {
		return model.Message{
			MessageSummary: model.MessageSummary{
				ID:      model.MessageID{Folder: 1, Index: i},
				Subject: subject,
				Date:    received.Format(time.RFC1123Z),
				Time:    received,
			},
			BodyText: subject,
		}
	}
	return source{messages: []model.Message{msg(0, "first"), msg(1, "second"), msg(2, "first")}}
}

func runExport(t *testing.T, opts Options, tracker state.Tracker) stats.Summary {
	t.Helper()
	r := runner.NewWithTracker(runner.Options{DryRun: opts.DryRun}, tracker, nil)
	_, err := archive.NewProducer(newSource(), archive.Options{}, r, nil)
	require.NoError(t, err)
	_, err = NewWriter(opts, r, nil)
	require.NoError(t, err)

	c := stats.NewCollector()
	r.SubscribeStats("test", func(ctx context.Context, events <-chan stats.Event) error {
		c.Run(ctx, events)
		return nil
	})
	require.NoError(t, r.Start())
	return c.Snapshot()
}

func TestWriter_ExportsTree(t *testing.T) {
	defer goleak.VerifyNone(t)
	out := t.TempDir()
	tracker := state.NewMemory()

	summary := runExport(t, Options{Dir: out}, tracker)
	assert.Equal(t, 3, summary.Scanned)
	// messages 0 and 2 render identically
	assert.Equal(t, 2, summary.Written)
	assert.Equal(t, 1, summary.Duplicates)

	files, err := filepath.Glob(filepath.Join(out, "Inbox_ 2024", "*.eml"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	info, err := os.Stat(files[0])
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(received))

	// A second run over the same state writes nothing new.
	again := runExport(t, Options{Dir: out}, tracker)
	assert.Equal(t, 3, again.Duplicates)
	assert.Zero(t, again.Written)

	first, err := archive.Render(newSource().messages[0], []string{"Inbox: 2024"}, export.EML)
	require.NoError(t, err)
	entry, ok := tracker.Lookup(first.Hash)
	require.True(t, ok)
	assert.Equal(t, "1:0", entry.MessageID)
	assert.Equal(t, "Inbox: 2024", entry.Folder)
	assert.Equal(t, w0(out, first), entry.Location)
}

func w0(dir string, msg model.Rendered) string {
	return (&Writer{opts: Options{Dir: dir, Extension: ".eml"}}).Path(msg, 0)
}

func TestWriter_DryRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dump")

	summary := runExport(t, Options{Dir: out, DryRun: true}, state.NewMemory())
	assert.Equal(t, 2, summary.DryRunUploaded)
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestWriter_Path(t *testing.T) {
	w := &Writer{opts: Options{Dir: "out", Extension: ".txt"}}
	got := w.Path(model.Rendered{FolderPath: []string{"Top", "a/b"}, Hash: "0123456789abcdef0123"}, 7)
	assert.Equal(t, filepath.Join("out", "Top", "a_b", "0123456789abcdef-7.txt"), got)
}
