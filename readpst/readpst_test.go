package readpst

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/pst-viewer/mbox"
	"github.com/dhcgn/pst-viewer/native"
)

const oneMessage = "From a@example.com Mon Jan  2 15:04:05 2006\n" +
	"From: A <a@example.com>\n" +
	"Subject: converted\n" +
	"\n" +
	"body\n"

// fakeRun mimics readpst -r: it writes <out>/<store>/Inbox/mbox.
func fakeRun(t *testing.T, gotArgs *[]string) RunFunc {
	return func(_ context.Context, _ string, args ...string) ([]byte, error) {
		*gotArgs = args
		out := args[len(args)-2]
		dir := filepath.Join(out, "Personal Folders", "Inbox")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, mbox.FileName), []byte(oneMessage), 0o644))
		return nil, nil
	}
}

func newBackend(t *testing.T, run RunFunc) *Backend {
	b := New("", nil)
	b.TempDir = t.TempDir()
	b.run = run
	b.lookPath = func(string) (string, error) { return "/usr/bin/readpst", nil }
	return b
}

func archive(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "mail.pst")
	require.NoError(t, os.WriteFile(path, []byte("!BDN"), 0o644))
	return path
}

func TestAvailable(t *testing.T) {
	b := New("", nil)
	assert.Equal(t, DefaultBinary, b.Binary)

	b.lookPath = func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }
	err := b.Available()
	require.ErrorIs(t, err, native.ErrUnavailable)
}

func TestOpen(t *testing.T) {
	var args []string
	b := newBackend(t, fakeRun(t, &args))
	path := archive(t)

	store, err := b.Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"-q", "-r", "-b", "-o"}, args[:4])
	assert.Equal(t, path, args[len(args)-1])

	root, err := store.Root()
	require.NoError(t, err)
	inbox, err := root.SubFolder(0)
	require.NoError(t, err)
	name, _ := inbox.Name()
	assert.Equal(t, "Inbox", name)

	msg, err := inbox.Message(0)
	require.NoError(t, err)
	subject, _ := msg.Property(native.PropSubject)
	assert.Equal(t, "converted", subject)

	workDir := args[4]
	require.NoError(t, store.Close())
	_, err = os.Stat(workDir)
	assert.True(t, os.IsNotExist(err), "work directory removed on close")
}

func TestOpen_Failure(t *testing.T) {
	var workDir string
	b := newBackend(t, func(_ context.Context, _ string, args ...string) ([]byte, error) {
		workDir = args[4]
		return []byte("Error opening file"), errors.New("exit status 1")
	})

	_, err := b.Open(archive(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error opening file")
	_, statErr := os.Stat(workDir)
	assert.True(t, os.IsNotExist(statErr))

	_, err = b.Open(filepath.Join(t.TempDir(), "missing.pst"))
	assert.Error(t, err)
}
