package attachment

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/pst-viewer/native"
)

type fakeAttachment struct {
	props map[string]any
}

func (f fakeAttachment) Property(name string) (any, error) {
	if v, ok := f.props[name]; ok {
		return v, nil
	}
	return nil, native.ErrNoProperty
}

type bufferAttachment struct {
	fakeAttachment
	data  []byte
	calls *[]string
}

func (b bufferAttachment) ReadBuffer(size int) ([]byte, error) {
	*b.calls = append(*b.calls, "buffer")
	if size > len(b.data) {
		size = len(b.data)
	}
	return b.data[:size], nil
}

func (b bufferAttachment) Data() ([]byte, error) {
	*b.calls = append(*b.calls, "payload")
	return b.data, nil
}

type payloadAttachment struct {
	fakeAttachment
	data []byte
	err  error
}

func (p payloadAttachment) Data() ([]byte, error) { return p.data, p.err }

type streamAttachment struct {
	fakeAttachment
	data string
}

func (s streamAttachment) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.data)
	return int64(n), err
}

type panickyAttachment struct {
	fakeAttachment
}

func (panickyAttachment) Data() ([]byte, error) { panic("corrupt descriptor") }

func TestReadBytes_StrategyOrder(t *testing.T) {
	var calls []string
	att := bufferAttachment{
		fakeAttachment: fakeAttachment{props: map[string]any{native.PropSize: int32(5)}},
		data:           []byte("hello"),
		calls:          &calls,
	}

	data, ok := ReadBytes(att)
	require.True(t, ok)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, []string{"buffer"}, calls)
}

func TestReadBytes_SizedReadNeedsSizeHint(t *testing.T) {
	var calls []string
	att := bufferAttachment{fakeAttachment: fakeAttachment{}, data: []byte("payload"), calls: &calls}

	data, ok := ReadBytes(att)
	require.True(t, ok)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, []string{"payload"}, calls)
}

func TestReadBytes_FallsBackToStream(t *testing.T) {
	att := streamAttachment{data: "streamed"}
	data, ok := ReadBytes(att)
	require.True(t, ok)
	assert.Equal(t, "streamed", string(data))
}

func TestReadBytes_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		att  native.Attachment
	}{
		{"no capability", fakeAttachment{props: map[string]any{native.PropSize: 10}}},
		{"payload error", payloadAttachment{err: errors.New("io")}},
		{"empty payload", payloadAttachment{data: []byte{}}},
		{"panic absorbed", panickyAttachment{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ReadBytes(tt.att)
			assert.False(t, ok)
		})
	}
}

func TestResolveMIME(t *testing.T) {
	pdf := []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	tests := []struct {
		name string
		att  native.Attachment
		file string
		data []byte
		want string
	}{
		{"native value wins", fakeAttachment{props: map[string]any{native.PropMIMETag: "Image/PNG"}}, "x.pdf", pdf, "image/png"},
		{"extension", fakeAttachment{}, "report.pdf", nil, "application/pdf"},
		{"content sniffing", fakeAttachment{}, "noext", pdf, "application/pdf"},
		{"default", fakeAttachment{}, "noext", nil, DefaultMIMEType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMIME(tt.att, tt.file, tt.data))
		})
	}
}

func TestDescribe_UnreadableUsesExtension(t *testing.T) {
	att := payloadAttachment{fakeAttachment: fakeAttachment{props: map[string]any{native.PropLongFilename: "report.pdf"}}}

	info := Describe(att, 0)
	assert.Equal(t, "report.pdf (application/pdf)", info.Descriptor())
	assert.False(t, info.Readable)
}

func TestDescribe_Embedded(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]any
	}{
		{"flag", map[string]any{native.PropIsEmbedded: true}},
		{"attach method", map[string]any{native.PropAttachMethod: int32(native.AttachMethodEmbedded)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Describe(fakeAttachment{props: tt.props}, 2)
			assert.True(t, info.Embedded)
			assert.Equal(t, "embedded message 2 (message/rfc822)", info.Descriptor())
		})
	}
}

func TestName_Fallbacks(t *testing.T) {
	assert.Equal(t, "attachment_3", Name(fakeAttachment{}, 3))
	assert.Equal(t, "long name.txt", Name(fakeAttachment{props: map[string]any{
		native.PropFilename:     "LONGNA~1.TXT",
		native.PropLongFilename: "long name.txt",
	}}, 0))
	assert.Equal(t, "LONGNA~1.TXT", Name(fakeAttachment{props: map[string]any{
		native.PropFilename: "LONGNA~1.TXT",
	}}, 0))
}

func TestSanitize(t *testing.T) {
	inputs := []string{
		`a<b>c:d"e/f\g|h?i*j.txt`,
		"line\nbreak\r\n.doc",
		"  ",
		"<>:\"/\\|?*",
		"..",
	}
	for _, in := range inputs {
		got := Sanitize(in)
		assert.NotEmpty(t, got, "Sanitize(%q)", in)
		assert.False(t, strings.ContainsAny(got, "<>:\"/\\|?*\r\n"), "Sanitize(%q) = %q", in, got)
		assert.NotEqual(t, "..", got)
	}
	assert.Equal(t, "a_b_c.txt", Sanitize("a<b>c.txt"))
	assert.Equal(t, fallbackName, Sanitize(""))
}

func TestSave_CollisionSuffix(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	first, err := Save(dir, "notes.txt", []byte("one"))
	require.NoError(t, err)
	second, err := Save(dir, "notes.txt", []byte("two"))
	require.NoError(t, err)
	third, err := Save(dir, "notes.txt", []byte("three"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "notes.txt"), first)
	assert.Equal(t, filepath.Join(dir, "notes (1).txt"), second)
	assert.Equal(t, filepath.Join(dir, "notes (2).txt"), third)

	content, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "two", string(content))
}

func TestUniquePath_Dotfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".bashrc"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive.tar.gz"), nil, 0o644))

	assert.Equal(t, filepath.Join(dir, ".bashrc (1)"), UniquePath(dir, ".bashrc"))
	assert.Equal(t, filepath.Join(dir, "archive.tar (1).gz"), UniquePath(dir, "archive.tar.gz"))
}
