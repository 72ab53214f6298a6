// Package attachment extracts attachment payloads from native messages,
// resolves their MIME types and saves them under filesystem-safe names.
package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/native"
	"github.com/dhcgn/pst-viewer/probe"
)

// DefaultMIMEType is used when no strategy can determine a type.
const DefaultMIMEType = "application/octet-stream"

const fallbackName = "attachment"

var (
	nameField     = probe.NewField("filename", native.PropLongFilename, native.PropFilename)
	mimeField     = probe.NewField("mime", native.PropMIMEType, native.PropMIMETag, native.PropContentType)
	sizeField     = probe.NewField("size", native.PropSize, native.PropDataSize)
	embeddedField = probe.NewField("embedded", native.PropIsEmbedded)
	methodField   = probe.NewField("attach_method", native.PropAttachMethod)
)

// Describe probes one attachment. index is its position in the message.
func Describe(att native.Attachment, index int) model.AttachmentInfo {
	info := model.AttachmentInfo{Index: index}
	if IsEmbedded(att) {
		info.Embedded = true
		info.Name = fmt.Sprintf("embedded message %d", index)
		info.MIMEType = model.EmbeddedMIMEType
		return info
	}

	info.Name = Name(att, index)
	data, ok := ReadBytes(att)
	info.Readable = ok
	info.Size = int64(len(data))
	if !ok {
		if size, hinted := sizeField.Int(att); hinted {
			info.Size = size
		}
	}
	info.MIMEType = ResolveMIME(att, info.Name, data)
	return info
}

// Name returns the sanitized attachment filename, or "attachment_<index>"
// when the native object carries none.
func Name(att native.Attachment, index int) string {
	name := nameField.Text(att)
	if strings.TrimSpace(name) == "" {
		return fmt.Sprintf("%s_%d", fallbackName, index)
	}
	return Sanitize(name)
}

// IsEmbedded reports whether the attachment wraps a message.
func IsEmbedded(att native.Attachment) bool {
	if v, ok := embeddedField.Bool(att); ok {
		return v
	}
	if method, ok := methodField.Int(att); ok {
		return method == native.AttachMethodEmbedded
	}
	if holder, ok := att.(native.EmbeddedMessageHolder); ok {
		var msg native.Message
		err := probe.Guard(func() error {
			var err error
			msg, err = holder.EmbeddedMessage()
			return err
		})
		return err == nil && msg != nil
	}
	return false
}

type readStrategy struct {
	name string
	read func(att native.Attachment, size int64) ([]byte, error)
}

var errUnsupported = errors.New("read strategy not supported")

// readStrategies are tried in order; the first returning bytes wins.
var readStrategies = []readStrategy{
	{name: "buffer", read: readBuffer},
	{name: "payload", read: readPayload},
	{name: "stream", read: readStream},
}

// ReadBytes reads the attachment payload. It reports false when no strategy yields any bytes.
func ReadBytes(att native.Attachment) ([]byte, bool) {
	size, _ := sizeField.Int(att)
	for _, s := range readStrategies {
		var data []byte
		err := probe.Guard(func() error {
			var err error
			data, err = s.read(att, size)
			return err
		})
		if err == nil && len(data) > 0 {
			return data, true
		}
	}
	return nil, false
}

func readBuffer(att native.Attachment, size int64) ([]byte, error) {
	br, ok := att.(native.BufferReader)
	if !ok || size <= 0 {
		return nil, errUnsupported
	}
	return br.ReadBuffer(int(size))
}

func readPayload(att native.Attachment, _ int64) ([]byte, error) {
	pr, ok := att.(native.PayloadReader)
	if !ok {
		return nil, errUnsupported
	}
	return pr.Data()
}

func readStream(att native.Attachment, size int64) ([]byte, error) {
	if wt, ok := att.(io.WriterTo); ok {
		var buf bytes.Buffer
		if size > 0 {
			buf.Grow(int(size))
		}
		if _, err := wt.WriteTo(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if so, ok := att.(native.StreamOpener); ok {
		rc, err := so.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, errUnsupported
}

// ResolveMIME prefers the type carried by the attachment, then the
// filename extension, then the content signature of data.
func ResolveMIME(att native.Attachment, name string, data []byte) string {
	if t := strings.TrimSpace(mimeField.Text(att)); t != "" {
		return strings.ToLower(t)
	}
	if t := ByExtension(name); t != "" {
		return t
	}
	if len(data) > 0 {
		if t := mimetype.Detect(data); t != nil {
			return baseType(t.String())
		}
	}
	return DefaultMIMEType
}

// ByExtension guesses a MIME type from the filename extension.
func ByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	return baseType(mime.TypeByExtension(ext))
}

func baseType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

var unsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_",
	"|", "_", "?", "_", "*", "_", "\r", "_", "\n", "_",
)

// Sanitize makes name safe to use as a single path element.
func Sanitize(name string) string {
	name = unsafeChars.Replace(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return fallbackName
	}
	return name
}

// UniquePath returns dir/name, or dir/"base (n)ext" with the smallest n
// that does not exist yet.
func UniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	if ext == name {
		// Dotfiles like ".bashrc" have no extension.
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	for n := 1; exists(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
	}
	return path
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Save writes data under dir using a collision-free variant of name.
func Save(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	path := UniquePath(dir, Sanitize(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
