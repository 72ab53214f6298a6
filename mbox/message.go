package mbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/pst-viewer/native"
)

// Message is one parsed RFC 5322 message.
type Message struct {
	props       map[string]any
	attachments []*Attachment
}

// Attachment is a MIME part carried as a file.
type Attachment struct {
	props map[string]any
	data  []byte
}

// Parse decodes a raw message. Parts with unknown charsets are kept undecoded.
func Parse(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	m := &Message{props: headerProps(mr.Header)}
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return m, fmt.Errorf("read part: %w", err)
		}
		if p == nil {
			break
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			return m, fmt.Errorf("read part body: %w", err)
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			m.addPart(h.Header, body)
		case *mail.AttachmentHeader:
			m.addPart(h.Header, body)
		}
	}
	return m, nil
}

func headerProps(h mail.Header) map[string]any {
	props := map[string]any{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			props[key] = value
		}
	}

	subject, _ := h.Subject()
	set(native.PropSubject, subject)

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		set(native.PropSenderName, from[0].Name)
		set(native.PropSenderEmail, from[0].Address)
	}
	from, _ := h.Text("From")
	set(native.PropFrom, from)
	to, _ := h.Text("To")
	set(native.PropTo, to)
	cc, _ := h.Text("Cc")
	set(native.PropCc, cc)
	set(native.PropDate, h.Get("Date"))
	return props
}

func (m *Message) addPart(h message.Header, body []byte) {
	contentType, params, _ := h.ContentType()
	disposition, dispParams, _ := h.ContentDisposition()

	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}

	if disposition != "attachment" && filename == "" {
		switch contentType {
		case "text/plain":
			if _, ok := m.props[native.PropPlainTextBody]; !ok {
				m.props[native.PropPlainTextBody] = string(body)
				return
			}
		case "text/html":
			if _, ok := m.props[native.PropHTMLBody]; !ok {
				m.props[native.PropHTMLBody] = string(body)
				return
			}
		}
		if strings.HasPrefix(contentType, "text/") || strings.HasPrefix(contentType, "multipart/") {
			return
		}
	}

	ah := mail.AttachmentHeader{Header: h}
	if decoded, err := ah.Filename(); err == nil && decoded != "" {
		filename = decoded
	}
	props := map[string]any{
		native.PropContentType: contentType,
		native.PropDataSize:    len(body),
	}
	if filename != "" {
		props[native.PropLongFilename] = filename
	}
	props[native.PropIsEmbedded] = contentType == "message/rfc822"
	m.attachments = append(m.attachments, &Attachment{props: props, data: body})
}

func (m *Message) Property(name string) (any, error) {
	if v, ok := m.props[name]; ok {
		return v, nil
	}
	return nil, native.ErrNoProperty
}

func (m *Message) AttachmentCount() (int, error) {
	return len(m.attachments), nil
}

func (m *Message) Attachment(i int) (native.Attachment, error) {
	if i < 0 || i >= len(m.attachments) {
		return nil, fmt.Errorf("attachment %d: out of range", i)
	}
	return m.attachments[i], nil
}

func (a *Attachment) Property(name string) (any, error) {
	if v, ok := a.props[name]; ok {
		return v, nil
	}
	return nil, native.ErrNoProperty
}

// Data returns the decoded part body.
func (a *Attachment) Data() ([]byte, error) {
	return a.data, nil
}
