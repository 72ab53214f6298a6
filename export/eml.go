// Package export serializes resolved messages into files.
package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/pst-viewer/model"
)

// BuildEML renders msg as an RFC 5322 message with CRLF line endings.
func BuildEML(msg model.Message) (string, error) {
	var buf bytes.Buffer
	if err := WriteEML(&buf, msg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteEML writes msg as an RFC 5322 message. With both bodies present the
// message is multipart/alternative (text first); an HTML-only message is
// multipart/alternative with a single part; otherwise it is a text/plain
// single-part message.
func WriteEML(w io.Writer, msg model.Message) error {
	h := header(msg)

	switch {
	case msg.BodyHTML != "" && msg.BodyText != "":
		return writeAlternative(w, h, part{"text/plain", msg.BodyText}, part{"text/html", msg.BodyHTML})
	case msg.BodyHTML != "":
		return writeAlternative(w, h, part{"text/html", msg.BodyHTML})
	default:
		setTextContent(&h.Header, "text/plain")
		body, err := mail.CreateSingleInlineWriter(w, h)
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if _, err := io.WriteString(body, crlf(msg.BodyText)); err != nil {
			_ = body.Close()
			return fmt.Errorf("write body: %w", err)
		}
		return body.Close()
	}
}

type part struct {
	contentType string
	body        string
}

// writeAlternative writes a multipart/alternative body. The boundary is
// derived from the parts so the same message always renders the same bytes.
func writeAlternative(w io.Writer, h mail.Header, parts ...part) error {
	h.SetContentType("multipart/alternative", map[string]string{"boundary": boundary(parts)})
	mw, err := message.CreateWriter(w, h.Header)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	for _, p := range parts {
		var ph message.Header
		setTextContent(&ph, p.contentType)
		pw, err := mw.CreatePart(ph)
		if err != nil {
			_ = mw.Close()
			return fmt.Errorf("create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, crlf(p.body)); err != nil {
			_ = pw.Close()
			_ = mw.Close()
			return fmt.Errorf("write %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			_ = mw.Close()
			return fmt.Errorf("close %s part: %w", p.contentType, err)
		}
	}
	return mw.Close()
}

func boundary(parts []part) string {
	hash := sha256.New()
	for _, p := range parts {
		io.WriteString(hash, p.contentType)
		io.WriteString(hash, p.body)
	}
	return "=_pstview_" + hex.EncodeToString(hash.Sum(nil)[:12])
}

type contentHeader interface {
	SetContentType(t string, params map[string]string)
	Set(k, v string)
}

func setTextContent(h contentHeader, contentType string) {
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
}

func header(msg model.Message) mail.Header {
	var h mail.Header
	h.Set("MIME-Version", "1.0")
	h.SetSubject(msg.Subject)
	h.SetText("From", msg.Sender)
	h.SetText("To", msg.To)
	if msg.Cc != "" {
		h.SetText("Cc", msg.Cc)
	}
	if msg.Date != "" {
		h.Set("Date", msg.Date)
	}
	return h
}

// crlf converts any line ending convention to CRLF.
func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
