package adapter

import (
	"strings"
	"time"

	"github.com/dhcgn/pst-viewer/htmltext"
	"github.com/dhcgn/pst-viewer/native"
	"github.com/dhcgn/pst-viewer/probe"
)

// Field strategies, most specific accessor first. Backends that expose a
// value under another name are supported by appending to these lists.
var (
	subjectField = probe.NewField("subject", native.PropSubject)
	senderField  = probe.NewField("sender",
		native.PropSenderName,
		native.PropSenderEmail,
		native.PropSentRepresentingName,
		native.PropFrom,
	)
	toField       = probe.NewField("to", native.PropDisplayTo, native.PropTo)
	ccField       = probe.NewField("cc", native.PropDisplayCc, native.PropCc)
	dateField     = probe.NewField("date", native.PropClientSubmitTime, native.PropDate)
	textBodyField = probe.NewField("body_text", native.PropPlainTextBody, native.PropBody)
	htmlBodyField = probe.NewField("body_html", native.PropHTMLBody)
)

// dateFormat renders submit timestamps in RFC 5322 form.
const dateFormat = time.RFC1123Z

func messageDate(src native.PropertySource) (string, time.Time) {
	if t, ok := dateField.Time(src); ok {
		return t.Format(dateFormat), t
	}
	return strings.TrimSpace(dateField.Text(src)), time.Time{}
}

// resolveBodies applies the body policy: a present text body is used as is;
// an HTML-only message gets a text body derived from the markup. Both are
// returned with "\n" line endings.
func resolveBodies(text, html string) (string, string) {
	switch {
	case text != "":
		return normalizeNewlines(text), normalizeNewlines(html)
	case html != "":
		html = normalizeNewlines(html)
		return normalizeNewlines(htmltext.Convert(html)), html
	}
	return "", ""
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
