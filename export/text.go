package export

import (
	"strings"

	"github.com/dhcgn/pst-viewer/model"
)

// BuildText renders msg as a plain text dump: one line per header,
// a blank line, then the text body.
func BuildText(msg model.Message) string {
	var sb strings.Builder
	for _, line := range [][2]string{
		{"Subject", msg.Subject},
		{"From", msg.Sender},
		{"To", msg.To},
		{"Cc", msg.Cc},
		{"Date", msg.Date},
	} {
		sb.WriteString(line[0])
		sb.WriteString(": ")
		sb.WriteString(line[1])
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(msg.BodyText)
	return sb.String()
}
