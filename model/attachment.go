package model

import "fmt"

// EmbeddedMIMEType is reported for attachments that are messages themselves.
const EmbeddedMIMEType = "message/rfc822"

// AttachmentInfo describes one attachment of a message.
type AttachmentInfo struct {
	Index    int
	Name     string
	MIMEType string
	Size     int64
	Embedded bool
	// Readable reports whether a payload could be read, i.e. whether
	// saving the message's attachments will produce a file for it.
	Readable bool
}

// Descriptor renders the listing form "<name> (<mime>)", or
// "embedded message N (message/rfc822)" for embedded messages.
func (a AttachmentInfo) Descriptor() string {
	if a.Embedded {
		return fmt.Sprintf("embedded message %d (%s)", a.Index, EmbeddedMIMEType)
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.MIMEType)
}
