// Package native describes the object graph a PST parsing backend exposes.
//
// Backends differ in which accessors they support, so scalar values are read
// through Property by name and byte payloads through optional capability
// interfaces that callers discover with type assertions.
package native

import (
	"errors"
	"io"
)

var (
	// ErrNoProperty is returned by Property when the object does not carry the named value.
	ErrNoProperty = errors.New("property not available")
	// ErrUnavailable is returned by Backend.Available when the parser cannot be used at all.
	ErrUnavailable = errors.New("pst backend unavailable")
)

// Property names understood by the adapter. Backends return ErrNoProperty
// for names they do not map.
const (
	PropSubject              = "subject"
	PropSenderName           = "sender_name"
	PropSenderEmail          = "sender_email_address"
	PropSentRepresentingName = "sent_representing_name"
	PropFrom                 = "from"
	PropDisplayTo            = "display_to"
	PropTo                   = "to"
	PropDisplayCc            = "display_cc"
	PropCc                   = "cc"
	PropClientSubmitTime     = "client_submit_time"
	PropDate                 = "date"
	PropDeliveryTime         = "message_delivery_time"
	PropPlainTextBody        = "plain_text_body"
	PropBody                 = "body"
	PropHTMLBody             = "html_body"

	PropLongFilename = "long_filename"
	PropFilename     = "filename"
	PropMIMEType     = "mime_type"
	PropMIMETag      = "mime_tag"
	PropContentType  = "content_type"
	PropSize         = "size"
	PropDataSize     = "data_size"
	PropAttachMethod = "attach_method"
	PropIsEmbedded   = "is_embedded_message"
)

// AttachMethodEmbedded is the PR_ATTACH_METHOD value of an embedded message.
const AttachMethodEmbedded = 5

// PropertySource exposes named scalar values.
type PropertySource interface {
	Property(name string) (any, error)
}

// Store is an opened archive.
type Store interface {
	// Root returns the library's synthetic root folder.
	Root() (Folder, error)
	Close() error
}

// Folder is a node of the archive's folder hierarchy.
type Folder interface {
	Name() (string, error)
	SubFolderCount() (int, error)
	SubFolder(i int) (Folder, error)
	MessageCount() (int, error)
	Message(i int) (Message, error)
}

// Message is a single item stored in a folder.
type Message interface {
	PropertySource
	AttachmentCount() (int, error)
	Attachment(i int) (Attachment, error)
}

// Attachment is one attachment of a message.
type Attachment interface {
	PropertySource
}

// MessageRanger is implemented by folders that enumerate messages
// sequentially faster than by repeated positional lookups. Indexes passed
// to fn must match the positions accepted by Folder.Message.
type MessageRanger interface {
	EachMessage(fn func(i int, m Message) error) error
}

// BufferReader reads a payload of a known size.
type BufferReader interface {
	ReadBuffer(size int) ([]byte, error)
}

// PayloadReader returns the whole payload at once.
type PayloadReader interface {
	Data() ([]byte, error)
}

// StreamOpener opens the payload for unsized streaming reads.
type StreamOpener interface {
	Open() (io.ReadCloser, error)
}

// EmbeddedMessageHolder is implemented by attachments that may wrap a message.
type EmbeddedMessageHolder interface {
	EmbeddedMessage() (Message, error)
}

// Backend opens archives with one parsing strategy.
type Backend interface {
	Name() string
	// Available returns an error wrapping ErrUnavailable when the backend's
	// parser is not present on this system.
	Available() error
	Open(path string) (Store, error)
}
