package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidMessageID is returned when a textual message id cannot be parsed.
var ErrInvalidMessageID = errors.New("invalid message id")

// FolderID is the sequence number a folder receives during the traversal
// performed when an archive is opened. Numbering starts at 1 and follows
// depth-first pre-order, so it is stable for one open session.
type FolderID int

// FolderNode is one folder of the archive's hierarchy.
type FolderNode struct {
	ID       FolderID
	Name     string
	Children []FolderNode
}

// MessageID identifies a message by its folder and position within that folder.
type MessageID struct {
	Folder FolderID
	Index  int
}

// String renders the id as "<folder>:<index>".
func (id MessageID) String() string {
	return fmt.Sprintf("%d:%d", id.Folder, id.Index)
}

// ParseMessageID parses the "<folder>:<index>" form produced by String.
func ParseMessageID(s string) (MessageID, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return MessageID{}, fmt.Errorf("%w: %q", ErrInvalidMessageID, s)
	}
	folder, err := strconv.Atoi(s[:idx])
	if err != nil || folder <= 0 {
		return MessageID{}, fmt.Errorf("%w: %q", ErrInvalidMessageID, s)
	}
	index, err := strconv.Atoi(s[idx+1:])
	if err != nil || index < 0 {
		return MessageID{}, fmt.Errorf("%w: %q", ErrInvalidMessageID, s)
	}
	return MessageID{Folder: FolderID(folder), Index: index}, nil
}

// MessageSummary carries the fields needed to list a message.
// Date is empty when the source has no submit timestamp.
type MessageSummary struct {
	ID      MessageID
	Subject string
	Sender  string
	Date    string
	Time    time.Time
}

// Message is a fully resolved message. BodyText and BodyHTML use "\n"
// line endings and are empty when absent.
type Message struct {
	MessageSummary
	To          string
	Cc          string
	BodyText    string
	BodyHTML    string
	Attachments []string
}

// Rendered is a message serialized for the bulk export pipeline.
type Rendered struct {
	ID         MessageID
	FolderPath []string
	Subject    string
	Hash       string
	ReceivedAt time.Time
	Size       int64
	Raw        []byte
}

// Envelope wraps a rendered message alongside an optional error encountered while producing it.
type Envelope struct {
	Message Rendered
	Err     error
}
