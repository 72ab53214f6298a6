// Package mbox exposes a directory tree of mbox files, as written by
// readpst, through the native archive interfaces.
package mbox

import (
	"errors"
	"fmt"
	"io"
	"os"

	mboxlib "github.com/emersion/go-mbox"
)

// ErrStop ends a Read early without reporting an error.
var ErrStop = errors.New("stop reading mbox")

// Read iterates the messages of an mbox file, calling fn with each raw
// message and its position. Messages that cannot be read are skipped but
// still consume a position.
func Read(path string, fn func(idx int, raw []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return ReadFrom(file, fn)
}

// ReadFrom is Read over an already open stream.
func ReadFrom(r io.Reader, fn func(idx int, raw []byte) error) error {
	reader := mboxlib.NewReader(r)
	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			// try to continue
			continue
		}

		if err := fn(idx, raw); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

// CountMessages counts the total number of messages in an mbox file.
func CountMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, err
		}
		// Just consume the message without parsing
		_, _ = io.Copy(io.Discard, msgReader)
		count++
	}
}
