// Package state remembers which messages an export target already holds.
package state

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one exported message.
type Entry struct {
	Hash      string    `json:"hash"`
	MessageID string    `json:"message_id"`
	Folder    string    `json:"folder,omitempty"`
	Location  string    `json:"location,omitempty"`
	Run       string    `json:"run,omitempty"`
	At        time.Time `json:"at"`
}

// Tracker records the content hashes delivered to one export target.
type Tracker interface {
	Seen(hash string) bool
	Record(e Entry) error
	Len() int
	Close() error
}

// Memory is a Tracker that forgets everything when the process exits.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Seen(hash string) bool {
	if hash == "" {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[hash]
	return ok
}

// record stores e and reports whether the hash was new.
func (m *Memory) record(e Entry) bool {
	if e.Hash == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.Hash]; ok {
		return false
	}
	m.entries[e.Hash] = e
	return true
}

func (m *Memory) Record(e Entry) error {
	m.record(e)
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Lookup returns the entry recorded for hash.
func (m *Memory) Lookup(hash string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[hash]
	return e, ok
}

func (m *Memory) Close() error { return nil }

// Journal is a Tracker backed by an append-only JSON lines file, one per
// export target, so a rerun against the same target skips what it holds.
type Journal struct {
	*Memory
	path string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// JournalName returns the file name used for target inside the state directory.
func JournalName(target string) string {
	sum := sha256.Sum256([]byte(target))
	return "export-" + hex.EncodeToString(sum[:6]) + ".jsonl"
}

// OpenJournal loads the journal of target from dir. When persist is false the
// journal is read but never written, which is what dry runs want.
func OpenJournal(dir, target string, persist bool) (*Journal, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	j := &Journal{
		Memory: NewMemory(),
		path:   filepath.Join(dir, JournalName(target)),
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	if !persist {
		return j, nil
	}

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal for append: %w", err)
	}
	j.file = file
	j.writer = bufio.NewWriterSize(file, 64*1024)
	return j, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) load() error {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// A torn final line is left behind by an interrupted run.
			if i == len(lines)-1 {
				break
			}
			return fmt.Errorf("parse journal line %d: %w", i+1, err)
		}
		j.Memory.record(e)
	}
	return nil
}

// Record remembers e and appends it to the journal when persisting.
// Recording a known hash again is a no-op.
func (j *Journal) Record(e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if !j.Memory.record(e) || j.writer == nil {
		return nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// Flush writes buffered entries to disk.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flush()
}

func (j *Journal) flush() error {
	if j.writer == nil {
		return nil
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}

	err := j.flush()
	if cerr := j.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close journal: %w", cerr)
	}
	j.file, j.writer = nil, nil
	return err
}
