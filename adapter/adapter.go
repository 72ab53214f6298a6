// Package adapter converts a backend's native PST object graph into the
// folder and message model.
package adapter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dhcgn/pst-viewer/export"
	"github.com/dhcgn/pst-viewer/longpath"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/native"
	"github.com/dhcgn/pst-viewer/probe"
)

var (
	ErrOpenFailure = errors.New("failed to open archive")
	ErrNotFound    = errors.New("not found")
	ErrIO          = errors.New("i/o failure")
)

// maxDepth bounds the folder walk so a corrupt hierarchy cannot recurse forever.
const maxDepth = 128

const unnamedFolder = "Folder"

type folderEntry struct {
	native native.Folder
	path   []string
}

// Adapter owns one opened archive.
type Adapter struct {
	backend native.Backend
	logger  *slog.Logger

	store   native.Store
	roots   []model.FolderNode
	folders map[model.FolderID]folderEntry
	nextID  model.FolderID
}

// New returns an adapter that opens archives with backend.
func New(backend native.Backend, logger *slog.Logger) *Adapter {
	return &Adapter{backend: backend, logger: logger}
}

// Backend returns the name of the backend in use.
func (a *Adapter) Backend() string {
	return a.backend.Name()
}

// Open parses the archive at path and indexes its folder hierarchy.
func (a *Adapter) Open(path string) error {
	if err := a.Close(); err != nil {
		a.warn("closing previous archive failed", "err", err)
	}

	store, err := a.backend.Open(longpath.Normalize(path))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOpenFailure, a.backend.Name(), err)
	}

	var root native.Folder
	if err := probe.Guard(func() error {
		var err error
		root, err = store.Root()
		return err
	}); err != nil {
		_ = store.Close()
		return fmt.Errorf("%w: root folder: %w", ErrOpenFailure, err)
	}

	a.store = store
	a.folders = make(map[model.FolderID]folderEntry)
	a.nextID = 0
	a.roots = a.children(root, nil, 0)
	if a.logger != nil {
		a.logger.Info("archive indexed", "path", path, "backend", a.backend.Name(), "folders", len(a.folders))
	}
	return nil
}

// Close releases the archive. It is safe to call on an unopened adapter.
func (a *Adapter) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	a.roots = nil
	a.folders = nil
	return err
}

// children converts the sub-folders of parent depth-first. A sub-folder that
// fails to enumerate is skipped.
func (a *Adapter) children(parent native.Folder, path []string, depth int) []model.FolderNode {
	if depth >= maxDepth {
		a.warn("folder hierarchy too deep, truncating", "path", path)
		return nil
	}

	var count int
	if err := probe.Guard(func() error {
		var err error
		count, err = parent.SubFolderCount()
		return err
	}); err != nil {
		a.warn("cannot count sub-folders", "path", path, "err", err)
		return nil
	}

	nodes := make([]model.FolderNode, 0, count)
	for i := 0; i < count; i++ {
		var sub native.Folder
		if err := probe.Guard(func() error {
			var err error
			sub, err = parent.SubFolder(i)
			return err
		}); err != nil || sub == nil {
			a.warn("skipping sub-folder", "path", path, "index", i, "err", err)
			continue
		}
		nodes = append(nodes, a.node(sub, path, depth))
	}
	return nodes
}

func (a *Adapter) node(f native.Folder, parentPath []string, depth int) model.FolderNode {
	a.nextID++
	id := a.nextID

	name := folderName(f)
	path := make([]string, len(parentPath), len(parentPath)+1)
	copy(path, parentPath)
	path = append(path, name)

	a.folders[id] = folderEntry{native: f, path: path}
	return model.FolderNode{
		ID:       id,
		Name:     name,
		Children: a.children(f, path, depth+1),
	}
}

func folderName(f native.Folder) string {
	var name string
	_ = probe.Guard(func() error {
		var err error
		name, err = f.Name()
		return err
	})
	if name == "" {
		return unnamedFolder
	}
	return name
}

// RootFolders returns the archive's top-level folders.
func (a *Adapter) RootFolders() []model.FolderNode {
	return a.roots
}

// FolderPath returns the folder names from the top level down to id.
func (a *Adapter) FolderPath(id model.FolderID) ([]string, error) {
	entry, ok := a.folders[id]
	if !ok {
		return nil, fmt.Errorf("%w: folder %d", ErrNotFound, id)
	}
	return entry.path, nil
}

// MessageCount returns the number of items the backend reports for a folder.
func (a *Adapter) MessageCount(id model.FolderID) (int, error) {
	entry, ok := a.folders[id]
	if !ok {
		return 0, fmt.Errorf("%w: folder %d", ErrNotFound, id)
	}
	var count int
	err := probe.Guard(func() error {
		var err error
		count, err = entry.native.MessageCount()
		return err
	})
	if err != nil {
		a.warn("cannot count messages", "folder", id, "err", err)
		return 0, nil
	}
	return count, nil
}

// ListMessages returns summaries for the messages of a folder. An unknown
// folder id yields an empty list.
func (a *Adapter) ListMessages(id model.FolderID) []model.MessageSummary {
	entry, ok := a.folders[id]
	if !ok {
		return nil
	}

	var out []model.MessageSummary
	visit := func(i int, m native.Message) error {
		out = append(out, summary(model.MessageID{Folder: id, Index: i}, m))
		return nil
	}

	if ranger, ok := entry.native.(native.MessageRanger); ok {
		if err := probe.Guard(func() error { return ranger.EachMessage(visit) }); err != nil {
			a.warn("message enumeration stopped early", "folder", id, "listed", len(out), "err", err)
		}
		return out
	}

	count, _ := a.MessageCount(id)
	for i := 0; i < count; i++ {
		m, err := a.nativeMessage(entry.native, i)
		if err != nil {
			a.warn("skipping message", "folder", id, "index", i, "err", err)
			continue
		}
		_ = visit(i, m)
	}
	return out
}

func summary(id model.MessageID, m native.Message) model.MessageSummary {
	date, t := messageDate(m)
	return model.MessageSummary{
		ID:      id,
		Subject: subjectField.Text(m),
		Sender:  senderField.Text(m),
		Date:    date,
		Time:    t,
	}
}

func (a *Adapter) nativeMessage(f native.Folder, i int) (native.Message, error) {
	var m native.Message
	err := probe.Guard(func() error {
		var err error
		m, err = f.Message(i)
		return err
	})
	if err == nil && m == nil {
		err = errors.New("nil message")
	}
	return m, err
}

func (a *Adapter) resolve(id model.MessageID) (native.Message, error) {
	entry, ok := a.folders[id.Folder]
	if !ok {
		return nil, fmt.Errorf("%w: message %s: unknown folder", ErrNotFound, id)
	}
	if id.Index < 0 {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	if _, ranged := entry.native.(native.MessageRanger); !ranged {
		if count, _ := a.MessageCount(id.Folder); id.Index >= count {
			return nil, fmt.Errorf("%w: message %s: index out of range", ErrNotFound, id)
		}
	}
	m, err := a.nativeMessage(entry.native, id.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: message %s: %w", ErrNotFound, id, err)
	}
	return m, nil
}

// GetMessage resolves a message with its bodies and attachment descriptors.
func (a *Adapter) GetMessage(id model.MessageID) (model.Message, error) {
	m, err := a.resolve(id)
	if err != nil {
		return model.Message{}, err
	}

	text, html := resolveBodies(textBodyField.Text(m), htmlBodyField.Text(m))
	infos := a.describeAttachments(id, m)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Descriptor())
	}

	return model.Message{
		MessageSummary: summary(id, m),
		To:             toField.Text(m),
		Cc:             ccField.Text(m),
		BodyText:       text,
		BodyHTML:       html,
		Attachments:    names,
	}, nil
}

// ExportEML writes the message as an .eml file at path.
func (a *Adapter) ExportEML(id model.MessageID, path string) error {
	return a.Export(id, path, export.EML)
}

// Export writes the message at path with the given strategy.
func (a *Adapter) Export(id model.MessageID, path string, s export.Strategy) error {
	msg, err := a.GetMessage(id)
	if err != nil {
		return err
	}
	if err := export.WriteFile(longpath.Normalize(path), s, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}
