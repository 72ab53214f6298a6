package adapter

import (
	"fmt"

	"github.com/dhcgn/pst-viewer/attachment"
	"github.com/dhcgn/pst-viewer/longpath"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/native"
	"github.com/dhcgn/pst-viewer/probe"
)

// eachAttachment calls fn for every attachment that can be looked up.
// Lookup failures are logged and skipped.
func (a *Adapter) eachAttachment(id model.MessageID, m native.Message, fn func(i int, att native.Attachment)) {
	var count int
	if err := probe.Guard(func() error {
		var err error
		count, err = m.AttachmentCount()
		return err
	}); err != nil {
		a.debug("no attachment count", "message", id, "err", err)
		return
	}

	for i := 0; i < count; i++ {
		var att native.Attachment
		err := probe.Guard(func() error {
			var err error
			att, err = m.Attachment(i)
			return err
		})
		if err != nil || att == nil {
			a.warn("skipping attachment", "message", id, "index", i, "err", err)
			continue
		}
		fn(i, att)
	}
}

func (a *Adapter) describeAttachments(id model.MessageID, m native.Message) []model.AttachmentInfo {
	var infos []model.AttachmentInfo
	a.eachAttachment(id, m, func(i int, att native.Attachment) {
		infos = append(infos, attachment.Describe(att, i))
	})
	return infos
}

// Attachments returns the probed descriptors of a message's attachments.
func (a *Adapter) Attachments(id model.MessageID) ([]model.AttachmentInfo, error) {
	m, err := a.resolve(id)
	if err != nil {
		return nil, err
	}
	return a.describeAttachments(id, m), nil
}

// ListAttachments returns one "<name> (<mime>)" line per attachment.
func (a *Adapter) ListAttachments(id model.MessageID) ([]string, error) {
	infos, err := a.Attachments(id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Descriptor())
	}
	return out, nil
}

// SaveAttachments writes every readable, non-embedded attachment into dir
// and returns the written paths.
func (a *Adapter) SaveAttachments(id model.MessageID, dir string) ([]string, error) {
	m, err := a.resolve(id)
	if err != nil {
		return nil, err
	}

	dir = longpath.Normalize(dir)
	var (
		saved   []string
		saveErr error
	)
	a.eachAttachment(id, m, func(i int, att native.Attachment) {
		if saveErr != nil || attachment.IsEmbedded(att) {
			return
		}
		data, ok := attachment.ReadBytes(att)
		if !ok {
			a.warn("attachment unreadable, skipping", "message", id, "index", i)
			return
		}
		path, err := attachment.Save(dir, attachment.Name(att, i), data)
		if err != nil {
			saveErr = fmt.Errorf("%w: attachment %d of %s: %w", ErrIO, i, id, err)
			return
		}
		saved = append(saved, path)
	})
	if saveErr != nil {
		return saved, saveErr
	}
	if a.logger != nil {
		a.logger.Info("attachments saved", "message", id.String(), "dir", dir, "count", len(saved))
	}
	return saved, nil
}

func (a *Adapter) warn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}

func (a *Adapter) debug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
