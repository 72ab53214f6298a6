// Package runner wires the bulk export pipeline: a producer feeds rendered
// messages in, the bridge filters and deduplicates them, and one sink
// stage drains the outbox while stats subscribers observe every event.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/dhcgn/pst-viewer/filter"
	"github.com/dhcgn/pst-viewer/model"
	"github.com/dhcgn/pst-viewer/state"
	"github.com/dhcgn/pst-viewer/stats"
)

var ErrEmptyMessage = errors.New("rendered message is empty")

type StageFunc func(context.Context) error

type Options struct {
	StateDir string
	// Target names the export destination; each target keeps its own journal.
	Target string
	// RunID tags journal entries. A random id is used when empty.
	RunID string
	// DryRun reads the journal but never appends to it.
	DryRun bool
	// Filter drops messages before they reach the sink. Nil allows all.
	Filter *filter.Filter
	// Buffer is the capacity of the message channels.
	Buffer int
}

type Runner struct {
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	messages chan model.Envelope
	outbox   chan model.Rendered
	events   chan stats.Event

	tracker state.Tracker

	stages      conc.WaitGroup
	subscribers conc.WaitGroup

	errMu sync.Mutex
	err   error

	closeMessagesOnce sync.Once
	closeOutboxOnce   sync.Once
	closeEventsOnce   sync.Once
}

// New opens the journal of opts.Target in opts.StateDir and builds a runner around it.
func New(opts Options, logger *slog.Logger) (*Runner, error) {
	journal, err := state.OpenJournal(opts.StateDir, opts.Target, !opts.DryRun)
	if err != nil {
		return nil, fmt.Errorf("state journal: %w", err)
	}
	return NewWithTracker(opts, journal, logger), nil
}

// NewWithTracker builds a runner around an existing tracker. The runner
// closes the tracker when the pipeline finishes.
func NewWithTracker(opts Options, tracker state.Tracker, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 32
	}
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		opts:     opts,
		logger:   logger.With("run", opts.RunID),
		ctx:      ctx,
		cancel:   cancel,
		messages: make(chan model.Envelope, opts.Buffer),
		outbox:   make(chan model.Rendered, opts.Buffer),
		events:   make(chan stats.Event, 4*opts.Buffer),
		tracker:  tracker,
	}

	r.AddStage("bridge", r.bridge)
	return r
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

// RunID identifies this export run in logs and the journal.
func (r *Runner) RunID() string {
	return r.opts.RunID
}

// MessageWriter is where producers send rendered messages.
func (r *Runner) MessageWriter() chan<- model.Envelope {
	return r.messages
}

// CloseMessages signals that the producer is done.
func (r *Runner) CloseMessages() {
	r.closeMessagesOnce.Do(func() {
		close(r.messages)
	})
}

// Outbox yields messages that passed filtering and deduplication.
func (r *Runner) Outbox() <-chan model.Rendered {
	return r.outbox
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

// Commit records msg as delivered to location and reports it with typ.
// Sinks call it once the message is safely stored.
func (r *Runner) Commit(msg model.Rendered, stage stats.Stage, typ stats.EventType, location string) error {
	id := msg.ID.String()
	entry := state.Entry{
		Hash:      msg.Hash,
		MessageID: id,
		Folder:    strings.Join(msg.FolderPath, "/"),
		Location:  location,
		Run:       r.opts.RunID,
	}
	if err := r.tracker.Record(entry); err != nil {
		err = fmt.Errorf("record %s: %w", id, err)
		r.EmitEvent(stats.Event{Stage: stage, Type: stats.EventTypeError, MessageID: id, Err: err})
		return err
	}
	r.EmitEvent(stats.Event{Stage: stage, Type: typ, MessageID: id, Detail: location})
	return nil
}

func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.subscribers.Go(func() {
		r.guard(name+" stats", func() error { return fn(r.ctx, r.events) })
	})
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.stages.Go(func() {
		r.guard(name+" stage", func() error { return fn(r.ctx) })
	})
}

// guard runs fn and turns its error or panic into a pipeline failure.
func (r *Runner) guard(name string, fn func() error) {
	var err error
	if recovered := panics.Try(func() { err = fn() }); recovered != nil {
		err = recovered.AsError()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		r.fail(fmt.Errorf("%s: %w", name, err))
	}
}

// Start waits for every stage and subscriber and returns the first failure.
func (r *Runner) Start() error {
	since := time.Now()

	r.stages.Wait()
	r.closeEvents()
	r.subscribers.Wait()

	r.cancel()

	if err := r.tracker.Close(); err != nil {
		r.fail(fmt.Errorf("close state: %w", err))
	}

	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()

	duration := time.Since(since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeOutbox()

	// pending holds hashes handed to the sink but not yet committed.
	pending := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-r.messages:
			if !ok {
				return nil
			}

			// A message that failed to render is reported and skipped.
			if envelope.Err != nil {
				r.logger.Warn("skipping message", "err", envelope.Err)
				r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeError, Err: envelope.Err})
				continue
			}

			msg := envelope.Message
			id := msg.ID.String()
			r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeScanned, MessageID: id})

			if len(msg.Raw) == 0 {
				err := fmt.Errorf("message %s: %w", id, ErrEmptyMessage)
				r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeError, MessageID: id, Err: err})
				continue
			}

			if r.opts.Filter != nil {
				if d := r.opts.Filter.DecideMessage(msg.Raw); !d.Allowed {
					r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeFiltered, MessageID: id, Detail: d.Pattern})
					continue
				}
			}

			if msg.Hash != "" {
				_, queued := pending[msg.Hash]
				if queued || r.tracker.Seen(msg.Hash) {
					r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeDuplicate, MessageID: id})
					continue
				}
				pending[msg.Hash] = struct{}{}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.outbox <- msg:
				r.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeEnqueued, MessageID: id})
			}
		}
	}
}

func (r *Runner) closeOutbox() {
	r.closeOutboxOnce.Do(func() {
		close(r.outbox)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
