// Package stats counts pipeline events and ranks values for reports.
package stats

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageArchive Stage = "archive"
	StageDir     Stage = "dir"
	StageIMAP    Stage = "imap"
)

type EventType string

const (
	EventTypeScanned      EventType = "scanned"
	EventTypeEnqueued     EventType = "enqueued"
	EventTypeFiltered     EventType = "filtered"
	EventTypeWritten      EventType = "written"
	EventTypeUploaded     EventType = "uploaded"
	EventTypeDryRunUpload EventType = "dry_run_uploaded"
	EventTypeDuplicate    EventType = "duplicate"
	EventTypeError        EventType = "error"
)

// Event is one observation of the pipeline. Detail carries the sink
// location for deliveries and the deciding pattern for filtered messages.
type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Err       error
	Detail    string
}

type Summary struct {
	Scanned        int
	Enqueued       int
	Filtered       int
	Written        int
	Uploaded       int
	DryRunUploaded int
	Duplicates     int
	Errors         int
	LastError      error
	// FilteredBy counts filtered messages per deciding pattern.
	FilteredBy map[string]int
	// ErrorsByStage counts errors per pipeline stage.
	ErrorsByStage map[Stage]int
}

// Delivered counts messages that reached a sink, for real or simulated.
func (s Summary) Delivered() int {
	return s.Written + s.Uploaded + s.DryRunUploaded
}

// Throughput returns delivered messages per second over d.
func (s Summary) Throughput(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(s.Delivered()) / d.Seconds()
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"enqueued", s.Enqueued,
		"filtered", s.Filtered,
		"written", s.Written,
		"uploaded", s.Uploaded,
		"dryRunUploaded", s.DryRunUploaded,
		"duplicates", s.Duplicates,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector folds events into a Summary. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{summary: Summary{
		FilteredBy:    make(map[string]int),
		ErrorsByStage: make(map[Stage]int),
	}}
}

// Run applies events until the channel closes or ctx ends.
func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

// Snapshot returns a copy of the counts so far.
func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.summary
	s.FilteredBy = maps.Clone(c.summary.FilteredBy)
	s.ErrorsByStage = maps.Clone(c.summary.ErrorsByStage)
	return s
}

// Apply counts one event.
func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeEnqueued:
		c.summary.Enqueued++
	case EventTypeFiltered:
		c.summary.Filtered++
		if evt.Detail != "" {
			c.summary.FilteredBy[evt.Detail]++
		}
	case EventTypeWritten:
		c.summary.Written++
	case EventTypeUploaded:
		c.summary.Uploaded++
	case EventTypeDryRunUpload:
		c.summary.DryRunUploaded++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeError:
		c.summary.Errors++
		c.summary.ErrorsByStage[evt.Stage]++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

// EventStream is implemented by the pipeline runner.
type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

// Pair is one counted value.
type Pair struct {
	Key   string
	Value int
}

// Top returns the limit most frequent entries of m, ties broken by key.
// A negative limit returns all entries.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})
	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	for i, p := range Top(m, limit) {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, p.Key, p.Value)
	}
}
