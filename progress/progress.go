package progress

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/pst-viewer/stats"
)

// Bar manages a progress bar for tracking message processing.
type Bar struct {
	pb          *pterm.ProgressbarPrinter
	total       int
	alreadyDone int
	current     int
	mu          sync.Mutex
	enabled     bool
}

// New creates a new progress bar if logLevel is "info".
func New(total int, alreadyDone int, logLevel string) *Bar {
	return newBar(total, alreadyDone, logLevel == "info", os.Stdout)
}

func newBar(total, alreadyDone int, enabled bool, w io.Writer) *Bar {
	bar := &Bar{
		total:       total,
		alreadyDone: alreadyDone,
		enabled:     enabled && total > 0,
	}
	if !bar.enabled {
		return bar
	}

	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Exporting messages").
		WithWriter(w).
		Start()
	if err != nil {
		bar.enabled = false
		return bar
	}
	bar.pb = pb

	pterm.Info.Printf("Messages in archive: %d\n", total)
	pterm.Info.Printf("Already exported: %d\n", alreadyDone)
	pterm.Println()

	return bar
}

// Update advances the bar for events that finish a message.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.current++
		b.pb.Increment()
		if evt.MessageID != "" {
			b.pb.UpdateTitle("Exporting " + evt.MessageID)
		}
	case stats.EventTypeError:
		// Show error messages above the progress bar
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
	pterm.Success.Println("Export complete!")
}

// Reporter feeds one event stream into both the progress bar and a
// stats collector, and prints the summary at the end.
type Reporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewReporter subscribes a reporter to stream. bar may be nil.
func NewReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("progress", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan stats.Event) error {
	defer r.finish()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			r.collector.Apply(evt)
			if r.bar != nil {
				r.bar.Update(evt)
			}
		}
	}
}

func (r *Reporter) finish() {
	if r.bar != nil {
		r.bar.Stop()
	}

	summary := r.collector.Snapshot()
	duration := time.Since(r.started)
	if r.logger != nil {
		r.logger.Info("export summary", append(summary.LogAttrs(), "duration", duration)...)
	}
	if r.bar == nil || !r.bar.enabled {
		return
	}

	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", duration)
	pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
	pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
	pterm.Info.Printf("Written: %d\n", summary.Written)
	pterm.Info.Printf("Uploaded: %d\n", summary.Uploaded)
	pterm.Info.Printf("Dry-run uploaded: %d\n", summary.DryRunUploaded)
	pterm.Info.Printf("Duplicates (skipped): %d\n", summary.Duplicates)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	pterm.Info.Printf("Throughput: %.1f msg/s\n", summary.Throughput(duration))
	for _, p := range stats.Top(summary.FilteredBy, -1) {
		pterm.Info.Printf("Filtered by %s: %d\n", p.Key, p.Value)
	}
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}

// Summary returns the counts collected so far.
func (r *Reporter) Summary() stats.Summary {
	return r.collector.Snapshot()
}
