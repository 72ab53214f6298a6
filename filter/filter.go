// Package filter selects messages for export by regular expressions over
// their header and body text.
package filter

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/emersion/go-message"
)

// Options captures the filtering configuration. Include and exclude
// patterns are mutually exclusive.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// patterns is one compiled pattern list with its hit counters.
type patterns struct {
	res  []*regexp.Regexp
	hits []int
}

func compile(kind string, sources []string) (*patterns, error) {
	p := &patterns{}
	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern %q: %w", kind, src, err)
		}
		p.res = append(p.res, re)
	}
	p.hits = make([]int, len(p.res))
	return p, nil
}

func (p *patterns) active() bool {
	return len(p.res) > 0
}

// match evaluates every pattern so each hit count stays accurate and
// returns the first matching pattern. The caller holds the filter lock.
func (p *patterns) match(text string) (string, bool) {
	first, matched := "", false
	for i, re := range p.res {
		if !re.MatchString(text) {
			continue
		}
		p.hits[i]++
		if !matched {
			first, matched = re.String(), true
		}
	}
	return first, matched
}

func (p *patterns) snapshot() ([]string, map[string]int) {
	names := make([]string, 0, len(p.res))
	hits := make(map[string]int, len(p.res))
	for i, re := range p.res {
		names = append(names, re.String())
		hits[re.String()] += p.hits[i]
	}
	return names, hits
}

// Filter holds compiled regex patterns for filtering messages.
type Filter struct {
	mu            sync.Mutex
	includeHeader *patterns
	includeBody   *patterns
	excludeHeader *patterns
	excludeBody   *patterns
}

// Stats reports how often each pattern matched, keyed by pattern source.
type Stats struct {
	IncludeHeaderPatterns []string
	IncludeHeaderHits     map[string]int
	IncludeBodyPatterns   []string
	IncludeBodyHits       map[string]int
	ExcludeHeaderPatterns []string
	ExcludeHeaderHits     map[string]int
	ExcludeBodyPatterns   []string
	ExcludeBodyHits       map[string]int
}

// Decision is the outcome of filtering one message. Pattern names the
// pattern that decided it, empty when no pattern was involved.
type Decision struct {
	Allowed bool
	Pattern string
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	f := &Filter{}
	var err error
	if f.includeHeader, err = compile("include-header", opts.IncludeHeader); err != nil {
		return nil, err
	}
	if f.includeBody, err = compile("include-body", opts.IncludeBody); err != nil {
		return nil, err
	}
	if f.excludeHeader, err = compile("exclude-header", opts.ExcludeHeader); err != nil {
		return nil, err
	}
	if f.excludeBody, err = compile("exclude-body", opts.ExcludeBody); err != nil {
		return nil, err
	}
	if f.including() && f.excluding() {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}
	return f, nil
}

func (f *Filter) including() bool {
	return f.includeHeader.active() || f.includeBody.active()
}

func (f *Filter) excluding() bool {
	return f.excludeHeader.active() || f.excludeBody.active()
}

// Active reports whether any pattern is configured.
func (f *Filter) Active() bool {
	return f.including() || f.excluding()
}

// Allows returns true if the message passes the filter criteria.
func (f *Filter) Allows(header, body []byte) bool {
	return f.Decide(header, body).Allowed
}

// Decide matches header and body text. In include mode a message needs a
// match to pass; in exclude mode any match drops it.
func (f *Filter) Decide(header, body []byte) Decision {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.including():
		hp, hm := f.includeHeader.match(string(header))
		bp, bm := f.includeBody.match(string(body))
		if hm {
			return Decision{Allowed: true, Pattern: hp}
		}
		return Decision{Allowed: bm, Pattern: bp}
	case f.excluding():
		hp, hm := f.excludeHeader.match(string(header))
		bp, bm := f.excludeBody.match(string(body))
		if hm {
			return Decision{Pattern: hp}
		}
		if bm {
			return Decision{Pattern: bp}
		}
	}
	return Decision{Allowed: true}
}

// AllowsMessage applies the filter to a raw RFC 5322 message.
func (f *Filter) AllowsMessage(raw []byte) bool {
	return f.DecideMessage(raw).Allowed
}

// DecideMessage applies the filter to a raw RFC 5322 message. Header values
// are matched after RFC 2047 decoding and bodies after transfer decoding;
// a message that cannot be parsed is matched on its raw bytes.
func (f *Filter) DecideMessage(raw []byte) Decision {
	if !f.Active() {
		return Decision{Allowed: true}
	}
	header, body, err := decode(raw, f.includeBody.active() || f.excludeBody.active())
	if err != nil {
		header, body = SplitRawMessage(raw)
	}
	return f.Decide(header, body)
}

// GetStats returns a snapshot of the per-pattern hit counts.
func (f *Filter) GetStats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	var s Stats
	s.IncludeHeaderPatterns, s.IncludeHeaderHits = f.includeHeader.snapshot()
	s.IncludeBodyPatterns, s.IncludeBodyHits = f.includeBody.snapshot()
	s.ExcludeHeaderPatterns, s.ExcludeHeaderHits = f.excludeHeader.snapshot()
	s.ExcludeBodyPatterns, s.ExcludeBodyHits = f.excludeBody.snapshot()
	return s
}

// decode renders the header as "Key: value" lines with decoded values and,
// when wantBody is set, concatenates the decoded text/* parts.
func decode(raw []byte, wantBody bool) (header, body []byte, err error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, nil, err
	}

	var hb bytes.Buffer
	fields := entity.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		fmt.Fprintf(&hb, "%s: %s\n", fields.Key(), value)
	}
	if !wantBody {
		return hb.Bytes(), nil, nil
	}

	var bb bytes.Buffer
	err = entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil {
			return err
		}
		if t, _, _ := part.Header.ContentType(); t != "" && !strings.HasPrefix(t, "text/") {
			return nil
		}
		_, err = io.Copy(&bb, part.Body)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return hb.Bytes(), bb.Bytes(), nil
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}
	for _, sep := range []string{"\r\n\r\n", "\n\n"} {
		if idx := bytes.Index(raw, []byte(sep)); idx >= 0 {
			return raw[:idx], raw[idx+len(sep):]
		}
	}
	return raw, nil
}
