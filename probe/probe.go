// Package probe reads scalar fields from native objects through ordered
// strategy lists. The first strategy that succeeds with a non-empty value
// wins; failures and panics raised by the native object are absorbed.
package probe

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dhcgn/pst-viewer/native"
)

// Strategy produces one candidate value for a field.
type Strategy func(src native.PropertySource) (any, error)

// Prop returns a strategy reading the named property.
func Prop(name string) Strategy {
	return func(src native.PropertySource) (any, error) {
		return src.Property(name)
	}
}

// Field is an ordered list of equivalent strategies for one logical value.
type Field struct {
	name       string
	strategies []Strategy
}

// NewField builds a field probing the given property names in order.
func NewField(name string, props ...string) Field {
	f := Field{name: name}
	for _, p := range props {
		f.strategies = append(f.strategies, Prop(p))
	}
	return f
}

// With returns a copy of the field with extra strategies appended.
func (f Field) With(strategies ...Strategy) Field {
	out := Field{name: f.name, strategies: make([]Strategy, 0, len(f.strategies)+len(strategies))}
	out.strategies = append(out.strategies, f.strategies...)
	out.strategies = append(out.strategies, strategies...)
	return out
}

// Name returns the logical field name.
func (f Field) Name() string {
	return f.name
}

// Text returns the first non-empty textual value, or "".
func (f Field) Text(src native.PropertySource) string {
	var out string
	f.each(src, func(v any) bool {
		s, ok := Text(v)
		if ok && s != "" {
			out = s
			return true
		}
		return false
	})
	return out
}

// Int returns the first positive integer value.
func (f Field) Int(src native.PropertySource) (int64, bool) {
	var out int64
	found := false
	f.each(src, func(v any) bool {
		n, ok := Int(v)
		if ok && n > 0 {
			out, found = n, true
		}
		return found
	})
	return out, found
}

// Bool returns the first boolean value.
func (f Field) Bool(src native.PropertySource) (bool, bool) {
	var out, found bool
	f.each(src, func(v any) bool {
		if b, ok := v.(bool); ok {
			out, found = b, true
		}
		return found
	})
	return out, found
}

// Time returns the first value convertible to a non-zero time.
func (f Field) Time(src native.PropertySource) (time.Time, bool) {
	var out time.Time
	f.each(src, func(v any) bool {
		if t, ok := Time(v); ok {
			out = t
			return true
		}
		return false
	})
	return out, !out.IsZero()
}

func (f Field) each(src native.PropertySource, accept func(v any) bool) {
	if src == nil {
		return
	}
	for _, strategy := range f.strategies {
		v, err := call(strategy, src)
		if err != nil || v == nil {
			continue
		}
		if accept(v) {
			return
		}
	}
}

func call(strategy Strategy, src native.PropertySource) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("probe panic: %v", r)
		}
	}()
	return strategy(src)
}

// Guard runs fn and converts a panic into an error.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native panic: %v", r)
		}
	}()
	return fn()
}

// Text converts a native value to a string. Byte slices are decoded as
// UTF-8 with invalid sequences replaced by U+FFFD.
func Text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case *string:
		if t == nil {
			return "", false
		}
		return *t, true
	case []byte:
		return DecodeUTF8(t), true
	case fmt.Stringer:
		return t.String(), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t), true
	}
	return "", false
}

// DecodeUTF8 decodes b as UTF-8, replacing invalid sequences and dropping NUL padding.
func DecodeUTF8(b []byte) string {
	s := strings.TrimRight(string(b), "\x00")
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

// Int converts a native integer value.
func Int(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Windows FILETIME counts 100ns intervals since 1601-01-01.
const (
	filetimeThreshold    = 1e15
	filetimeUnixEpochGap = 116444736000000000
)

// Time converts a native timestamp. Integers are read as Unix seconds,
// or as Windows FILETIME when they are too large to be seconds.
func Time(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		parsed, err := mail.ParseDate(strings.TrimSpace(t))
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	n, ok := Int(v)
	if !ok || n <= 0 {
		return time.Time{}, false
	}
	if n > filetimeThreshold {
		n -= filetimeUnixEpochGap
		return time.Unix(n/1e7, (n%1e7)*100).UTC(), n > 0
	}
	return time.Unix(n, 0).UTC(), true
}
