package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// Buffer is a slog.Handler that retains the most recent records in memory,
// optionally forwarding them to a next handler. The repl reads it to show
// recent activity without tailing a log file.
type Buffer struct {
	ring  *entryRing
	next  slog.Handler
	attrs []slog.Attr
}

type entryRing struct {
	mu      sync.RWMutex
	max     int
	entries []Entry
}

// NewBuffer creates a Buffer retaining at most maxEntries records;
// non-positive values fall back to 1000. next may be nil to capture without
// forwarding.
func NewBuffer(next slog.Handler, maxEntries int) *Buffer {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Buffer{
		ring: &entryRing{max: maxEntries},
		next: next,
	}
}

// Enabled implements slog.Handler. The buffer captures every level; the next
// handler's own gate applies at forwarding time.
func (b *Buffer) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
func (b *Buffer) Handle(ctx context.Context, rec slog.Record) error {
	attrs := make(map[string]string, rec.NumAttrs()+len(b.attrs))
	for _, a := range b.attrs {
		attrs[a.Key] = a.Value.String()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	b.ring.add(Entry{
		Time:    rec.Time,
		Level:   rec.Level,
		Message: rec.Message,
		Attrs:   attrs,
	})
	if b.next != nil && b.next.Enabled(ctx, rec.Level) {
		return b.next.Handle(ctx, rec)
	}
	return nil
}

// WithAttrs implements slog.Handler. Derived handlers share the ring, so
// records logged through them remain visible via the original Buffer.
func (b *Buffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return b
	}
	nb := &Buffer{
		ring:  b.ring,
		attrs: append(slices.Clip(b.attrs), attrs...),
	}
	if b.next != nil {
		nb.next = b.next.WithAttrs(attrs)
	}
	return nb
}

// WithGroup implements slog.Handler. Groups shape the forwarded output only;
// captured entries stay flat.
func (b *Buffer) WithGroup(name string) slog.Handler {
	if name == "" || b.next == nil {
		return b
	}
	return &Buffer{
		ring:  b.ring,
		next:  b.next.WithGroup(name),
		attrs: b.attrs,
	}
}

func (r *entryRing) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.max {
		r.entries = r.entries[1:]
	}
}

// Recent returns the most recent count entries, oldest first. A count that
// is non-positive or beyond the retained window returns everything retained.
func (b *Buffer) Recent(count int) []Entry {
	r := b.ring
	r.mu.RLock()
	defer r.mu.RUnlock()
	if count <= 0 || count > len(r.entries) {
		count = len(r.entries)
	}
	out := make([]Entry, count)
	copy(out, r.entries[len(r.entries)-count:])
	return out
}

// Search returns entries whose message or attributes contain query,
// case-insensitively, oldest first.
func (b *Buffer) Search(query string) []Entry {
	query = strings.ToLower(query)
	r := b.ring
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []Entry
	for _, e := range r.entries {
		if strings.Contains(strings.ToLower(e.Message), query) {
			matches = append(matches, e)
			continue
		}
		for k, v := range e.Attrs {
			if strings.Contains(strings.ToLower(k), query) ||
				strings.Contains(strings.ToLower(v), query) {
				matches = append(matches, e)
				break
			}
		}
	}
	return matches
}

// Clear drops all retained entries.
func (b *Buffer) Clear() {
	r := b.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}

var _ slog.Handler = (*Buffer)(nil)
