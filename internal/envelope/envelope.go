// Package envelope defines the typed message contract between the panel
// controller and the content running inside the panel surface.
// Envelopes are immutable value objects crossing the host/view boundary in
// both directions; they carry no identity beyond their command discriminant
// and payload, and no acknowledgement exists beyond the one-time ready
// handshake.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Command identifies the kind of envelope crossing the host/view boundary.
// The view→host and host→view command sets are disjoint and never overlap.
// An unrecognized command is an ignorable no-op on either side, never a
// fatal condition; the sets are closed but forward-compatible.
type Command string

// View→host commands. This set is closed: the controller handles exactly
// these and ignores everything else.
const (
	// CommandReady signals that the view content finished loading.
	// Payload: none. Resolves the pending show handshake.
	CommandReady Command = "ready"

	// CommandError reports a view-side failure to the host.
	// Payload: human-readable string. Surfaced as a host-level error
	// notification; not fatal to the channel.
	CommandError Command = "error"
)

// Host→view commands used by the bundled feed view. The host→view
// vocabulary is open-ended; the controller only provides the sending
// primitive, and views are free to define additional commands.
const (
	// CommandFeedReset replaces the view's feed with a full snapshot.
	// Payload: FeedResetData
	CommandFeedReset Command = "feed.reset"

	// CommandFeedAppend appends a single entry to the view's feed.
	// Payload: FeedAppendData
	CommandFeedAppend Command = "feed.append"
)

// Envelope is the wire form of every message crossing the boundary:
// a command discriminant plus a command-dependent payload.
//
// Wire format: {"command": string, "data"?: T}. There is no version field;
// a producer that needs wire compatibility should add one before extending
// the command set.
type Envelope struct {
	// Command identifies what kind of envelope this is.
	Command Command `json:"command"`

	// Data is the command-specific payload. Omitted when the command
	// carries none (e.g. ready).
	Data any `json:"data,omitempty"`
}

// FeedEntry is one item of the bundled feed view.
type FeedEntry struct {
	// Hash is the abbreviated identifier of the entry's source revision.
	Hash string `json:"hash"`

	// Summary is the first line of the revision message.
	Summary string `json:"summary"`

	// Author is the revision author's name.
	Author string `json:"author"`

	// When is the author timestamp (Unix milliseconds).
	When int64 `json:"when"`
}

// FeedResetData carries a full feed snapshot.
type FeedResetData struct {
	// Source names where the entries came from (e.g. a repository path).
	Source string `json:"source"`

	// Entries is the snapshot, newest first.
	Entries []FeedEntry `json:"entries"`

	// GeneratedAt is when the snapshot was taken (Unix milliseconds).
	GeneratedAt int64 `json:"generated_at"`
}

// FeedAppendData carries one new feed entry.
type FeedAppendData struct {
	Entry FeedEntry `json:"entry"`
}

// NewReady creates the payload-free load-complete signal.
func NewReady() Envelope {
	return Envelope{Command: CommandReady}
}

// NewError creates a view-side error report with a human-readable message.
func NewError(message string) Envelope {
	return Envelope{Command: CommandError, Data: message}
}

// NewFeedReset creates a full feed snapshot envelope.
func NewFeedReset(source string, entries []FeedEntry) Envelope {
	return Envelope{
		Command: CommandFeedReset,
		Data: FeedResetData{
			Source:      source,
			Entries:     entries,
			GeneratedAt: time.Now().UnixMilli(),
		},
	}
}

// NewFeedAppend creates a single-entry feed envelope.
func NewFeedAppend(entry FeedEntry) Envelope {
	return Envelope{
		Command: CommandFeedAppend,
		Data:    FeedAppendData{Entry: entry},
	}
}

// Encode serializes the envelope to its JSON wire form.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q envelope: %w", e.Command, err)
	}
	return data, nil
}

// DataString extracts a string payload. Returns ("", false) when the
// payload is absent or not a string.
func (e Envelope) DataString() (string, bool) {
	s, ok := e.Data.(string)
	return s, ok
}

// Decode parses an envelope from its JSON wire form. Unknown commands decode
// successfully; dispatch is the consumer's concern. An envelope without a
// command discriminant is malformed.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if e.Command == "" {
		return Envelope{}, fmt.Errorf("envelope missing command discriminant")
	}
	return e, nil
}
