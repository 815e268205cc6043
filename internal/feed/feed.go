// Package feed turns a git repository's history into envelopes for
// the feed view: full snapshots on startup and visibility changes,
// incremental appends while watching.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/storer"

	"github.com/viewscreen/viewscreen/internal/envelope"
)

const (
	// DefaultLimit bounds how many commits a snapshot carries.
	DefaultLimit = 50

	// DefaultPollInterval is how often Watch re-reads the history.
	DefaultPollInterval = 2 * time.Second
)

// Source reads commit history from one repository path.
type Source struct {
	path  string
	label string
	limit int
	log   *slog.Logger
}

// New returns a source over the repository at or above path. The
// label shown in the view is the base name of the path.
func New(path string, limit int, log *slog.Logger) *Source {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Source{
		path:  path,
		label: filepath.Base(abs),
		limit: limit,
		log:   log,
	}
}

// Label returns the display name for the source.
func (s *Source) Label() string { return s.label }

// Snapshot reads up to the configured limit of commits, newest
// first. A repository without any commit yields an empty snapshot,
// not an error.
func (s *Source) Snapshot() ([]envelope.FeedEntry, error) {
	repo, err := git.PlainOpenWithOptions(s.path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", s.path, err)
	}

	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []envelope.FeedEntry{}, nil
		}
		return nil, fmt.Errorf("read history of %s: %w", s.path, err)
	}
	defer iter.Close()

	entries := make([]envelope.FeedEntry, 0, s.limit)
	err = iter.ForEach(func(c *object.Commit) error {
		entries = append(entries, entryFromCommit(c))
		if len(entries) >= s.limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk history of %s: %w", s.path, err)
	}
	return entries, nil
}

// Reset builds a full-snapshot envelope.
func (s *Source) Reset() (envelope.Envelope, error) {
	entries, err := s.Snapshot()
	if err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.NewFeedReset(s.label, entries), nil
}

// Watch posts an initial snapshot and then polls the repository,
// posting appends for new commits and a fresh snapshot when history
// was rewritten. Runs until ctx is cancelled; post failures are
// logged, not fatal, since an absent panel is allowed to drop feed.
func (s *Source) Watch(ctx context.Context, interval time.Duration, post func(envelope.Envelope) error) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	last, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := post(envelope.NewFeedReset(s.label, last)); err != nil {
		s.log.Warn("cannot deliver feed snapshot", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next, err := s.Snapshot()
			if err != nil {
				s.log.Warn("cannot read feed source", "path", s.path, "error", err)
				continue
			}
			for _, env := range diffEnvelopes(s.label, last, next) {
				if err := post(env); err != nil {
					s.log.Warn("cannot deliver feed update",
						"command", env.Command, "error", err)
				}
			}
			last = next
		}
	}
}

// diffEnvelopes compares two snapshots. Commits stacked on the old
// head become appends, oldest first so the view ends up newest
// first; anything else (rewritten history, vanished head) becomes a
// full snapshot.
func diffEnvelopes(label string, old, next []envelope.FeedEntry) []envelope.Envelope {
	if len(next) == 0 {
		if len(old) == 0 {
			return nil
		}
		return []envelope.Envelope{envelope.NewFeedReset(label, next)}
	}
	if len(old) == 0 {
		return []envelope.Envelope{envelope.NewFeedReset(label, next)}
	}

	idx := -1
	for i, e := range next {
		if e.Hash == old[0].Hash {
			idx = i
			break
		}
	}
	switch {
	case idx < 0:
		return []envelope.Envelope{envelope.NewFeedReset(label, next)}
	case idx == 0:
		return nil
	default:
		envs := make([]envelope.Envelope, 0, idx)
		for i := idx - 1; i >= 0; i-- {
			envs = append(envs, envelope.NewFeedAppend(next[i]))
		}
		return envs
	}
}

func entryFromCommit(c *object.Commit) envelope.FeedEntry {
	return envelope.FeedEntry{
		Hash:    c.Hash.String(),
		Summary: firstLine(c.Message),
		Author:  c.Author.Name,
		When:    c.Author.When.UnixMilli(),
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
