// Package surfacestate persists the controller's panel description
// across host restarts. The record is deliberately small: enough to
// re-create the surface under its old handle and revive the panel,
// and nothing the host would rather re-derive (nonces in particular
// are minted fresh on every render and never persisted).
package surfacestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/viewscreen/viewscreen/internal/storage"
)

// CurrentSchemaVersion is written into every saved record.
const CurrentSchemaVersion = "1.0.0"

// ErrNoRecord reports that no panel state has been saved.
var ErrNoRecord = errors.New("no saved panel state")

// ErrLocked reports that another process holds the panel state lock.
var ErrLocked = errors.New("panel state is locked by another process")

// Record is the persisted shape of one panel.
type Record struct {
	Version   string    `json:"version"`    // Schema version for forward-compatibility.
	Handle    string    `json:"handle"`     // Host-issued surface handle.
	ViewType  string    `json:"view_type"`  // Surface view type at creation.
	Title     string    `json:"title"`      // Last applied panel title.
	Base      string    `json:"base"`       // Resource base directory.
	Position  string    `json:"position"`   // Last requested presentation position.
	UpdatedAt time.Time `json:"updated_at"` // Timestamp of the last save.
}

// DefaultPath resolves to {UserConfigDir}/viewscreen/panel.state.json.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "viewscreen", "panel.state.json"), nil
}

// Store reads and writes panel records at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store over path. The parent directory is
// created on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (st *Store) Path() string { return st.path }

// Save writes the record atomically. Version and UpdatedAt are
// stamped here; callers only fill the panel fields.
func (st *Store) Save(rec Record) error {
	if rec.Handle == "" {
		return errors.New("cannot save a record without a handle")
	}
	rec.Version = CurrentSchemaVersion
	rec.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal panel state: %w", err)
	}
	if err := storage.AtomicWriteFile(st.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write panel state: %w", err)
	}
	return nil
}

// Load reads the saved record. Returns ErrNoRecord when nothing has
// been saved, and rejects records from an unknown schema.
func (st *Store) Load() (Record, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNoRecord
		}
		return Record{}, fmt.Errorf("failed to read panel state: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to parse panel state: %w", err)
	}
	if rec.Version != CurrentSchemaVersion {
		return Record{}, fmt.Errorf("unsupported panel state schema %q (want %s)",
			rec.Version, CurrentSchemaVersion)
	}
	if rec.Handle == "" {
		return Record{}, errors.New("panel state record missing handle")
	}
	return rec, nil
}

// Clear removes the saved record. Missing files are not an error.
func (st *Store) Clear() error {
	if err := os.Remove(st.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear panel state: %w", err)
	}
	return nil
}

func (st *Store) lockPath() string { return st.path + ".lock" }

// Acquire takes the cross-process lock guarding the store for the life of
// the owning host. A second owner gets ErrLocked rather than silently
// racing the first on the record file. The returned release func removes
// the lock artifact.
func (st *Store) Acquire() (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	f, ok, err := storage.AcquireLockHandle(st.lockPath())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire panel state lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() error { return storage.ReleaseLockHandle(f) }, nil
}

// Locked reports whether another process currently holds the store lock.
// The probe closes its descriptor but leaves the lock artifact in place,
// so a live holder is never disturbed.
func (st *Store) Locked() bool {
	f, ok, err := storage.AcquireLockHandle(st.lockPath())
	if err != nil {
		return false
	}
	if ok {
		_ = f.Close()
		return false
	}
	return true
}
