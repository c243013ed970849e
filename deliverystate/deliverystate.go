// Package deliverystate tracks members whose direct messages are known to fail.
package deliverystate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"
)

type fileState struct {
	UpdatedAt time.Time `json:"updated_at_utc"`
	UserIDs   []userID  `json:"user_ids"`
}

// userID accepts both JSON numbers and numeric strings.
type userID uint64

func (u *userID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return err
		}
		*u = userID(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*u = userID(v)
	return nil
}

// Tracker is the in-memory set of blocked member IDs for one run.
// It is not safe for concurrent use.
type Tracker struct {
	path     string
	known    map[uint64]bool // as loaded at start of run
	blocked  map[uint64]bool
	notified map[uint64]bool
	now      func() time.Time
}

// Load reads the set persisted at path. A missing or malformed file yields
// an empty set; Load never fails.
func Load(path string) *Tracker {
	t := &Tracker{
		path:     path,
		known:    make(map[uint64]bool),
		blocked:  make(map[uint64]bool),
		notified: make(map[uint64]bool),
		now:      time.Now,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("read delivery state failed, starting empty", "path", path, "error", err)
		}
		return t
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("malformed delivery state, starting empty", "path", path, "error", err)
		return t
	}
	for _, id := range st.UserIDs {
		t.known[uint64(id)] = true
		t.blocked[uint64(id)] = true
	}
	return t
}

// Path returns the file the tracker persists to.
func (t *Tracker) Path() string { return t.path }

// Len returns the number of currently blocked members.
func (t *Tracker) Len() int { return len(t.blocked) }

// Blocked reports whether id is currently in the set.
func (t *Tracker) Blocked(id uint64) bool { return t.blocked[id] }

// IDs returns the blocked IDs in ascending order.
func (t *Tracker) IDs() []uint64 {
	ids := make([]uint64, 0, len(t.blocked))
	for id := range t.blocked {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RecordSuccess removes id from the set.
func (t *Tracker) RecordSuccess(id uint64) {
	delete(t.blocked, id)
}

// RecordFailure adds id to the set. It reports true when the failure is new:
// id was not blocked at load time and has not already been reported this run.
func (t *Tracker) RecordFailure(id uint64) bool {
	t.blocked[id] = true
	if t.known[id] || t.notified[id] {
		return false
	}
	t.notified[id] = true
	return true
}

// Save replaces the persisted file with the current set.
func (t *Tracker) Save() error {
	ids := t.IDs()
	st := fileState{
		UpdatedAt: t.now().UTC(),
		UserIDs:   make([]userID, len(ids)),
	}
	for i, id := range ids {
		st.UserIDs[i] = userID(id)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal delivery state: %w", err)
	}
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
