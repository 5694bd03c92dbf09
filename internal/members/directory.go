// Package members maintains the persisted team member directory.
package members

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cumodsquad/squadbot/pkg/types"
)

var (
	// ErrExists is returned when adding a member whose chat handle is
	// already taken, compared case-insensitively.
	ErrExists = errors.New("member already exists")
	// ErrNotFound is returned when no member matches the given chat handle.
	ErrNotFound = errors.New("member not found")
)

// Directory is an ordered member collection persisted wholesale as one JSON
// document. Handlers run concurrently, so all access is mutex-guarded.
// Mutations apply in memory first; a failed persist is returned for logging
// but does not roll the change back.
type Directory struct {
	mu      sync.Mutex
	path    string
	logger  *zap.Logger
	records []types.MemberRecord
}

// NewDirectory loads the directory from path, creating an empty file when
// none exists.
func NewDirectory(path string, logger *zap.Logger) (*Directory, error) {
	d := &Directory{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info("member file did not exist, creating", zap.String("path", path))
		if err := d.persist(); err != nil {
			return nil, fmt.Errorf("failed to create member file: %w", err)
		}
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read member file: %w", err)
	}

	if err := json.Unmarshal(data, &d.records); err != nil {
		return nil, fmt.Errorf("failed to parse member file: %w", err)
	}
	return d, nil
}

// Add appends a new member. The chat handle must be unique, ignoring case.
func (d *Directory) Add(rec types.MemberRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexOf(rec.ChatHandle) >= 0 {
		return ErrExists
	}
	d.records = append(d.records, rec)
	return d.persist()
}

// Remove deletes the member with the given chat handle.
func (d *Directory) Remove(chatHandle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexOf(chatHandle)
	if idx < 0 {
		return ErrNotFound
	}
	d.records = append(d.records[:idx], d.records[idx+1:]...)
	return d.persist()
}

// Update rewrites a member's service handles. Empty arguments leave the
// corresponding field unchanged.
func (d *Directory) Update(chatHandle, githubHandle, trelloHandle, trelloName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexOf(chatHandle)
	if idx < 0 {
		return ErrNotFound
	}
	if githubHandle != "" {
		d.records[idx].GithubHandle = githubHandle
	}
	if trelloHandle != "" {
		d.records[idx].TrelloHandle = trelloHandle
		d.records[idx].TrelloName = trelloName
	}
	return d.persist()
}

// Get returns the member with the given chat handle.
func (d *Directory) Get(chatHandle string) (types.MemberRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexOf(chatHandle)
	if idx < 0 {
		return types.MemberRecord{}, false
	}
	return d.records[idx], true
}

// Find returns every member whose chat, github, or trello names contain the
// query, ignoring case, in directory order.
func (d *Directory) Find(query string) []types.MemberRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	query = strings.ToLower(query)
	var out []types.MemberRecord
	for _, rec := range d.records {
		if strings.Contains(strings.ToLower(rec.ChatHandle), query) ||
			strings.Contains(strings.ToLower(rec.GithubHandle), query) ||
			strings.Contains(strings.ToLower(rec.TrelloHandle), query) ||
			strings.Contains(strings.ToLower(rec.TrelloName), query) {
			out = append(out, rec)
		}
	}
	return out
}

// List returns a copy of the directory sorted by chat handle, ignoring case.
func (d *Directory) List() []types.MemberRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]types.MemberRecord, len(d.records))
	copy(out, d.records)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ChatHandle) < strings.ToLower(out[j].ChatHandle)
	})
	return out
}

// Len returns the number of members.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// indexOf finds a record by case-folded chat handle. Caller holds d.mu.
func (d *Directory) indexOf(chatHandle string) int {
	for i, rec := range d.records {
		if strings.EqualFold(rec.ChatHandle, chatHandle) {
			return i
		}
	}
	return -1
}

// persist rewrites the whole document atomically. Caller holds d.mu.
func (d *Directory) persist() error {
	records := d.records
	if records == nil {
		records = []types.MemberRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal members: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".members-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace member file: %w", err)
	}
	return nil
}
