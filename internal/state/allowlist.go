// Package state persists the cache allow-list. An allow-list entry records
// intent ("this repository should be cached"); whether a reference clone is
// actually on disk is a separate fact owned by the cache manager.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AllowListEntry marks one repository as eligible for on-disk caching.
type AllowListEntry struct {
	ID       string    `json:"id"`
	Owner    string    `json:"owner"`
	Repo     string    `json:"repo"`
	Notes    string    `json:"notes,omitempty"`
	CachedAt time.Time `json:"cached_at"`
}

// Key returns the owner/repo cache key for this entry.
func (e AllowListEntry) Key() string {
	return e.Owner + "/" + e.Repo
}

// Store defines the interface for allow-list persistence.
type Store interface {
	GetEntries() []AllowListEntry
	GetEntry(owner, repo string) (AllowListEntry, bool)
	AddEntry(owner, repo, notes string) (AllowListEntry, error)
	RemoveEntry(owner, repo string) bool
	Clear() int
	Save() error
}

// Ensure AllowList implements Store at compile time.
var _ Store = (*AllowList)(nil)

// AllowList is a JSON-file-backed Store.
type AllowList struct {
	mu      sync.RWMutex
	path    string
	entries map[string]AllowListEntry // keyed by owner/repo, lowercased
}

type allowListFile struct {
	Entries []AllowListEntry `json:"entries"`
}

func key(owner, repo string) string {
	return strings.ToLower(owner) + "/" + strings.ToLower(repo)
}

// New creates an empty allow-list. An empty path disables persistence,
// which is useful in tests.
func New(path string) *AllowList {
	return &AllowList{path: path, entries: make(map[string]AllowListEntry)}
}

// Load reads the allow-list from path, returning an empty list when the file
// does not exist yet.
func Load(path string) (*AllowList, error) {
	a := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return nil, fmt.Errorf("failed to read allow-list: %w", err)
	}

	var file allowListFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse allow-list %s: %w", path, err)
	}
	for _, e := range file.Entries {
		a.entries[key(e.Owner, e.Repo)] = e
	}
	return a, nil
}

// GetEntries returns all entries sorted by key.
func (a *AllowList) GetEntries() []AllowListEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entries := make([]AllowListEntry, 0, len(a.entries))
	for _, e := range a.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key() < entries[j].Key() })
	return entries
}

// GetEntry looks up one entry by owner/repo (case-insensitive).
func (a *AllowList) GetEntry(owner, repo string) (AllowListEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, found := a.entries[key(owner, repo)]
	return e, found
}

// AddEntry inserts a new entry. Adding an existing key updates its notes and
// keeps the original timestamp.
func (a *AllowList) AddEntry(owner, repo, notes string) (AllowListEntry, error) {
	if owner == "" || repo == "" {
		return AllowListEntry{}, fmt.Errorf("owner and repo are required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	k := key(owner, repo)
	if existing, found := a.entries[k]; found {
		existing.Notes = notes
		a.entries[k] = existing
		return existing, nil
	}

	e := AllowListEntry{
		ID:       uuid.NewString(),
		Owner:    owner,
		Repo:     repo,
		Notes:    notes,
		CachedAt: time.Now().UTC(),
	}
	a.entries[k] = e
	return e, nil
}

// RemoveEntry deletes an entry, reporting whether it existed.
func (a *AllowList) RemoveEntry(owner, repo string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := key(owner, repo)
	_, found := a.entries[k]
	delete(a.entries, k)
	return found
}

// Clear removes all entries and returns how many were removed.
func (a *AllowList) Clear() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.entries)
	a.entries = make(map[string]AllowListEntry)
	return n
}

// Save writes the allow-list to disk atomically (write temp, then rename).
func (a *AllowList) Save() error {
	a.mu.RLock()
	path := a.path
	file := allowListFile{Entries: make([]AllowListEntry, 0, len(a.entries))}
	for _, e := range a.entries {
		file.Entries = append(file.Entries, e)
	}
	a.mu.RUnlock()

	if path == "" {
		return nil
	}
	sort.Slice(file.Entries, func(i, j int) bool { return file.Entries[i].Key() < file.Entries[j].Key() })

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal allow-list: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write allow-list: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace allow-list: %w", err)
	}
	return nil
}
