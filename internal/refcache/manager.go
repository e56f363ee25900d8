// Package refcache manages long-lived reference clones on disk and the
// concurrency limits around mutating them. A reference clone is a full clone
// of one upstream repository, shared read-only (via git alternates) by the
// ephemeral working clones that recreation requests make.
package refcache

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/govambam/macroscope-code-review-sub002/internal/gitshell"
	"github.com/govambam/macroscope-code-review-sub002/internal/state"
)

// Stats describes cache disk usage and allow-list contents.
type Stats struct {
	TotalBytes       int64                  `json:"total_bytes"`
	PerRepoBytes     map[string]int64       `json:"per_repo_bytes"`
	OnDiskKeys       []string               `json:"on_disk_keys"`
	OrphanedKeys     []string               `json:"orphaned_keys"`
	AllowListEntries []state.AllowListEntry `json:"allow_list_entries"`
}

// Manager owns the reference clone directory, the per-repository locks, and
// the global clone/fetch gate. One Manager instance lives for the daemon's
// lifetime and is injected into every recreation request.
type Manager struct {
	cacheDir  string
	allowList state.Store
	locks     *keyedLocks
	gate      *Gate
	logger    *log.Logger
}

// NewManager creates a cache manager rooted at cacheDir.
func NewManager(cacheDir string, allowList state.Store, maxConcurrentClones int) *Manager {
	return &Manager{
		cacheDir:  cacheDir,
		allowList: allowList,
		locks:     newKeyedLocks(),
		gate:      NewGate(maxConcurrentClones),
		logger:    log.NewWithOptions(os.Stderr, log.Options{Prefix: "refcache"}),
	}
}

// Gate returns the global clone/fetch concurrency gate. Working-clone
// creation counts against the same budget as cache mutation.
func (m *Manager) Gate() *Gate {
	return m.gate
}

// AllowList returns the backing allow-list store.
func (m *Manager) AllowList() state.Store {
	return m.allowList
}

func cacheKey(owner, repo string) string {
	return strings.ToLower(owner) + "/" + strings.ToLower(repo)
}

// Path returns the on-disk location for a repository's reference clone.
func (m *Manager) Path(owner, repo string) string {
	return filepath.Join(m.cacheDir, strings.ToLower(owner), strings.ToLower(repo))
}

// IsEligible reports whether a repository is allow-listed for caching.
func (m *Manager) IsEligible(owner, repo string) bool {
	_, found := m.allowList.GetEntry(owner, repo)
	return found
}

// Ensure makes the reference clone for owner/repo current and returns its
// path. When the repository is not allow-listed it returns "" and the caller
// falls back to a plain full clone. The whole operation runs inside the
// repository's key lock, so a returned path always points at a fully cloned
// or fully refreshed repository.
//
// remoteURL must embed current credentials; it is (re)applied on every call
// because tokens rotate between requests.
func (m *Manager) Ensure(ctx context.Context, owner, repo, remoteURL string) (string, error) {
	if !m.IsEligible(owner, repo) {
		return "", nil
	}

	key := cacheKey(owner, repo)
	unlock := m.locks.Lock(key)
	defer unlock()

	if err := m.gate.Acquire(ctx); err != nil {
		return "", err
	}
	defer m.gate.Release()

	path := m.Path(owner, repo)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		m.logger.Info("cloning reference repository", "repo", key)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", fmt.Errorf("failed to create cache directory: %w", err)
		}
		if _, err := gitshell.Clone(ctx, remoteURL, path, gitshell.CloneOptions{AllBranches: true}); err != nil {
			// Never leave a half-written reference clone behind: a later
			// reference against it would resolve missing objects as errors.
			if rmErr := os.RemoveAll(path); rmErr != nil {
				m.logger.Error("failed to remove partial clone", "repo", key, "error", rmErr)
			}
			return "", fmt.Errorf("reference clone of %s failed: %w", key, err)
		}
		return path, nil
	}

	m.logger.Info("refreshing reference repository", "repo", key)
	r := gitshell.New(path)
	if err := r.SetRemoteURL(ctx, "origin", remoteURL); err != nil {
		return "", fmt.Errorf("failed to rotate remote URL for %s: %w", key, err)
	}
	if err := r.FetchAll(ctx); err != nil {
		return "", fmt.Errorf("reference fetch of %s failed: %w", key, err)
	}
	return path, nil
}

// Remove drops a repository from the allow-list and, when deleteFromDisk is
// set, deletes its reference clone.
func (m *Manager) Remove(owner, repo string, deleteFromDisk bool) error {
	key := cacheKey(owner, repo)
	unlock := m.locks.Lock(key)
	defer unlock()

	m.allowList.RemoveEntry(owner, repo)
	if err := m.allowList.Save(); err != nil {
		return fmt.Errorf("failed to save allow-list: %w", err)
	}

	if deleteFromDisk {
		if err := os.RemoveAll(m.Path(owner, repo)); err != nil {
			return fmt.Errorf("failed to delete reference clone %s: %w", key, err)
		}
		m.logger.Info("deleted reference repository", "repo", key)
	}
	return nil
}

// ClearAll empties the allow-list and removes every on-disk reference clone.
func (m *Manager) ClearAll() error {
	keys, err := m.onDiskKeys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		owner, repo, _ := strings.Cut(key, "/")
		if err := m.Remove(owner, repo, true); err != nil {
			return err
		}
	}
	m.allowList.Clear()
	if err := m.allowList.Save(); err != nil {
		return fmt.Errorf("failed to save allow-list: %w", err)
	}
	return nil
}

// Stats walks the cache directory and reports usage alongside the allow-list.
// Keys on disk without an allow-list entry are reported as orphaned.
func (m *Manager) Stats() (Stats, error) {
	stats := Stats{
		PerRepoBytes:     make(map[string]int64),
		OnDiskKeys:       []string{},
		OrphanedKeys:     []string{},
		AllowListEntries: m.allowList.GetEntries(),
	}

	keys, err := m.onDiskKeys()
	if err != nil {
		return Stats{}, err
	}
	for _, key := range keys {
		owner, repo, _ := strings.Cut(key, "/")
		size, err := dirSize(m.Path(owner, repo))
		if err != nil {
			return Stats{}, err
		}
		stats.OnDiskKeys = append(stats.OnDiskKeys, key)
		stats.PerRepoBytes[key] = size
		stats.TotalBytes += size
		if !m.IsEligible(owner, repo) {
			stats.OrphanedKeys = append(stats.OrphanedKeys, key)
		}
	}
	return stats, nil
}

// onDiskKeys lists owner/repo keys present in the cache directory.
func (m *Manager) onDiskKeys() ([]string, error) {
	keys := []string{}

	owners, err := os.ReadDir(m.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, ownerEntry := range owners {
		if !ownerEntry.IsDir() {
			continue
		}
		repos, err := os.ReadDir(filepath.Join(m.cacheDir, ownerEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read cache directory: %w", err)
		}
		for _, repoEntry := range repos {
			if repoEntry.IsDir() {
				keys = append(keys, ownerEntry.Name()+"/"+repoEntry.Name())
			}
		}
	}
	return keys, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s: %w", path, err)
	}
	return size, nil
}
