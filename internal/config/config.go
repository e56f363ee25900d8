package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid config")
)

const (
	// DefaultMaxConcurrentClones bounds simultaneous clone/fetch subprocesses
	// across all repositories. Clones are disk- and bandwidth-heavy; a small
	// cap keeps the host responsive while several recreations are in flight.
	DefaultMaxConcurrentClones = 3

	// DefaultListenAddr is the HTTP listen address for the daemon.
	DefaultListenAddr = "127.0.0.1:7384"

	// DefaultForkSettleSeconds is the grace period after a fork first reports
	// ready before git operations are attempted against it.
	DefaultForkSettleSeconds = 5
)

// Config represents the daemon configuration.
type Config struct {
	// GitHubToken authenticates both API calls and git transport. Tokens
	// rotate; cached remote URLs are rewritten with the current token on use.
	GitHubToken string `json:"github_token"`

	// TargetOrg is the organization that receives recreated forks.
	TargetOrg string `json:"target_org"`

	// CacheDir holds long-lived reference clones, one per owner/repo.
	CacheDir string `json:"cache_dir"`

	// WorkDir is the parent of ephemeral per-recreation working clones.
	WorkDir string `json:"work_dir"`

	MaxConcurrentClones int    `json:"max_concurrent_clones,omitempty"`
	ListenAddr          string `json:"listen_addr,omitempty"`
	ForkSettleSeconds   int    `json:"fork_settle_seconds,omitempty"`

	mu sync.RWMutex
}

// DefaultPath returns the default config file location (~/.macroscope/config.json).
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".macroscope", "config.json"), nil
}

// Load loads the configuration from the default path.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads and validates the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	homeDir, _ := os.UserHomeDir()
	cfg.CacheDir = expandHome(cfg.CacheDir, homeDir)
	cfg.WorkDir = expandHome(cfg.WorkDir, homeDir)

	if cfg.MaxConcurrentClones == 0 {
		cfg.MaxConcurrentClones = DefaultMaxConcurrentClones
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.ForkSettleSeconds == 0 {
		cfg.ForkSettleSeconds = DefaultForkSettleSeconds
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("%w: github_token is required", ErrInvalidConfig)
	}
	if c.TargetOrg == "" {
		return fmt.Errorf("%w: target_org is required", ErrInvalidConfig)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("%w: cache_dir is required", ErrInvalidConfig)
	}
	if c.WorkDir == "" {
		return fmt.Errorf("%w: work_dir is required", ErrInvalidConfig)
	}
	if c.MaxConcurrentClones < 0 {
		return fmt.Errorf("%w: max_concurrent_clones must be positive", ErrInvalidConfig)
	}
	return nil
}

// expandHome expands a leading ~ in a path.
func expandHome(path, homeDir string) string {
	if path != "" && path[0] == '~' && homeDir != "" {
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// GetGitHubToken returns the GitHub access token.
func (c *Config) GetGitHubToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.GitHubToken
}

// SetGitHubToken replaces the token, used when credentials rotate at runtime.
func (c *Config) SetGitHubToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GitHubToken = token
}

// GetTargetOrg returns the fork destination organization.
func (c *Config) GetTargetOrg() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetOrg
}

// GetCacheDir returns the reference clone cache directory.
func (c *Config) GetCacheDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CacheDir
}

// GetWorkDir returns the ephemeral working clone directory.
func (c *Config) GetWorkDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.WorkDir
}

// GetMaxConcurrentClones returns the global clone/fetch concurrency cap.
func (c *Config) GetMaxConcurrentClones() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MaxConcurrentClones
}

// GetListenAddr returns the HTTP listen address.
func (c *Config) GetListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ListenAddr
}

// GetForkSettleSeconds returns the post-fork settle delay in seconds.
func (c *Config) GetForkSettleSeconds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ForkSettleSeconds
}
