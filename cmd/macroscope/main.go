package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/govambam/macroscope-code-review-sub002/internal/config"
	"github.com/govambam/macroscope-code-review-sub002/internal/hosting"
	"github.com/govambam/macroscope-code-review-sub002/internal/recreate"
	"github.com/govambam/macroscope-code-review-sub002/internal/refcache"
	"github.com/govambam/macroscope-code-review-sub002/internal/server"
	"github.com/govambam/macroscope-code-review-sub002/internal/state"
)

// app bundles the long-lived instances shared by every command.
type app struct {
	cfg    *config.Config
	cache  *refcache.Manager
	engine *recreate.Engine
}

func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	configPath, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	allowList, err := state.Load(filepath.Join(filepath.Dir(configPath), "allowlist.json"))
	if err != nil {
		return nil, err
	}

	cache := refcache.NewManager(cfg.GetCacheDir(), allowList, cfg.GetMaxConcurrentClones())
	hostingClient := hosting.New(cfg.GetGitHubToken())
	engine := recreate.NewEngine(cfg, hostingClient, cache)

	return &app{cfg: cfg, cache: cache, engine: engine}, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "serve":
		a, err := buildApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		srv := server.NewServer(a.cfg, a.engine, a.cache)
		if err := srv.ListenAndServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}

	case "recreate":
		if err := runRecreate(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "cache":
		if err := runCache(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// runRecreate performs one recreation inline, printing progress to stderr.
func runRecreate(args []string) error {
	prURL, cacheRepo := parseRecreateArgs(args)
	if prURL == "" {
		return fmt.Errorf("usage: macroscope recreate <pr-url> [--cache]")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}

	for event := range a.engine.Recreate(context.Background(), prURL, cacheRepo) {
		switch event.Type {
		case recreate.EventProgress:
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", event.Step, event.Total, event.Message)
		case recreate.EventCompleted:
			fmt.Printf("Recreated: %s\n", event.Result.ForkedPRURL)
			fmt.Printf("  base:     %s\n", event.Result.BaseBranchName)
			fmt.Printf("  review:   %s\n", event.Result.ReviewBranchName)
			fmt.Printf("  strategy: %s\n", event.Result.StrategyUsed)
		case recreate.EventFailed:
			if event.FailedSHA != "" {
				return fmt.Errorf("%s (commit %s)", event.Error, event.FailedSHA)
			}
			return fmt.Errorf("%s", event.Error)
		}
	}
	return nil
}

// parseRecreateArgs splits the PR URL from the --cache flag.
func parseRecreateArgs(args []string) (prURL string, cacheRepo bool) {
	for _, arg := range args {
		if arg == "--cache" {
			cacheRepo = true
			continue
		}
		if prURL == "" {
			prURL = arg
		}
	}
	return prURL, cacheRepo
}

func printUsage() {
	fmt.Println(`macroscope - recreates external pull requests inside a controlled fork

Usage:
  macroscope serve                              Run the HTTP daemon
  macroscope recreate <pr-url> [--cache]        Recreate one PR inline
  macroscope cache list                         Show allow-list and disk usage
  macroscope cache add <owner> <repo> [notes]   Allow-list a repository
  macroscope cache remove <owner> <repo> [--delete-from-disk]
  macroscope cache clear                        Drop all cached repositories
  macroscope help                               Show this help`)
}
