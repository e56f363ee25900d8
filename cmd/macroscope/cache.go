package main

import (
	"fmt"
)

func runCache(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: macroscope cache <list|add|remove|clear>")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		stats, err := a.cache.Stats()
		if err != nil {
			return err
		}

		fmt.Printf("Allow-listed repositories (%d):\n", len(stats.AllowListEntries))
		for _, e := range stats.AllowListEntries {
			onDisk := "not yet cloned"
			if size, found := stats.PerRepoBytes[e.Key()]; found {
				onDisk = humanBytes(size)
			}
			fmt.Printf("  %-40s %-12s %s\n", e.Key(), onDisk, e.Notes)
		}
		for _, key := range stats.OrphanedKeys {
			fmt.Printf("  %-40s %-12s (orphaned: on disk, not allow-listed)\n", key, humanBytes(stats.PerRepoBytes[key]))
		}
		fmt.Printf("Total on disk: %s across %d repositories\n", humanBytes(stats.TotalBytes), len(stats.OnDiskKeys))
		return nil

	case "add":
		if len(args) < 3 {
			return fmt.Errorf("usage: macroscope cache add <owner> <repo> [notes]")
		}
		notes := ""
		if len(args) > 3 {
			notes = args[3]
		}
		entry, err := a.cache.AllowList().AddEntry(args[1], args[2], notes)
		if err != nil {
			return err
		}
		if err := a.cache.AllowList().Save(); err != nil {
			return err
		}
		fmt.Printf("Allow-listed %s\n", entry.Key())
		return nil

	case "remove":
		if len(args) < 3 {
			return fmt.Errorf("usage: macroscope cache remove <owner> <repo> [--delete-from-disk]")
		}
		deleteFromDisk := len(args) > 3 && args[3] == "--delete-from-disk"
		if err := a.cache.Remove(args[1], args[2], deleteFromDisk); err != nil {
			return err
		}
		fmt.Printf("Removed %s/%s from allow-list", args[1], args[2])
		if deleteFromDisk {
			fmt.Print(" and disk")
		}
		fmt.Println()
		return nil

	case "clear":
		if err := a.cache.ClearAll(); err != nil {
			return err
		}
		fmt.Println("Cache cleared")
		return nil

	default:
		return fmt.Errorf("unknown cache command: %s", args[0])
	}
}

// humanBytes formats a byte count for display.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
