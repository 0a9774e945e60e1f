package main

import (
	"log/slog"
	"os"
	"path/filepath"
)

// cleanupWorkDir removes leftovers of runs interrupted by a previous process.
// Entries named in keep survive.
func cleanupWorkDir(dir string, logger *slog.Logger, keep ...string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read work directory", slog.String("dir", dir), slog.String("error", err.Error()))
		}
		return 0
	}

	skip := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		skip[name] = struct{}{}
	}

	removed := 0
	for _, entry := range entries {
		if _, ok := skip[entry.Name()]; ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to remove stale work entry", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed
}
