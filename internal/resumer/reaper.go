// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package resumer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
)

// ReapOrphanSpools deletes spool files left behind by crashed or restarted
// instances. A spool is an orphan once it is older than the retention
// window and no live recording owns it. Run at startup and periodically
// from the task worker.
func (r *Registry) ReapOrphanSpools(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(r.config.SpoolDir)
	if err != nil {
		return 0, err
	}

	live := make(map[string]bool)
	r.mu.Lock()
	for _, rec := range r.recordings {
		live[rec.spoolName] = true
	}
	r.mu.Unlock()

	cutoff := time.Now().Add(-constants.SpoolRetention)
	reaped := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), spoolPrefix) || live[entry.Name()] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.config.SpoolDir, entry.Name())); err != nil {
			slog.WarnContext(ctx, "failed to reap orphan spool",
				"error", err,
				"spool", entry.Name(),
			)
			continue
		}
		reaped++
	}

	if reaped > 0 {
		slog.InfoContext(ctx, "reaped orphan spool files",
			"count", reaped,
			"spool_dir", r.config.SpoolDir,
		)
	}
	return reaped, nil
}
