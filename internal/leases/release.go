package leases

import (
	"context"
	"fmt"
	"time"
)

// ReleaseResult is the outcome of a release_file_reservations call.
type ReleaseResult struct {
	ReleasedCount int
	At            time.Time
}

// Release implements release_file_reservations (spec.md §4.6): sets
// released_ts on every active claim owned by agentName (optionally
// restricted to paths), committing an updated claim file per path.
func Release(ctx context.Context, store Store, arc Archiver, projectID int64, agentName string, paths []string, now time.Time) (ReleaseResult, error) {
	active, err := store.ActiveClaims(ctx, projectID, now)
	if err != nil {
		return ReleaseResult{}, fmt.Errorf("load active claims: %w", err)
	}

	wantsAll := len(paths) == 0
	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[p] = true
	}

	result := ReleaseResult{At: now}
	for _, c := range active {
		if c.AgentName != agentName {
			continue
		}
		if !wantsAll && !wanted[c.Path] {
			continue
		}
		if err := arc.MarkClaimReleased(c.Path, c.ID, now); err != nil {
			return ReleaseResult{}, fmt.Errorf("mark claim %s released: %w", c.ID, err)
		}
		if err := store.ReleaseClaim(ctx, c.ID, now); err != nil {
			return ReleaseResult{}, fmt.Errorf("release claim %s: %w", c.ID, err)
		}
		result.ReleasedCount++
	}

	if result.ReleasedCount > 0 {
		if _, err := arc.Commit(fmt.Sprintf("claim: %s release %d path(s)", agentName, result.ReleasedCount)); err != nil {
			return ReleaseResult{}, fmt.Errorf("commit releases: %w", err)
		}
	}

	return result, nil
}
