package leases

import (
	"context"
	"fmt"
	"time"
)

// Sweep marks every expired-but-not-yet-released claim in the project as
// released. Called on a schedule by the gc-expired-claims CLI command and
// opportunistically before Reserve/Renew so a stale claim never blocks a
// fresh request (spec.md §4.6, P7).
func Sweep(ctx context.Context, store Store, projectID int64, now time.Time) (int, error) {
	n, err := store.SweepExpired(ctx, projectID, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired claims: %w", err)
	}
	return n, nil
}

// ForceRelease releases a specific claim by ID regardless of owner,
// committing the release to the archive. This is the supplemented
// human-overseer escape hatch for a claim whose holding agent has gone
// unresponsive (SPEC_FULL.md's force-release feature): ordinary agents
// use Release, which is scoped to their own claims.
func ForceRelease(ctx context.Context, store Store, arc Archiver, claimID, path, releasedBy string, now time.Time) error {
	if err := arc.MarkClaimReleased(path, claimID, now); err != nil {
		return fmt.Errorf("mark claim %s released: %w", claimID, err)
	}
	if err := store.ReleaseClaim(ctx, claimID, now); err != nil {
		return fmt.Errorf("release claim %s: %w", claimID, err)
	}
	if _, err := arc.Commit(fmt.Sprintf("claim: %s force-release 1 path(s)", releasedBy)); err != nil {
		return fmt.Errorf("commit force-release: %w", err)
	}
	return nil
}
