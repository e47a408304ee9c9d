package leases

import (
	"context"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

// RenewResult is the outcome of a renew_file_reservations call.
type RenewResult struct {
	Renewed   []model.Claim
	ExpiresTS time.Time
}

// Renew implements renew_file_reservations (spec.md §4.6): extends
// expires_ts by extendSeconds for the caller's active claims (all of them
// if paths is empty), and never shortens an existing expiry.
func Renew(ctx context.Context, store Store, arc Archiver, projectID int64, agentName string, extend time.Duration, paths []string, now time.Time) (RenewResult, error) {
	if extend <= 0 {
		return RenewResult{}, fmt.Errorf("renew_file_reservations: extend_seconds must be positive")
	}

	if _, err := store.SweepExpired(ctx, projectID, now); err != nil {
		return RenewResult{}, fmt.Errorf("sweep expired claims: %w", err)
	}

	active, err := store.ActiveClaims(ctx, projectID, now)
	if err != nil {
		return RenewResult{}, fmt.Errorf("load active claims: %w", err)
	}

	wantsAll := len(paths) == 0
	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[p] = true
	}

	var result RenewResult
	for _, c := range active {
		if c.AgentName != agentName {
			continue
		}
		if !wantsAll && !wanted[c.Path] {
			continue
		}
		newExpiry := c.ExpiresTS.Add(extend)
		if newExpiry.Before(c.ExpiresTS) {
			newExpiry = c.ExpiresTS
		}
		if err := arc.RenewClaim(c.Path, c.ID, newExpiry); err != nil {
			return RenewResult{}, fmt.Errorf("renew claim %s: %w", c.ID, err)
		}
		if err := store.ExtendClaim(ctx, c.ID, newExpiry); err != nil {
			return RenewResult{}, fmt.Errorf("extend claim %s: %w", c.ID, err)
		}
		c.ExpiresTS = newExpiry
		result.Renewed = append(result.Renewed, c)
		if newExpiry.After(result.ExpiresTS) {
			result.ExpiresTS = newExpiry
		}
	}

	if len(result.Renewed) > 0 {
		if _, err := arc.Commit(fmt.Sprintf("claim: %s renew %d path(s)", agentName, len(result.Renewed))); err != nil {
			return RenewResult{}, fmt.Errorf("commit renewals: %w", err)
		}
	}

	return result, nil
}
