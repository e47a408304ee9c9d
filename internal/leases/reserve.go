package leases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentfleet/agentmaild/internal/model"
)

const (
	minTTL     = 60 * time.Second
	defaultTTL = 3600 * time.Second
)

// Conflict describes why a requested path could not be granted.
type Conflict struct {
	Path    string
	Holders []model.Claim
}

// Result is the outcome of a reserve_file_paths call.
type Result struct {
	Granted   []model.Claim
	Conflicts []Conflict
	ExpiresTS time.Time
}

// Reserve implements reserve_file_paths (spec.md §4.6):
//  1. sweep expired claims out of the way
//  2. for each requested path, load active overlapping claims
//  3. a path conflicts if any overlapping claim is held by another agent
//     and either side demands exclusivity
//  4. non-conflicting paths are granted and committed to the archive
//  5. the Index is updated to match
func Reserve(ctx context.Context, store Store, arc Archiver, projectID int64, agentName string, paths []string, ttl time.Duration, exclusive bool, reason string, now time.Time) (Result, error) {
	if len(paths) == 0 {
		return Result{}, fmt.Errorf("reserve_file_paths: no paths given")
	}

	if _, err := store.SweepExpired(ctx, projectID, now); err != nil {
		return Result{}, fmt.Errorf("sweep expired claims: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultTTL
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	expiresTS := now.Add(ttl)

	active, err := store.ActiveClaims(ctx, projectID, now)
	if err != nil {
		return Result{}, fmt.Errorf("load active claims: %w", err)
	}

	var res Result
	res.ExpiresTS = expiresTS

	var exclusiveCount, sharedCount int
	for _, path := range paths {
		var holders []model.Claim
		for _, c := range active {
			if c.AgentName == agentName {
				continue
			}
			if !Overlaps(path, c.Path) {
				continue
			}
			if exclusive || c.Exclusive {
				holders = append(holders, c)
			}
		}
		if len(holders) > 0 {
			res.Conflicts = append(res.Conflicts, Conflict{Path: path, Holders: holders})
			continue
		}

		claim := model.Claim{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			AgentName: agentName,
			Path:      path,
			Exclusive: exclusive,
			Reason:    reason,
			CreatedTS: now,
			ExpiresTS: expiresTS,
		}
		if err := arc.AppendClaim(claim); err != nil {
			return Result{}, fmt.Errorf("append claim for %s: %w", path, err)
		}
		if err := store.InsertClaim(ctx, claim); err != nil {
			return Result{}, fmt.Errorf("insert claim for %s: %w", path, err)
		}
		res.Granted = append(res.Granted, claim)
		active = append(active, claim)
		if exclusive {
			exclusiveCount++
		} else {
			sharedCount++
		}
	}

	if len(res.Granted) > 0 {
		subject := claimCommitSubject(agentName, exclusiveCount, sharedCount)
		if _, err := arc.Commit(subject); err != nil {
			return Result{}, fmt.Errorf("commit claims: %w", err)
		}
	}

	return res, nil
}

func claimCommitSubject(agentName string, exclusiveCount, sharedCount int) string {
	if sharedCount == 0 {
		return fmt.Sprintf("claim: %s exclusive %d path(s)", agentName, exclusiveCount)
	}
	if exclusiveCount == 0 {
		return fmt.Sprintf("claim: %s shared %d path(s)", agentName, sharedCount)
	}
	return fmt.Sprintf("claim: %s exclusive %d shared %d path(s)", agentName, exclusiveCount, sharedCount)
}
