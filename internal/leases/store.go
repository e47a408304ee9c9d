package leases

import (
	"context"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

// Store is the query-side view the lease operations need from the Index
// (spec.md §4.3): enough to find active overlapping claims and to persist
// new/updated/released ones. The engine facade wires this to the real
// Index; tests wire it to an in-memory fake.
type Store interface {
	// ActiveClaims returns every active claim in the project as of now.
	ActiveClaims(ctx context.Context, projectID int64, now time.Time) ([]model.Claim, error)
	// InsertClaim records a newly granted claim.
	InsertClaim(ctx context.Context, c model.Claim) error
	// ExtendClaim updates the expiry of a single claim by ID.
	ExtendClaim(ctx context.Context, claimID string, newExpiry time.Time) error
	// ReleaseClaim marks a single claim by ID as released as of releasedTS.
	ReleaseClaim(ctx context.Context, claimID string, releasedTS time.Time) error
	// SweepExpired marks every active-but-past-expiry claim in the project
	// as released as of now, returning how many were swept. Called before
	// evaluating new reserve requests so stale claims never block a fresh
	// one (spec.md §4.6's lazy sweep).
	SweepExpired(ctx context.Context, projectID int64, now time.Time) (int, error)
}

// Archiver is the subset of *archive.Archive the lease operations need, so
// this package does not import archive directly (avoiding a dependency
// cycle with higher-level packages that wire both together).
type Archiver interface {
	AppendClaim(c model.Claim) error
	MarkClaimReleased(path, claimID string, releasedTS time.Time) error
	RenewClaim(path, claimID string, newExpiry time.Time) error
	Commit(subject string) (string, error)
}
