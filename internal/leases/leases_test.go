package leases

import (
	"context"
	"testing"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

type fakeStore struct {
	claims map[string]model.Claim
}

func newFakeStore() *fakeStore {
	return &fakeStore{claims: make(map[string]model.Claim)}
}

func (s *fakeStore) ActiveClaims(_ context.Context, projectID int64, now time.Time) ([]model.Claim, error) {
	var out []model.Claim
	for _, c := range s.claims {
		if c.ProjectID == projectID && c.Active(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertClaim(_ context.Context, c model.Claim) error {
	s.claims[c.ID] = c
	return nil
}

func (s *fakeStore) ExtendClaim(_ context.Context, claimID string, newExpiry time.Time) error {
	c := s.claims[claimID]
	c.ExpiresTS = newExpiry
	s.claims[claimID] = c
	return nil
}

func (s *fakeStore) ReleaseClaim(_ context.Context, claimID string, releasedTS time.Time) error {
	c := s.claims[claimID]
	ts := releasedTS
	c.ReleasedTS = &ts
	s.claims[claimID] = c
	return nil
}

func (s *fakeStore) SweepExpired(_ context.Context, projectID int64, now time.Time) (int, error) {
	n := 0
	for id, c := range s.claims {
		if c.ProjectID == projectID && c.ReleasedTS == nil && !c.ExpiresTS.After(now) {
			ts := c.ExpiresTS
			c.ReleasedTS = &ts
			s.claims[id] = c
			n++
		}
	}
	return n, nil
}

type fakeArchiver struct {
	commits []string
}

func (a *fakeArchiver) AppendClaim(model.Claim) error { return nil }
func (a *fakeArchiver) MarkClaimReleased(string, string, time.Time) error { return nil }
func (a *fakeArchiver) RenewClaim(string, string, time.Time) error { return nil }
func (a *fakeArchiver) Commit(subject string) (string, error) {
	a.commits = append(a.commits, subject)
	return "deadbeef", nil
}

func TestOverlapsLiteralAndGlob(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"pkg/foo.go", "pkg/foo.go", true},
		{"pkg/foo.go", "pkg/bar.go", false},
		{"pkg/foo.go", "pkg/**", true},
		{"pkg/**", "pkg/sub/foo.go", true},
		{"pkg/*.go", "pkg/foo.go", true},
		{"pkg/*.go", "pkg/sub/foo.go", false},
		{"pkg/a/*", "pkg/a/**", true},
		{"pkg/a/**", "other/b/**", false},
	}
	for _, c := range cases {
		if got := Overlaps(c.a, c.b); got != c.want {
			t.Errorf("Overlaps(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestReserveGrantsNonOverlapping(t *testing.T) {
	store := newFakeStore()
	arc := &fakeArchiver{}
	now := time.Now().UTC()

	res, err := Reserve(context.Background(), store, arc, 1, "Amber-Falcon", []string{"src/a.go"}, time.Hour, true, "working", now)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(res.Granted) != 1 || len(res.Conflicts) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(arc.commits) != 1 {
		t.Fatalf("expected exactly one commit, got %d", len(arc.commits))
	}
}

func TestReserveConflictsOnExclusiveOverlap(t *testing.T) {
	store := newFakeStore()
	arc := &fakeArchiver{}
	now := time.Now().UTC()

	if _, err := Reserve(context.Background(), store, arc, 1, "Amber-Falcon", []string{"src/**/*.py"}, time.Hour, true, "", now); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}

	res, err := Reserve(context.Background(), store, arc, 1, "Quiet-Otter", []string{"src/api/x.py"}, time.Hour, true, "", now)
	if err != nil {
		t.Fatalf("second Reserve: %v", err)
	}
	if len(res.Granted) != 0 {
		t.Fatalf("expected no grants, got %+v", res.Granted)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Holders[0].AgentName != "Amber-Falcon" {
		t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
	}
}

func TestReserveAllowsMultipleSharedHolders(t *testing.T) {
	store := newFakeStore()
	arc := &fakeArchiver{}
	now := time.Now().UTC()

	if _, err := Reserve(context.Background(), store, arc, 1, "Amber-Falcon", []string{"docs/**"}, time.Hour, false, "", now); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	res, err := Reserve(context.Background(), store, arc, 1, "Quiet-Otter", []string{"docs/**"}, time.Hour, false, "", now)
	if err != nil {
		t.Fatalf("second Reserve: %v", err)
	}
	if len(res.Granted) != 1 {
		t.Fatalf("expected shared claim to be granted, got %+v", res)
	}
}

func TestReserveEnforcesMinimumTTL(t *testing.T) {
	store := newFakeStore()
	arc := &fakeArchiver{}
	now := time.Now().UTC()

	res, err := Reserve(context.Background(), store, arc, 1, "Amber-Falcon", []string{"src/a.go"}, time.Second, true, "", now)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if res.ExpiresTS.Sub(now) < minTTL {
		t.Fatalf("expected expiry to be floored at %s, got %s", minTTL, res.ExpiresTS.Sub(now))
	}
}

func TestRenewNeverShortens(t *testing.T) {
	store := newFakeStore()
	arc := &fakeArchiver{}
	now := time.Now().UTC()

	reserveRes, err := Reserve(context.Background(), store, arc, 1, "Amber-Falcon", []string{"src/a.go"}, 2*time.Hour, true, "", now)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	originalExpiry := reserveRes.Granted[0].ExpiresTS

	renewRes, err := Renew(context.Background(), store, arc, 1, "Amber-Falcon", time.Minute, nil, now)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if renewRes.Renewed[0].ExpiresTS.Before(originalExpiry) {
		t.Fatalf("renew must never shorten expiry: had %s, now %s", originalExpiry, renewRes.Renewed[0].ExpiresTS)
	}
}

func TestReleaseThenReserveSucceeds(t *testing.T) {
	store := newFakeStore()
	arc := &fakeArchiver{}
	now := time.Now().UTC()

	if _, err := Reserve(context.Background(), store, arc, 1, "Amber-Falcon", []string{"src/a.go"}, time.Hour, true, "", now); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	relRes, err := Release(context.Background(), store, arc, 1, "Amber-Falcon", nil, now)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if relRes.ReleasedCount != 1 {
		t.Fatalf("expected 1 released, got %d", relRes.ReleasedCount)
	}

	res, err := Reserve(context.Background(), store, arc, 1, "Quiet-Otter", []string{"src/a.go"}, time.Hour, true, "", now)
	if err != nil {
		t.Fatalf("second Reserve: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("expected no conflicts after release, got %+v", res.Conflicts)
	}
}

func TestSweepUnblocksExpiredClaims(t *testing.T) {
	store := newFakeStore()
	arc := &fakeArchiver{}
	start := time.Now().UTC()

	if _, err := Reserve(context.Background(), store, arc, 1, "Amber-Falcon", []string{"src/a.go"}, time.Minute, true, "", start); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	later := start.Add(2 * time.Minute)
	res, err := Reserve(context.Background(), store, arc, 1, "Quiet-Otter", []string{"src/a.go"}, time.Hour, true, "", later)
	if err != nil {
		t.Fatalf("second Reserve: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("expected expired claim to have been swept, got conflicts: %+v", res.Conflicts)
	}
}
