package archive

import (
	"fmt"
	"os"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

// LoadClaimFile reads the claim file for path, returning an empty ClaimFile
// (not an error) if none exists yet.
func (a *Archive) LoadClaimFile(path string) (ClaimFile, error) {
	rel := ClaimPath(path)
	content, err := os.ReadFile(a.Path(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return ClaimFile{Path: path}, nil
		}
		return ClaimFile{}, err
	}
	return UnmarshalClaimFile(content)
}

// AppendClaim loads the claim file for c.Path, appends c as a new record,
// and writes the file back. It does not commit; callers batch this with
// other WriteFile calls and a single Commit per spec.md §4.2.
func (a *Archive) AppendClaim(c model.Claim) error {
	cf, err := a.LoadClaimFile(c.Path)
	if err != nil {
		return err
	}
	cf.Claims = append(cf.Claims, ClaimRecord{
		ID:        c.ID,
		AgentName: c.AgentName,
		Exclusive: c.Exclusive,
		Reason:    c.Reason,
		CreatedTS: c.CreatedTS,
		ExpiresTS: c.ExpiresTS,
	})
	content, err := MarshalClaimFile(cf)
	if err != nil {
		return err
	}
	return a.WriteFile(ClaimPath(c.Path), content)
}

// MarkClaimReleased loads the claim file for path, stamps the record
// matching claimID as released, and writes the file back. Returns an error
// if no matching record is found.
func (a *Archive) MarkClaimReleased(path, claimID string, releasedTS time.Time) error {
	cf, err := a.LoadClaimFile(path)
	if err != nil {
		return err
	}
	found := false
	for i := range cf.Claims {
		if cf.Claims[i].ID == claimID {
			ts := releasedTS
			cf.Claims[i].ReleasedTS = &ts
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("claim %s not found in claim file for %s", claimID, path)
	}
	content, err := MarshalClaimFile(cf)
	if err != nil {
		return err
	}
	return a.WriteFile(ClaimPath(path), content)
}

// RenewClaim loads the claim file for path, extends the expiry of the
// record matching claimID, and writes the file back.
func (a *Archive) RenewClaim(path, claimID string, newExpiry time.Time) error {
	cf, err := a.LoadClaimFile(path)
	if err != nil {
		return err
	}
	found := false
	for i := range cf.Claims {
		if cf.Claims[i].ID == claimID {
			cf.Claims[i].ExpiresTS = newExpiry
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("claim %s not found in claim file for %s", claimID, path)
	}
	content, err := MarshalClaimFile(cf)
	if err != nil {
		return err
	}
	return a.WriteFile(ClaimPath(path), content)
}
