package archive

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/naming"
)

// Layout (spec.md §4.2):
//
//	agents/<Name>/profile.json
//	agents/<Name>/inbox/<YYYY>/<MM>/<msg-id>.md
//	agents/<Name>/outbox/<YYYY>/<MM>/<msg-id>.md
//	messages/<YYYY>/<MM>/<msg-id>.md
//	claims/<sha1(path)>.json

// AgentProfilePath returns the relative path to an agent's profile file.
func AgentProfilePath(name string) string {
	return fmt.Sprintf("agents/%s/profile.json", safeAgent(name))
}

// CanonicalMessagePath returns the relative path to a message's canonical copy.
func CanonicalMessagePath(id string, created time.Time) string {
	return fmt.Sprintf("messages/%04d/%02d/%s.md", created.Year(), created.Month(), id)
}

// InboxMessagePath returns the relative path to a recipient's inbox copy.
func InboxMessagePath(agentName, id string, created time.Time) string {
	return fmt.Sprintf("agents/%s/inbox/%04d/%02d/%s.md", safeAgent(agentName), created.Year(), created.Month(), id)
}

// OutboxMessagePath returns the relative path to a sender's outbox copy.
func OutboxMessagePath(agentName, id string, created time.Time) string {
	return fmt.Sprintf("agents/%s/outbox/%04d/%02d/%s.md", safeAgent(agentName), created.Year(), created.Month(), id)
}

// ClaimPath returns the relative path to a claim's JSON record, keyed by the
// sha1 of the claimed path so repeated reservations of the same path reuse
// (and overwrite) the same file.
func ClaimPath(path string) string {
	sum := sha1.Sum([]byte(path))
	return fmt.Sprintf("claims/%s.json", hex.EncodeToString(sum[:]))
}

func safeAgent(name string) string {
	s := naming.SanitizeNameHint(name)
	if s == "" {
		return "agent"
	}
	return s
}
