package archive

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClaimRecord is one claim's JSON shape within a claim file.
type ClaimRecord struct {
	ID         string     `json:"id"`
	AgentName  string     `json:"agent_name"`
	Exclusive  bool       `json:"exclusive"`
	Reason     string     `json:"reason"`
	CreatedTS  time.Time  `json:"created_ts"`
	ExpiresTS  time.Time  `json:"expires_ts"`
	ReleasedTS *time.Time `json:"released_ts,omitempty"`
}

// ClaimFile is the on-disk shape at claims/<sha1(path)>.json: every claim
// (active or historical) ever placed on a literal path string, newest last.
// A single literal path can have more than one simultaneous holder when
// claims are non-exclusive, so this is a list rather than a single record.
type ClaimFile struct {
	Path   string        `json:"path"`
	Claims []ClaimRecord `json:"claims"`
}

// MarshalClaimFile serializes a ClaimFile as indented JSON.
func MarshalClaimFile(cf ClaimFile) ([]byte, error) {
	b, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal claim file: %w", err)
	}
	return append(b, '\n'), nil
}

// UnmarshalClaimFile parses a claim file's bytes.
func UnmarshalClaimFile(content []byte) (ClaimFile, error) {
	var cf ClaimFile
	if err := json.Unmarshal(content, &cf); err != nil {
		return cf, fmt.Errorf("unmarshal claim file: %w", err)
	}
	return cf, nil
}

// AgentProfile is the on-disk shape at agents/<Name>/profile.json.
type AgentProfile struct {
	Name            string    `json:"name"`
	Program         string    `json:"program"`
	Model           string    `json:"model"`
	TaskDescription string    `json:"task_description"`
	InceptionTS     time.Time `json:"inception_ts"`
	LastActiveTS    time.Time `json:"last_active_ts"`
	ContactPolicy   string    `json:"contact_policy"`
}

// MarshalAgentProfile serializes an AgentProfile as indented JSON.
func MarshalAgentProfile(p AgentProfile) ([]byte, error) {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal agent profile: %w", err)
	}
	return append(b, '\n'), nil
}

// UnmarshalAgentProfile parses an agent profile's bytes.
func UnmarshalAgentProfile(content []byte) (AgentProfile, error) {
	var p AgentProfile
	if err := json.Unmarshal(content, &p); err != nil {
		return p, fmt.Errorf("unmarshal agent profile: %w", err)
	}
	return p, nil
}
