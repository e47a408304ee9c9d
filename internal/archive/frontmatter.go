package archive

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentfleet/agentmaild/internal/model"
)

// MessageFrontmatter mirrors the Index's message record, per spec.md §6's
// message file format. It is serialized as a YAML block delimited by "---"
// lines, followed by the markdown body.
type MessageFrontmatter struct {
	ID          string   `yaml:"id"`
	ThreadID    string   `yaml:"thread_id"`
	Project     string   `yaml:"project"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
	CC          []string `yaml:"cc,omitempty"`
	BCC         []string `yaml:"bcc,omitempty"`
	Created     string   `yaml:"created"`
	Importance  string   `yaml:"importance"`
	AckRequired bool     `yaml:"ack_required"`
	Subject     string   `yaml:"subject"`
	Overseer    bool     `yaml:"overseer,omitempty"`
}

// RenderMessageFile produces the full frontmatter+body file content for a
// message.
func RenderMessageFile(fm MessageFrontmatter, bodyMD string) ([]byte, error) {
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	b.WriteString(bodyMD)
	if !strings.HasSuffix(bodyMD, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// ParseMessageFile splits a message file's bytes back into frontmatter and
// body. Used by the rebuild pass to reconstruct the Index from the Archive
// alone (spec.md §4.3's rebuild requirement).
func ParseMessageFile(content []byte) (MessageFrontmatter, string, error) {
	var fm MessageFrontmatter
	s := string(content)
	if !strings.HasPrefix(s, "---\n") {
		return fm, "", fmt.Errorf("message file missing frontmatter delimiter")
	}
	rest := s[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end == -1 {
		return fm, "", fmt.Errorf("message file missing closing frontmatter delimiter")
	}
	header := rest[:end]
	body := strings.TrimPrefix(rest[end+len("\n---\n"):], "\n")
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return fm, body, nil
}

// FrontmatterFromMessage builds a MessageFrontmatter from a model.Message
// plus its recipient lists, for writing to the archive.
func FrontmatterFromMessage(msg model.Message, projectSlug string, to, cc, bcc []string) MessageFrontmatter {
	return MessageFrontmatter{
		ID:          msg.ID,
		ThreadID:    msg.ThreadID,
		Project:     projectSlug,
		From:        msg.FromAgent,
		To:          to,
		CC:          cc,
		BCC:         bcc,
		Created:     msg.CreatedTS.Format(rfc3339Milli),
		Importance:  string(msg.Importance),
		AckRequired: msg.AckRequired,
		Subject:     msg.Subject,
		Overseer:    msg.Overseer,
	}
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
