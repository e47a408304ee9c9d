package webui

import (
	"bytes"
	"context"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/agentfleet/agentmaild/internal/model"
	"github.com/agentfleet/agentmaild/internal/util"
)

// bodyPreviewLen bounds messageView.BodyPreview, which the overseer's
// list views (inbox/outbox) render instead of the full body so a long
// message doesn't blow up a list row.
const bodyPreviewLen = 160

// messageView is the JSON shape the overseer's browser renders, adding
// the recipient fields and a sanitized HTML rendering of the body so the
// frontend never runs its own markdown parser over agent-authored text.
type messageView struct {
	ID          string   `json:"id"`
	ThreadID    string   `json:"thread_id"`
	From        string   `json:"from"`
	To          []string `json:"to"`
	CC          []string `json:"cc"`
	Subject     string   `json:"subject"`
	BodyMD      string   `json:"body_md"`
	BodyHTML    string   `json:"body_html"`
	BodyPreview string   `json:"body_preview"`
	Created     string   `json:"created"`
	Importance  string   `json:"importance"`
	AckRequired bool     `json:"ack_required"`
	Overseer    bool     `json:"overseer"`
}

var htmlSanitizer = bluemonday.UGCPolicy()

// renderMarkdown converts agent-authored markdown to sanitized HTML.
// goldmark does the parsing (the teacher's glamour dependency pulls it
// in transitively for terminal rendering; bluemonday is the same
// sanitization library the teacher's indirect dependency tree already
// carries), bluemonday strips anything beyond its UGC allowlist so a
// malicious agent cannot inject script or event-handler attributes into
// the overseer's browser.
func renderMarkdown(md string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return htmlSanitizer.Sanitize("<pre>" + md + "</pre>")
	}
	return htmlSanitizer.SanitizeBytes(buf.Bytes())
}

func renderMessage(m model.Message, recipients []model.Recipient) messageView {
	v := messageView{
		ID: m.ID, ThreadID: m.ThreadID, From: m.FromAgent, Subject: m.Subject,
		BodyMD: m.BodyMD, BodyHTML: renderMarkdown(m.BodyMD),
		BodyPreview: util.Truncate(m.BodyMD, bodyPreviewLen),
		Created:     m.CreatedTS.Format("2006-01-02T15:04:05Z07:00"),
		Importance:  string(m.Importance), AckRequired: m.AckRequired, Overseer: m.Overseer,
	}
	for _, rec := range recipients {
		switch rec.Kind {
		case model.KindTo:
			v.To = append(v.To, rec.AgentName)
		case model.KindCC:
			v.CC = append(v.CC, rec.AgentName)
		}
	}
	return v
}

func (s *Server) renderMessages(ctx context.Context, projectKey string, msgs []model.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		recipients, err := s.eng.Recipients(ctx, projectKey, m.ID)
		if err != nil {
			recipients = nil
		}
		out = append(out, renderMessage(m, recipients))
	}
	return out
}
