package mailbox

import (
	"context"
	"strings"
	"time"

	"github.com/agentfleet/agentmaild/internal/archive"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/model"
)

// ReplyParams is the input to Reply.
type ReplyParams struct {
	ProjectID   int64
	ProjectSlug string
	MessageID   string // the message being replied to
	From        string
	BodyMD      string
	Subject     string // optional override; defaults to "Re: <original subject>"
	Importance  model.Importance
	AckRequired *bool // nil inherits the original message's ack_required
	CC          []string
	BCC         []string
	Overseer    bool
}

// Reply implements reply_message: the recipient list is derived from the
// original message (its sender plus every to/cc recipient, minus the
// replier), the thread_id is inherited, and the subject gets a "Re: "
// prefix unless one is already present.
func Reply(ctx context.Context, store *index.Store, arc *archive.Archive, p ReplyParams, now time.Time) (SendResult, error) {
	orig, err := store.GetMessage(ctx, p.MessageID)
	if err != nil {
		return SendResult{}, model.NewError(model.ErrInvalidArgument, "message %q not found", p.MessageID).WithField("message_id")
	}
	if orig.ProjectID != p.ProjectID {
		return SendResult{}, model.NewError(model.ErrInvalidArgument, "message %q belongs to a different project", p.MessageID).WithField("message_id")
	}

	recipients, err := store.RecipientsOf(ctx, p.MessageID)
	if err != nil {
		return SendResult{}, err
	}

	var crossProjectTo []RemoteRecipient
	to := map[string]bool{}
	if remoteFrom, isRemote := parseMirroredSender(orig.FromAgent); isRemote {
		crossProjectTo = append(crossProjectTo, remoteFrom)
	} else {
		to[orig.FromAgent] = true
	}
	for _, r := range recipients {
		if r.Kind == model.KindTo || r.Kind == model.KindCC {
			to[r.AgentName] = true
		}
	}
	delete(to, p.From)

	toList := make([]string, 0, len(to))
	for name := range to {
		toList = append(toList, name)
	}

	subject := p.Subject
	if subject == "" {
		subject = replySubject(orig.Subject)
	}

	importance := p.Importance
	if importance == "" {
		importance = orig.Importance
	}
	ackRequired := orig.AckRequired
	if p.AckRequired != nil {
		ackRequired = *p.AckRequired
	}

	return Send(ctx, store, arc, SendParams{
		ProjectID:      p.ProjectID,
		ProjectSlug:    p.ProjectSlug,
		From:           p.From,
		To:             toList,
		CC:             p.CC,
		BCC:            p.BCC,
		CrossProjectTo: crossProjectTo,
		Subject:        subject,
		BodyMD:         p.BodyMD,
		Importance:     importance,
		AckRequired:    ackRequired,
		ThreadID:       orig.ThreadID,
		Overseer:       p.Overseer,
	}, now)
}

func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// parseMirroredSender recognizes the "agent@project_key" form Engine.Send
// stamps on a cross-project delivery's FromAgent (internal/engine's
// deliverRemote): a local agent name is always alphanumeric (naming.
// SanitizeNameHint), so it never contains '@', making the first '@' a safe
// split point even when project_key itself contains one (e.g. a git@
// SSH remote).
func parseMirroredSender(fromAgent string) (RemoteRecipient, bool) {
	i := strings.IndexByte(fromAgent, '@')
	if i < 0 {
		return RemoteRecipient{}, false
	}
	return RemoteRecipient{Agent: fromAgent[:i], ProjectKey: fromAgent[i+1:]}, true
}
