package mailbox

import (
	"context"
	"time"

	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/model"
)

// FetchInbox implements fetch_inbox: newest-first messages addressed to
// agentName, and touches the agent's last_active_ts as a side effect of
// polling (spec.md §4.4's activity-window definition).
func FetchInbox(ctx context.Context, store *index.Store, projectID int64, agentName string, opts index.InboxOptions, now time.Time) ([]model.Message, error) {
	if _, err := store.GetAgent(ctx, projectID, agentName); err != nil {
		return nil, model.NewError(model.ErrAgentNotRegistered, "agent %q is not registered", agentName).WithField("agent_name")
	}
	if err := store.TouchLastActive(ctx, projectID, agentName, now); err != nil {
		return nil, err
	}
	return store.FetchInbox(ctx, projectID, agentName, opts)
}

// FetchOutbox implements fetch_outbox.
func FetchOutbox(ctx context.Context, store *index.Store, projectID int64, agentName string, opts index.InboxOptions, now time.Time) ([]model.Message, error) {
	if _, err := store.GetAgent(ctx, projectID, agentName); err != nil {
		return nil, model.NewError(model.ErrAgentNotRegistered, "agent %q is not registered", agentName).WithField("agent_name")
	}
	if err := store.TouchLastActive(ctx, projectID, agentName, now); err != nil {
		return nil, err
	}
	return store.FetchOutbox(ctx, projectID, agentName, opts)
}

// GetMessage implements get_message.
func GetMessage(ctx context.Context, store *index.Store, projectID int64, messageID string) (model.Message, error) {
	msg, err := store.GetMessage(ctx, messageID)
	if err != nil {
		return model.Message{}, model.NewError(model.ErrInvalidArgument, "message %q not found", messageID).WithField("message_id")
	}
	if msg.ProjectID != projectID {
		return model.Message{}, model.NewError(model.ErrInvalidArgument, "message %q not found", messageID).WithField("message_id")
	}
	return msg, nil
}

// MarkRead implements mark_read.
func MarkRead(ctx context.Context, store *index.Store, messageID, agentName string, now time.Time) error {
	return store.MarkRead(ctx, messageID, agentName, now)
}

// AcknowledgeMessage implements acknowledge_message. Like MarkRead, this
// writes no archive change and takes no commit
// (spec.md §4.5): acknowledgement is Index-only bookkeeping.
func AcknowledgeMessage(ctx context.Context, store *index.Store, messageID, agentName string, now time.Time) error {
	if err := store.AcknowledgeMessage(ctx, messageID, agentName, now); err != nil {
		return model.NewError(model.ErrInvalidArgument, "agent %q is not a recipient of %q", agentName, messageID).WithField("message_id")
	}
	return nil
}

// SearchMessages implements search_messages.
func SearchMessages(ctx context.Context, store *index.Store, projectID int64, query string, limit int) ([]model.Message, error) {
	return store.SearchMessages(ctx, projectID, query, limit)
}
