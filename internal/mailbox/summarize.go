package mailbox

import (
	"context"

	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/llmsummary"
	"github.com/agentfleet/agentmaild/internal/model"
)

// SummarizeThread implements summarize_thread (spec.md §4.5, P5). The
// participants/total_messages/first_ts/last_ts fields are computed
// deterministically from the Index; key_points/action_items come from
// llmsummary, which degrades gracefully when no collaborator is wired.
// examples is non-nil only when includeExamples is set.
func SummarizeThread(ctx context.Context, store *index.Store, collab llmsummary.Collaborator, llmModel string, projectID int64, threadID string, includeExamples bool) (summary model.ThreadSummary, examples []model.Message, err error) {
	msgs, err := store.ThreadMessages(ctx, projectID, threadID)
	if err != nil {
		return model.ThreadSummary{}, nil, err
	}
	if len(msgs) == 0 {
		return model.ThreadSummary{}, nil, model.NewError(model.ErrInvalidArgument, "thread %q not found", threadID).WithField("thread_id")
	}

	seen := map[string]bool{}
	var participants []string
	bodies := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if !seen[m.FromAgent] {
			seen[m.FromAgent] = true
			participants = append(participants, m.FromAgent)
		}
		bodies = append(bodies, m.BodyMD)
	}

	res, err := llmsummary.Summarize(ctx, collab, llmModel, bodies)
	if err != nil {
		return model.ThreadSummary{}, nil, err
	}

	summary = model.ThreadSummary{
		ThreadID:     threadID,
		Participants: participants,
		TotalMsgs:    len(msgs),
		FirstTS:      msgs[0].CreatedTS,
		LastTS:       msgs[len(msgs)-1].CreatedTS,
		KeyPoints:    res.KeyPoints,
		ActionItems:  res.ActionItems,
		Degraded:     res.Degraded,
	}
	if includeExamples {
		examples = msgs
	}
	return summary, examples, nil
}
