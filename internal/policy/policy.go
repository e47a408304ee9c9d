// Package policy implements send authorization (spec.md §4.7): per-agent
// contact policies, the auto-policy's implicit-consent signals, and
// cross-project AgentLink approval.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/leases"
	"github.com/agentfleet/agentmaild/internal/model"
)

// Decision is the result of evaluating whether from may send to to.
type Decision struct {
	Allowed bool
	Err     *model.Error // set when !Allowed
}

// allow is a convenience constructor for a permitted Decision.
func allow() Decision { return Decision{Allowed: true} }

func deny(err *model.Error) Decision { return Decision{Allowed: false, Err: err} }

// EvaluateSend implements the same-project authorization table in
// spec.md §4.7. Overseer-authored messages bypass this entirely (callers
// check msg.Overseer before calling EvaluateSend).
func EvaluateSend(ctx context.Context, store *index.Store, projectID int64, from, to string, now time.Time) (Decision, error) {
	toAgent, err := store.GetAgent(ctx, projectID, to)
	if err != nil {
		return Decision{}, model.NewError(model.ErrAgentNotRegistered, "recipient %q is not registered", to).WithField("to").WithNames(to)
	}

	switch toAgent.ContactPolicy {
	case model.PolicyOpen:
		return allow(), nil

	case model.PolicyBlockAll:
		return deny(model.NewError(model.ErrPolicyBlocked, "agent %q has contact_policy=block_all", to).WithNames(to)), nil

	case model.PolicyContactsOnly:
		accepted, err := store.AcceptedContactExists(ctx, projectID, from, to)
		if err != nil {
			return Decision{}, fmt.Errorf("check accepted contact: %w", err)
		}
		if accepted {
			return allow(), nil
		}
		return deny(model.NewError(model.ErrPolicyBlocked, "agent %q requires an accepted contact request", to).WithNames(to)), nil

	case model.PolicyAuto:
		return evaluateAuto(ctx, store, projectID, from, to, now)

	default:
		return Decision{}, model.NewError(model.ErrInvalidArgument, "agent %q has unknown contact_policy %q", to, toAgent.ContactPolicy)
	}
}

func evaluateAuto(ctx context.Context, store *index.Store, projectID int64, from, to string, now time.Time) (Decision, error) {
	sharedClaim, err := haveOverlappingClaim(ctx, store, projectID, from, to, now)
	if err != nil {
		return Decision{}, fmt.Errorf("check overlapping claims: %w", err)
	}
	if sharedClaim {
		return allow(), nil
	}

	sharedThread, err := store.SharedThread(ctx, projectID, from, to)
	if err != nil {
		return Decision{}, fmt.Errorf("check shared thread: %w", err)
	}
	if sharedThread {
		return allow(), nil
	}

	accepted, err := store.AcceptedContactExists(ctx, projectID, from, to)
	if err != nil {
		return Decision{}, fmt.Errorf("check accepted contact: %w", err)
	}
	if accepted {
		return allow(), nil
	}

	// None of the implicit-consent signals hold: defer the send and
	// auto-create a pending ContactRequest for the recipient to act on.
	if _, err := store.CreateContactRequest(ctx, projectID, from, to, "auto-deferred send", now); err != nil {
		return Decision{}, fmt.Errorf("create contact request: %w", err)
	}
	return deny(model.NewError(model.ErrContactPending, "send to %q deferred pending contact approval", to).WithNames(to)), nil
}

// haveOverlappingClaim checks signal (a) of the auto policy: from and to
// share an active overlapping claim on any path.
func haveOverlappingClaim(ctx context.Context, store *index.Store, projectID int64, from, to string, now time.Time) (bool, error) {
	active, err := store.ActiveClaims(ctx, projectID, now)
	if err != nil {
		return false, err
	}
	var fromPaths, toPaths []string
	for _, c := range active {
		switch c.AgentName {
		case from:
			fromPaths = append(fromPaths, c.Path)
		case to:
			toPaths = append(toPaths, c.Path)
		}
	}
	for _, fp := range fromPaths {
		for _, tp := range toPaths {
			if leases.Overlaps(fp, tp) {
				return true, nil
			}
		}
	}
	return false, nil
}

// EvaluateLink reports whether a cross-project send is authorized.
func EvaluateLink(ctx context.Context, store *index.Store, fromProjectID int64, fromAgent string, toProjectID int64, toAgent string, now time.Time) (Decision, error) {
	ok, err := store.LinkAccepted(ctx, fromProjectID, fromAgent, toProjectID, toAgent)
	if err != nil {
		return Decision{}, fmt.Errorf("check link accepted: %w", err)
	}
	if ok {
		return allow(), nil
	}
	if _, err := store.UpsertLink(ctx, fromProjectID, fromAgent, toProjectID, toAgent, now); err != nil {
		return Decision{}, fmt.Errorf("create pending link: %w", err)
	}
	return deny(model.NewError(model.ErrLinkRequired, "cross-project send from %q to %q requires an accepted link", fromAgent, toAgent)), nil
}
