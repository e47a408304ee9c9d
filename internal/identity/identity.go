// Package identity implements the Identity Registry (spec.md §4.4):
// ensure_project, register_agent, whois, list_agents, and
// set_contact_policy. These functions only decide what the Project/Agent
// rows should look like; the Engine Facade is responsible for pairing
// every mutation here with the matching Archive write and commit.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/model"
	"github.com/agentfleet/agentmaild/internal/naming"
	"github.com/agentfleet/agentmaild/internal/util"
)

// maxTaskDescriptionLen bounds the task description an agent registers
// with; it is free text supplied by the agent itself and has no other
// size limit enforced on the way in.
const maxTaskDescriptionLen = 500

// EnsureProject returns the project for humanKey, creating it on first use.
// Per INV-5, slug is a pure function of humanKey, so this is safe to call
// on every request.
func EnsureProject(ctx context.Context, store *index.Store, humanKey string, now time.Time) (model.Project, error) {
	slug := naming.Slug(humanKey)
	return store.UpsertProject(ctx, humanKey, slug, now)
}

// RegisterResult reports whether RegisterAgent created a new agent (so the
// caller knows whether to write a fresh profile file and an "agent:
// create" commit, or just update the existing one).
type RegisterResult struct {
	Agent   model.Agent
	Created bool
}

// RegisterAgent implements register_agent: idempotent on (project, name)
// when name is supplied or resolved from nameHint; otherwise a fresh name
// is generated every call, since there is no existing identity to match.
func RegisterAgent(ctx context.Context, store *index.Store, projectID int64, program, modelName, nameHint, task string, now time.Time) (RegisterResult, error) {
	existingNames, err := existingAgentNames(ctx, store, projectID)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("list existing agent names: %w", err)
	}
	gen := naming.NewGenerator(existingNames)

	name := nameHint
	sanitizedHint := naming.SanitizeNameHint(nameHint)
	alreadyTaken := nameHint != "" && contains(existingNames, sanitizedHint)
	if name == "" {
		name = gen.NameForHint("")
	} else if alreadyTaken {
		name = sanitizedHint
	} else {
		name = gen.NameForHint(name)
	}

	created := !alreadyTaken
	agent := model.Agent{
		ProjectID:       projectID,
		Name:            name,
		Program:         program,
		Model:           modelName,
		TaskDescription: util.Truncate(task, maxTaskDescriptionLen),
		InceptionTS:     now,
		LastActiveTS:    now,
		ContactPolicy:   model.PolicyAuto,
	}
	result, err := store.UpsertAgent(ctx, agent)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("upsert agent: %w", err)
	}
	return RegisterResult{Agent: result, Created: created}, nil
}

// Whois implements whois.
func Whois(ctx context.Context, store *index.Store, projectID int64, name string) (model.Agent, error) {
	a, err := store.GetAgent(ctx, projectID, name)
	if err != nil {
		return model.Agent{}, model.NewError(model.ErrAgentNotRegistered, "agent %q is not registered", name).WithField("agent_name")
	}
	return a, nil
}

// ListAgents implements list_agents; "active" means last_active_ts within
// the past 7 days.
func ListAgents(ctx context.Context, store *index.Store, projectID int64, activeOnly bool, now time.Time) ([]model.Agent, error) {
	return store.ListAgents(ctx, projectID, activeOnly, now)
}

// SetContactPolicy implements set_contact_policy.
func SetContactPolicy(ctx context.Context, store *index.Store, projectID int64, name string, policy model.ContactPolicy) (model.Agent, error) {
	if !policy.Valid() {
		return model.Agent{}, model.NewError(model.ErrInvalidArgument, "invalid contact policy %q", policy).WithField("policy")
	}
	if err := store.SetContactPolicy(ctx, projectID, name, policy); err != nil {
		return model.Agent{}, model.NewError(model.ErrAgentNotRegistered, "agent %q is not registered", name).WithField("agent_name")
	}
	return store.GetAgent(ctx, projectID, name)
}

func existingAgentNames(ctx context.Context, store *index.Store, projectID int64) ([]string, error) {
	agents, err := store.ListAgents(ctx, projectID, false, time.Time{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name)
	}
	return names, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
