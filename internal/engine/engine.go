// Package engine implements the Engine Facade (spec.md §4.8): the single
// entry point the RPC/web layers call. It enforces ordering (policy check
// -> archive writes -> commit -> index upsert) and serializes mutating
// calls per project with projectLock, while read-only calls take no lock.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentfleet/agentmaild/internal/archive"
	"github.com/agentfleet/agentmaild/internal/identity"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/llmsummary"
	"github.com/agentfleet/agentmaild/internal/mailbox"
	"github.com/agentfleet/agentmaild/internal/model"
)

// Engine is the process-wide facade over every project's Archive+Index.
type Engine struct {
	storageRoot string
	store       *index.Store
	llm         llmsummary.Collaborator
	llmModel    string

	mu       sync.Mutex
	projects map[string]*projectHandle // keyed by slug

	hookMu      sync.RWMutex
	messageHook func(humanKey string, res mailbox.SendResult)

	contactEnforcement bool
}

// SetContactEnforcement toggles send_message's policy.EvaluateSend gate
// (policy.contact_enforcement_enabled in internal/config). Engines built
// via New default to enforcing contact policy.
func (e *Engine) SetContactEnforcement(enabled bool) {
	e.contactEnforcement = enabled
}

// SetMessageHook installs a callback fired after every successful Send or
// Reply. cmd/agentmaild uses this to push a live event to internal/webui's
// websocket feed without Engine importing webui — the feed stays a
// read-only observation channel, never a delivery mechanism (agents still
// poll fetch_inbox). A nil hook (the default) disables the callback.
func (e *Engine) SetMessageHook(fn func(humanKey string, res mailbox.SendResult)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.messageHook = fn
}

func (e *Engine) fireMessageHook(humanKey string, res mailbox.SendResult) {
	e.hookMu.RLock()
	hook := e.messageHook
	e.hookMu.RUnlock()
	if hook != nil {
		hook(humanKey, res)
	}
}

type projectHandle struct {
	id          int64
	slug        string
	archive     *archive.Archive
	lock        *projectLock
	recoverOnce sync.Once
	recoverErr  error
}

// New constructs an Engine rooted at storageRoot, backed by store. collab
// may be nil (llmsummary degrades to Fallback).
func New(storageRoot string, store *index.Store, collab llmsummary.Collaborator, llmModel string) *Engine {
	return &Engine{
		storageRoot:        storageRoot,
		store:              store,
		llm:                collab,
		llmModel:           llmModel,
		projects:           make(map[string]*projectHandle),
		contactEnforcement: true,
	}
}

func (e *Engine) projectDir(slug string) string {
	return filepath.Join(e.storageRoot, "projects", slug, "repo")
}

// ensureProject returns (creating on first use) the project row and its
// open Archive+lock. On a handle's first use in this process it runs a
// recovery pass (index.Rebuild) so a crash between a prior archive commit
// and its index upsert is repaired before any read observes it (spec.md
// §4.8's "recovery pass on next open", INV-1 restoration).
func (e *Engine) ensureProject(ctx context.Context, humanKey string, now time.Time) (*projectHandle, error) {
	proj, err := identity.EnsureProject(ctx, e.store, humanKey, now)
	if err != nil {
		return nil, fmt.Errorf("ensure project: %w", err)
	}

	e.mu.Lock()
	h, ok := e.projects[proj.Slug]
	if !ok {
		arc, err := archive.Open(e.projectDir(proj.Slug))
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("open archive for %s: %w", proj.Slug, err)
		}
		h = &projectHandle{id: proj.ID, slug: proj.Slug, archive: arc, lock: newProjectLock(arc.Root())}
		e.projects[proj.Slug] = h
	}
	e.mu.Unlock()

	h.recoverOnce.Do(func() {
		h.recoverErr = index.Rebuild(ctx, e.store, h.archive, h.id)
	})
	if h.recoverErr != nil {
		return nil, fmt.Errorf("recovery rebuild for %s: %w", proj.Slug, h.recoverErr)
	}
	return h, nil
}

// withLock runs fn with the project's exclusive advisory lock held, after
// checking the context hasn't already expired (spec.md §4.8's deadline
// check before lock acquisition).
func (e *Engine) withLock(ctx context.Context, h *projectHandle, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return model.NewError(model.ErrTimeout, "request deadline expired before acquiring project lock: %v", err)
	}
	unlock, err := h.lock.lock()
	if err != nil {
		return model.NewError(model.ErrTimeout, "could not acquire project lock: %v", err)
	}
	defer unlock()
	return fn()
}

// recover runs a fresh Rebuild for h, used when a mutating call surfaces
// INDEX_ARCHIVE_MISMATCH so the next call observes a reconciled Index.
func (e *Engine) recover(ctx context.Context, h *projectHandle) error {
	return index.Rebuild(ctx, e.store, h.archive, h.id)
}
