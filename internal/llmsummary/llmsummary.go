// Package llmsummary computes the key_points/action_items half of
// summarize_thread (spec.md §4.5). The engine never requires this package
// to function: when no Collaborator is configured, Fallback's
// heading-extraction result is used instead, and the call always runs
// outside the project lock via an errgroup so a slow or wedged
// collaborator never blocks other agents.
package llmsummary

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Collaborator is the external LLM the overseer may configure (CONFIG
// LLM_ENABLED / LLM_DEFAULT_MODEL). KeyPoints and ActionItems each receive
// the concatenated thread body text and return bullet-point strings.
type Collaborator interface {
	KeyPoints(ctx context.Context, model, threadText string) ([]string, error)
	ActionItems(ctx context.Context, model, threadText string) ([]string, error)
}

// Result is the LLM-derived half of a ThreadSummary.
type Result struct {
	KeyPoints   []string
	ActionItems []string
	Degraded    bool // true when Fallback extraction was used instead of Collaborator
}

// Summarize runs KeyPoints and ActionItems concurrently via errgroup. When
// collab is nil, it returns the deterministic Fallback instead of calling
// out to anything.
func Summarize(ctx context.Context, collab Collaborator, model string, bodies []string) (Result, error) {
	threadText := strings.Join(bodies, "\n\n---\n\n")

	if collab == nil {
		return Fallback(bodies), nil
	}

	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kp, err := collab.KeyPoints(gctx, model, threadText)
		if err != nil {
			return err
		}
		res.KeyPoints = kp
		return nil
	})
	g.Go(func() error {
		ai, err := collab.ActionItems(gctx, model, threadText)
		if err != nil {
			return err
		}
		res.ActionItems = ai
		return nil
	})
	if err := g.Wait(); err != nil {
		// A wedged or errored collaborator degrades to the deterministic
		// fallback rather than failing summarize_thread outright.
		fb := Fallback(bodies)
		fb.Degraded = true
		return fb, nil
	}
	return res, nil
}

// Fallback extracts markdown ATX headings ("## ...") as key_points and
// lines starting with "- [ ]"/"TODO" as action_items. It is the
// degraded-but-defined output spec.md §4.5 requires when no collaborator
// is configured.
func Fallback(bodies []string) Result {
	var res Result
	res.Degraded = true
	for _, body := range bodies {
		for _, line := range strings.Split(body, "\n") {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "#"):
				res.KeyPoints = append(res.KeyPoints, strings.TrimSpace(strings.TrimLeft(trimmed, "#")))
			case strings.HasPrefix(trimmed, "- [ ]"):
				res.ActionItems = append(res.ActionItems, strings.TrimSpace(strings.TrimPrefix(trimmed, "- [ ]")))
			case strings.HasPrefix(strings.ToUpper(trimmed), "TODO"):
				res.ActionItems = append(res.ActionItems, trimmed)
			}
		}
	}
	return res
}
