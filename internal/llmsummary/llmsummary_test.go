package llmsummary

import (
	"context"
	"errors"
	"testing"
)

func TestFallbackExtractsHeadingsAndActionItems(t *testing.T) {
	bodies := []string{
		"## Progress\nDid the thing.\n- [ ] write tests\nTODO: ship it\n",
		"### Next steps\nmore text\n",
	}
	res := Fallback(bodies)

	if !res.Degraded {
		t.Fatalf("expected Fallback to report Degraded=true")
	}
	wantKeyPoints := []string{"Progress", "Next steps"}
	if len(res.KeyPoints) != len(wantKeyPoints) {
		t.Fatalf("expected key points %v, got %v", wantKeyPoints, res.KeyPoints)
	}
	for i, kp := range wantKeyPoints {
		if res.KeyPoints[i] != kp {
			t.Errorf("key point %d: expected %q, got %q", i, kp, res.KeyPoints[i])
		}
	}
	wantActionItems := []string{"write tests", "TODO: ship it"}
	if len(res.ActionItems) != len(wantActionItems) {
		t.Fatalf("expected action items %v, got %v", wantActionItems, res.ActionItems)
	}
	for i, ai := range wantActionItems {
		if res.ActionItems[i] != ai {
			t.Errorf("action item %d: expected %q, got %q", i, ai, res.ActionItems[i])
		}
	}
}

type stubCollaborator struct {
	keyPoints   []string
	actionItems []string
	err         error
}

func (s stubCollaborator) KeyPoints(ctx context.Context, model, threadText string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.keyPoints, nil
}

func (s stubCollaborator) ActionItems(ctx context.Context, model, threadText string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.actionItems, nil
}

func TestSummarizeWithNilCollaboratorReturnsFallback(t *testing.T) {
	res, err := Summarize(context.Background(), nil, "", []string{"## Heading\n- [ ] todo\n"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !res.Degraded {
		t.Fatalf("expected a nil collaborator to degrade to Fallback")
	}
	if len(res.KeyPoints) != 1 || res.KeyPoints[0] != "Heading" {
		t.Fatalf("expected Fallback's key points to come through, got %v", res.KeyPoints)
	}
}

func TestSummarizeUsesCollaboratorWhenItSucceeds(t *testing.T) {
	collab := stubCollaborator{keyPoints: []string{"a"}, actionItems: []string{"b"}}
	res, err := Summarize(context.Background(), collab, "gpt", []string{"body"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Degraded {
		t.Fatalf("expected a successful collaborator call to not be marked Degraded")
	}
	if len(res.KeyPoints) != 1 || res.KeyPoints[0] != "a" {
		t.Fatalf("expected collaborator key points, got %v", res.KeyPoints)
	}
	if len(res.ActionItems) != 1 || res.ActionItems[0] != "b" {
		t.Fatalf("expected collaborator action items, got %v", res.ActionItems)
	}
}

func TestSummarizeDegradesToFallbackWhenCollaboratorErrors(t *testing.T) {
	collab := stubCollaborator{err: errors.New("boom")}
	res, err := Summarize(context.Background(), collab, "gpt", []string{"## Heading\n"})
	if err != nil {
		t.Fatalf("expected Summarize to absorb the collaborator error, got %v", err)
	}
	if !res.Degraded {
		t.Fatalf("expected an errored collaborator to degrade to Fallback")
	}
	if len(res.KeyPoints) != 1 || res.KeyPoints[0] != "Heading" {
		t.Fatalf("expected the fallback's key points after degrading, got %v", res.KeyPoints)
	}
}
