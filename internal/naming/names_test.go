package naming

import "testing"

func TestGeneratorProducesUniqueNames(t *testing.T) {
	g := NewGenerator(nil)
	seen := make(map[string]bool)
	for i := 0; i < len(adjectives)*len(nouns); i++ {
		name := g.Next()
		if seen[name] {
			t.Fatalf("duplicate name generated: %s", name)
		}
		seen[name] = true
	}
}

func TestGeneratorWrapsWithSuffix(t *testing.T) {
	g := NewGenerator(nil)
	total := len(adjectives) * len(nouns)
	for i := 0; i < total; i++ {
		g.Next()
	}
	name := g.Next()
	if len(name) == 0 {
		t.Fatal("expected a name after wraparound")
	}
	// the wrapped name must still be unique against everything already issued
	if !g.taken[name] {
		t.Fatalf("generator did not mark wrapped name %q as taken", name)
	}
}

func TestGeneratorSeededWithExisting(t *testing.T) {
	existing := []string{adjectives[0] + nouns[0]}
	g := NewGenerator(existing)
	for i := 0; i < 10; i++ {
		name := g.Next()
		if name == existing[0] {
			t.Fatalf("generator reissued a reserved name: %s", name)
		}
	}
}

func TestNameForHintUsesFreeHint(t *testing.T) {
	g := NewGenerator(nil)
	got := g.NameForHint("CustomName")
	if got != "CustomName" {
		t.Errorf("NameForHint = %q, want %q", got, "CustomName")
	}
}

func TestNameForHintFallsBackWhenTaken(t *testing.T) {
	g := NewGenerator([]string{"CustomName"})
	got := g.NameForHint("CustomName")
	if got == "CustomName" {
		t.Error("expected fallback name when hint already taken")
	}
}

func TestNameForHintFallsBackWhenEmptyAfterSanitize(t *testing.T) {
	g := NewGenerator(nil)
	got := g.NameForHint("!!!")
	if got == "" {
		t.Error("expected a generated fallback name")
	}
}
