package naming

import (
	"fmt"
	"sync"
)

// adjectives and nouns are combined to produce memorable agent names such
// as "QuietFalcon" or "AmberOtter". The lists are deliberately small and
// hand-curated rather than pulled from a large corpus, matching how the
// rest of the fleet names things.
var adjectives = []string{
	"Quiet", "Amber", "Brisk", "Coral", "Dusty", "Eager", "Faint", "Golden",
	"Hollow", "Ivory", "Jolly", "Keen", "Lucid", "Misty", "Noble", "Opal",
	"Plucky", "Quick", "Rustic", "Silent", "Tidal", "Umber", "Vivid", "Wry",
	"Xenial", "Yonder", "Zesty", "Bold", "Calm", "Deft",
}

var nouns = []string{
	"Falcon", "Otter", "Lynx", "Heron", "Badger", "Raven", "Mantis", "Wren",
	"Cobra", "Finch", "Gecko", "Hawk", "Ibex", "Jackal", "Koala", "Lemur",
	"Marten", "Newt", "Osprey", "Puma", "Quokka", "Rook", "Stoat", "Tapir",
	"Urchin", "Viper", "Weasel", "Yak", "Zebu", "Civet",
}

// Generator produces unique agent names within a single project's namespace.
// It is safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	taken map[string]bool
	index int
}

// NewGenerator creates a name generator seeded with the names already in use
// (e.g. loaded from the archive or index at startup).
func NewGenerator(existing []string) *Generator {
	taken := make(map[string]bool, len(existing))
	for _, n := range existing {
		taken[n] = true
	}
	return &Generator{taken: taken}
}

// Reserve marks name as taken so future generation avoids it without being
// asked to generate it itself (used when a caller supplies an explicit
// name_hint that wins the slot).
func (g *Generator) Reserve(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.taken[name] = true
}

// Next returns a fresh, unused name, taken in order from the adjective x
// noun cross product. On exhaustion of the base product it appends a
// monotonically increasing numeric suffix so the generator never blocks.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := len(adjectives) * len(nouns)
	for attempt := 0; ; attempt++ {
		idx := (g.index + attempt) % total
		candidate := adjectives[idx/len(nouns)] + nouns[idx%len(nouns)]
		if attempt >= total {
			cycle := attempt/total + 1
			candidate = fmt.Sprintf("%s%d", candidate, cycle)
		}
		if !g.taken[candidate] {
			g.taken[candidate] = true
			g.index = idx + 1
			return candidate
		}
	}
}

// NameForHint resolves a caller-supplied name_hint into a usable agent name:
// sanitized to alphanumerics and capped at 40 characters, then used verbatim
// if free, or else handed off to Next.
func (g *Generator) NameForHint(hint string) string {
	sanitized := SanitizeNameHint(hint)
	if sanitized == "" {
		return g.Next()
	}

	g.mu.Lock()
	taken := g.taken[sanitized]
	if !taken {
		g.taken[sanitized] = true
	}
	g.mu.Unlock()

	if !taken {
		return sanitized
	}
	return g.Next()
}
