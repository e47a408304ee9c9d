// Package archive manages the per-project git working tree that is the
// durable, human-auditable source of truth for the coordination engine
// (spec.md §4.2). Every mutating engine operation ends with exactly one
// commit to this tree.
package archive

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/agentfleet/agentmaild/internal/util"
)

// CommitAuthorName/Email identify the synthetic git author used for every
// archive commit, so `git log` reads as a coherent audit trail rather than
// whatever OS user happened to run the server.
const (
	CommitAuthorName  = "agentmail-archive"
	CommitAuthorEmail = "archive@agentmail.local"
)

// Archive wraps a single project's git working tree.
type Archive struct {
	root string // e.g. $STORAGE_ROOT/projects/<slug>/repo
}

// Open ensures a git working tree exists at root (initializing it on first
// use) and returns an Archive bound to it. Safe to call repeatedly;
// ensure-project semantics are idempotent.
func Open(root string) (*Archive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	a := &Archive{root: root}

	if _, err := os.Stat(filepath.Join(root, ".git")); err == nil {
		return a, nil
	}

	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git binary not found in PATH: %w", err)
	}

	if err := a.run("init"); err != nil {
		return nil, fmt.Errorf("git init: %w", err)
	}
	if err := a.run("config", "user.name", CommitAuthorName); err != nil {
		return nil, fmt.Errorf("git config user.name: %w", err)
	}
	if err := a.run("config", "user.email", CommitAuthorEmail); err != nil {
		return nil, fmt.Errorf("git config user.email: %w", err)
	}
	return a, nil
}

// Root returns the archive's working tree path.
func (a *Archive) Root() string { return a.root }

// Path joins rel onto the archive root.
func (a *Archive) Path(rel string) string { return filepath.Join(a.root, rel) }

// WriteFile atomically writes content at the path rel, creating parent
// directories as needed, but does not commit. Callers batch one or more
// WriteFile calls followed by a single Commit so that a mutating operation
// produces exactly one commit (spec.md §4.2).
func (a *Archive) WriteFile(rel string, content []byte) error {
	full := a.Path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", rel, err)
	}
	return util.AtomicWriteFile(full, content, 0644)
}

// RemoveFile removes the file at rel, ignoring a not-exist error.
func (a *Archive) RemoveFile(rel string) error {
	if err := os.Remove(a.Path(rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

// Commit stages all changes under the archive root and creates a single
// commit with the given subject line. Returns the new commit hash.
func (a *Archive) Commit(subject string) (string, error) {
	if err := a.run("add", "-A"); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}

	// Nothing to commit is not an error: some operations (e.g. a reply that
	// changes no files beyond what a prior step already staged) can be
	// idempotent no-ops at the archive layer.
	diff := exec.Command("git", "diff", "--cached", "--quiet")
	diff.Dir = a.root
	if err := diff.Run(); err == nil {
		return a.HeadCommit()
	}

	commitArgs := []string{"commit", "-m", subject, "--date", time.Now().UTC().Format(time.RFC3339)}
	if err := a.run(commitArgs...); err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	return a.HeadCommit()
}

// HeadCommit returns the current HEAD commit hash.
func (a *Archive) HeadCommit() (string, error) {
	var out bytes.Buffer
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = a.root
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return trimNewline(out.String()), nil
}

func (a *Archive) run(args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = a.root
	cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME="+CommitAuthorName, "GIT_AUTHOR_EMAIL="+CommitAuthorEmail,
		"GIT_COMMITTER_NAME="+CommitAuthorName, "GIT_COMMITTER_EMAIL="+CommitAuthorEmail)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.String(), err, out.String())
	}
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
