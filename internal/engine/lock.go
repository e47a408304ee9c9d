package engine

import (
	"path/filepath"
	"sync"
)

// projectLock is the named file lock spec.md §4.8 requires: one per
// project, guarding the ordering policy check -> archive writes -> commit
// -> index upsert. Adapted from
// _examples/theirongolddev-nzm/internal/session/lock_unix.go's
// acquireLock, generalized from one global session lock to one lock per
// project; see lock_unix.go/lock_windows.go for the platform-specific
// flock half.
type projectLock struct {
	mu   sync.Mutex
	path string
}

func newProjectLock(archiveRoot string) *projectLock {
	return &projectLock{path: filepath.Join(archiveRoot, ".agentmail.lock")}
}
