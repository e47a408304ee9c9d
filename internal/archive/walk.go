package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WalkAgentProfiles returns the relative paths of every agent profile file,
// sorted for deterministic iteration.
func (a *Archive) WalkAgentProfiles() ([]string, error) {
	return a.walkGlob("agents", "profile.json")
}

// WalkCanonicalMessages returns the relative paths of every canonical
// message file under messages/, sorted by path (which sorts by year/month
// since the layout embeds them, and then by message id).
func (a *Archive) WalkCanonicalMessages() ([]string, error) {
	return a.walkSuffix("messages", ".md")
}

// WalkClaimFiles returns the relative paths of every claim record file
// under claims/.
func (a *Archive) WalkClaimFiles() ([]string, error) {
	return a.walkSuffix("claims", ".json")
}

func (a *Archive) walkGlob(subdir, filename string) ([]string, error) {
	base := a.Path(subdir)
	var out []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == filename {
			rel, relErr := filepath.Rel(a.root, path)
			if relErr != nil {
				return relErr
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("walk %s: %w", subdir, err)
	}
	sort.Strings(out)
	return out, nil
}

func (a *Archive) walkSuffix(subdir, suffix string) ([]string, error) {
	base := a.Path(subdir)
	var out []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), suffix) {
			rel, relErr := filepath.Rel(a.root, path)
			if relErr != nil {
				return relErr
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("walk %s: %w", subdir, err)
	}
	sort.Strings(out)
	return out, nil
}

// ReadFile reads the content of the file at rel, relative to the archive root.
func (a *Archive) ReadFile(rel string) ([]byte, error) {
	return os.ReadFile(a.Path(rel))
}
