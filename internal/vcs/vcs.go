// Package vcs answers "which files changed" for incremental analysis runs.
package vcs

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo wraps an opened git repository.
type Repo struct {
	repo *git.Repository
	root string
}

// Open opens the git repository containing path, searching parent
// directories for .git.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %s", path)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}

	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the worktree root.
func (r *Repo) Root() string {
	return r.root
}

// ChangedFiles returns absolute paths of files that are modified, added or
// untracked in the worktree. Deleted files are omitted; they have nothing
// left to analyze.
func (r *Repo) ChangedFiles() ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, err
	}

	status, err := wt.Status()
	if err != nil {
		return nil, err
	}

	var files []string
	for path, st := range status {
		if st.Worktree == git.Deleted || st.Staging == git.Deleted {
			continue
		}
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		files = append(files, filepath.Join(r.root, path))
	}

	sort.Strings(files)
	return files, nil
}

// ChangedSince returns absolute paths of files that differ between the
// given revision and HEAD, combined with current worktree changes.
func (r *Repo) ChangedSince(rev string) ([]string, error) {
	baseTree, err := r.treeAt(rev)
	if err != nil {
		return nil, err
	}
	headTree, err := r.treeAt("HEAD")
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(baseTree, headTree)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, ch := range changes {
		// ToName is empty for deletions.
		if name := ch.To.Name; name != "" {
			seen[filepath.Join(r.root, name)] = true
		}
	}

	worktree, err := r.ChangedFiles()
	if err != nil {
		return nil, err
	}
	for _, f := range worktree {
		seen[f] = true
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func (r *Repo) treeAt(rev string) (*object.Tree, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve revision %q: %w", rev, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, err
	}
	return commit.Tree()
}
