package vcs

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitAdapter implements Adapter on top of go-git, giving the importer's
// tree reconciliation and capture mode a real repository to run
// against.
type GitAdapter struct {
	repo *git.Repository
	root string
}

// Open opens the git repository whose worktree contains root (or root
// itself, if it is the repository root).
func Open(root string) (*GitAdapter, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository at %s: %w", root, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	return &GitAdapter{repo: repo, root: wt.Filesystem.Root()}, nil
}

func (g *GitAdapter) ResolveRef(name string) (string, error) {
	hash, err := g.repo.ResolveRevision(plumbing.Revision(name))
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return hash.String(), nil
}

func (g *GitAdapter) CurrentRefName() (string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return "HEAD", nil
}

func (g *GitAdapter) commitTree(ref string) (*object.Tree, error) {
	hash, err := g.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("resolve ref %q: %w", ref, err)
	}
	commit, err := g.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	return commit.Tree()
}

func (g *GitAdapter) ListTree(ref string) (map[string]string, error) {
	tree, err := g.commitTree(ref)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk tree at %s: %w", ref, err)
		}
		if entry.Mode.IsFile() {
			blob, err := g.repo.BlobObject(entry.Hash)
			if err != nil {
				return nil, fmt.Errorf("load blob %s: %w", name, err)
			}
			h, err := hashBlob(blob)
			if err != nil {
				return nil, fmt.Errorf("hash blob %s: %w", name, err)
			}
			out[name] = h
		}
	}
	return out, nil
}

func (g *GitAdapter) ReadFile(ref, path string) ([]byte, error) {
	tree, err := g.commitTree(ref)
	if err != nil {
		return nil, err
	}
	f, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", path, ref, err)
	}
	r, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("open %s at %s: %w", path, ref, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GitAdapter) IsIgnored(path string) (bool, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}
	patterns, err := gitignore.ReadPatterns(wt.Filesystem, nil)
	if err != nil {
		return false, fmt.Errorf("read ignore patterns: %w", err)
	}
	matcher := gitignore.NewMatcher(patterns)
	parts := strings.Split(path, "/")
	return matcher.Match(parts, false), nil
}

func (g *GitAdapter) WorktreePath() string { return g.root }

func (g *GitAdapter) MetadataPath() string { return filepath.Join(g.root, ".git") }

func (g *GitAdapter) IsDirty() (bool, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("get status: %w", err)
	}
	return !status.IsClean(), nil
}

func (g *GitAdapter) UntrackedFiles() ([]string, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	var out []string
	for path, s := range status {
		if s.Worktree == git.Untracked {
			out = append(out, path)
		}
	}
	return out, nil
}

// Stash stages paths (or everything dirty, if paths is empty) and
// creates a commit object recording that state without moving the
// current branch, returning the new commit's id. This backs the
// importer's capture mode (spec.md §4.4): "WIP on <current ref>".
func (g *GitAdapter) Stash(paths []string) (string, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree: %w", err)
	}
	if len(paths) > 0 {
		for _, p := range paths {
			if _, err := wt.Add(p); err != nil {
				return "", fmt.Errorf("stage %s: %w", p, err)
			}
		}
	} else {
		if _, err := wt.Add("."); err != nil {
			return "", fmt.Errorf("stage worktree: %w", err)
		}
	}

	head, headErr := g.repo.Head()

	sig := &object.Signature{Name: "uncov", Email: "uncov@localhost"}
	hash, err := wt.Commit("uncov capture", &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", fmt.Errorf("create capture commit: %w", err)
	}
	// Worktree.Commit advances HEAD's branch; point it back.
	if headErr == nil {
		if err := g.repo.Storer.SetReference(plumbing.NewHashReference(head.Name(), head.Hash())); err != nil {
			return "", fmt.Errorf("restore %s: %w", head.Name(), err)
		}
	}
	return hash.String(), nil
}

func hashBlob(blob *object.Blob) (string, error) {
	r, err := blob.Reader()
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
