// Package vcs defines the adapter interface the core consumes for
// version-control operations, plus a go-git-backed implementation.
// Everything in this package is an external collaborator per spec.md §1:
// the core only ever talks to the Adapter interface.
package vcs

// Adapter is the minimal VCS capability the core needs: resolve a
// symbolic ref to an object id, list the tree at a ref, read a blob's
// bytes, test whether a path is ignored, and report the current ref and
// worktree location.
type Adapter interface {
	// ResolveRef resolves a symbolic name (branch, tag, "HEAD", ...) to
	// an opaque object id.
	ResolveRef(name string) (string, error)

	// CurrentRefName returns the symbolic name of the currently checked
	// out ref (e.g. a branch name), or "HEAD" if detached.
	CurrentRefName() (string, error)

	// ListTree returns path -> content hash (MD5 of raw blob bytes) for
	// every file at ref.
	ListTree(ref string) (map[string]string, error)

	// ReadFile returns the raw bytes of path as it exists at ref.
	ReadFile(ref, path string) ([]byte, error)

	// IsIgnored reports whether path is excluded by VCS ignore rules
	// (irrespective of whether it is tracked).
	IsIgnored(path string) (bool, error)

	// WorktreePath returns the absolute path to the repository's
	// working tree root.
	WorktreePath() string

	// MetadataPath returns the absolute path to the VCS's own metadata
	// directory (e.g. ".git"), where uncov co-locates its database and
	// config file per spec.md §6.
	MetadataPath() string

	// IsDirty reports whether the worktree has uncommitted changes.
	IsDirty() (bool, error)

	// UntrackedFiles lists paths present in the worktree but not
	// tracked by the VCS.
	UntrackedFiles() ([]string, error)

	// Stash captures the current worktree state (optionally limited to
	// the given paths) as a new commit object and returns its id,
	// without altering the current branch. Used by the importer's
	// capture mode (spec.md §4.4).
	Stash(paths []string) (string, error)
}
