package dispatch

import (
	"path"
	"path/filepath"
	"strings"
)

// NormalizePath rewrites a user-supplied path token into the
// repo-relative, forward-slash form used as a files.path key. worktree
// is the repository's working tree root; cwd is the process's current
// directory.
//
// A token beginning with "/" is treated as already repo-relative (the
// leading slash is just stripped). Otherwise, if cwd is inside
// worktree, the token is resolved against cwd and rebased onto
// worktree; dot segments are then cleaned.
func NormalizePath(token, worktree, cwd string) string {
	if strings.HasPrefix(token, "/") {
		return path.Clean(strings.TrimPrefix(token, "/"))
	}

	abs := token
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(cwd, token)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(worktree, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = token
	}
	return filepath.ToSlash(path.Clean(filepath.ToSlash(rel)))
}
