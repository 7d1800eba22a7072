package importer

import (
	"fmt"

	"github.com/rcowham/uncov/history"
)

// validate checks every file against the target ref's tree: a file
// absent there is dropped with a warning (it may have been deleted
// since, or excluded from capture), while a content hash mismatch is
// fatal — the importer has no way to know which coverage applies to
// which version of the file, so the build must not be persisted.
func (im *Importer) validate(files []history.File, ref string) ([]history.File, error) {
	tree, err := im.vcs.ListTree(ref)
	if err != nil {
		return nil, fmt.Errorf("list tree at %s: %w", ref, err)
	}

	out := make([]history.File, 0, len(files))
	for _, f := range files {
		hash, ok := tree[f.Path]
		if !ok {
			im.log.Warnf("file %s not found at %s, dropping from build", f.Path, ref)
			continue
		}
		if hash != f.ContentHash {
			return nil, fmt.Errorf("content hash mismatch for %s at %s: have %s, tree has %s",
				f.Path, ref, f.ContentHash, hash)
		}
		out = append(out, f)
	}
	return out, nil
}
