package importer

import (
	"os"
	"path/filepath"
)

// skipDirs names directories whose subtrees are never walked when
// looking for coverage artifacts or reconciling source files: version
// control metadata and automake's dependency tracking.
var skipDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
	".deps": true,
}

// scanNoteFiles walks root and returns the absolute paths of every
// *.gcno file found. Note-files are collected instead of *.gcda because
// they exist even for translation units that were never executed.
func scanNoteFiles(root string) ([]string, error) {
	var files []string
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".gcno" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// bin is a set of note-files to pass to the coverage tool in a single
// invocation.
type bin struct {
	dedup bool
	names map[string]struct{}
	paths []string
}

func newBin(dedup bool) *bin {
	b := &bin{dedup: dedup}
	if dedup {
		b.names = make(map[string]struct{})
	}
	return b
}

// add tries to add path to the bin, returning false if it was rejected
// because a file with the same base name is already present.
func (b *bin) add(path string) bool {
	if b.dedup {
		name := filepath.Base(path)
		if _, ok := b.names[name]; ok {
			return false
		}
		b.names[name] = struct{}{}
	}
	b.paths = append(b.paths, path)
	return true
}

// binNoteFiles groups noteFiles for invocation. When binning isn't
// needed a single bin holds everything; otherwise files are packed
// greedily into bins such that no two files in a bin share a basename
// (working around the broken-gcov filename collisions of PR89961).
func binNoteFiles(noteFiles []string, needsBinning bool) []*bin {
	if !needsBinning {
		b := newBin(false)
		for _, f := range noteFiles {
			b.add(f)
		}
		return []*bin{b}
	}

	bins := []*bin{newBin(true)}
	for _, f := range noteFiles {
		added := false
		for _, b := range bins {
			if b.add(f) {
				added = true
				break
			}
		}
		if !added {
			nb := newBin(true)
			nb.add(f)
			bins = append(bins, nb)
		}
	}
	return bins
}
