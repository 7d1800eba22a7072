package importer

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcowham/uncov/history"
)

// recognizedExtensions are the source/header extensions walked during
// tree reconciliation; anything else is coverage-irrelevant.
var recognizedExtensions = map[string]bool{
	".h": true, ".hh": true, ".hpp": true, ".hxx": true,
	".c": true, ".cc": true, ".cpp": true, ".cxx": true,
	".m": true, ".mm": true,
}

// closeBrace reports whether line (after whitespace trim) is just a
// closing brace. gcov sometimes attributes spurious hit counts to these
// lines; the original importer always marks them not-relevant.
func closeBrace(line string) bool {
	t := strings.TrimSpace(line)
	return t == "}" || t == "};"
}

// reconcileTree walks the worktree for every recognized source file: a
// file gcov never mentioned becomes a fully-irrelevant record (it was
// never compiled, e.g. unused on this platform) with one entry per
// newline, and a file gcov did cover has its coverage vector padded with
// -1 to one entry per newline-separated piece of the file (one more than
// the line count when the file ends in a newline; a longer vector is
// kept as is) and its close-brace-only lines neutralized.
func (im *Importer) reconcileTree() ([]history.File, error) {
	var out []history.File

	err := filepath.WalkDir(im.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || im.isExcluded(filepath.Clean(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !recognizedExtensions[filepath.Ext(path)] {
			return nil
		}

		rel, err := filepath.Rel(im.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		hash := md5Hex(contents)

		cov, covered := im.mapping[rel]
		if !covered {
			lineCount := strings.Count(string(contents), "\n")
			out = append(out, history.NewFile(rel, hash, allIrrelevant(lineCount)))
			return nil
		}

		lines := strings.Split(string(contents), "\n")
		for len(cov) < len(lines) {
			cov = append(cov, -1)
		}
		for i, line := range lines {
			if closeBrace(line) {
				cov[i] = -1
			}
		}
		out = append(out, history.NewFile(rel, hash, cov))
		delete(im.mapping, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func allIrrelevant(n int) []int {
	cov := make([]int, n)
	for i := range cov {
		cov[i] = -1
	}
	return cov
}

func md5Hex(b []byte) string {
	h := md5.Sum(b)
	return hex.EncodeToString(h[:])
}
