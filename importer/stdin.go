package importer

import (
	"bufio"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/rcowham/uncov/history"
)

// ParseNewFormat reads the `new` subcommand's stdin stream: a ref id, a
// ref name, then zero or more file records of the form
//
//	<path> <content_hash>
//	<nlines>
//	<c0> <c1> … <c_{nlines-1}>
//
// per spec.md §6. Any malformed record is fatal: nothing is returned.
func ParseNewFormat(scanner *bufio.Scanner) (*history.BuildData, error) {
	if !scanner.Scan() {
		return nil, fmt.Errorf("missing ref line")
	}
	ref := scanner.Text()
	if !scanner.Scan() {
		return nil, fmt.Errorf("missing ref-name line")
	}
	refName := scanner.Text()

	bd := history.NewBuildData(ref, refName)

	for scanner.Scan() {
		header := strings.TrimRight(scanner.Text(), "\r")
		if header == "" {
			continue
		}
		recPath, hash, ok := cutLast(header, ' ')
		if !ok || hash == "" {
			return nil, fmt.Errorf("malformed file record header: %q", header)
		}
		recPath = normalizeRecordPath(recPath)

		if !scanner.Scan() {
			return nil, fmt.Errorf("%s: missing line count", recPath)
		}
		nlines, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil || nlines < 0 {
			return nil, fmt.Errorf("%s: invalid line count %q", recPath, scanner.Text())
		}

		if !scanner.Scan() {
			return nil, fmt.Errorf("%s: missing coverage line", recPath)
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) != nlines {
			return nil, fmt.Errorf("%s: expected %d coverage values, got %d", recPath, nlines, len(fields))
		}
		coverage := make([]int, nlines)
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("%s: non-integer coverage value %q", recPath, f)
			}
			coverage[i] = v
		}

		bd.AddFile(history.NewFile(recPath, strings.ToLower(hash), coverage))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return bd, nil
}

// cutLast splits s at the last occurrence of sep, so paths containing
// spaces are handled correctly (the content hash never contains one).
func cutLast(s string, sep byte) (before, after string, found bool) {
	i := strings.LastIndexByte(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

// normalizeRecordPath collapses "./" segments the way InRepoPath does
// in the original importer (e.g. "././test-file1.cpp" -> "test-file1.cpp"),
// independent of any filesystem cwd since these paths arrive verbatim
// over stdin.
func normalizeRecordPath(p string) string {
	return path.Clean(strings.TrimPrefix(p, "/"))
}
