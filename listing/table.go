// Package listing shapes coverage data into the tabular rows the
// builds/files/changed/dirs commands print; it owns no terminal,
// color, or paging concerns (spec.md §1 scopes those out).
package listing

import (
	"fmt"

	"github.com/rcowham/uncov/history"
)

// Percentage returns the percent of relevant lines that are covered,
// or 0 when there are no relevant lines.
func Percentage(covered, missed int) float64 {
	total := covered + missed
	if total == 0 {
		return 0
	}
	return 100 * float64(covered) / float64(total)
}

// BuildRow is one row of the `builds` table.
type BuildRow struct {
	ID       int
	RefName  string
	Coverage float64
	// Change is the percentage-point delta from the previous build on
	// record ("" if there is no previous build), formatted with an
	// explicit sign, e.g. "+50.0000%".
	Change string
}

// BuildRows shapes builds (oldest-first, as returned by
// History.AllBuilds/BuildsOnRef) into BuildRow values, computing each
// row's change against the build whose id directly precedes it.
func BuildRows(builds []*history.Build) []BuildRow {
	rows := make([]BuildRow, 0, len(builds))
	byID := make(map[int]*history.Build, len(builds))
	for _, b := range builds {
		byID[b.ID] = b
	}
	for _, b := range builds {
		row := BuildRow{
			ID:       b.ID,
			RefName:  b.RefName,
			Coverage: Percentage(b.CoveredCount, b.MissedCount),
		}
		if prev, ok := byID[b.ID-1]; ok {
			delta := row.Coverage - Percentage(prev.CoveredCount, prev.MissedCount)
			row.Change = fmt.Sprintf("%+.4f%%", delta)
		}
		rows = append(rows, row)
	}
	return rows
}

// FileRow is one row of the `files`/`changed` table.
type FileRow struct {
	Path     string
	Coverage float64
	Covered  int
	Missed   int
}

// FileRows shapes a build's files into FileRow values, sorted by path.
func FileRows(files map[string]history.File) []FileRow {
	rows := make([]FileRow, 0, len(files))
	for _, f := range files {
		rows = append(rows, FileRow{
			Path:     f.Path,
			Coverage: Percentage(f.CoveredCount, f.MissedCount),
			Covered:  f.CoveredCount,
			Missed:   f.MissedCount,
		})
	}
	sortFileRows(rows)
	return rows
}

func sortFileRows(rows []FileRow) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j-1].Path > rows[j].Path; j-- {
			rows[j-1], rows[j] = rows[j], rows[j-1]
		}
	}
}

// DirRow is one row of the `dirs` table: an immediate child of the
// requested directory, with its own aggregated coverage.
type DirRow struct {
	Name     string
	IsFile   bool
	Coverage float64
	Covered  int
	Missed   int
}

// DirRows shapes a DirTree's children of dirPath into DirRow values.
func DirRows(t *DirTree, dirPath string) ([]DirRow, bool) {
	entries, ok := t.Children(dirPath)
	if !ok {
		return nil, false
	}
	rows := make([]DirRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, DirRow{
			Name:     e.Name,
			IsFile:   e.IsFile,
			Coverage: Percentage(e.Covered, e.Missed),
			Covered:  e.Covered,
			Missed:   e.Missed,
		})
	}
	return rows, true
}
