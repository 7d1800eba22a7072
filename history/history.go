// Package history provides the domain-level API over store: builds,
// files and path navigation.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcowham/uncov/store"
)

// ErrNotFound names the "build or file does not exist" condition. The
// lookups in this package do not return it: they report a missing build
// or file as a nil result with a nil error.
var ErrNotFound = errors.New("not found")

// File is the canonical per-file coverage record.
type File struct {
	Path         string
	ContentHash  string
	Coverage     []int
	CoveredCount int
	MissedCount  int
}

// NewFile builds a File and derives its covered/missed counts from the
// coverage vector: entries > 0 count as covered, entries == 0 as missed,
// negative entries are not relevant and counted as neither.
func NewFile(path, contentHash string, coverage []int) File {
	f := File{Path: path, ContentHash: contentHash, Coverage: coverage}
	for _, hits := range coverage {
		switch {
		case hits > 0:
			f.CoveredCount++
		case hits == 0:
			f.MissedCount++
		}
	}
	return f
}

// RelevantCount returns the number of lines that are either covered or
// missed (i.e. not marked irrelevant).
func (f File) RelevantCount() int { return f.CoveredCount + f.MissedCount }

// BuildData accumulates files for a single ingest prior to persistence.
type BuildData struct {
	Ref     string
	RefName string
	files   map[string]File
}

// NewBuildData starts an empty build keyed by VCS ref and symbolic name.
func NewBuildData(ref, refName string) *BuildData {
	return &BuildData{Ref: ref, RefName: refName, files: make(map[string]File)}
}

// AddFile registers a file's coverage in this build, keyed by its path.
// Paths are unique within a build; a later call with the same path
// replaces the earlier one, unlike the unordered_map::emplace
// semantics of the original (first write wins there; here we choose
// explicit replace since BuildData is populated by a single importer
// pass that should not produce duplicate paths in the first place).
func (bd *BuildData) AddFile(f File) {
	if bd.files == nil {
		bd.files = make(map[string]File)
	}
	bd.files[f.Path] = f
}

// Files returns the files accumulated so far.
func (bd *BuildData) Files() map[string]File { return bd.files }

// DataLoader is the lazy-hydration capability Build needs and History
// implements; see spec.md §9 on resolving the BuildHistory/Build cycle.
type DataLoader interface {
	LoadPaths(buildID int) (map[string]int, error)
	LoadFile(fileID int) (*File, error)
}

// Build is a single recorded coverage snapshot. Its path map and file
// contents are hydrated lazily on first use and cached; a Build becomes
// invalid once its loader is no longer usable (e.g. the Store closes).
type Build struct {
	ID           int
	Ref          string
	RefName      string
	CoveredCount int
	MissedCount  int
	Timestamp    time.Time

	loader  DataLoader
	pathMap map[string]int
	files   map[string]File
}

// Paths returns all paths recorded in this build. Order is unspecified.
func (b *Build) Paths() ([]string, error) {
	if err := b.ensurePathMap(); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(b.pathMap))
	for p := range b.pathMap {
		paths = append(paths, p)
	}
	return paths, nil
}

// File returns the file at path, or (nil, nil) if the build has no such
// path.
func (b *Build) File(path string) (*File, error) {
	if b.files == nil {
		b.files = make(map[string]File)
	}
	if f, ok := b.files[path]; ok {
		return &f, nil
	}

	if err := b.ensurePathMap(); err != nil {
		return nil, err
	}
	fileID, ok := b.pathMap[path]
	if !ok {
		return nil, nil
	}

	f, err := b.loader.LoadFile(fileID)
	if err != nil {
		return nil, fmt.Errorf("load file %s (build %d): %w", path, b.ID, err)
	}
	if f == nil {
		return nil, nil
	}
	b.files[path] = *f
	return f, nil
}

func (b *Build) ensurePathMap() error {
	if b.pathMap != nil {
		return nil
	}
	pm, err := b.loader.LoadPaths(b.ID)
	if err != nil {
		return fmt.Errorf("load paths for build %d: %w", b.ID, err)
	}
	b.pathMap = pm
	return nil
}

// History is the domain API layered over store.Store.
type History struct {
	store *store.Store
}

// New wraps an already-open store in a History.
func New(s *store.Store) *History {
	return &History{store: s}
}

// AddBuild persists buildData atomically and returns the new build.
//
// Insertion is one transaction: the builds row, any newly needed files
// rows, and all filemap rows become visible together or not at all.
func (h *History) AddBuild(bd *BuildData) (*Build, error) {
	var covered, missed int
	for _, f := range bd.files {
		covered += f.CoveredCount
		missed += f.MissedCount
	}

	tx, err := h.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.Tx().Exec(
		"INSERT INTO builds (ref, ref_name, covered, missed) VALUES (?, ?, ?, ?)",
		bd.Ref, bd.RefName, covered, missed)
	if err != nil {
		return nil, fmt.Errorf("insert build: %w", err)
	}
	buildID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read new build id: %w", err)
	}

	for _, f := range bd.files {
		covHash := store.HashCoverage(f.Coverage)

		var fileID int64
		row := tx.Tx().QueryRow(
			"SELECT file_id FROM files WHERE path = ? AND content_hash = ? AND cov_hash = ?",
			f.Path, f.ContentHash, covHash)
		switch err := row.Scan(&fileID); {
		case err == nil:
			// Existing identical (path, content_hash, cov_hash) row: reuse it.
		case errors.Is(err, sql.ErrNoRows):
			blob, encErr := store.EncodeCoverage(f.Coverage)
			if encErr != nil {
				return nil, fmt.Errorf("encode coverage for %s: %w", f.Path, encErr)
			}
			insRes, insErr := tx.Tx().Exec(
				"INSERT INTO files (path, content_hash, cov_hash, coverage_blob) VALUES (?, ?, ?, ?)",
				f.Path, f.ContentHash, covHash, blob)
			if insErr != nil {
				return nil, fmt.Errorf("insert file %s: %w", f.Path, insErr)
			}
			fileID, err = insRes.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("read new file id for %s: %w", f.Path, err)
			}
		default:
			return nil, fmt.Errorf("look up file %s: %w", f.Path, err)
		}

		if _, err := tx.Tx().Exec(
			"INSERT INTO filemap (build_id, file_id) VALUES (?, ?)",
			buildID, fileID); err != nil {
			return nil, fmt.Errorf("link file %s to build: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	build, err := h.Build(int(buildID))
	if err != nil {
		return nil, err
	}
	if build == nil {
		return nil, fmt.Errorf("just-inserted build %d vanished", buildID)
	}
	return build, nil
}

// LastBuildID returns the highest build id, or 0 if there are no builds.
func (h *History) LastBuildID() (int, error) {
	var id int
	err := h.store.DB().QueryRow(
		"SELECT build_id FROM builds ORDER BY build_id DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query last build id: %w", err)
	}
	return id, nil
}

// NthToLastBuildID returns the build id n positions back from the latest
// (n=0 is the latest itself), or 0 if there is no such build.
func (h *History) NthToLastBuildID(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative offset %d", n)
	}
	var id int
	err := h.store.DB().QueryRow(
		"SELECT build_id FROM builds ORDER BY build_id DESC LIMIT 1 OFFSET ?", n).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query nth-to-last build id: %w", err)
	}
	return id, nil
}

// PreviousBuildID returns the build id immediately preceding id.
//
// This is deliberately the simple `id - 1` rule; a "closest build by
// commit ancestry" variant was considered upstream and never
// implemented (see spec.md §9), and this port keeps that decision.
func (h *History) PreviousBuildID(id int) int {
	if id <= 1 {
		return 0
	}
	return id - 1
}

// Build retrieves a build by id, or (nil, nil) if it doesn't exist.
func (h *History) Build(id int) (*Build, error) {
	var ref, refName string
	var covered, missed, ts int
	err := h.store.DB().QueryRow(
		"SELECT ref, ref_name, covered, missed, timestamp FROM builds WHERE build_id = ?", id,
	).Scan(&ref, &refName, &covered, &missed, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query build %d: %w", id, err)
	}
	return &Build{
		ID: id, Ref: ref, RefName: refName,
		CoveredCount: covered, MissedCount: missed,
		Timestamp: time.Unix(int64(ts), 0).UTC(),
		loader:    h,
	}, nil
}

// AllBuilds returns every build, oldest first.
func (h *History) AllBuilds() ([]*Build, error) {
	rows, err := h.store.DB().Query(
		"SELECT build_id, ref, ref_name, covered, missed, timestamp FROM builds ORDER BY build_id")
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	return h.scanBuilds(rows)
}

// BuildsOnRef returns every build recorded under the given symbolic ref
// name, oldest first.
func (h *History) BuildsOnRef(refName string) ([]*Build, error) {
	rows, err := h.store.DB().Query(
		"SELECT build_id, ref, ref_name, covered, missed, timestamp "+
			"FROM builds WHERE ref_name = ? ORDER BY build_id", refName)
	if err != nil {
		return nil, fmt.Errorf("query builds on ref %s: %w", refName, err)
	}
	return h.scanBuilds(rows)
}

func (h *History) scanBuilds(rows *sql.Rows) ([]*Build, error) {
	defer rows.Close()
	var builds []*Build
	for rows.Next() {
		var id, covered, missed, ts int
		var ref, refName string
		if err := rows.Scan(&id, &ref, &refName, &covered, &missed, &ts); err != nil {
			return nil, fmt.Errorf("scan build row: %w", err)
		}
		builds = append(builds, &Build{
			ID: id, Ref: ref, RefName: refName,
			CoveredCount: covered, MissedCount: missed,
			Timestamp: time.Unix(int64(ts), 0).UTC(),
			loader:    h,
		})
	}
	return builds, rows.Err()
}

// LoadPaths implements DataLoader.
func (h *History) LoadPaths(buildID int) (map[string]int, error) {
	rows, err := h.store.DB().Query(
		"SELECT files.path, files.file_id FROM files "+
			"JOIN filemap ON filemap.file_id = files.file_id "+
			"WHERE filemap.build_id = ?", buildID)
	if err != nil {
		return nil, fmt.Errorf("load paths for build %d: %w", buildID, err)
	}
	defer rows.Close()

	paths := make(map[string]int)
	for rows.Next() {
		var path string
		var fileID int
		if err := rows.Scan(&path, &fileID); err != nil {
			return nil, fmt.Errorf("scan path row: %w", err)
		}
		paths[path] = fileID
	}
	return paths, rows.Err()
}

// LoadFile implements DataLoader.
func (h *History) LoadFile(fileID int) (*File, error) {
	var path, contentHash string
	var blob []byte
	err := h.store.DB().QueryRow(
		"SELECT path, content_hash, coverage_blob FROM files WHERE file_id = ?", fileID,
	).Scan(&path, &contentHash, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query file %d: %w", fileID, err)
	}

	coverage, err := store.DecodeCoverage(blob)
	if err != nil {
		return nil, fmt.Errorf("decode coverage for file %d: %w", fileID, err)
	}
	f := NewFile(path, contentHash, coverage)
	return &f, nil
}
