package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVCS is a minimal in-memory vcs.Adapter for tests that never
// touches a real repository.
type fakeVCS struct {
	tree       map[string]string
	ref        string
	refName    string
	dirty      bool
	untracked  []string
	ignored    map[string]bool
	worktree   string
	stashCalls [][]string
}

func (f *fakeVCS) ResolveRef(name string) (string, error) { return f.ref, nil }
func (f *fakeVCS) CurrentRefName() (string, error)        { return f.refName, nil }
func (f *fakeVCS) ListTree(ref string) (map[string]string, error) { return f.tree, nil }
func (f *fakeVCS) ReadFile(ref, path string) ([]byte, error)      { return nil, fmt.Errorf("not implemented") }
func (f *fakeVCS) IsIgnored(path string) (bool, error)            { return f.ignored[path], nil }
func (f *fakeVCS) WorktreePath() string                           { return f.worktree }
func (f *fakeVCS) MetadataPath() string                           { return f.worktree + "/.git" }
func (f *fakeVCS) IsDirty() (bool, error)                         { return f.dirty, nil }
func (f *fakeVCS) UntrackedFiles() ([]string, error)              { return f.untracked, nil }
func (f *fakeVCS) Stash(paths []string) (string, error) {
	f.stashCalls = append(f.stashCalls, paths)
	return "stash-commit", nil
}

// fakeRunner scripts responses to gcov invocations by matching on the
// first argument after the program name.
type fakeRunner struct {
	help    string
	version string
	stdout  string
}

func (r *fakeRunner) Run(argv []string, dir string) (string, error) {
	joined := strings.Join(argv, " ")
	switch {
	case strings.Contains(joined, "--help"):
		return r.help, nil
	case strings.Contains(joined, "--version"):
		return r.version, nil
	case strings.Contains(joined, "--stdout"):
		return r.stdout, nil
	default:
		return "", fmt.Errorf("unexpected invocation: %v", argv)
	}
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func writeFile(t *testing.T, root, rel, contents string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestRunParsesJSONStdoutAndReconciles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.cpp", "int main() {\n  return 0;\n}\n")
	writeFile(t, root, "unused.cpp", "void f() {\n}\n")

	contents, err := os.ReadFile(filepath.Join(root, "a.cpp"))
	require.NoError(t, err)
	aHash := md5Hex(contents)
	unusedContents, err := os.ReadFile(filepath.Join(root, "unused.cpp"))
	require.NoError(t, err)
	unusedHash := md5Hex(unusedContents)

	runner := &fakeRunner{
		help:    "--json-format --stdout --intermediate-format",
		version: "gcov (GCC) 11.3.0",
		stdout: fmt.Sprintf(`{"current_working_directory":"%s","files":[{"file":"a.cpp","lines":[{"line_number":1,"count":1},{"line_number":2,"count":0}]}]}`, root),
	}

	fv := &fakeVCS{
		ref:     "deadbeef",
		refName: "main",
		tree: map[string]string{
			"a.cpp":      aHash,
			"unused.cpp": unusedHash,
		},
	}

	im, err := New(Options{
		Root:   root,
		Runner: runner,
		VCS:    fv,
		Log:    testLogger(),
	})
	require.NoError(t, err)

	bd, err := im.Run()
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", bd.Ref)
	assert.Equal(t, "main", bd.RefName)

	files := bd.Files()
	require.Contains(t, files, "a.cpp")
	a := files["a.cpp"]
	assert.Equal(t, []int{1, 0, -1, -1}, a.Coverage) // line 3 is the close-brace, line 4 is the trailing newline

	require.Contains(t, files, "unused.cpp")
	assert.Equal(t, []int{-1, -1}, files["unused.cpp"].Coverage)
}

func TestRunDropsFilesMissingFromTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "gone.cpp", "int x;\n")

	runner := &fakeRunner{
		help:    "--json-format --stdout",
		version: "gcov (GCC) 9.0.0",
		stdout:  "",
	}
	fv := &fakeVCS{ref: "r1", refName: "main", tree: map[string]string{}}

	im, err := New(Options{Root: root, Runner: runner, VCS: fv, Log: testLogger()})
	require.NoError(t, err)

	bd, err := im.Run()
	require.NoError(t, err)
	assert.Empty(t, bd.Files())
}

func TestRunFailsOnHashMismatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.cpp", "int x;\n")

	runner := &fakeRunner{help: "--json-format --stdout", version: "gcov (GCC) 9.0.0", stdout: ""}
	fv := &fakeVCS{ref: "r1", refName: "main", tree: map[string]string{"a.cpp": "not-the-real-hash"}}

	im, err := New(Options{Root: root, Runner: runner, VCS: fv, Log: testLogger()})
	require.NoError(t, err)

	_, err = im.Run()
	assert.Error(t, err)
}

func TestProbeToolFailsWithoutJSONOrIntermediate(t *testing.T) {
	runner := &fakeRunner{help: "--stdout --branch-probabilities", version: "gcov (GCC) 9.0.0"}
	_, err := ProbeTool(runner)
	assert.Error(t, err)
}

func TestProbeToolDetectsBinningThreshold(t *testing.T) {
	runner := &fakeRunner{help: "--json-format", version: "gcov (GCC) 8.1.0"}
	info, err := ProbeTool(runner)
	require.NoError(t, err)
	assert.True(t, info.NeedsBinning)

	runner2 := &fakeRunner{help: "--json-format", version: "gcov (GCC) 7.5.0"}
	info2, err := ProbeTool(runner2)
	require.NoError(t, err)
	assert.False(t, info2.NeedsBinning)
}

func TestBinNoteFilesDeduplicatesByBasename(t *testing.T) {
	files := []string{"/a/x.gcno", "/b/x.gcno", "/a/y.gcno"}
	bins := binNoteFiles(files, true)
	require.Len(t, bins, 2)
	assert.ElementsMatch(t, []string{"/a/x.gcno", "/a/y.gcno"}, bins[0].paths)
	assert.Equal(t, []string{"/b/x.gcno"}, bins[1].paths)
}

func TestUpdateCoverageAccumulatesAndPads(t *testing.T) {
	cov := updateCoverage(nil, 3, 5)
	assert.Equal(t, []int{-1, -1, 5}, cov)

	cov = updateCoverage(cov, 3, 2)
	assert.Equal(t, []int{-1, -1, 7}, cov)
}

func TestResolveRefCapturesDirtyWorktree(t *testing.T) {
	root := t.TempDir()
	fv := &fakeVCS{
		ref:       "r1",
		refName:   "main",
		dirty:     true,
		untracked: []string{"new.cpp"},
		ignored:   map[string]bool{},
	}
	im, err := New(Options{Root: root, Runner: &fakeRunner{}, VCS: fv, Log: testLogger(), Capture: true})
	require.NoError(t, err)
	im.mapping["new.cpp"] = []int{1}

	ref, refName, err := im.resolveRef()
	require.NoError(t, err)
	assert.Equal(t, "stash-commit", ref)
	assert.Equal(t, "WIP on main", refName)
	require.Len(t, fv.stashCalls, 1)
	assert.Equal(t, []string{"new.cpp"}, fv.stashCalls[0])
}

func TestResolveRefSkipsIgnoredUntrackedFiles(t *testing.T) {
	root := t.TempDir()
	fv := &fakeVCS{
		ref:       "r1",
		refName:   "main",
		dirty:     false,
		untracked: []string{"build/out.cpp"},
		ignored:   map[string]bool{"build/out.cpp": true},
	}
	im, err := New(Options{Root: root, Runner: &fakeRunner{}, VCS: fv, Log: testLogger(), Capture: true})
	require.NoError(t, err)
	im.mapping["build/out.cpp"] = []int{1}

	ref, _, err := im.resolveRef()
	require.NoError(t, err)
	assert.Equal(t, "r1", ref) // falls back to HEAD: nothing dirty to stage
}
