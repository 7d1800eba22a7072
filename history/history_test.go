package history

import (
	"testing"

	"github.com/rcowham/uncov/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	s, err := store.Open(":memory:", l)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestAddBuildAggregatesCoverage(t *testing.T) {
	h := newTestHistory(t)

	bd := NewBuildData("deadbeef", "master")
	bd.AddFile(NewFile("a.cpp", "hash-a", []int{1, 0, -1}))
	bd.AddFile(NewFile("b.cpp", "hash-b", []int{1, 1, 0}))

	build, err := h.AddBuild(bd)
	require.NoError(t, err)
	assert.Equal(t, 1, build.ID)
	assert.Equal(t, 3, build.CoveredCount) // 1 + 2
	assert.Equal(t, 2, build.MissedCount)  // 1 + 1

	paths, err := build.Paths()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.cpp", "b.cpp"}, paths)

	f, err := build.File("a.cpp")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []int{1, 0, -1}, f.Coverage)
}

func TestFilesWithIdenticalKeyAreShared(t *testing.T) {
	h := newTestHistory(t)

	bd1 := NewBuildData("r1", "master")
	bd1.AddFile(NewFile("a.cpp", "hash-a", []int{1, 0}))
	_, err := h.AddBuild(bd1)
	require.NoError(t, err)

	bd2 := NewBuildData("r2", "master")
	bd2.AddFile(NewFile("a.cpp", "hash-a", []int{1, 0}))
	_, err = h.AddBuild(bd2)
	require.NoError(t, err)

	var count int
	require.NoError(t, h.store.DB().QueryRow("SELECT COUNT(*) FROM files").Scan(&count))
	assert.Equal(t, 1, count, "identical (path, hash, coverage) must be deduplicated")
}

func TestFilesWithDifferentCoverageAreDistinct(t *testing.T) {
	h := newTestHistory(t)

	bd1 := NewBuildData("r1", "master")
	bd1.AddFile(NewFile("a.cpp", "hash-a", []int{1, 0}))
	_, err := h.AddBuild(bd1)
	require.NoError(t, err)

	bd2 := NewBuildData("r2", "master")
	bd2.AddFile(NewFile("a.cpp", "hash-a", []int{0, 0}))
	_, err = h.AddBuild(bd2)
	require.NoError(t, err)

	var count int
	require.NoError(t, h.store.DB().QueryRow("SELECT COUNT(*) FROM files").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestBuildNavigation(t *testing.T) {
	h := newTestHistory(t)

	for i := 0; i < 3; i++ {
		bd := NewBuildData("ref", "master")
		_, err := h.AddBuild(bd)
		require.NoError(t, err)
	}

	last, err := h.LastBuildID()
	require.NoError(t, err)
	assert.Equal(t, 3, last)

	nth, err := h.NthToLastBuildID(1)
	require.NoError(t, err)
	assert.Equal(t, 2, nth)

	nth, err = h.NthToLastBuildID(10)
	require.NoError(t, err)
	assert.Equal(t, 0, nth)

	assert.Equal(t, 0, h.PreviousBuildID(1))
	assert.Equal(t, 2, h.PreviousBuildID(3))
}

func TestBuildNotFound(t *testing.T) {
	h := newTestHistory(t)
	b, err := h.Build(42)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestBuildsOnRef(t *testing.T) {
	h := newTestHistory(t)

	bd1 := NewBuildData("r1", "master")
	_, err := h.AddBuild(bd1)
	require.NoError(t, err)
	bd2 := NewBuildData("r2", "feature")
	_, err = h.AddBuild(bd2)
	require.NoError(t, err)

	builds, err := h.BuildsOnRef("feature")
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, "r2", builds[0].Ref)
}

func TestUnknownPathReturnsNilFile(t *testing.T) {
	h := newTestHistory(t)
	bd := NewBuildData("r", "master")
	bd.AddFile(NewFile("a.cpp", "hash", []int{1}))
	build, err := h.AddBuild(bd)
	require.NoError(t, err)

	f, err := build.File("missing.cpp")
	require.NoError(t, err)
	assert.Nil(t, f)
}
