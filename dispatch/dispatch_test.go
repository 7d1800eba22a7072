package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopLevel(t *testing.T) {
	inv := Parse([]string{"--help", "build"})
	assert.True(t, inv.Help)
	assert.Equal(t, ".", inv.RepoPath)
	assert.Equal(t, "build", inv.Command)

	inv = Parse([]string{"./myrepo", "builds", "5"})
	assert.Equal(t, "./myrepo", inv.RepoPath)
	assert.Equal(t, "builds", inv.Command)
	assert.Equal(t, []string{"5"}, inv.Args)

	inv = Parse([]string{"-v", "diff", "@@", "@-1"})
	assert.True(t, inv.Version)
	assert.Equal(t, ".", inv.RepoPath)
	assert.Equal(t, "diff", inv.Command)
	assert.Equal(t, []string{"@@", "@-1"}, inv.Args)
}

func TestParseStopsAtFirstPositional(t *testing.T) {
	inv := Parse([]string{"show", "--help"})
	assert.False(t, inv.Help)
	assert.Equal(t, "show", inv.Command)
	assert.Equal(t, []string{"--help"}, inv.Args)
}

func TestBuildIDParamAcceptsKnownForms(t *testing.T) {
	for _, tok := range []string{"@@", "@5", "@-3", "@master"} {
		verdict, consumed, _ := BuildID{}.Try([]string{tok})
		assert.Equal(t, Accepted, verdict, tok)
		assert.Equal(t, 1, consumed, tok)
	}
	verdict, _, _ := BuildID{}.Try([]string{"notaref"})
	assert.Equal(t, Rejected, verdict)
}

func TestOptBuildIDSkipsWhenAbsentOrNotARef(t *testing.T) {
	verdict, consumed, value := OptBuildID{}.Try(nil)
	assert.Equal(t, Skipped, verdict)
	assert.Equal(t, 0, consumed)
	assert.Equal(t, DefaultBuildRef, value)

	verdict, consumed, _ = OptBuildID{}.Try([]string{"some/path"})
	assert.Equal(t, Skipped, verdict)
	assert.Equal(t, 0, consumed)
}

func TestPositiveNumberRejectsZeroAndNegative(t *testing.T) {
	for _, tok := range []string{"0", "-1", "abc"} {
		verdict, _, _ := PositiveNumber{}.Try([]string{tok})
		assert.Equal(t, Rejected, verdict, tok)
	}
	verdict, consumed, value := PositiveNumber{}.Try([]string{"42"})
	assert.Equal(t, Accepted, verdict)
	assert.Equal(t, 1, consumed)
	assert.Equal(t, 42, value)
}

func TestCommandMatchPicksFirstSucceedingForm(t *testing.T) {
	reg := NewRegistry()
	cmd, ok := reg.Lookup("builds")
	require.True(t, ok)

	values, err := cmd.Match(nil)
	require.NoError(t, err)
	assert.Empty(t, values)

	values, err = cmd.Match([]string{"20"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{20}, values)

	values, err = cmd.Match([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"all"}, values)

	_, err = cmd.Match([]string{"notanumber"})
	assert.Error(t, err)
}

func TestDiffFormAcceptsTwoBuildsAndPath(t *testing.T) {
	reg := NewRegistry()
	cmd, ok := reg.Lookup("regress")
	require.True(t, ok)

	values, err := cmd.Match([]string{"@1", "@2", "src/a.cpp"})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "src/a.cpp", values[2])
}

func TestGetRequiresBuildAndPath(t *testing.T) {
	reg := NewRegistry()
	cmd, ok := reg.Lookup("get")
	require.True(t, ok)

	_, err := cmd.Match([]string{"@@"})
	assert.Error(t, err)

	values, err := cmd.Match([]string{"@@", "a.cpp"})
	require.NoError(t, err)
	require.Len(t, values, 2)
}

func TestNormalizePathStripsLeadingSlashAndDotSegments(t *testing.T) {
	assert.Equal(t, "a/b.cpp", NormalizePath("/a/b.cpp", "/repo", "/repo"))
	assert.Equal(t, "test-file1.cpp", NormalizePath("././test-file1.cpp", "/repo", "/repo"))
	assert.Equal(t, "sub/file.cpp", NormalizePath("file.cpp", "/repo", "/repo/sub"))
}

func TestDiffVariantsAreDistinctCommandsSharingForms(t *testing.T) {
	reg := NewRegistry()
	diff, _ := reg.Lookup("diff")
	regress, _ := reg.Lookup("regress")
	assert.NotSame(t, diff, regress)
	assert.Equal(t, diff.Forms, regress.Forms)
}
