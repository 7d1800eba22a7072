package importer

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNewFormatRoundTrip(t *testing.T) {
	input := "deadbeef\nmaster\n" +
		"a.cpp hashA\n3\n1 0 -1\n" +
		"b.cpp hashB\n2\n1 1\n"

	bd, err := ParseNewFormat(bufio.NewScanner(strings.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", bd.Ref)
	assert.Equal(t, "master", bd.RefName)

	files := bd.Files()
	require.Contains(t, files, "a.cpp")
	assert.Equal(t, []int{1, 0, -1}, files["a.cpp"].Coverage)
	require.Contains(t, files, "b.cpp")
	assert.Equal(t, []int{1, 1}, files["b.cpp"].Coverage)
}

func TestParseNewFormatNormalizesPath(t *testing.T) {
	input := "deadbeef\nmaster\n./test-file1.cpp hashA\n1\n1\n"

	bd, err := ParseNewFormat(bufio.NewScanner(strings.NewReader(input)))
	require.NoError(t, err)

	files := bd.Files()
	assert.Contains(t, files, "test-file1.cpp")
	assert.NotContains(t, files, "./test-file1.cpp")
}

func TestParseNewFormatRejectsBadLineCount(t *testing.T) {
	input := "deadbeef\nmaster\na.cpp hashA\n-1\n\n"
	_, err := ParseNewFormat(bufio.NewScanner(strings.NewReader(input)))
	assert.Error(t, err)
}

func TestParseNewFormatRejectsMismatchedCoverageCount(t *testing.T) {
	input := "deadbeef\nmaster\na.cpp hashA\n3\n1 0\n"
	_, err := ParseNewFormat(bufio.NewScanner(strings.NewReader(input)))
	assert.Error(t, err)
}

func TestParseNewJSONSkipsLeadingGarbage(t *testing.T) {
	input := `some preamble noise {"git":{"head":{"id":"abc123"},"branch":"main"},"source_files":[{"name":"a.cpp","coverage":[1,null,0],"source_digest":"deadbeef"}]}`

	bd, sources, err := ParseNewJSON([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, "abc123", bd.Ref)
	assert.Equal(t, "main", bd.RefName)
	assert.Empty(t, sources)

	files := bd.Files()
	require.Contains(t, files, "a.cpp")
	assert.Equal(t, []int{1, -1, 0}, files["a.cpp"].Coverage)
	assert.Equal(t, "deadbeef", files["a.cpp"].ContentHash)
}

func TestParseNewJSONHashesSourceWhenDigestAbsent(t *testing.T) {
	input := `{"git":{"head":{"id":"abc"},"branch":"main"},"source_files":[{"name":"a.cpp","coverage":[1],"source":"int x;"}]}`

	bd, sources, err := ParseNewJSON([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, "int x;", sources["a.cpp"])
	assert.Equal(t, md5Hex([]byte("int x;")), bd.Files()["a.cpp"].ContentHash)
}

func TestParseNewJSONRequiresGitFields(t *testing.T) {
	_, _, err := ParseNewJSON([]byte(`{"source_files":[]}`))
	assert.Error(t, err)
}

func TestReconcileSourceHashRetriesWithTrailingNewline(t *testing.T) {
	want := md5Hex([]byte("int x;\n"))
	hash, ok := ReconcileSourceHash("int x;", want)
	assert.True(t, ok)
	assert.Equal(t, want, hash)

	_, ok = ReconcileSourceHash("int x;", "not-a-real-hash")
	assert.False(t, ok)
}
