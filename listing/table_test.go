package listing

import (
	"testing"

	"github.com/rcowham/uncov/history"
	"github.com/stretchr/testify/assert"
)

func TestPercentageHandlesNoRelevantLines(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
	assert.Equal(t, 50.0, Percentage(1, 1))
	assert.Equal(t, 100.0, Percentage(2, 0))
}

func TestFileRowsSortedByPath(t *testing.T) {
	files := map[string]history.File{
		"z.cpp": history.NewFile("z.cpp", "h1", []int{1, 1}),
		"a.cpp": history.NewFile("a.cpp", "h2", []int{1, 0}),
	}

	rows := FileRows(files)
	assert.Equal(t, []string{"a.cpp", "z.cpp"}, []string{rows[0].Path, rows[1].Path})
	assert.Equal(t, 50.0, rows[0].Coverage)
	assert.Equal(t, 100.0, rows[1].Coverage)
}

func TestFileRowsEmptyInput(t *testing.T) {
	assert.Empty(t, FileRows(nil))
}
