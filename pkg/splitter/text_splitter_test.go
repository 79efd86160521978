package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitNoteKeepsHeading(t *testing.T) {
	s := NewNoteSplitter(80, 10)
	heading := "### Task 2: Methods"
	body := heading + "\n" + strings.Repeat("Message passing aggregates neighbour features. ", 10)

	chunks, err := s.SplitNote(heading, body)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c, heading), "chunk %q lost its heading", c)
	}
}

func TestSplitNoteShortText(t *testing.T) {
	s := NewNoteSplitter(1000, 200)
	chunks, err := s.SplitNote("", "A single short note.")
	require.NoError(t, err)
	assert.Equal(t, []string{"A single short note."}, chunks)
}

func TestNewNoteSplitterFixesBadOverlap(t *testing.T) {
	s := NewNoteSplitter(100, 500)
	chunks, err := s.SplitNote("", strings.Repeat("word ", 60))
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}
