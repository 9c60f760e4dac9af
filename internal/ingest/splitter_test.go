package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.Error(t, err)

	_, err = NewSplitter(100, 100)
	assert.Error(t, err)

	_, err = NewSplitter(100, 150)
	assert.Error(t, err)

	_, err = NewSplitter(100, 10)
	assert.NoError(t, err)
}

func TestSplitTextSmallInput(t *testing.T) {
	s, err := NewSplitter(1000, 100)
	require.NoError(t, err)

	t.Run("short text is one chunk", func(t *testing.T) {
		chunks := s.SplitText("hello world")
		assert.Equal(t, []string{"hello world"}, chunks)
	})

	t.Run("blank text yields nothing", func(t *testing.T) {
		assert.Nil(t, s.SplitText("  \n \t "))
	})
}

func TestSplitTextChunking(t *testing.T) {
	s, err := NewSplitter(100, 0)
	require.NoError(t, err)

	paragraphs := []string{
		strings.Repeat("alpha ", 12),
		strings.Repeat("bravo ", 12),
		strings.Repeat("charlie ", 12),
	}
	text := strings.Join(paragraphs, "\n\n")

	chunks := s.SplitText(text)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100, "chunk %d exceeds size", i)
	}
}

func TestSplitTextPrefersParagraphBoundaries(t *testing.T) {
	s, err := NewSplitter(30, 0)
	require.NoError(t, err)

	text := "first paragraph stays whole\n\nsecond paragraph stays whole"
	chunks := s.SplitText(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first paragraph stays whole", chunks[0])
	assert.Equal(t, "second paragraph stays whole", chunks[1])
}

func TestSplitTextOverlap(t *testing.T) {
	s, err := NewSplitter(50, 10)
	require.NoError(t, err)

	words := make([]string, 40)
	for i := range words {
		words[i] = "word"
	}
	chunks := s.SplitText(strings.Join(words, " "))
	require.Greater(t, len(chunks), 1)

	// Each successor starts with a tail of its predecessor.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i]
		if idx := strings.Index(head, "\n"); idx > 0 {
			head = head[:idx]
		}
		assert.True(t, strings.HasSuffix(chunks[i-1], head),
			"chunk %d does not overlap its predecessor", i)
	}
}

func TestSplitTextOverlapRespectsChunkSize(t *testing.T) {
	s, err := NewSplitter(50, 10)
	require.NoError(t, err)

	text := strings.TrimSpace(strings.Repeat("alpha beta gamma delta epsilon ", 8))
	chunks := s.SplitText(text)
	require.Greater(t, len(chunks), 1)

	// The carried overlap must never push a chunk past the size limit.
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 50, "chunk %d exceeds size: %q", i, chunk)
	}
}

func TestSplitTextCommaBoundaries(t *testing.T) {
	s, err := NewSplitter(25, 0)
	require.NoError(t, err)

	text := "alpha beta, gamma delta, epsilon zeta, eta theta"
	chunks := s.SplitText(text)
	require.Greater(t, len(chunks), 1)

	// Splitting on ", " keeps the space out of the next chunk.
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 25)
		assert.False(t, strings.HasPrefix(chunk, " "), "chunk starts with leftover separator: %q", chunk)
	}
}

func TestSplitTextOversizedWord(t *testing.T) {
	s, err := NewSplitter(20, 0)
	require.NoError(t, err)

	chunks := s.SplitText(strings.Repeat("x", 55))
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 20)
	}
}
