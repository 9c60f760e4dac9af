package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCitationIndexes(t *testing.T) {
	tests := []struct {
		name       string
		answer     string
		numSources int
		want       []int
	}{
		{
			name:       "single marker",
			answer:     "Paris is the capital of France [1].",
			numSources: 3,
			want:       []int{1},
		},
		{
			name:       "order of first appearance",
			answer:     "See [3] and [1], then [3] again.",
			numSources: 3,
			want:       []int{3, 1},
		},
		{
			name:       "adjacent markers",
			answer:     "Supported by [1][2].",
			numSources: 2,
			want:       []int{1, 2},
		},
		{
			name:       "out of range dropped",
			answer:     "Known [2], invalid [9] and [0].",
			numSources: 3,
			want:       []int{2},
		},
		{
			name:       "no markers",
			answer:     "No citations here.",
			numSources: 3,
			want:       nil,
		},
		{
			name:       "markdown link is not a citation",
			answer:     "Read [the docs](https://example.com) and [2].",
			numSources: 3,
			want:       []int{2},
		},
		{
			name:       "inline code span ignored",
			answer:     "Use `arr[1]` to index, per [2].",
			numSources: 3,
			want:       []int{2},
		},
		{
			name: "fenced code block ignored",
			answer: "Result [1]:\n```go\nx := arr[2]\n```\nDone.",
			numSources: 3,
			want:       []int{1},
		},
		{
			name: "tilde fence ignored",
			answer: "Before [1]\n~~~\nvalue[3]\n~~~\nafter [2]",
			numSources: 3,
			want:       []int{1, 2},
		},
		{
			name:       "zero sources",
			answer:     "anything [1]",
			numSources: 0,
			want:       nil,
		},
		{
			name:       "negative index dropped",
			answer:     "weird [-1] but [1] fine",
			numSources: 2,
			want:       []int{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitationIndexes(tt.answer, tt.numSources)
			assert.Equal(t, tt.want, got)
		})
	}
}
