package rag

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomeworks/tome/internal/llm"
	"github.com/tomeworks/tome/internal/log"
	"github.com/tomeworks/tome/internal/vectorstore"
)

// fakeRetriever returns canned results and records the query.
type fakeRetriever struct {
	results    []vectorstore.SearchResult
	err        error
	collection string
	query      string
	limit      int
}

func (f *fakeRetriever) SimilaritySearchWithThreshold(_ context.Context, collection, query string, limit int, _ float32) ([]vectorstore.SearchResult, error) {
	f.collection = collection
	f.query = query
	f.limit = limit
	return f.results, f.err
}

// fakeModel streams its fixed answer word by word.
type fakeModel struct {
	answer string
	prompt string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llm.Message, options ...llm.CallOption) (*llm.Response, error) {
	opts := llm.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	f.prompt = messages[len(messages)-1].Content

	if opts.StreamingFunc != nil {
		for _, word := range strings.SplitAfter(f.answer, " ") {
			if err := opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}
	return &llm.Response{Content: f.answer}, nil
}

func sources(names ...string) []vectorstore.SearchResult {
	out := make([]vectorstore.SearchResult, len(names))
	for i, name := range names {
		out[i] = vectorstore.SearchResult{
			Document: vectorstore.Document{
				PageContent: "content of " + name,
				Metadata: map[string]any{
					"source":   name,
					"title":    strings.TrimSuffix(name, ".md"),
					"filename": name,
				},
			},
			Score: 0.9,
		}
	}
	return out
}

func newTestEngine(t *testing.T, retriever Retriever, model llm.Model) *Engine {
	t.Helper()
	engine, err := NewEngine(retriever, model, Config{TopK: 5}, log.NewNop())
	require.NoError(t, err)
	return engine
}

func TestAskStreamsAnswer(t *testing.T) {
	retriever := &fakeRetriever{results: sources("a.md", "b.md")}
	model := &fakeModel{answer: "The answer is in [2]."}
	engine := newTestEngine(t, retriever, model)

	var chunks []string
	var gotCitations []Citation
	answer, err := engine.Ask(context.Background(),
		Request{Query: "what is it?", Collection: "tome_default"},
		Handler{
			OnChunk:     func(c string) error { chunks = append(chunks, c); return nil },
			OnCitations: func(c []Citation) error { gotCitations = c; return nil },
		})
	require.NoError(t, err)

	assert.Equal(t, "The answer is in [2].", answer.Text)
	assert.Equal(t, "The answer is in [2].", strings.Join(chunks, ""))
	assert.Equal(t, "tome_default", retriever.collection)
	assert.Equal(t, 5, retriever.limit)

	require.Len(t, gotCitations, 1)
	assert.Equal(t, 2, gotCitations[0].Index)
	assert.Equal(t, "b.md", gotCitations[0].Source)
	assert.Equal(t, "b", gotCitations[0].Title)
	assert.Equal(t, "content of b.md", gotCitations[0].Snippet)
	assert.Equal(t, float32(0.9), gotCitations[0].Score)
}

func TestSnippetTruncation(t *testing.T) {
	assert.Equal(t, "short chunk", snippet("  short chunk\n"))

	long := strings.Repeat("é", maxSnippetLen) // 2 bytes per rune
	got := snippet(long)
	assert.True(t, strings.HasSuffix(got, "..."), "truncated snippet ends with ellipsis")
	assert.True(t, utf8.ValidString(got), "cut must land on a rune boundary")
	assert.LessOrEqual(t, len(got), maxSnippetLen+3)
}

func TestAskPromptContents(t *testing.T) {
	retriever := &fakeRetriever{results: sources("a.md")}
	model := &fakeModel{answer: "ok [1]"}
	engine := newTestEngine(t, retriever, model)

	_, err := engine.Ask(context.Background(), Request{
		Query:      "the question",
		Collection: "c",
		History: []Turn{
			{User: "earlier question", Assistant: "earlier answer"},
		},
	}, Handler{})
	require.NoError(t, err)

	assert.Contains(t, model.prompt, "[1] content of a.md")
	assert.Contains(t, model.prompt, "QUESTION: the question")
	assert.Contains(t, model.prompt, "User: earlier question")
	assert.Contains(t, model.prompt, "Bot: earlier answer")
	assert.Contains(t, model.prompt, "CONTEXT:")
}

func TestAskNoDocuments(t *testing.T) {
	for _, name := range []string{"empty results", "missing collection"} {
		t.Run(name, func(t *testing.T) {
			retriever := &fakeRetriever{}
			if name == "missing collection" {
				retriever.err = vectorstore.ErrCollectionNotFound
			}
			model := &fakeModel{answer: "should not be called"}
			engine := newTestEngine(t, retriever, model)

			var chunks []string
			answer, err := engine.Ask(context.Background(),
				Request{Query: "q", Collection: "missing"},
				Handler{OnChunk: func(c string) error { chunks = append(chunks, c); return nil }})
			require.NoError(t, err)

			assert.Equal(t, NoDocumentsReply, answer.Text)
			assert.Equal(t, []string{NoDocumentsReply}, chunks)
			assert.Empty(t, answer.Citations)
			assert.Empty(t, model.prompt, "model must not be invoked without context")
		})
	}
}

func TestAskFallbackCitations(t *testing.T) {
	retriever := &fakeRetriever{results: sources("a.md", "b.md")}
	model := &fakeModel{answer: "answer without any markers"}
	engine := newTestEngine(t, retriever, model)

	answer, err := engine.Ask(context.Background(),
		Request{Query: "q", Collection: "c"}, Handler{})
	require.NoError(t, err)

	require.Len(t, answer.Citations, 2)
	assert.Equal(t, 1, answer.Citations[0].Index)
	assert.Equal(t, "a.md", answer.Citations[0].Source)
	assert.Equal(t, 2, answer.Citations[1].Index)
}

func TestAskHistoryTruncation(t *testing.T) {
	retriever := &fakeRetriever{results: sources("a.md")}
	model := &fakeModel{answer: "ok"}
	engine, err := NewEngine(retriever, model, Config{TopK: 3, MaxHistory: 2}, log.NewNop())
	require.NoError(t, err)

	history := []Turn{
		{User: "oldest", Assistant: "r0"},
		{User: "middle", Assistant: "r1"},
		{User: "newest", Assistant: "r2"},
	}
	_, err = engine.Ask(context.Background(),
		Request{Query: "q", Collection: "c", History: history}, Handler{})
	require.NoError(t, err)

	assert.NotContains(t, model.prompt, "oldest")
	assert.Contains(t, model.prompt, "middle")
	assert.Contains(t, model.prompt, "newest")
}

func TestAskValidation(t *testing.T) {
	engine := newTestEngine(t, &fakeRetriever{}, &fakeModel{})

	_, err := engine.Ask(context.Background(), Request{Query: "   "}, Handler{})
	assert.Error(t, err)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(nil, &fakeModel{}, Config{}, nil)
	assert.Error(t, err)

	_, err = NewEngine(&fakeRetriever{}, nil, Config{}, nil)
	assert.Error(t, err)
}
