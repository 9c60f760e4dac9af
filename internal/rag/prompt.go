package rag

import (
	"fmt"
	"strings"

	"github.com/tomeworks/tome/internal/vectorstore"
)

// refusalSentence is what the model is told to say when the context does not
// contain the answer.
const refusalSentence = "I regret to inform you that I am unable to provide a specific answer at this time, as this information is not available to me."

// buildPrompt assembles the grounded prompt: numbered context passages, the
// recent chat history, and the question. Sources are numbered so the model
// can cite them with [n] markers.
func buildPrompt(query string, results []vectorstore.SearchResult, history []Turn) string {
	var context strings.Builder
	for i, result := range results {
		fmt.Fprintf(&context, "[%d] %s\n\n", i+1, strings.TrimSpace(result.Document.PageContent))
	}

	var chatContext strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&chatContext, "User: %s\nBot: %s\n", turn.User, turn.Assistant)
	}

	return fmt.Sprintf(`You are a helpful AI assistant that answers questions using the provided context.

IMPORTANT INSTRUCTIONS:
- If you don't know the answer, say %q
- Format your response clearly using markdown for better readability
- For lists, use proper bullet points or numbered lists
- Be concise and well-organized in your responses
- Focus on the most relevant information from the context
- Cite the context passages you used with their bracketed number, for example [1] or [3]

CONTEXT:
%s
CHAT HISTORY:
%s
QUESTION: %s

ANSWER:`, refusalSentence, context.String(), chatContext.String(), query)
}
