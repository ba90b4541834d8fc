package llm

import (
	"fmt"
	"strings"
)

// NoContextPlaceholder keeps the prompt well-formed when retrieval
// produced nothing above the similarity threshold.
const NoContextPlaceholder = "No specific information available."

// BuildContext projects retrieved passages into an ordered, 1-indexed
// bracketed list joined by blank lines.
func BuildContext(contents []string) string {
	if len(contents) == 0 {
		return NoContextPlaceholder
	}

	parts := make([]string, 0, len(contents))
	for i, content := range contents {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, content))
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt assembles the grounded-answer prompt: system framing, the
// retrieved context, instructions that forbid answering outside the
// context, the tone directive, and the question.
func BuildPrompt(query, context, tone string) string {
	return fmt.Sprintf(`You are a helpful assistant specialized in product features.

CONTEXT:
%s

INSTRUCTIONS:
1. Answer the question ONLY using the information provided in the CONTEXT above
2. If the context doesn't contain the answer, say "I don't have information about that in my knowledge base"
3. Be %s in your response
4. Keep the answer concise and accurate
5. Do not make up information or use external knowledge

QUESTION: %s

ANSWER:`, context, tone, query)
}
