package synthesis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/retriever"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Priming is the model turn acknowledging the instruction.
const Priming = "Je comprends. Je répondrai uniquement en me basant sur les documents fournis."

// SystemPrompt returns the instruction for owner's assistant.
func SystemPrompt(owner string) string {
	return fmt.Sprintf(`You are an intelligent assistant for %s, helping users find information from their insurance documents.

**Your role:**
- Be friendly and conversational for greetings and casual questions
- For factual questions about insurance/documents: Answer using ONLY the provided context documents
- Always cite the specific document source when providing factual information
- Be clear, concise, and professional
- Use the language of the user's question (French/English)

**How to respond:**

1. **Greetings/casual chat** (hello, hi, how are you, thank you, etc.):
   - Respond naturally and friendly
   - Ask how you can help them
   - No need to cite sources

2. **Factual questions about insurance/documents**:
   - Use ONLY the provided context documents
   - If the answer is NOT in the context, respond: "Je ne trouve pas cette information dans vos documents." or "I cannot find this information in your documents."
   - NEVER invent or make up information
   - NEVER use general knowledge about insurance
   - Always indicate which document your answer comes from
   - If context is ambiguous or incomplete, acknowledge this limitation

**Response format for factual questions:**
- Provide a clear, direct answer
- Reference the source document
- If multiple documents are relevant, cite all of them

Remember: Be conversational for greetings, but strict about using ONLY provided context for factual questions.`, owner)
}

// FormatContext renders results as numbered document blocks joined by a
// blank line.
func FormatContext(results []vectorstore.Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		source := r.Tenant()
		if source == "" {
			source = "unknown"
		}
		parts[i] = fmt.Sprintf("[Document %d] (Relevance: %s)\nSource: %s\nContent: %s\n",
			i+1, formatSimilarity(retriever.Similarity(r.Distance)), source, r.Content)
	}
	return strings.Join(parts, "\n")
}

// UserPrompt wraps the rendered context and the question.
func UserPrompt(query, contextText, owner string) string {
	return fmt.Sprintf("Context documents for %s:\n\n%s\n\n---\n\nUser question: %s\n\nAnswer based ONLY on the context above:",
		owner, contextText, query)
}

// formatSimilarity prints the shortest decimal, keeping one fractional
// digit for whole numbers ("1.0", "0.8766").
func formatSimilarity(s float64) string {
	out := strconv.FormatFloat(s, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}
