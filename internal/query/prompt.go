package query

import (
	"strings"

	"github.com/Aman-CERP/docrag/internal/store"
)

// SystemPrompt opens every grounded conversation.
const SystemPrompt = "You are a helpful assistant. Answer only from the supplied context. " +
	"If the context does not contain the answer, say you don't know."

// InsufficientContext is the reply when no passage clears the score cutoff.
const InsufficientContext = "I could not find any relevant context to answer that question."

const promptTemplate = `Context information is below.
---------------------
{context}
---------------------
Given the context information and not prior knowledge, answer the question: {question}`

// BuildPrompt fills the template with the hits' texts in rank order,
// separated by a blank line. The question is inserted verbatim.
func BuildPrompt(question string, hits []store.ScoredRecord) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	// Single pass so that placeholder text inside the context is left alone.
	r := strings.NewReplacer("{context}", strings.Join(texts, "\n\n"), "{question}", question)
	return r.Replace(promptTemplate)
}
