// Package chunker splits document text into fixed-size groups of sentences.
//
// A sentence ends at '.', '!' or '?' followed by whitespace. Grouping is
// purely positional: consecutive sentences are batched by count, with no
// overlap and no similarity clustering.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxSentences is the group size used when none is given.
const DefaultMaxSentences = 3

// Sentences splits text at every whitespace run that directly follows a
// terminal punctuation mark. The whitespace itself is dropped. Text with no
// terminal punctuation is a single sentence. Empty or blank text yields nil.
func Sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isTerminal(r) {
			i += size
			continue
		}
		end := i + size
		j := end
		for j < len(text) {
			ws, wsSize := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += wsSize
		}
		if j > end {
			sentences = append(sentences, text[start:end])
			start = j
		}
		i = j
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

// Chunk groups the sentences of text into chunks of maxSentences, joined
// with a single space. The last chunk may hold fewer sentences. A
// non-positive maxSentences uses DefaultMaxSentences.
func Chunk(text string, maxSentences int) []string {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}

	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(sentences)+maxSentences-1)/maxSentences)
	for i := 0; i < len(sentences); i += maxSentences {
		end := min(i+maxSentences, len(sentences))
		chunks = append(chunks, strings.TrimSpace(strings.Join(sentences[i:end], " ")))
	}
	return chunks
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
