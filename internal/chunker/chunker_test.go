package chunker

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "  \n\t ", nil},
		{"single no punctuation", "no terminal punctuation here", []string{"no terminal punctuation here"}},
		{"mixed terminals", "One. Two! Three? Four.", []string{"One.", "Two!", "Three?", "Four."}},
		{"newlines and tabs", "First.\n\nSecond.\tThird.", []string{"First.", "Second.", "Third."}},
		{"trailing fragment", "Done. and then some", []string{"Done.", "and then some"}},
		{"decimal stays inside", "Covers up to $10,000.50 per claim. Ok.", []string{"Covers up to $10,000.50 per claim.", "Ok."}},
		{"repeated punctuation", "Really?! Yes...  Fine.", []string{"Really?!", "Yes...", "Fine."}},
		{"leading whitespace trimmed", "   Hello there. Bye.   ", []string{"Hello there.", "Bye."}},
		{"unicode", "Garantie incluse. Très bien! Ça marche?", []string{"Garantie incluse.", "Très bien!", "Ça marche?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sentences(tt.text))
		})
	}
}

func TestChunk(t *testing.T) {
	text := "S1. S2. S3. S4. S5. S6. S7."

	assert.Equal(t, []string{"S1. S2. S3.", "S4. S5. S6.", "S7."}, Chunk(text, 3))
	assert.Equal(t, []string{"S1. S2.", "S3. S4.", "S5. S6.", "S7."}, Chunk(text, 2))
	assert.Equal(t, []string{text}, Chunk(text, 10))
	assert.Equal(t, Chunk(text, DefaultMaxSentences), Chunk(text, 0), "non-positive size uses the default")
}

func TestChunk_Empty(t *testing.T) {
	assert.Empty(t, Chunk("", 3))
	assert.Empty(t, Chunk("   ", 3))
}

func TestChunk_JoinsWithSingleSpace(t *testing.T) {
	chunks := Chunk("Alpha.\n\n\nBeta.   Gamma.", 3)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Alpha. Beta. Gamma.", chunks[0])
}

// Every sentence appears exactly once, in order, and every chunk but the
// last holds exactly maxSentences sentences.
func TestChunk_ReconstructsSentenceSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	words := []string{"policy", "claim", "water", "damage", "cover", "limit", "€10", "deductible"}
	terminals := []string{".", "!", "?"}
	spaces := []string{" ", "  ", "\n", "\t", " \n "}

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(12)
		var b strings.Builder
		for s := 0; s < n; s++ {
			for w := 0; w <= rng.Intn(5); w++ {
				if w > 0 {
					b.WriteString(" ")
				}
				b.WriteString(words[rng.Intn(len(words))])
			}
			b.WriteString(terminals[rng.Intn(len(terminals))])
			b.WriteString(spaces[rng.Intn(len(spaces))])
		}
		text := b.String()
		maxSentences := 1 + rng.Intn(4)

		sentences := Sentences(text)
		chunks := Chunk(text, maxSentences)

		assert.Equal(t, strings.Join(sentences, " "), strings.Join(chunks, " "), "text %q", text)
		for i, c := range chunks {
			got := len(Sentences(c))
			if i < len(chunks)-1 {
				assert.Equal(t, maxSentences, got, "chunk %d of %q", i, text)
			} else {
				assert.LessOrEqual(t, got, maxSentences)
				assert.Positive(t, got)
			}
		}
	}
}
