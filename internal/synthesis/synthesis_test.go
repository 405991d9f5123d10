package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type recordingGenerator struct {
	reply    string
	err      error
	calls    int
	exchange llm.Exchange
	decoding llm.Decoding
}

func (g *recordingGenerator) Generate(_ context.Context, ex llm.Exchange, dec llm.Decoding) (string, error) {
	g.calls++
	g.exchange = ex
	g.decoding = dec
	return g.reply, g.err
}

func result(owner, content string, distance float64) vectorstore.Result {
	return vectorstore.Result{
		Content:  content,
		Metadata: map[string]string{vectorstore.TenantKey: owner},
		Distance: distance,
	}
}

func TestSynthesize_EmptyResultsFallback(t *testing.T) {
	gen := &recordingGenerator{}
	logger := logging.NewTestLogger()
	s, err := New(gen, Config{}, logger.Logger)
	require.NoError(t, err)

	ans, err := s.Synthesize(context.Background(), "Is flooding covered?", "acme", nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, ans.Answer)
	assert.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, gen.calls, "no model call without context")
	logger.AssertLogged(t, zapcore.InfoLevel, "fallback answer")
}

func TestSynthesize_CustomFallback(t *testing.T) {
	s, err := New(&recordingGenerator{}, Config{FallbackAnswer: "Nothing found."}, nil)
	require.NoError(t, err)

	ans, err := s.Synthesize(context.Background(), "q", "acme", []vectorstore.Result{})
	require.NoError(t, err)
	assert.Equal(t, "Nothing found.", ans.Answer)
}

func TestSynthesize_MarkerReachesModel(t *testing.T) {
	const marker = "ZX-MARKER-7731"
	gen := &recordingGenerator{reply: "The code is " + marker + "."}
	s, err := New(gen, Config{}, nil)
	require.NoError(t, err)

	results := []vectorstore.Result{
		result("acme", "The policy reference is "+marker+".", 0.1),
	}
	ans, err := s.Synthesize(context.Background(), "What is the reference?", "acme", results)
	require.NoError(t, err)

	require.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.exchange.User, marker)
	assert.Contains(t, gen.exchange.User, "User question: What is the reference?")
	assert.Equal(t, SystemPrompt("acme"), gen.exchange.System)
	assert.Equal(t, Priming, gen.exchange.Priming)
	assert.Equal(t, llm.DefaultDecoding(), gen.decoding)

	assert.Equal(t, gen.reply, ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, 0.9, ans.Sources[0].Similarity)
	assert.Equal(t, map[string]string{"tenant": "acme"}, ans.Sources[0].Metadata)
}

func TestSynthesize_GeneratorError(t *testing.T) {
	boom := errors.New("503 from provider")
	s, err := New(&recordingGenerator{err: boom}, Config{}, nil)
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q", "acme", []vectorstore.Result{result("acme", "c", 0.2)})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.ErrorIs(t, err, boom)
}

func TestSynthesize_EmptyReplyIsNotAnError(t *testing.T) {
	s, err := New(&recordingGenerator{reply: ""}, Config{}, nil)
	require.NoError(t, err)

	ans, err := s.Synthesize(context.Background(), "q", "acme", []vectorstore.Result{result("acme", "c", 0.2)})
	require.NoError(t, err)
	assert.Equal(t, "", ans.Answer)
	assert.Len(t, ans.Sources, 1)
}

func TestSynthesize_CustomDecoding(t *testing.T) {
	gen := &recordingGenerator{reply: "ok"}
	dec := llm.Decoding{Temperature: 0, MaxTokens: 64, TopP: 1, TopK: 1}
	s, err := New(gen, Config{Decoding: &dec}, nil)
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q", "acme", []vectorstore.Result{result("acme", "c", 0)})
	require.NoError(t, err)
	assert.Equal(t, dec, gen.decoding)
}

func TestNew_RequiresGenerator(t *testing.T) {
	_, err := New(nil, Config{}, nil)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]vectorstore.Result{
		result("acme", "Water damage is covered.", 0.12344),
		{Content: "Orphan chunk.", Distance: 0},
	})
	want := "[Document 1] (Relevance: 0.8766)\nSource: acme\nContent: Water damage is covered.\n" +
		"\n" +
		"[Document 2] (Relevance: 1.0)\nSource: unknown\nContent: Orphan chunk.\n"
	assert.Equal(t, want, got)
}

func TestUserPrompt(t *testing.T) {
	got := UserPrompt("Q?", "CTX", "acme")
	assert.Equal(t, "Context documents for acme:\n\nCTX\n\n---\n\nUser question: Q?\n\nAnswer based ONLY on the context above:", got)
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt("acme")
	assert.True(t, strings.HasPrefix(p, "You are an intelligent assistant for acme,"))
	assert.Contains(t, p, "Je ne trouve pas cette information dans vos documents.")
	assert.Contains(t, p, "I cannot find this information in your documents.")
	assert.Contains(t, p, "Use the language of the user's question")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short...", Preview("short"))

	long := strings.Repeat("a", 250)
	assert.Equal(t, strings.Repeat("a", 200)+"...", Preview(long))

	// Multi-byte runes are never split.
	accented := strings.Repeat("é", 201)
	got := Preview(accented)
	assert.Equal(t, strings.Repeat("é", 200)+"...", got)
}

func TestSources_CopiesMetadata(t *testing.T) {
	r := result("acme", "c", 0.5)
	src := Sources([]vectorstore.Result{r})
	src[0].Metadata["tenant"] = "mutated"
	assert.Equal(t, "acme", r.Metadata["tenant"])
	assert.Equal(t, 0.5, src[0].Similarity)
}
