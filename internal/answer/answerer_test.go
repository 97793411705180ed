package answer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
)

type fakeGenerator struct {
	lastPrompt domain.Prompt
	text       string
	err        error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	g.lastPrompt = prompt
	return g.text, g.err
}

func (g *fakeGenerator) GenerateStream(ctx context.Context, prompt domain.Prompt) (domain.TokenStream, error) {
	g.lastPrompt = prompt
	if g.err != nil {
		return nil, g.err
	}
	return &sliceStream{tokens: strings.SplitAfter(g.text, " ")}, nil
}

type sliceStream struct {
	tokens []string
	pos    int
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.tokens) {
		return "", io.EOF
	}
	t := s.tokens[s.pos]
	s.pos++
	return t, nil
}

func (s *sliceStream) Close() error { return nil }

func searchResult(id, document, text string) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{ID: id, Document: document, Text: text}, Score: 1}
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("empty retrieval short-circuits without calling the model", func(t *testing.T) {
		gen := &fakeGenerator{text: "should not be used"}
		a := New(gen, 0)
		ans, err := a.Answer(ctx, "what is up", nil)
		require.NoError(t, err)
		assert.Equal(t, insufficientAnswer, ans.Text)
		assert.Empty(t, ans.Sources)
		assert.Empty(t, gen.lastPrompt.User)
	})

	t.Run("prompt carries context blocks and question", func(t *testing.T) {
		gen := &fakeGenerator{text: "The sky is blue."}
		a := New(gen, 0)
		results := []domain.SearchResult{
			searchResult("sky.txt:0", "sky.txt", "The sky is blue because of Rayleigh scattering."),
			searchResult("sea.txt:0", "sea.txt", "The sea reflects the sky."),
		}
		ans, err := a.Answer(ctx, "Why is the sky blue?", results)
		require.NoError(t, err)
		assert.Equal(t, "The sky is blue.", ans.Text)
		assert.Equal(t, []string{"sky.txt:0", "sea.txt:0"}, ans.Sources)

		assert.Contains(t, gen.lastPrompt.System, "ONLY use information from the context")
		assert.Contains(t, gen.lastPrompt.User, "[Source: sky.txt]\nThe sky is blue because of Rayleigh scattering.")
		assert.Contains(t, gen.lastPrompt.User, "[Source: sea.txt]")
		assert.Contains(t, gen.lastPrompt.User, "Question: Why is the sky blue?")
		assert.True(t, strings.HasSuffix(gen.lastPrompt.User, "Answer:"))
	})

	t.Run("context budget drops lowest ranked chunks first", func(t *testing.T) {
		gen := &fakeGenerator{text: "ok"}
		a := New(gen, 80)
		results := []domain.SearchResult{
			searchResult("a:0", "a", strings.Repeat("x", 50)),
			searchResult("b:0", "b", strings.Repeat("y", 50)),
		}
		ans, err := a.Answer(ctx, "q", results)
		require.NoError(t, err)
		assert.Equal(t, []string{"a:0"}, ans.Sources)
		assert.NotContains(t, gen.lastPrompt.User, "yyy")
	})

	t.Run("single over-budget chunk is truncated, not dropped", func(t *testing.T) {
		gen := &fakeGenerator{text: "ok"}
		a := New(gen, 40)
		results := []domain.SearchResult{
			searchResult("a:0", "a", strings.Repeat("z", 200)),
		}
		ans, err := a.Answer(ctx, "q", results)
		require.NoError(t, err)
		assert.Equal(t, []string{"a:0"}, ans.Sources)
		assert.Contains(t, gen.lastPrompt.User, "zzz")
	})

	t.Run("truncation backs off to a rune boundary", func(t *testing.T) {
		gen := &fakeGenerator{text: "ok"}
		a := New(gen, 31)
		results := []domain.SearchResult{
			searchResult("a:0", "a", strings.Repeat("日本語テキスト", 50)),
		}
		_, err := a.Answer(ctx, "q", results)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(gen.lastPrompt.User))
	})

	t.Run("blank chunks are skipped", func(t *testing.T) {
		gen := &fakeGenerator{text: "ok"}
		a := New(gen, 0)
		results := []domain.SearchResult{
			searchResult("a:0", "a", "   "),
			searchResult("b:0", "b", "real content"),
		}
		ans, err := a.Answer(ctx, "q", results)
		require.NoError(t, err)
		assert.Equal(t, []string{"b:0"}, ans.Sources)
	})

	t.Run("generator errors surface unchanged", func(t *testing.T) {
		wantErr := &domain.TransientError{Op: "chat", Err: errors.New("rate limited")}
		gen := &fakeGenerator{err: wantErr}
		a := New(gen, 0)
		_, err := a.Answer(ctx, "q", []domain.SearchResult{searchResult("a:0", "a", "text")})
		require.Error(t, err)
		assert.True(t, domain.IsTransient(err))
	})
}

func TestAnswerStream(t *testing.T) {
	ctx := context.Background()

	t.Run("streamed tokens concatenate to the full answer", func(t *testing.T) {
		gen := &fakeGenerator{text: "the sky is blue"}
		a := New(gen, 0)
		stream, sources, err := a.AnswerStream(ctx, "q", []domain.SearchResult{searchResult("a:0", "a", "text")})
		require.NoError(t, err)
		assert.Equal(t, []string{"a:0"}, sources)

		var sb strings.Builder
		for {
			token, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			sb.WriteString(token)
		}
		require.NoError(t, stream.Close())
		assert.Equal(t, "the sky is blue", sb.String())
	})

	t.Run("empty retrieval streams the insufficient answer", func(t *testing.T) {
		gen := &fakeGenerator{}
		a := New(gen, 0)
		stream, sources, err := a.AnswerStream(ctx, "q", nil)
		require.NoError(t, err)
		assert.Empty(t, sources)

		token, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, insufficientAnswer, token)
		_, err = stream.Recv()
		assert.ErrorIs(t, err, io.EOF)
	})
}
