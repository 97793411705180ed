// Package answer turns retrieval results into a grounded prompt and an
// answer with cited sources.
package answer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"ragpipe/internal/domain"
)

const systemPrompt = `You are a helpful assistant that answers questions based on the provided context.

Rules:
- ONLY use information from the context below to answer
- If the context doesn't contain the answer, say "I don't have enough information to answer this."
- Be concise and direct
- Cite which document/section the information comes from when possible`

// insufficientAnswer is returned without calling the model when retrieval
// produced no usable context.
const insufficientAnswer = "I don't have enough information to answer this. No relevant context was found in the indexed documents."

const blockSep = "\n\n---\n\n"

// Answerer builds grounded prompts and calls the generation collaborator.
type Answerer struct {
	gen             domain.Generator
	maxContextChars int
}

// New creates an answerer. maxContextChars bounds the total size of the
// context placed in the prompt; chunks past the budget are dropped lowest
// rank first.
func New(gen domain.Generator, maxContextChars int) *Answerer {
	if maxContextChars <= 0 {
		maxContextChars = 6000
	}
	return &Answerer{gen: gen, maxContextChars: maxContextChars}
}

// Answer generates a complete answer for the question from the retrieved
// chunks. The returned Answer always carries the IDs of the chunks that
// were placed in the prompt, whether or not the model cited them.
func (a *Answerer) Answer(ctx context.Context, question string, results []domain.SearchResult) (domain.Answer, error) {
	prompt, sources := a.buildPrompt(question, results)
	if len(sources) == 0 {
		return domain.Answer{Text: insufficientAnswer}, nil
	}
	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{Text: text, Sources: sources}, nil
}

// AnswerStream is the streaming variant of Answer. The source chunk IDs
// are known before generation starts and are returned up front.
func (a *Answerer) AnswerStream(ctx context.Context, question string, results []domain.SearchResult) (domain.TokenStream, []string, error) {
	prompt, sources := a.buildPrompt(question, results)
	if len(sources) == 0 {
		return &staticStream{text: insufficientAnswer}, nil, nil
	}
	stream, err := a.gen.GenerateStream(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}
	return stream, sources, nil
}

// buildPrompt renders the context blocks in rank order under the context
// budget and returns the prompt plus the chunk IDs actually included.
func (a *Answerer) buildPrompt(question string, results []domain.SearchResult) (domain.Prompt, []string) {
	var blocks []string
	var sources []string
	used := 0
	for _, r := range results {
		if strings.TrimSpace(r.Chunk.Text) == "" {
			continue
		}
		block := fmt.Sprintf("[Source: %s]\n%s", r.Chunk.Document, r.Chunk.Text)
		need := len(block)
		if used > 0 {
			need += len(blockSep)
		}
		if used+need > a.maxContextChars {
			if len(blocks) == 0 {
				// A single over-budget chunk is truncated rather than
				// leaving the prompt with no context at all.
				blocks = append(blocks, truncate(block, a.maxContextChars))
				sources = append(sources, r.Chunk.ID)
			}
			break
		}
		blocks = append(blocks, block)
		sources = append(sources, r.Chunk.ID)
		used += need
	}
	if len(blocks) == 0 {
		return domain.Prompt{}, nil
	}
	user := fmt.Sprintf("Context:\n%s\n\n---\n\nQuestion: %s\n\nAnswer:", strings.Join(blocks, blockSep), question)
	return domain.Prompt{System: systemPrompt, User: user}, sources
}

// truncate cuts s to at most n bytes, backed off to a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// staticStream yields a fixed text once, then io.EOF. It backs the
// streaming mode when there is no context to send to the model.
type staticStream struct {
	text string
	done bool
}

func (s *staticStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *staticStream) Close() error {
	s.done = true
	return nil
}
