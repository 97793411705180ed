package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"ragpipe/internal/domain"
)

// DefaultSize is the default chunk size in characters.
const DefaultSize = 500

// DefaultOverlap is the default number of characters carried over from the
// previous chunk.
const DefaultOverlap = 50

const pieceSep = "\n\n"

// Chunker splits text into overlapping chunks, preferring paragraph
// boundaries and falling back to sentence boundaries for long paragraphs.
// No text is ever dropped; a piece longer than the chunk budget is split
// hard at the budget.
type Chunker struct {
	size     int
	overlap  int
	splitter *regexp.Regexp
}

// New creates a chunker with the given size and overlap in characters.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{
		size:     size,
		overlap:  overlap,
		splitter: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Chunk splits the extracted text of a document into chunks. Text that
// fits in one chunk yields exactly one chunk; empty text is invalid.
func (c *Chunker) Chunk(document, text string) ([]domain.Chunk, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &domain.ValidationError{Reason: "document " + document + " has no text"}
	}
	if len(trimmed) <= c.size {
		return []domain.Chunk{{
			ID:       chunkID(document, 0),
			Document: document,
			Text:     trimmed,
			Index:    0,
		}}, nil
	}

	// Reserve room for the carried overlap so every chunk stays under size.
	budget := c.size - c.overlap - len(pieceSep)
	if budget < 1 {
		budget = c.size / 2
	}
	pieces := c.split(trimmed, budget)

	var chunks []domain.Chunk
	var group []string
	groupLen := 0
	emit := func() {
		if len(group) == 0 {
			return
		}
		text := strings.Join(group, pieceSep)
		if len(chunks) > 0 && c.overlap > 0 {
			prev := chunks[len(chunks)-1].Text
			text = tail(prev, c.overlap) + pieceSep + text
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:       chunkID(document, idx),
			Document: document,
			Text:     text,
			Index:    idx,
		})
		group = group[:0]
		groupLen = 0
	}
	for _, p := range pieces {
		add := len(p)
		if groupLen > 0 {
			add += len(pieceSep)
		}
		if groupLen > 0 && groupLen+add > budget {
			emit()
			add = len(p)
		}
		group = append(group, p)
		groupLen += add
	}
	emit()
	return chunks, nil
}

// split breaks text into paragraph pieces, splitting long paragraphs on
// sentence boundaries and oversized sentences hard at the budget.
func (c *Chunker) split(text string, budget int) []string {
	var pieces []string
	appendPiece := func(p string) {
		for len(p) > budget {
			cut := budget
			for cut > 0 && !utf8.RuneStart(p[cut]) {
				cut--
			}
			if cut == 0 {
				cut = budget
			}
			pieces = append(pieces, p[:cut])
			p = p[cut:]
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	for _, para := range strings.Split(text, pieceSep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= budget {
			pieces = append(pieces, para)
			continue
		}
		// Sentence splitting; keep any trailing text without terminal
		// punctuation so nothing is dropped.
		end := 0
		for _, loc := range c.splitter.FindAllStringIndex(para, -1) {
			if s := strings.TrimSpace(para[loc[0]:loc[1]]); s != "" {
				appendPiece(s)
			}
			end = loc[1]
		}
		if rest := strings.TrimSpace(para[end:]); rest != "" {
			appendPiece(rest)
		}
	}
	return pieces
}

// tail returns the last n bytes of s, backed off to a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

func chunkID(document string, index int) string {
	return document + ":" + strconv.Itoa(index)
}
