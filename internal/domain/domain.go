package domain

import "context"

// DocumentInfo describes a stored document without its content.
type DocumentInfo struct {
	Name        string
	ContentType string
}

// Document is a raw stored document plus the metadata needed to extract it.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Chunk is a bounded text segment derived from a document. It is the unit
// of indexing and retrieval. ID is stable across re-ingestion of the same
// document ("<document>:<index>").
type Chunk struct {
	ID       string
	Document string
	Text     string
	Index    int
}

// Record is what the search index stores: one chunk plus its embedding.
type Record struct {
	Chunk  Chunk
	Vector []float32
}

// SearchResult is a matching chunk with its fused relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Answer is generated text plus the IDs of the chunks that were placed in
// the prompt context, in rank order.
type Answer struct {
	Text    string
	Sources []string
}

// Prompt is a fully rendered generation request.
type Prompt struct {
	System string
	User   string
}

// Storage lists and reads raw documents. Implementations wrap a local
// directory or a remote blob container.
type Storage interface {
	List(ctx context.Context) ([]DocumentInfo, error)
	Read(ctx context.Context, name string) ([]byte, error)
}

// Chunker splits extracted document text into chunks suitable for
// embedding and retrieval.
type Chunker interface {
	Chunk(document, text string) ([]Chunk, error)
}

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Index persists records and answers hybrid (lexical + vector) queries
// with a single fused ranking. EnsureSchema is idempotent; Upsert is
// last-write-wins on chunk ID.
type Index interface {
	EnsureSchema(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records []Record) error
	HybridSearch(ctx context.Context, query string, vector []float32, topK int) ([]SearchResult, error)
	DeleteByDocument(ctx context.Context, document string) error
}

// TokenStream is a pull-based sequence of text increments from a streaming
// generation call. Recv returns io.EOF when the stream is done. Close
// releases the underlying connection; a caller cancels by closing without
// draining.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Generator produces text from a prompt, either blocking or streamed.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	GenerateStream(ctx context.Context, prompt Prompt) (TokenStream, error)
}
