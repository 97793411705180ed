// Package pipeline orchestrates the two flows of the system: ingestion
// (load, chunk, embed, index) and querying (retrieve, answer). It owns
// retry of transient collaborator failures and the bounded parallel
// fan-out across documents.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ragpipe/internal/answer"
	"ragpipe/internal/domain"
	"ragpipe/internal/loader"
	"ragpipe/internal/logger"
)

// Options tune the pipeline. Zero values fall back to defaults.
type Options struct {
	TopK        int
	Concurrency int
	MaxRetries  int
}

// DocumentError records the failure of one document during an ingestion
// run. One failing document never aborts the rest of the batch.
type DocumentError struct {
	Document string
	Err      error
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Document, e.Err)
}

func (e DocumentError) Unwrap() error { return e.Err }

// Report summarises an ingestion run.
type Report struct {
	Documents int
	Chunks    int
	Failures  []DocumentError
}

// Pipeline wires the collaborators together.
type Pipeline struct {
	store       domain.Storage
	chunker     domain.Chunker
	embedder    domain.Embedder
	index       domain.Index
	answerer    *answer.Answerer
	topK        int
	concurrency int
	maxRetries  int
}

// New creates a pipeline over the given collaborators.
func New(store domain.Storage, chunker domain.Chunker, embedder domain.Embedder, index domain.Index, answerer *answer.Answerer, opts Options) *Pipeline {
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Pipeline{
		store:       store,
		chunker:     chunker,
		embedder:    embedder,
		index:       index,
		answerer:    answerer,
		topK:        topK,
		concurrency: concurrency,
		maxRetries:  maxRetries,
	}
}

// Setup idempotently creates the index schema for the embedder's vector
// dimension.
func (p *Pipeline) Setup(ctx context.Context) error {
	return p.withRetry(ctx, "ensure schema", func() error {
		return p.index.EnsureSchema(ctx, p.embedder.Dimension())
	})
}

// Ingest runs load, chunk, embed and index for every document in the
// store, fanning out across documents with bounded parallelism.
// Per-document failures are collected into the report; only listing the
// store can fail the run as a whole.
func (p *Pipeline) Ingest(ctx context.Context) (Report, error) {
	if p.store == nil {
		return Report{}, &domain.ConfigError{Reason: "no document source configured"}
	}
	docs, err := p.store.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list documents: %w", err)
	}
	logger.Stage("ingest")
	logger.Info("found %d documents", len(docs))

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report Report
	)
	sem := make(chan struct{}, p.concurrency)
	for _, d := range docs {
		wg.Add(1)
		sem <- struct{}{}
		go func(d domain.DocumentInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			n, err := p.ingestDocument(ctx, d)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, DocumentError{Document: d.Name, Err: err})
				return
			}
			report.Documents++
			report.Chunks += n
		}(d)
	}
	wg.Wait()
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Document < report.Failures[j].Document
	})
	return report, nil
}

func (p *Pipeline) ingestDocument(ctx context.Context, info domain.DocumentInfo) (int, error) {
	var data []byte
	err := p.withRetry(ctx, "read "+info.Name, func() error {
		var err error
		data, err = p.store.Read(ctx, info.Name)
		return err
	})
	if err != nil {
		return 0, err
	}
	text, err := loader.Extract(domain.Document{Name: info.Name, ContentType: info.ContentType, Data: data})
	if err != nil {
		return 0, err
	}
	chunks, err := p.chunker.Chunk(info.Name, text)
	if err != nil {
		return 0, err
	}
	logger.Docf(info.Name, "%d chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	var vectors [][]float32
	err = p.withRetry(ctx, "embed "+info.Name, func() error {
		var err error
		vectors, err = p.embedder.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%s: embedding count mismatch", info.Name)
	}

	// Replace any previous records of this document so re-ingestion
	// leaves exactly one record per chunk ID.
	err = p.withRetry(ctx, "delete "+info.Name, func() error {
		return p.index.DeleteByDocument(ctx, info.Name)
	})
	if err != nil {
		return 0, err
	}
	records := make([]domain.Record, len(chunks))
	for i, ch := range chunks {
		records[i] = domain.Record{Chunk: ch, Vector: vectors[i]}
	}
	err = p.withRetry(ctx, "index "+info.Name, func() error {
		return p.index.Upsert(ctx, records)
	})
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Search embeds the query and returns the fused hybrid ranking, truncated
// to topK. An empty index yields an empty result.
func (p *Pipeline) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &domain.ValidationError{Reason: "empty query"}
	}
	if topK <= 0 {
		topK = p.topK
	}
	var vector []float32
	err := p.withRetry(ctx, "embed query", func() error {
		var err error
		vector, err = p.embedder.Embed(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	var results []domain.SearchResult
	err = p.withRetry(ctx, "search", func() error {
		var err error
		results, err = p.index.HybridSearch(ctx, query, vector, topK)
		return err
	})
	if err != nil {
		return nil, err
	}
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Query answers a question from the indexed documents: retrieve, then
// generate. The two steps are strictly sequential.
func (p *Pipeline) Query(ctx context.Context, question string) (domain.Answer, error) {
	results, err := p.Search(ctx, question, p.topK)
	if err != nil {
		return domain.Answer{}, err
	}
	var ans domain.Answer
	err = p.withRetry(ctx, "generate", func() error {
		var err error
		ans, err = p.answerer.Answer(ctx, question, results)
		return err
	})
	if err != nil {
		return domain.Answer{}, err
	}
	return ans, nil
}

// QueryStream is the streaming variant of Query. Opening the stream is
// retried on transient errors; increments are not, since a partially
// consumed stream cannot be restarted.
func (p *Pipeline) QueryStream(ctx context.Context, question string) (domain.TokenStream, []string, error) {
	results, err := p.Search(ctx, question, p.topK)
	if err != nil {
		return nil, nil, err
	}
	var (
		stream  domain.TokenStream
		sources []string
	)
	err = p.withRetry(ctx, "generate stream", func() error {
		var err error
		stream, sources, err = p.answerer.AnswerStream(ctx, question, results)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return stream, sources, nil
}

// withRetry runs op, retrying transient failures with exponential backoff
// up to the configured attempt count. Fatal and validation errors surface
// immediately.
func (p *Pipeline) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("%s: retrying after transient error: %v", op, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		err = fn()
		if err == nil || !domain.IsTransient(err) {
			return err
		}
	}
	return err
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
