// Package ragline wires the retrieval-augmented generation pipeline
// described across §4: parsing, chunking, embedding, and persisting
// documents (the ingestion coordinator); searching them (the retrieval
// coordinator); and answering questions about them (the ask coordinator),
// with an optional verification pass over the generated answer.
//
// Engine constructs every collaborator once and holds them as explicit
// dependencies rather than module-level singletons (§9's design note):
// callers that need a different wiring (a fake vector store in tests, a
// second embedding model) construct their own coordinators directly from
// the store/vectorstore/llm/retrieval/reasoning packages instead of going
// through Engine.
package ragline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brunobiangulo/ragline/chunker"
	"github.com/brunobiangulo/ragline/llm"
	"github.com/brunobiangulo/ragline/parser"
	"github.com/brunobiangulo/ragline/query"
	"github.com/brunobiangulo/ragline/reasoning"
	"github.com/brunobiangulo/ragline/retrieval"
	"github.com/brunobiangulo/ragline/store"
	"github.com/brunobiangulo/ragline/util"
	"github.com/brunobiangulo/ragline/vectorstore"
)

// Engine is the process-wide set of wired collaborators for a single
// ragline deployment: one metadata store, one vector collection, one set
// of LLM-shaped gateway clients, and the three coordinators built on top
// of them.
type Engine struct {
	cfg Config

	Store       *store.Store
	VectorStore *vectorstore.Store
	Embedder    llm.Embedder
	Chat        llm.ChatClient
	Reranker    llm.Reranker

	Parsers *parser.Registry
	Chunker *chunker.Chunker
	Locks   *util.LockManager
	Expander *query.Expander
	HyDE     *query.HyDE

	Ingestor  *Ingestor
	Retriever *retrieval.Coordinator
	Verifier  *reasoning.Pipeline
	Asker     *Asker

	logger *slog.Logger
}

// New constructs an Engine from cfg: it opens the metadata store, dials the
// vector store, builds the embedding/chat/rerank gateway clients, and wires
// the ingestion, retrieval, verification, and ask coordinators on top of
// them (§2, §9).
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Embedding.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding api key is required", ErrInvalidConfig)
	}

	st, err := store.New(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("ragline: opening metadata store: %w", err)
	}

	vs, err := vectorstore.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.VectorSize, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("ragline: dialing vector store: %w", err)
	}
	if err := vs.EnsureCollection(context.Background()); err != nil {
		st.Close()
		vs.Close()
		return nil, fmt.Errorf("ragline: ensuring vector collection: %w", err)
	}

	embedder := llm.NewEmbeddingClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.VectorSize, cfg.Embedding.Timeout, logger)
	chat := llm.NewChatGatewayClient(cfg.Chat.BaseURL, cfg.Chat.APIKey, cfg.Chat.Model, cfg.Chat.Timeout, logger)

	var reranker llm.Reranker
	if cfg.Reranker.Enabled {
		reranker = llm.NewRerankGatewayClient(cfg.Chat.BaseURL, cfg.Chat.APIKey, cfg.Reranker.Model, cfg.Chat.Timeout, logger)
	}

	expander := query.NewExpander(chat)
	expander.SetEnabled(cfg.QueryExpansion)
	hyde := query.NewHyDE(chat)
	hyde.SetEnabled(cfg.HydeEnabled)

	parsers := parser.NewRegistry()
	chunks := chunker.New(chunker.Config{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap, MinChunkSize: cfg.MinChunkSize})
	locks := util.NewLockManager(cfg.LockTimeout, logger)

	ingestor := NewIngestor(st, vs, embedder, chat, parsers, chunks, locks, IngestConfig{
		AutoSummary: cfg.AutoSummary,
		AutoTags:    cfg.AutoTags,
	}, logger)

	retriever := retrieval.New(vs, embedder, reranker, expander, hyde, retrieval.Config{
		Limit:     cfg.SearchLimit,
		Threshold: cfg.SearchThreshold,
		Reranker: retrieval.RerankerConfig{
			Enabled:             cfg.Reranker.Enabled,
			CandidateMultiplier: cfg.Reranker.CandidateMultiplier,
		},
	})

	verifier := reasoning.NewPipeline(chat, reasoning.Config{
		Enabled:            true,
		MaxParallelCalls:   cfg.MaxParallelCalls,
		RelevanceThreshold: cfg.RelevanceThreshold,
		GroundingThreshold: cfg.GroundingThreshold,
		CacheTTL:           cfg.VerificationCache.TTL,
		CacheCapacity:      cfg.VerificationCache.Capacity,
	})

	asker := NewAsker(retriever, chat, verifier, cfg.Chat.Model)

	return &Engine{
		cfg:         cfg,
		Store:       st,
		VectorStore: vs,
		Embedder:    embedder,
		Chat:        chat,
		Reranker:    reranker,
		Parsers:     parsers,
		Chunker:     chunks,
		Locks:       locks,
		Expander:    expander,
		HyDE:        hyde,
		Ingestor:    ingestor,
		Retriever:   retriever,
		Verifier:    verifier,
		Asker:       asker,
		logger:      logger,
	}, nil
}

// IndexDocument ingests a file on disk (§4.9).
func (e *Engine) IndexDocument(ctx context.Context, path string, opts ...IngestOption) (*IngestResult, error) {
	return e.Ingestor.IndexDocument(ctx, path, opts...)
}

// IndexText ingests inline content with no backing file (§4.9).
func (e *Engine) IndexText(ctx context.Context, content, title string, metadata map[string]interface{}) (*IngestResult, error) {
	return e.Ingestor.IndexText(ctx, content, title, metadata)
}

// Search runs the retrieval pipeline (§4.10).
func (e *Engine) Search(ctx context.Context, req retrieval.SearchRequest) (*retrieval.SearchResponse, error) {
	return e.Retriever.Search(ctx, req)
}

// Ask runs the ask pipeline (§4.12).
func (e *Engine) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	return e.Asker.Ask(ctx, req)
}

// DeleteDocument removes a document and all of its chunks and vectors
// (§4.9, §8 property 7).
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	if !util.IsValidUUID(documentID) {
		return fmt.Errorf("%w: %s", ErrInvalidUUID, documentID)
	}
	if _, err := e.Store.GetDocumentByID(ctx, documentID); err != nil {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return e.Ingestor.DeleteDocument(ctx, documentID)
}

// GetDocument fetches a document by id.
func (e *Engine) GetDocument(ctx context.Context, documentID string) (*store.Document, error) {
	doc, err := e.Store.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return doc, nil
}

// ListDocuments returns every ingested document, newest first.
func (e *Engine) ListDocuments(ctx context.Context) ([]*store.Document, error) {
	return e.Store.GetAllDocuments(ctx)
}

// Close releases the metadata store connection and the vector store's
// client connection (§9's teardown note).
func (e *Engine) Close() error {
	var firstErr error
	if err := e.VectorStore.Close(); err != nil {
		firstErr = err
	}
	if err := e.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
