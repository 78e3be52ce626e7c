package ragline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/ragline/chunker"
	"github.com/brunobiangulo/ragline/llm"
	"github.com/brunobiangulo/ragline/parser"
	"github.com/brunobiangulo/ragline/store"
	"github.com/brunobiangulo/ragline/util"
	"github.com/brunobiangulo/ragline/vectorstore"
)

// extensionFileTypes maps the file extensions named in §6 to their
// canonical fileType.
var extensionFileTypes = map[string]string{
	".txt":      "txt",
	".md":       "md",
	".markdown": "md",
	".docx":     "docx",
	".pdf":      "pdf",
	".pptx":     "pptx",
	".xlsx":     "xlsx",
	".xls":      "xlsx",
	".csv":      "csv",
	".html":     "html",
	".htm":      "html",
	".json":     "json",
	".rtf":      "rtf",
}

func fileTypeFromExt(path string) (string, bool) {
	ft, ok := extensionFileTypes[strings.ToLower(filepath.Ext(path))]
	return ft, ok
}

// IngestOption configures a single IndexDocument/IndexText call.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	forceReindex bool
	collectionID string
	metadata     map[string]interface{}
}

// WithForceReindex re-ingests a document even if its checksum hasn't
// changed (§4.9 step 4).
func WithForceReindex() IngestOption {
	return func(o *ingestOptions) { o.forceReindex = true }
}

// WithCollectionID assigns the ingested document to a collection.
func WithCollectionID(id string) IngestOption {
	return func(o *ingestOptions) { o.collectionID = id }
}

// WithIngestMetadata merges extra metadata into the document record.
func WithIngestMetadata(metadata map[string]interface{}) IngestOption {
	return func(o *ingestOptions) { o.metadata = metadata }
}

// IngestResult reports the outcome of an ingestion call (§4.9, §7). A failed
// ingest is returned as a result with Status="failed" and Error populated,
// not as a Go error, except for validation failures that precede any row
// being created.
type IngestResult struct {
	DocumentID string `json:"documentId"`
	ChunkCount int    `json:"chunkCount"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// IngestConfig bounds the ingestion coordinator's optional enhancement
// stages (§4.9 step 10).
type IngestConfig struct {
	AutoSummary  bool
	AutoTags     bool
	AllowedBases []string
}

// vectorWriter is the slice of *vectorstore.Store an Ingestor depends on,
// narrowed to an interface so the ingestion pipeline can be exercised with
// a fake in tests without dialing a live Qdrant instance.
type vectorWriter interface {
	UpsertVectors(ctx context.Context, points []vectorstore.Point) error
	DeleteVectorsByDocumentID(ctx context.Context, documentID string) error
}

// Ingestor orchestrates parse -> chunk -> embed -> persist under a per-path
// lock (§4.9). It is the ingestion coordinator named in §2.
type Ingestor struct {
	store    *store.Store
	vs       vectorWriter
	embedder llm.Embedder
	chat     llm.ChatClient
	parsers  *parser.Registry
	chunks   *chunker.Chunker
	locks    *util.LockManager
	cfg      IngestConfig
	logger   *slog.Logger
}

// NewIngestor constructs an Ingestor. chat may be nil, which disables
// auto-summary and auto-tags regardless of cfg.
func NewIngestor(st *store.Store, vs vectorWriter, embedder llm.Embedder, chat llm.ChatClient, parsers *parser.Registry, chunks *chunker.Chunker, locks *util.LockManager, cfg IngestConfig, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:    st,
		vs:       vs,
		embedder: embedder,
		chat:     chat,
		parsers:  parsers,
		chunks:   chunks,
		locks:    locks,
		cfg:      cfg,
		logger:   logger,
	}
}

// IndexDocument runs the full ingestion pipeline (§4.9) for a file on disk.
func (in *Ingestor) IndexDocument(ctx context.Context, path string, opts ...IngestOption) (*IngestResult, error) {
	o := &ingestOptions{}
	for _, fn := range opts {
		fn(o)
	}

	clean, err := util.ValidatePath(path, in.cfg.AllowedBases)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	release, err := in.locks.Acquire(ctx, clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	defer release()

	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("ragline: stat %s: %w", clean, err)
	}

	checksum, err := hashFile(clean)
	if err != nil {
		return nil, fmt.Errorf("ragline: hashing %s: %w", clean, err)
	}

	fileType, ok := fileTypeFromExt(clean)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(clean))
	}

	doc, reused, err := in.resolveDocumentRow(ctx, clean, info, checksum, fileType, o)
	if err != nil {
		return nil, err
	}
	if reused {
		return &IngestResult{DocumentID: doc.ID, ChunkCount: doc.ChunkCount, Status: doc.Status}, nil
	}

	p, err := in.parsers.Get(fileType)
	if err != nil {
		return in.fail(ctx, doc, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err))
	}

	parsed, err := p.Parse(ctx, clean)
	if err != nil {
		return in.fail(ctx, doc, fmt.Errorf("%w: %v", ErrParsingFailed, err))
	}

	return in.chunkEmbedPersist(ctx, doc, parsed)
}

// IndexText runs the ingestion pipeline (§4.9) over inline content that has
// no backing file. Each call creates a fresh document; there is no
// checksum-based dedup path since there is no stable filepath to key on.
func (in *Ingestor) IndexText(ctx context.Context, content, title string, metadata map[string]interface{}) (*IngestResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoContent
	}
	if title == "" {
		title = "untitled"
	}

	sum := sha256.Sum256([]byte(content))
	checksum := hex.EncodeToString(sum[:])
	id := uuid.New().String()
	path := fmt.Sprintf("text://%s/%s", id, title)

	release, err := in.locks.Acquire(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	defer release()

	now := time.Now().UTC()
	merged := store.Metadata{}
	for k, v := range metadata {
		merged[k] = v
	}

	doc := &store.Document{
		ID:        id,
		Filename:  title,
		Filepath:  path,
		FileType:  "txt",
		FileSize:  int64(len(content)),
		MimeType:  "text/plain",
		Checksum:  checksum,
		Status:    "processing",
		Metadata:  merged,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := in.store.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("ragline: inserting document: %w", err)
	}

	parsed := &parser.ParsedDocument{Content: content, Metadata: map[string]string{"title": title}}
	return in.chunkEmbedPersist(ctx, doc, parsed)
}

// resolveDocumentRow implements §4.9 steps 3-5: look up by path, short
// circuit on unchanged checksum, or delete-then-recreate on change.
func (in *Ingestor) resolveDocumentRow(ctx context.Context, path string, info os.FileInfo, checksum, fileType string, o *ingestOptions) (*store.Document, bool, error) {
	existing, _ := in.store.GetDocumentByPath(ctx, path)

	now := time.Now().UTC()
	mergedMeta := store.Metadata{}
	for k, v := range o.metadata {
		mergedMeta[k] = v
	}

	if existing != nil {
		if existing.Checksum == checksum && !o.forceReindex {
			return existing, true, nil
		}

		// Content changed (or forced): delete the old document outside any
		// transaction, in the order vector store -> chunks -> document row
		// (§4.9 step 5, §9's ordering guarantee), then fall through to
		// insert a fresh row with a new UUID.
		if err := in.deleteDocumentData(ctx, existing.ID); err != nil {
			return nil, false, fmt.Errorf("ragline: clearing previous document %s: %w", existing.ID, err)
		}
		if err := in.store.DeleteDocument(ctx, existing.ID); err != nil {
			return nil, false, fmt.Errorf("ragline: deleting previous document %s: %w", existing.ID, err)
		}
	}

	doc := &store.Document{
		ID:           uuid.New().String(),
		Filename:     filepath.Base(path),
		Filepath:     path,
		FileType:     fileType,
		FileSize:     info.Size(),
		MimeType:     mimeTypeForExt(filepath.Ext(path)),
		Checksum:     checksum,
		Status:       "processing",
		CollectionID: o.collectionID,
		Metadata:     mergedMeta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := in.store.InsertDocument(ctx, doc); err != nil {
		return nil, false, fmt.Errorf("ragline: inserting document: %w", err)
	}
	return doc, false, nil
}

// chunkEmbedPersist implements §4.9 steps 6-13 shared by IndexDocument and
// IndexText once a ParsedDocument and a processing-status row exist.
func (in *Ingestor) chunkEmbedPersist(ctx context.Context, doc *store.Document, parsed *parser.ParsedDocument) (*IngestResult, error) {
	for k, v := range parsed.Metadata {
		doc.Metadata[k] = v
	}

	var chunks []chunker.Chunk
	if len(parsed.Sections) > 0 {
		chunks = in.chunks.ChunkSections(parsed.Sections)
	} else {
		chunks = in.chunks.Chunk(chunker.Normalize(parsed.Content))
	}
	if len(chunks) == 0 {
		return in.fail(ctx, doc, ErrNoContent)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embedded, err := in.embedder.Embed(ctx, texts)
	if err != nil {
		return in.fail(ctx, doc, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}
	if len(embedded.Vectors) != len(chunks) {
		return in.fail(ctx, doc, ErrCountMismatch)
	}
	dim := in.embedder.Dimension()
	for _, v := range embedded.Vectors {
		if dim > 0 && len(v) != dim {
			return in.fail(ctx, doc, &DimensionMismatchError{Expected: dim, Actual: len(v)})
		}
	}

	storeChunks := make([]*store.Chunk, len(chunks))
	points := make([]vectorstore.Point, len(chunks))
	now := time.Now().UTC()
	for i, c := range chunks {
		id := uuid.New().String()
		meta := store.Metadata{}
		for k, v := range c.Metadata {
			meta[k] = v
		}
		storeChunks[i] = &store.Chunk{
			ID:          id,
			DocumentID:  doc.ID,
			Content:     c.Content,
			ChunkIndex:  c.ChunkIndex,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			TokenCount:  c.TokenCount,
			Metadata:    meta,
			CreatedAt:   now,
		}
		points[i] = vectorstore.Point{
			ID:     id,
			Vector: embedded.Vectors[i],
			Payload: map[string]interface{}{
				"chunk_id":    id,
				"document_id": doc.ID,
				"content":     c.Content,
				"chunk_index": c.ChunkIndex,
				"filename":    doc.Filename,
				"filepath":    doc.Filepath,
				"file_type":   doc.FileType,
				"metadata":    c.Metadata,
			},
		}
	}

	if err := in.store.InsertChunks(ctx, storeChunks); err != nil {
		return in.fail(ctx, doc, fmt.Errorf("ragline: inserting chunks: %w", err))
	}
	if err := in.vs.UpsertVectors(ctx, points); err != nil {
		return in.fail(ctx, doc, fmt.Errorf("ragline: upserting vectors: %w", err))
	}

	summary, tags := in.runEnhancements(ctx, doc, parsed.Content)

	indexedAt := time.Now().UTC()
	patch := store.DocumentPatch{
		Status:     strPtr("indexed"),
		ChunkCount: intPtr(len(chunks)),
		IndexedAt:  &indexedAt,
		Metadata:   doc.Metadata,
	}
	if summary != "" {
		patch.Summary = &summary
	}
	if len(tags) > 0 {
		patch.Tags = &tags
	}
	if err := in.store.UpdateDocument(ctx, doc.ID, patch); err != nil {
		return nil, fmt.Errorf("ragline: finalizing document %s: %w", doc.ID, err)
	}

	return &IngestResult{DocumentID: doc.ID, ChunkCount: len(chunks), Status: "indexed"}, nil
}

// runEnhancements generates an optional summary and tags in parallel
// (§4.9 step 10); failure of either is logged and dropped, never fails
// ingestion.
func (in *Ingestor) runEnhancements(ctx context.Context, doc *store.Document, content string) (string, []string) {
	if in.chat == nil || (!in.cfg.AutoSummary && !in.cfg.AutoTags) {
		return "", nil
	}

	var wg sync.WaitGroup
	var summary string
	var tags []string

	if in.cfg.AutoSummary {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := generateSummary(ctx, in.chat, content)
			if err != nil {
				in.logger.Warn("ragline: auto-summary failed, dropping", "document_id", doc.ID, "error", err)
				return
			}
			summary = s
		}()
	}
	if in.cfg.AutoTags {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t, err := generateTags(ctx, in.chat, content)
			if err != nil {
				in.logger.Warn("ragline: auto-tags failed, dropping", "document_id", doc.ID, "error", err)
				return
			}
			tags = t
		}()
	}
	wg.Wait()
	return summary, tags
}

func generateSummary(ctx context.Context, chat llm.ChatClient, content string) (string, error) {
	excerpt := content
	if len(excerpt) > 10000 {
		excerpt = excerpt[:10000]
	}
	resp, err := chat.Complete(ctx, llm.CompleteRequest{
		SystemPrompt: "Summarize the following document in two or three sentences.",
		Prompt:       excerpt,
		Temperature:  0.2,
		MaxTokens:    150,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func generateTags(ctx context.Context, chat llm.ChatClient, content string) ([]string, error) {
	excerpt := content
	if len(excerpt) > 10000 {
		excerpt = excerpt[:10000]
	}
	resp, err := chat.Complete(ctx, llm.CompleteRequest{
		SystemPrompt: `Generate up to 10 short lowercase topic tags for this document. Respond with a JSON array of strings only, e.g. ["networking","firewalls"].`,
		Prompt:       excerpt,
		Temperature:  0.2,
		MaxTokens:    100,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	var raw []string
	if err := json.Unmarshal([]byte(resp.Content), &raw); err != nil {
		return nil, fmt.Errorf("ragline: unparseable tags response: %w", err)
	}

	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || len(t) > 50 {
			continue
		}
		tags = append(tags, t)
		if len(tags) == 10 {
			break
		}
	}
	return tags, nil
}

// fail marks doc as failed with a sanitized error message (§4.9 step 12,
// §7) and returns a failed IngestResult rather than propagating the error
// to the caller, per §7's ingestion propagation policy.
func (in *Ingestor) fail(ctx context.Context, doc *store.Document, cause error) (*IngestResult, error) {
	sanitized := util.SanitizeError(cause.Error())
	meta := doc.Metadata
	if meta == nil {
		meta = store.Metadata{}
	}
	meta["lastError"] = sanitized
	if err := in.store.UpdateDocument(ctx, doc.ID, store.DocumentPatch{
		Status:   strPtr("failed"),
		Metadata: meta,
	}); err != nil {
		in.logger.Error("ragline: marking document failed also failed", "document_id", doc.ID, "error", err)
	}
	return &IngestResult{DocumentID: doc.ID, Status: "failed", Error: sanitized}, nil
}

// deleteDocumentData removes a document's vectors and chunks, in that
// order, ahead of deleting the document row itself (§4.9's delete
// ordering guarantee, §9).
func (in *Ingestor) deleteDocumentData(ctx context.Context, documentID string) error {
	if err := in.vs.DeleteVectorsByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("deleting vectors: %w", err)
	}
	if err := in.store.DeleteChunksByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// DeleteDocument removes a document and all of its data, observing the
// vector-store -> chunks -> document ordering (§4.9, §8 property 7).
func (in *Ingestor) DeleteDocument(ctx context.Context, documentID string) error {
	if err := in.deleteDocumentData(ctx, documentID); err != nil {
		return err
	}
	return in.store.DeleteDocument(ctx, documentID)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func mimeTypeForExt(ext string) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
