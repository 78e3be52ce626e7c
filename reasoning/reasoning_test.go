package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/brunobiangulo/ragline/llm"
	"github.com/brunobiangulo/ragline/vectorstore"
)

type stubChat struct {
	resp *llm.CompleteResponse
	err  error
	n    int
}

func (s *stubChat) Complete(ctx context.Context, req llm.CompleteRequest) (*llm.CompleteResponse, error) {
	s.n++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func jsonResp(v any) *llm.CompleteResponse {
	b, _ := json.Marshal(v)
	return &llm.CompleteResponse{Content: string(b)}
}

func testChunks() []vectorstore.SearchResult {
	return []vectorstore.SearchResult{
		{ChunkID: "c1", DocumentID: "doc-1", Content: "The tensile strength shall be at least 500 MPa.", Filename: "spec.pdf", Score: 0.9},
		{ChunkID: "c2", DocumentID: "doc-1", Content: "All materials must comply with ISO 9001.", Filename: "spec.pdf", Score: 0.8},
	}
}

func TestRelevanceFilterKeepsAboveThreshold(t *testing.T) {
	chat := &stubChat{resp: jsonResp(map[string]any{"score": 0.9, "explanation": "relevant"})}
	f := NewRelevanceFilter(chat, Config{RelevanceThreshold: 0.6})

	kept := f.Filter(context.Background(), "What is the tensile strength?", testChunks())
	if len(kept) != 2 {
		t.Fatalf("expected 2 chunks kept, got %d", len(kept))
	}
	for _, c := range kept {
		if c.Score != 0.9 {
			t.Errorf("expected score replaced with relevance score 0.9, got %v", c.Score)
		}
	}
}

func TestRelevanceFilterDropsBelowThreshold(t *testing.T) {
	chat := &stubChat{resp: jsonResp(map[string]any{"score": 0.2, "explanation": "not relevant"})}
	f := NewRelevanceFilter(chat, Config{RelevanceThreshold: 0.6})

	kept := f.Filter(context.Background(), "irrelevant question", testChunks())
	if len(kept) != 0 {
		t.Fatalf("expected 0 chunks kept, got %d", len(kept))
	}
}

func TestRelevanceFilterFallsBackToVectorScoreOnError(t *testing.T) {
	chat := &stubChat{err: errors.New("gateway down")}
	f := NewRelevanceFilter(chat, Config{RelevanceThreshold: 0.6})

	chunks := testChunks()
	kept := f.Filter(context.Background(), "question", chunks)
	if len(kept) != 2 {
		t.Fatalf("expected both chunks kept via vector-score fallback, got %d", len(kept))
	}
	// Sorted descending by the fallback (original vector) score.
	if kept[0].ChunkID != "c1" {
		t.Errorf("expected c1 (score 0.9) first, got %s", kept[0].ChunkID)
	}
}

func TestRelevanceFilterFallsBackOnUnparseableResponse(t *testing.T) {
	chat := &stubChat{resp: &llm.CompleteResponse{Content: "not json and no number"}}
	f := NewRelevanceFilter(chat, Config{RelevanceThreshold: 0.95})

	kept := f.Filter(context.Background(), "question", testChunks())
	// Fallback uses the original vector scores (0.9, 0.8); both fall below
	// the unusually high 0.95 threshold in this test.
	if len(kept) != 0 {
		t.Fatalf("expected 0 chunks kept (fallback scores below threshold), got %d", len(kept))
	}
}

func TestRelevanceFilterParsesNumericTokenFallback(t *testing.T) {
	chat := &stubChat{resp: &llm.CompleteResponse{Content: "The score is 0.8 based on content overlap."}}
	f := NewRelevanceFilter(chat, Config{RelevanceThreshold: 0.6})

	kept := f.Filter(context.Background(), "question", testChunks()[:1])
	if len(kept) != 1 || kept[0].Score != 0.8 {
		t.Fatalf("expected numeric-token fallback to score 0.8, got %+v", kept)
	}
}

func TestRelevanceFilterCachesByQuestionAndChunkID(t *testing.T) {
	chat := &stubChat{resp: jsonResp(map[string]any{"score": 0.9})}
	f := NewRelevanceFilter(chat, Config{RelevanceThreshold: 0.6})

	chunks := testChunks()[:1]
	f.Filter(context.Background(), "same question", chunks)
	f.Filter(context.Background(), "same question", chunks)
	if chat.n != 1 {
		t.Errorf("expected exactly 1 LLM call due to caching, got %d", chat.n)
	}
}

func TestGroundingVerifierDisabledReturnsNeutral(t *testing.T) {
	v := NewGroundingVerifier(&stubChat{}, Config{Enabled: false})
	got, err := v.Verify(context.Background(), "q", "a", testChunks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.GroundingScore != 1.0 || !got.IsGrounded {
		t.Errorf("expected neutral verification, got %+v", got)
	}
}

func TestGroundingVerifierNoChunksDegrades(t *testing.T) {
	v := NewGroundingVerifier(&stubChat{}, Config{Enabled: true})
	got, err := v.Verify(context.Background(), "q", "a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsGrounded {
		t.Error("expected IsGrounded=false with no chunks")
	}
}

func TestGroundingVerifierParsesCitationsAndDropsOutOfRange(t *testing.T) {
	chat := &stubChat{resp: jsonResp(map[string]any{
		"groundingScore":    0.85,
		"isGrounded":        true,
		"supportedClaims":   []string{"tensile strength is 500 MPa"},
		"unsupportedClaims": []string{},
		"citations": []map[string]any{
			{"chunkIndex": 0, "quote": "500 MPa", "relevanceScore": 0.9},
			{"chunkIndex": 99, "quote": "out of range", "relevanceScore": 0.5},
		},
	})}
	v := NewGroundingVerifier(chat, Config{Enabled: true, GroundingThreshold: 0.7})

	got, err := v.Verify(context.Background(), "What is the tensile strength?", "500 MPa", testChunks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Citations) != 1 {
		t.Fatalf("expected 1 citation (out-of-range dropped), got %d", len(got.Citations))
	}
	if got.Citations[0].ChunkID != "c1" || got.Citations[0].Filename != "spec.pdf" {
		t.Errorf("expected citation enriched with chunk metadata, got %+v", got.Citations[0])
	}
	if !got.IsGrounded {
		t.Error("expected IsGrounded=true when groundingScore >= threshold")
	}
}

func TestGroundingVerifierForcesUngroundedBelowThreshold(t *testing.T) {
	chat := &stubChat{resp: jsonResp(map[string]any{
		"groundingScore": 0.5,
		"isGrounded":     true, // LLM claims grounded but score is below threshold
	})}
	v := NewGroundingVerifier(chat, Config{Enabled: true, GroundingThreshold: 0.7})

	got, err := v.Verify(context.Background(), "q", "a", testChunks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsGrounded {
		t.Error("expected IsGrounded forced to false when groundingScore < threshold")
	}
}

func TestGroundingVerifierDegradesOnError(t *testing.T) {
	chat := &stubChat{err: errors.New("timeout")}
	v := NewGroundingVerifier(chat, Config{Enabled: true})

	got, err := v.Verify(context.Background(), "q", "a", testChunks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.GroundingScore != 0.5 || got.IsGrounded {
		t.Errorf("expected degraded verification, got %+v", got)
	}
	if len(got.UnsupportedClaims) != 1 || got.UnsupportedClaims[0] != "Verification failed" {
		t.Errorf("expected conservative unsupported-claims default, got %v", got.UnsupportedClaims)
	}
}

func TestGroundingVerifierDegradesOnUnparseableResponse(t *testing.T) {
	chat := &stubChat{resp: &llm.CompleteResponse{Content: "not json"}}
	v := NewGroundingVerifier(chat, Config{Enabled: true})

	got, err := v.Verify(context.Background(), "q", "a", testChunks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.GroundingScore != 0.5 {
		t.Errorf("expected degraded verification on parse failure, got %+v", got)
	}
}

func TestPipelineDisabledReturnsNeutralAndUnfiltered(t *testing.T) {
	p := NewPipeline(&stubChat{}, Config{Enabled: false})
	chunks := testChunks()
	result, err := p.RunPipeline(context.Background(), "q", chunks, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.FilteredChunks) != len(chunks) {
		t.Errorf("expected unfiltered chunks when disabled, got %d", len(result.FilteredChunks))
	}
	if result.Verification.GroundingScore != 1.0 {
		t.Errorf("expected neutral verification when disabled")
	}
}

type stubChatSeq struct {
	mu    sync.Mutex
	resps []*llm.CompleteResponse
	i     int
}

func (s *stubChatSeq) Complete(ctx context.Context, req llm.CompleteRequest) (*llm.CompleteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.resps[s.i%len(s.resps)]
	s.i++
	return r, nil
}

func TestPipelineRunsFilterThenVerify(t *testing.T) {
	chat := &stubChatSeq{resps: []*llm.CompleteResponse{
		jsonResp(map[string]any{"score": 0.9}),
		jsonResp(map[string]any{"groundingScore": 0.9, "isGrounded": true}),
	}}
	p := NewPipeline(chat, Config{Enabled: true, RelevanceThreshold: 0.6})

	result, err := p.RunPipeline(context.Background(), "q", testChunks(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.FilteredChunks) == 0 {
		t.Error("expected filtered chunks to survive relevance filtering")
	}
	if result.Verification == nil {
		t.Fatal("expected non-nil verification")
	}
}

func TestQuickVerifySkipsFiltering(t *testing.T) {
	chat := &stubChat{resp: jsonResp(map[string]any{"groundingScore": 0.9, "isGrounded": true})}
	p := NewPipeline(chat, Config{Enabled: true})

	chunks := testChunks()
	_, err := p.QuickVerify(context.Background(), "q", "a", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// QuickVerify should call the chat client directly once (grounding only),
	// not once per chunk as relevance filtering would.
	if chat.n != 1 {
		t.Errorf("expected exactly 1 LLM call for quick verify, got %d", chat.n)
	}
}
