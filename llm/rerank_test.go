package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRerank_ShortCircuitsWhenWithinTopN(t *testing.T) {
	client := NewRerankGatewayClient("http://unused.invalid", "", "test-rerank", time.Second, nil)
	resp, err := client.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RerankUsed {
		t.Fatal("expected RerankUsed=false for short-circuit")
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results (len(documents) < topN), got %d", len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.Index != i || r.RelevanceScore != -1 {
			t.Fatalf("expected identity order with sentinel score, got %+v", r)
		}
	}
}

func TestRerank_ReordersByServerIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := rerankResponse{
			Results: []struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}{
				{Index: 3, RelevanceScore: 0.9},
				{Index: 0, RelevanceScore: 0.5},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewRerankGatewayClient(srv.URL, "", "test-rerank", time.Second, nil)
	docs := make([]string, 10)
	resp, err := client.Rerank(context.Background(), "q", docs, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.RerankUsed {
		t.Fatal("expected RerankUsed=true for an actual cross-encoder call")
	}
	if resp.Results[0].Index != 3 || resp.Results[1].Index != 0 {
		t.Fatalf("unexpected result order: %+v", resp.Results)
	}
}

func TestRerank_FallsBackOnRepeatedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unavailable"))
	}))
	defer srv.Close()

	client := NewRerankGatewayClient(srv.URL, "", "test-rerank", 2*time.Second, nil)
	docs := make([]string, 10)
	resp, err := client.Rerank(context.Background(), "q", docs, 5)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RerankUsed {
		t.Fatal("expected fallback RerankUsed=false")
	}
	for i, r := range resp.Results {
		if r.Index != i || r.RelevanceScore != -1 {
			t.Fatalf("expected fallback identity order, got %+v", r)
		}
	}
}
