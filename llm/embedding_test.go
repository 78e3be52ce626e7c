package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEmbeddingClient_OrdersByServerIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)

		// Return items out of order, server-assigned index must win.
		resp := embeddingResponse{
			Data: []embeddingResponseItem{
				{Embedding: []float32{0, 1}, Index: 1},
				{Embedding: []float32{1, 0}, Index: 0},
			},
			Model: "test-embed",
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "", "test-embed", 2, 5*time.Second, nil)
	resp, err := client.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(resp.Vectors))
	}
	if resp.Vectors[0][0] != 1 || resp.Vectors[1][0] != 0 {
		t.Fatalf("vectors not reordered by server index: %v", resp.Vectors)
	}
}

func TestEmbeddingClient_EmbedSingleFailsOnEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Data: nil})
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "", "test-embed", 2, 5*time.Second, nil)
	_, err := client.EmbedSingle(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for empty embedding result")
	}
}

func TestEmbeddingClient_BatchesLargeInput(t *testing.T) {
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		batchSizes = append(batchSizes, len(req.Input))

		data := make([]embeddingResponseItem, len(req.Input))
		for i := range req.Input {
			data[i] = embeddingResponseItem{Embedding: []float32{float32(i)}, Index: i}
		}
		json.NewEncoder(w).Encode(embeddingResponse{Data: data})
	}))
	defer srv.Close()

	texts := make([]string, 70)
	for i := range texts {
		texts[i] = "text"
	}

	client := NewEmbeddingClient(srv.URL, "", "test-embed", 1, 5*time.Second, nil)
	resp, err := client.Embed(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Vectors) != 70 {
		t.Fatalf("expected 70 vectors, got %d", len(resp.Vectors))
	}
	if len(batchSizes) != 3 {
		t.Fatalf("expected ceil(70/32)=3 batches, got %d: %v", len(batchSizes), batchSizes)
	}
}
