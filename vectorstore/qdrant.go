// Package vectorstore implements the vector store interface (§4.8) against
// Qdrant, reached over its gRPC API. Point IDs are the Chunk UUID directly;
// Qdrant's point-ID type accepts UUID strings natively, so unlike some
// adapters in the reference pack, no secondary deterministic-UUID
// translation layer is needed here.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// Point is a vector to upsert, carrying the payload duplicated onto every
// chunk's vector point (§3).
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// SearchFilters AND together (§4.8): documentIds and fileTypes.
type SearchFilters struct {
	DocumentIDs []string
	FileTypes   []string
}

// SearchResult mirrors the transient SearchResult entity (§3), derived from
// a Qdrant scored point's payload.
type SearchResult struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float64
	ChunkIndex int
	Filename   string
	Filepath   string
	FileType   string
	Metadata   map[string]interface{}
}

// Store wraps a Qdrant collection sized for a single configured embedding
// dimension D.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *slog.Logger
}

// New dials Qdrant's gRPC API. addr is a URL like "http://localhost:6334" or
// "https://host:6334?api_key=...".
func New(addr, collection string, dimension int, logger *slog.Logger) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("vectorstore: collection name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("vectorstore: dimension must be > 0")
	}
	if logger == nil {
		logger = slog.Default()
	}

	parsed, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parsing qdrant url: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: invalid port in qdrant url: %w", err)
		}
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: creating qdrant client: %w", err)
	}

	return &Store{client: client, collection: collection, dimension: dimension, logger: logger}, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection idempotently creates a cosine-distance collection of
// dimension D with payload indexes on document_id and file_type (§4.8).
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vectorstore: checking collection exists: %w", err)
	}
	if !exists {
		if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("vectorstore: creating collection: %w", err)
		}
	}

	for _, field := range []string{"document_id", "file_type"} {
		if _, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			s.logger.Debug("vectorstore: payload index already present or pending", "field", field, "error", err)
		}
	}
	return nil
}

// UpsertVectors writes points with wait-for-commit semantics (§4.8): the
// call does not return until Qdrant has applied the write.
func (s *Store) UpsertVectors(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	wait := true
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]*qdrant.Value, len(p.Payload))
		for k, v := range p.Payload {
			val, err := qdrant.NewValue(v)
			if err != nil {
				return fmt.Errorf("vectorstore: converting payload field %q: %w", k, err)
			}
			payload[k] = val
		}
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qpoints,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upserting %d points: %w", len(points), err)
	}
	return nil
}

// DeleteVectorsByDocumentID removes every vector belonging to a document,
// used as the first step of the ingestion coordinator's delete ordering
// (§4.9): vector store, then chunks, then the document row.
func (s *Store) DeleteVectorsByDocumentID(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: deleting vectors for document %s: %w", documentID, err)
	}
	return nil
}

// SearchVectors runs a filtered ANN search (§4.8) with scoreThreshold as a
// lower bound and limit as the candidate count.
func (s *Store) SearchVectors(ctx context.Context, query []float32, limit int, scoreThreshold float32, filters *SearchFilters) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	qfilter := buildFilter(filters)
	l := uint64(limit)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(query),
		Limit:          &l,
		Filter:         qfilter,
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: &scoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: searching: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, resultFromPayload(hit.Id, float64(hit.Score), hit.Payload))
	}
	return results, nil
}

func buildFilter(filters *SearchFilters) *qdrant.Filter {
	if filters == nil || (len(filters.DocumentIDs) == 0 && len(filters.FileTypes) == 0) {
		return nil
	}
	var must []*qdrant.Condition
	if len(filters.DocumentIDs) > 0 {
		var should []*qdrant.Condition
		for _, id := range filters.DocumentIDs {
			should = append(should, qdrant.NewMatch("document_id", id))
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{Should: should},
			},
		})
	}
	if len(filters.FileTypes) > 0 {
		var should []*qdrant.Condition
		for _, ft := range filters.FileTypes {
			should = append(should, qdrant.NewMatch("file_type", ft))
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{Should: should},
			},
		})
	}
	return &qdrant.Filter{Must: must}
}

func resultFromPayload(id *qdrant.PointId, score float64, payload map[string]*qdrant.Value) SearchResult {
	r := SearchResult{Score: score}
	if id != nil {
		r.ChunkID = id.GetUuid()
	}
	metadata := make(map[string]interface{})
	for k, v := range payload {
		switch k {
		case "document_id":
			r.DocumentID = v.GetStringValue()
		case "content":
			r.Content = v.GetStringValue()
		case "chunk_index":
			r.ChunkIndex = int(v.GetIntegerValue())
		case "filename":
			r.Filename = v.GetStringValue()
		case "filepath":
			r.Filepath = v.GetStringValue()
		case "file_type":
			r.FileType = v.GetStringValue()
		case "metadata":
			if s := v.GetStructValue(); s != nil {
				for mk, mv := range s.Fields {
					metadata[mk] = valueToInterface(mv)
				}
			}
		}
	}
	r.Metadata = metadata
	return r
}

func valueToInterface(v *qdrant.Value) interface{} {
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}
