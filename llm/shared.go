package llm

import (
	"encoding/json"
	"errors"
)

// errEmbeddingFailed is returned by EmbedSingle/Embed when the gateway
// yields no vector for an input, matching §4.3's EmbeddingFailed contract.
var errEmbeddingFailed = errors.New("llm: embedding generation failed")

func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
