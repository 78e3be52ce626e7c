package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// JSONParser handles .json files: flattens the document into readable
// "path: value" lines, then applies the shared heading-detection heuristic
// to split into sections (§4.1). There is no json-specific prose-extraction
// library in the reference stack; flattening via stdlib encoding/json is
// the only faithful way to turn arbitrary JSON into retrievable text.
type JSONParser struct{}

func (p *JSONParser) SupportedFormats() []string { return []string{"json"} }

func (p *JSONParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: reading json file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &ParsedDocument{Content: "", Metadata: map[string]string{}}, nil
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parser: parsing json: %w", err)
	}

	var lines []string
	flattenJSON("", value, &lines)
	content := strings.Join(lines, "\n")

	return &ParsedDocument{
		Content:  content,
		Metadata: map[string]string{},
		Sections: SplitIntoSections(content),
	}, nil
}

func flattenJSON(prefix string, value interface{}, lines *[]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(joinPath(prefix, k), v[k], lines)
		}
	case []interface{}:
		for i, item := range v {
			flattenJSON(prefix+"["+strconv.Itoa(i)+"]", item, lines)
		}
	default:
		*lines = append(*lines, fmt.Sprintf("%s: %v", prefix, v))
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
