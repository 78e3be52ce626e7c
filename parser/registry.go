package parser

import "fmt"

// Registry dispatches to a Parser by canonical fileType. A plain map, not a
// type switch, so formats are added by registration rather than by editing
// a central conditional (§4.1).
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry constructs a registry with every fileType named in §6
// registered, including txt (dropped from the teacher's own registration
// table — fixed here) and the five formats the teacher never implemented:
// md, csv, html, json, rtf.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}

	builtins := []Parser{
		&TextParser{},
		&MarkdownParser{},
		&DOCXParser{},
		&PDFParser{},
		&PPTXParser{},
		&XLSXParser{},
		&CSVParser{},
		&HTMLParser{},
		&JSONParser{},
		&RTFParser{},
	}
	for _, p := range builtins {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the parser registered for fileType.
func (r *Registry) Get(fileType string) (Parser, error) {
	p, ok := r.parsers[fileType]
	if !ok {
		return nil, fmt.Errorf("parser: no parser registered for file type %q", fileType)
	}
	return p, nil
}

// Register adds or replaces the parser for a fileType.
func (r *Registry) Register(fileType string, p Parser) {
	r.parsers[fileType] = p
}
