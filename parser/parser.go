// Package parser implements the format dispatch registry (§4.1): one Parser
// per supported fileType, producing a normalized ParsedDocument the
// ingestion coordinator can chunk.
package parser

import (
	"context"
	"strconv"
	"strings"
)

// Section is a logical division of a parsed document: a heading and the
// text that follows it, up to the next heading or the section's own type
// boundary (table row, sheet, slide).
type Section struct {
	Title      string
	Content    string
	Level      int
	PageNumber int
	Type       string // "section", "table", "paragraph"
	Metadata   map[string]string
}

// ParsedDocument is what a parser produces from a file (§3's transient
// ParsedDocument entity): the normalized full text plus document metadata
// and, where the format supports it, a section breakdown.
type ParsedDocument struct {
	Content  string
	Metadata map[string]string
	Sections []Section
}

// Parser parses one document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParsedDocument, error)
	SupportedFormats() []string
}

// ExtractedImage records the position and size of an embedded image found
// while parsing a PDF, DOCX, or PPTX. Image captioning is out of scope, so
// parsers never decode or retain pixel data — an ExtractedImage exists only
// to be counted, surfacing as an image count on ParsedDocument.Metadata for
// downstream complexity signals.
type ExtractedImage struct {
	PageNumber   int
	SectionIndex int
	Width        int
	Height       int
}

// ParseResult is the richer, format-library-facing result some parsers
// build internally before being flattened into a ParsedDocument: it
// additionally carries extracted images and the extraction method used.
type ParseResult struct {
	Sections []Section
	Images   []ExtractedImage
	Method   string
	Metadata map[string]string
}

// flatten joins a ParseResult's sections into the normalized full text a
// ParsedDocument carries, preserving section titles as inline headings so
// downstream heading-detection (chunker/structure.go) still finds them.
func (r *ParseResult) flatten() *ParsedDocument {
	var b strings.Builder
	for i, sec := range r.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if sec.Title != "" {
			b.WriteString(sec.Title)
			b.WriteString("\n")
		}
		b.WriteString(sec.Content)
	}

	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	if r.Method != "" {
		metadata["parseMethod"] = r.Method
	}
	if len(r.Images) > 0 {
		metadata["imageCount"] = strconv.Itoa(len(r.Images))
	}

	return &ParsedDocument{
		Content:  strings.TrimSpace(b.String()),
		Metadata: metadata,
		Sections: r.Sections,
	}
}
