package parser

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

// Parse extracts text and section structure natively, then folds in a
// complexity signal (tables, images, multi-column layout) so the ingestion
// coordinator's metadata reflects how reliable the extraction is likely to
// be, without requiring a separate vision/OCR pass.
func (p *PDFParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	result, err := p.parseNative(ctx, path)
	if err != nil {
		return nil, err
	}
	doc := result.flatten()

	if cs, err := DetectComplexity(path); err == nil {
		// The text-pattern pass below never sees image XObjects, so fold in
		// what parseNative already counted rather than leaving HasImages
		// permanently false.
		cs.HasImages = len(result.Images) > 0
		if cs.HasImages {
			cs.Score += 0.3
		}
		doc.Metadata["hasTables"] = strconv.FormatBool(cs.HasTables)
		doc.Metadata["hasImages"] = strconv.FormatBool(cs.HasImages)
		doc.Metadata["isMultiColumn"] = strconv.FormatBool(cs.IsMultiCol)
		doc.Metadata["complexityScore"] = strconv.FormatFloat(cs.Score, 'f', 2, 64)
	} else {
		slog.Debug("pdf: complexity detection skipped", "path", path, "error", err)
	}

	return doc, nil
}

func (p *PDFParser) parseNative(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	sections := make([]Section, 0)
	var allImages []ExtractedImage

	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPageTextOrdered(page)
		if err != nil {
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		sectionStartIdx := len(sections)
		sections = append(sections, splitPageIntoSections(text, i)...)
		allImages = append(allImages, countPageImages(page, i, sectionStartIdx)...)
	}

	if len(sections) == 0 {
		return &ParseResult{
			Method: "native",
			Sections: []Section{{
				Content:    "Unable to extract text from PDF",
				Type:       "paragraph",
				PageNumber: 1,
			}},
		}, nil
	}

	return &ParseResult{
		Sections: sections,
		Images:   allImages,
		Method:   "native",
	}, nil
}

// countPageImages reports the size and position of each meaningfully-sized
// image XObject on a page, reading only the XObject dictionary (subtype,
// dimensions, mask flag) — never the image stream itself, since nothing
// downstream of ParseResult consumes pixel data (see ExtractedImage).
func countPageImages(page pdf.Page, pageNum int, sectionStartIdx int) []ExtractedImage {
	resources := page.Resources()
	if resources.IsNull() {
		return nil
	}

	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil
	}

	var images []ExtractedImage
	for _, name := range xobjects.Keys() {
		xobj := xobjects.Key(name)
		if xobj.Key("Subtype").Name() != "Image" {
			continue
		}
		if xobj.Key("ImageMask").Bool() {
			continue
		}

		width := int(xobj.Key("Width").Int64())
		height := int(xobj.Key("Height").Int64())
		if width < 32 || height < 32 {
			continue
		}

		images = append(images, ExtractedImage{
			PageNumber:   pageNum,
			SectionIndex: sectionStartIdx,
			Width:        width,
			Height:       height,
		})
	}

	return images
}

// extractPageTextOrdered extracts text from a PDF page sorted by visual
// position (top-to-bottom, left-to-right). The default GetPlainText reads
// text in PDF object order which can differ from visual layout — headings
// may appear after the body text they label.
//
// This function groups Content() elements into visual lines by Y proximity
// (preserving the content-stream order within each line — which GetPlainText
// relies on for correct character sequencing), then sorts the lines by Y so
// the result follows top-to-bottom reading order.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	// Group consecutive text elements into visual lines by Y proximity.
	// We preserve the content-stream order within each line — sorting by X
	// would garble text because some PDFs use negative text matrices.
	const lineTolerance = 3.0

	type visualLine struct {
		y   float64 // representative Y (from first element)
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	// Sort lines by Y descending — higher Y = higher on the page in PDF
	// coordinates (origin at bottom-left).
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	var parts []string
	for _, l := range lines {
		text := strings.TrimSpace(l.buf.String())
		if text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}

	return result, nil
}

// splitPageIntoSections breaks page text into sections at lines the §4.1
// heading heuristic (IsHeading) detects, the same rule unstructured text and
// docx paragraphs are split on.
func splitPageIntoSections(text string, pageNum int) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	var currentContent strings.Builder
	var currentHeading string

	flush := func() {
		if currentContent.Len() == 0 && currentHeading == "" {
			return
		}
		content := strings.TrimSpace(currentContent.String())
		sections = append(sections, Section{
			Title:      currentHeading,
			Content:    content,
			PageNumber: pageNum,
			Type:       sectionTypeFor(currentHeading, content),
		})
		currentContent.Reset()
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		next := nextNonEmpty(lines, i+1)
		if IsHeading(trimmed, next) {
			flush()
			currentHeading = trimmed
			continue
		}

		if currentContent.Len() > 0 {
			currentContent.WriteString("\n")
		}
		currentContent.WriteString(trimmed)
	}
	flush()

	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = append(sections, Section{
			Content:    text,
			PageNumber: pageNum,
			Type:       "paragraph",
		})
	}

	return sections
}
