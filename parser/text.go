package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser handles plain text (.txt) files: decode UTF-8, trim (§4.1).
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: reading text file: %w", err)
	}
	content := strings.TrimSpace(string(data))
	return &ParsedDocument{Content: content, Metadata: map[string]string{}}, nil
}

// MarkdownParser handles .md files: like txt, plus title extraction from
// the first H1 and a section split at heading lines levels 1-6 (§4.1).
type MarkdownParser struct{}

func (p *MarkdownParser) SupportedFormats() []string { return []string{"md"} }

func (p *MarkdownParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: reading markdown file: %w", err)
	}
	content := strings.TrimSpace(string(data))

	metadata := map[string]string{}
	if title := firstH1(content); title != "" {
		metadata["title"] = title
	}

	return &ParsedDocument{
		Content:  content,
		Metadata: metadata,
		Sections: splitMarkdownSections(content),
	}, nil
}

func firstH1(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

var mdHeadingPrefixes = []string{"###### ", "##### ", "#### ", "### ", "## ", "# "}

func splitMarkdownSections(content string) []Section {
	lines := strings.Split(content, "\n")
	var sections []Section
	var title string
	var level int
	var body strings.Builder

	flush := func() {
		c := strings.TrimSpace(body.String())
		if c == "" && title == "" {
			return
		}
		sections = append(sections, Section{Title: title, Content: c, Level: level, Type: "paragraph"})
		body.Reset()
	}

	for _, line := range lines {
		if lvl, text, ok := mdHeadingLevel(line); ok {
			flush()
			title = text
			level = lvl
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(line)
	}
	flush()
	return sections
}

func mdHeadingLevel(line string) (int, string, bool) {
	trimmed := strings.TrimSpace(line)
	for i, prefix := range mdHeadingPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			level := len(mdHeadingPrefixes) - i
			return level, strings.TrimSpace(trimmed[len(prefix):]), true
		}
	}
	return 0, "", false
}
