package parser

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser handles .html files (§4.1): strips script/style/noscript/
// iframe/svg, selects the main content region, normalizes whitespace, and
// splits into sections at h1-h6 headings.
type HTMLParser struct{}

func (p *HTMLParser) SupportedFormats() []string { return []string{"html", "htm"} }

var mainContentSelectors = []string{
	"main", "article", "[role=main]", ".content", "#content", ".main", "#main", "body",
}

func (p *HTMLParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parser: opening html file: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parser: parsing html: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg").Remove()

	metadata := extractHTMLMetadata(doc)

	var main *goquery.Selection
	for _, sel := range mainContentSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			main = s.First()
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	sections := extractHTMLSections(main)
	content := normalizeHTMLWhitespace(main.Text())

	return &ParsedDocument{Content: content, Metadata: metadata, Sections: sections}, nil
}

func extractHTMLMetadata(doc *goquery.Document) map[string]string {
	metadata := map[string]string{}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		metadata["title"] = title
	}
	metaPairs := []struct {
		attr string
		key  string
	}{
		{"description", "description"},
		{"author", "author"},
		{"keywords", "keywords"},
	}
	for _, mp := range metaPairs {
		if v, ok := doc.Find(`meta[name="` + mp.attr + `"]`).Attr("content"); ok && v != "" {
			metadata[mp.key] = v
			continue
		}
		if v, ok := doc.Find(`meta[property="og:` + mp.attr + `"]`).Attr("content"); ok && v != "" {
			metadata[mp.key] = v
		}
	}
	if metadata["title"] == "" {
		if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			metadata["title"] = v
		}
	}
	return metadata
}

func extractHTMLSections(root *goquery.Selection) []Section {
	var sections []Section
	var title string
	var level int
	var body strings.Builder

	flush := func() {
		c := strings.TrimSpace(body.String())
		if c == "" && title == "" {
			return
		}
		sections = append(sections, Section{Title: title, Content: normalizeHTMLWhitespace(c), Level: level, Type: "paragraph"})
		body.Reset()
	}

	root.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, blockquote, pre, code").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		if len(tag) == 2 && tag[0] == 'h' {
			flush()
			title = strings.TrimSpace(s.Text())
			level = int(tag[1] - '0')
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if body.Len() > 0 {
			body.WriteString("\n\n")
		}
		body.WriteString(text)
	})
	flush()
	return sections
}

var (
	htmlWhitespaceRun = regexp.MustCompile(`[ \t]+`)
	htmlBlankLines    = regexp.MustCompile(`\n{3,}`)
)

func normalizeHTMLWhitespace(s string) string {
	s = htmlWhitespaceRun.ReplaceAllString(s, " ")
	s = htmlBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
