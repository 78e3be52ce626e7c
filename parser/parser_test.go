package parser

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func TestRegistryBuiltInParsers(t *testing.T) {
	reg := NewRegistry()

	formats := []struct {
		format     string
		wantParser string
	}{
		{"pdf", "*parser.PDFParser"},
		{"docx", "*parser.DOCXParser"},
		{"xlsx", "*parser.XLSXParser"},
		{"xls", "*parser.XLSXParser"},
		{"pptx", "*parser.PPTXParser"},
	}

	for _, tt := range formats {
		t.Run(tt.format, func(t *testing.T) {
			p, err := reg.Get(tt.format)
			if err != nil {
				t.Fatalf("Get(%q) returned error: %v", tt.format, err)
			}
			if p == nil {
				t.Fatalf("Get(%q) returned nil parser", tt.format)
			}
			// Verify the parser supports the expected format.
			supported := p.SupportedFormats()
			found := false
			for _, f := range supported {
				if f == tt.format {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("parser for %q does not list %q in SupportedFormats(): %v",
					tt.format, tt.format, supported)
			}
		})
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()

	unknownFormats := []string{"odt", "doc", "ppt", "epub", "xml", "tex", ""}
	for _, fmt := range unknownFormats {
		t.Run("format_"+fmt, func(t *testing.T) {
			p, err := reg.Get(fmt)
			if err == nil {
				t.Errorf("Get(%q) expected error for unknown format, got parser: %v", fmt, p)
			}
			if p != nil {
				t.Errorf("Get(%q) expected nil parser for unknown format", fmt)
			}
		})
	}
}

func TestRegistryCustomParser(t *testing.T) {
	reg := NewRegistry()

	// Before registration, "custom" should fail.
	_, err := reg.Get("custom")
	if err == nil {
		t.Fatal("expected error for unregistered format")
	}

	// Register a custom parser and verify retrieval.
	reg.Register("custom", &PDFParser{}) // reuse PDFParser as a stand-in
	p, err := reg.Get("custom")
	if err != nil {
		t.Fatalf("Get(\"custom\") after Register returned error: %v", err)
	}
	if p == nil {
		t.Fatal("Get(\"custom\") returned nil after Register")
	}
}

// ---------------------------------------------------------------------------
// splitPageIntoSections tests
// ---------------------------------------------------------------------------

func TestSplitPageIntoSections(t *testing.T) {
	text := `INTRODUCTION
This is the introduction section with some text.

1.1 Scope
The scope of this document covers requirements.

1.2 Definitions
"Force Majeure" means any event beyond control.`

	sections := splitPageIntoSections(text, 1)

	if len(sections) < 3 {
		t.Fatalf("expected at least 3 sections, got %d", len(sections))
	}

	// First section: "INTRODUCTION" heading
	if sections[0].Title != "INTRODUCTION" {
		t.Errorf("section[0].Title = %q, want %q", sections[0].Title, "INTRODUCTION")
	}
	if sections[0].PageNumber != 1 {
		t.Errorf("section[0].PageNumber = %d, want 1", sections[0].PageNumber)
	}
	if sections[0].Content == "" {
		t.Error("section[0].Content should not be empty")
	}

	// Second section: "1.1 Scope"
	if sections[1].Title != "1.1 Scope" {
		t.Errorf("section[1].Title = %q, want %q", sections[1].Title, "1.1 Scope")
	}
	if sections[1].Content == "" {
		t.Error("section[1].Content should contain scope text")
	}

	// Third section: "1.2 Definitions"
	if sections[2].Title != "1.2 Definitions" {
		t.Errorf("section[2].Title = %q, want %q", sections[2].Title, "1.2 Definitions")
	}
	if sections[2].Type != "section" {
		t.Errorf("section[2].Type = %q, want %q", sections[2].Type, "section")
	}
}

func TestSplitPageIntoSectionsEmptyText(t *testing.T) {
	sections := splitPageIntoSections("", 1)
	if len(sections) != 0 {
		t.Errorf("expected 0 sections for empty text, got %d", len(sections))
	}
}

func TestSplitPageIntoSectionsNoHeadings(t *testing.T) {
	text := "This is just a regular paragraph with no headings at all."
	sections := splitPageIntoSections(text, 5)

	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	if sections[0].PageNumber != 5 {
		t.Errorf("section[0].PageNumber = %d, want 5", sections[0].PageNumber)
	}
	// When no headings are detected, the whole page is returned as a single
	// untitled section, which sectionTypeFor classifies as "paragraph".
	if sections[0].Type != "paragraph" {
		t.Errorf("section[0].Type = %q, want %q", sections[0].Type, "paragraph")
	}
}

func TestSplitPageIntoSectionsWhitespaceOnly(t *testing.T) {
	sections := splitPageIntoSections("   \n\n   \n  ", 1)
	if len(sections) != 0 {
		t.Errorf("expected 0 sections for whitespace-only text, got %d", len(sections))
	}
}

// ---------------------------------------------------------------------------
// IsHeading tests
// ---------------------------------------------------------------------------

func TestIsHeadingTable(t *testing.T) {
	tests := []struct {
		name string
		line string
		next string
		want bool
	}{
		// All-caps headings
		{"all_caps_short", "INTRODUCTION", "Body text follows.", true},
		{"all_caps_multi_word", "TERMS AND CONDITIONS", "Body text follows.", true},
		{"all_caps_too_short", "AB", "", false},

		// Numbered sections: a single number or letter followed by '.' or ')'.
		// Multi-level numbers such as "1.1" count only through the short-line
		// rule (a line under 30 chars followed by a longer one).
		{"numbered_1.1", "1.1 Scope", "The scope of this document covers requirements.", true},
		{"numbered_1.2.3", "1.2.3 Detailed Requirements", "Body text follows here.", false},
		{"numbered_single_dot", "3. Overview", "Body text follows here.", true},

		// Keyword prefixes
		{"section_prefix", "Section 5 General", "Body text follows here.", true},
		{"chapter_prefix", "Chapter 2 Architecture", "Body text follows here.", true},
		{"part_prefix", "Part A Summary", "Body text follows here.", true},

		// Short line followed by a longer one
		{"short_then_long", "Scope", "This is a much longer line of body content that follows.", true},

		// Not headings
		{"regular_sentence", "This is a regular sentence.", "", false},
		{"lowercase_text", "some regular content here", "", false},
		{"long_all_caps", strings.Repeat("A", 101), "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsHeading(tt.line, tt.next)
			if got != tt.want {
				t.Errorf("IsHeading(%q, %q) = %v, want %v", tt.line, tt.next, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// sectionTypeFor tests
// ---------------------------------------------------------------------------

func TestSectionTypeFor(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
		want    string
	}{
		{"table_pipes", "Data", "Col1 | Col2 | Col3 | Col4 | Col5", "table"},
		{"table_tabs", "Data", "A\tB\tC\tD\tE", "table"},
		{"titled_section", "Introduction", "This is an overview of the project.", "section"},
		{"untitled_paragraph", "", "Just some text without a heading.", "paragraph"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sectionTypeFor(tt.title, tt.content)
			if got != tt.want {
				t.Errorf("sectionTypeFor(%q, %q) = %q, want %q",
					tt.title, tt.content, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ParseResult / Section structure tests
// ---------------------------------------------------------------------------

func TestSectionFieldsPopulated(t *testing.T) {
	text := `SCOPE
The scope of this document shall cover all requirements.

1.1 System Requirements
The system must operate under the following conditions.`

	sections := splitPageIntoSections(text, 3)

	for i, sec := range sections {
		if sec.PageNumber != 3 {
			t.Errorf("section[%d].PageNumber = %d, want 3", i, sec.PageNumber)
		}
		if sec.Content == "" {
			t.Errorf("section[%d].Content is empty", i)
		}
		if sec.Type == "" {
			t.Errorf("section[%d].Type is empty", i)
		}
	}

	// Both sections carry a title, so sectionTypeFor classifies them "section".
	if sections[0].Type != "section" {
		t.Errorf("section[0].Type = %q, want %q (has a title)", sections[0].Type, "section")
	}
	if sections[1].Type != "section" {
		t.Errorf("section[1].Type = %q, want %q (has a title)", sections[1].Type, "section")
	}
}
