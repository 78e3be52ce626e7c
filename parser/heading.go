package parser

import (
	"regexp"
	"strings"
)

var (
	numberedHeadingPattern = regexp.MustCompile(`^(\d+[.)]|[A-Z]\.)\s+\S`)

	headingKeywords = []string{
		"chapter", "section", "part", "introduction",
		"conclusion", "summary", "overview", "appendix",
	}
)

// IsHeading reports whether a line of text looks like a heading, per the
// four rules in §4.1: all-caps, numbered/lettered prefix, keyword prefix, or
// a short line immediately followed by a longer one.
func IsHeading(line, nextNonEmptyLine string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if isAllCapsHeading(line) {
		return true
	}
	if numberedHeadingPattern.MatchString(line) {
		return true
	}
	if hasHeadingKeywordPrefix(line) {
		return true
	}
	if len(line) < 30 && len(strings.TrimSpace(nextNonEmptyLine)) > len(line) {
		return true
	}
	return false
}

// isAllCapsHeading: all-caps with letters, length in (3, 100].
func isAllCapsHeading(line string) bool {
	n := len(line)
	if n <= 3 || n > 100 {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func hasHeadingKeywordPrefix(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range headingKeywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}

// SplitIntoSections breaks normalized text into sections at lines detected
// as headings, per the heading heuristic above. Text before the first
// detected heading becomes a section with an empty title.
func SplitIntoSections(text string) []Section {
	lines := strings.Split(text, "\n")

	var sections []Section
	var title string
	var body strings.Builder

	flush := func() {
		content := strings.TrimSpace(body.String())
		if content == "" && title == "" {
			return
		}
		sections = append(sections, Section{Title: title, Content: content, Type: "paragraph"})
		body.Reset()
	}

	for i, line := range lines {
		next := nextNonEmpty(lines, i+1)
		if IsHeading(line, next) {
			flush()
			title = strings.TrimSpace(line)
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(line)
	}
	flush()

	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = []Section{{Content: strings.TrimSpace(text), Type: "paragraph"}}
	}
	return sections
}

func nextNonEmpty(lines []string, from int) string {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

// sectionTypeFor classifies a section as "table", "section", or "paragraph"
// per the Section.Type contract: tab- or pipe-delimited content is a table
// regardless of heading, a titled section is "section", everything else is
// plain body text.
func sectionTypeFor(title, content string) string {
	if strings.Count(content, "\t") > 3 || strings.Count(content, "|") > 3 {
		return "table"
	}
	if title != "" {
		return "section"
	}
	return "paragraph"
}
