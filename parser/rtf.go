package parser

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// RTFParser handles .rtf files by manually stripping RTF control words and
// groups (§4.1). No library in the reference stack parses RTF; this walks
// the control-word grammar directly rather than reaching for a dependency
// that does not exist in the ecosystem the examples draw from.
type RTFParser struct{}

func (p *RTFParser) SupportedFormats() []string { return []string{"rtf"} }

var (
	rtfControlWord  = regexp.MustCompile(`^\\[a-zA-Z]+-?\d*[ ]?`)
	rtfHexEscape    = regexp.MustCompile(`\\'[0-9a-fA-F]{2}`)
	rtfWhitespaceRe = regexp.MustCompile(`[ \t]+`)
	rtfBlankLinesRe = regexp.MustCompile(`\n{3,}`)
)

func (p *RTFParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: reading rtf file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return &ParsedDocument{Content: "", Metadata: map[string]string{}}, nil
	}

	content := stripRTF(text)
	return &ParsedDocument{
		Content:  content,
		Metadata: map[string]string{},
		Sections: SplitIntoSections(content),
	}, nil
}

// stripRTF removes RTF markup and returns plain text: paragraph/line
// control words become newlines, other control words are dropped, groups
// delimited by braces (fonttbl, colortbl, stylesheet, *-prefixed
// destinations) are removed entirely, and hex-escaped bytes are decoded.
func stripRTF(rtf string) string {
	var out strings.Builder
	depth := 0
	skipDepth := -1

	i := 0
	for i < len(rtf) {
		c := rtf[i]
		switch c {
		case '{':
			depth++
			if skipDepth == -1 && isDestinationGroupStart(rtf[i:]) {
				skipDepth = depth
			}
			i++
		case '}':
			if skipDepth == depth {
				skipDepth = -1
			}
			depth--
			i++
		case '\\':
			if i+3 < len(rtf) && rtf[i+1] == '\'' {
				if b, err := strconv.ParseUint(rtf[i+2:i+4], 16, 8); err == nil {
					if skipDepth == -1 {
						out.WriteRune(rune(b))
					}
					i += 4
					break
				}
			}
			word, consumed := readControlWord(rtf[i:])
			if skipDepth == -1 {
				switch word {
				case `\par`, `\line`:
					out.WriteString("\n")
				}
			}
			i += consumed
		default:
			if skipDepth == -1 {
				out.WriteByte(c)
			}
			i++
		}
	}

	text := rtfHexEscape.ReplaceAllString(out.String(), "")
	text = rtfWhitespaceRe.ReplaceAllString(text, " ")
	text = rtfBlankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var rtfSkipDestinations = []string{
	`{\fonttbl`, `{\colortbl`, `{\stylesheet`, `{\*\generator`, `{\info`, `{\*`,
}

func isDestinationGroupStart(rest string) bool {
	for _, d := range rtfSkipDestinations {
		if strings.HasPrefix(rest, d) {
			return true
		}
	}
	return false
}

// readControlWord returns the control word (e.g. "\par") and the number of
// bytes consumed, including a trailing delimiter space if present.
func readControlWord(rest string) (string, int) {
	m := rtfControlWord.FindString(rest)
	if m == "" {
		return "", 1
	}
	return strings.TrimRight(m, " "), len(m)
}
