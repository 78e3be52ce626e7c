package parser

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CSVParser handles .csv files with a permissive RFC-4180-ish state
// machine supporting "" escaping (§4.1). encoding/csv rejects rows with a
// ragged field count or stray quotes outside a quoted field, which is
// common in real-world exports; this parser tolerates both rather than
// failing the whole file.
type CSVParser struct{}

func (p *CSVParser) SupportedFormats() []string { return []string{"csv"} }

func (p *CSVParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: reading csv file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &ParsedDocument{Content: "", Metadata: map[string]string{}}, nil
	}

	rows := parseCSVRows(string(data))
	if len(rows) == 0 {
		return &ParsedDocument{Content: "", Metadata: map[string]string{}}, nil
	}

	header := rows[0]
	var content strings.Builder
	sections := make([]Section, 0, len(rows)-1)

	for i, row := range rows[1:] {
		var rowText strings.Builder
		for c, value := range row {
			col := "col" + strconv.Itoa(c)
			if c < len(header) {
				col = header[c]
			}
			rowText.WriteString(col)
			rowText.WriteString(": ")
			rowText.WriteString(value)
			rowText.WriteString("\n")
		}
		text := strings.TrimSpace(rowText.String())
		content.WriteString(text)
		content.WriteString("\n\n")
		sections = append(sections, Section{
			Title:   fmt.Sprintf("Row %d", i+1),
			Content: text,
			Type:    "table",
		})
	}

	metadata := map[string]string{
		"columns":  strings.Join(header, ","),
		"rowCount": strconv.Itoa(len(rows) - 1),
	}
	return &ParsedDocument{Content: strings.TrimSpace(content.String()), Metadata: metadata, Sections: sections}, nil
}

// parseCSVRows tokenizes CSV text into rows of fields, supporting
// double-quote-escaped fields ("" inside a quoted field is a literal ").
func parseCSVRows(text string) [][]string {
	var rows [][]string
	var row []string
	var field strings.Builder
	inQuotes := false

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuotes:
			if r == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					field.WriteRune('"')
					i++
				} else {
					inQuotes = false
				}
			} else {
				field.WriteRune(r)
			}
		case r == '"':
			inQuotes = true
		case r == ',':
			row = append(row, field.String())
			field.Reset()
		case r == '\r':
			// skip; \n handles the line break
		case r == '\n':
			row = append(row, field.String())
			field.Reset()
			if !(len(row) == 1 && row[0] == "") {
				rows = append(rows, row)
			}
			row = nil
		default:
			field.WriteRune(r)
		}
	}
	if field.Len() > 0 || len(row) > 0 {
		row = append(row, field.String())
		rows = append(rows, row)
	}
	return rows
}
