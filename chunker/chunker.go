// Package chunker splits normalized document text into ordered, offset
// addressed chunks (§4.2). Chunking is flat: there is no parent/child
// hierarchy in the output, only a contiguous chunkIndex and character
// offsets into the text the chunk was cut from.
package chunker

import (
	"math"
	"strconv"
	"strings"

	"github.com/brunobiangulo/ragline/parser"
)

// Config controls chunk sizing. All three fields are token counts; tokens
// are estimated character-based (§4.2: ceil(len(text)/4) for Latin text)
// rather than the teacher's word-count heuristic, since the ingestion
// coordinator deals in raw extracted text that does not reliably
// whitespace-tokenize (table cells, CJK/Thai passages, OCR artifacts).
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

// DefaultConfig returns the §4.2 defaults.
func DefaultConfig() Config {
	return Config{ChunkSize: 512, ChunkOverlap: 50, MinChunkSize: 100}
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 512
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 50
	}
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = 100
	}
	return c
}

// Chunk is one ordered, offset-addressed unit of chunked text (§3's Chunk
// entity, minus the identity and ownership fields the store assigns on
// insert).
type Chunk struct {
	Content     string
	ChunkIndex  int
	StartOffset int
	EndOffset   int
	TokenCount  int
	Metadata    map[string]string
}

// EstimateTokens approximates token count as ceil(len(text)/4).
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4.0))
}

// Chunker cuts normalized text into Chunks per Config.
type Chunker struct {
	cfg Config
}

// New returns a Chunker. Zero-value fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg.withDefaults()}
}

// Normalize collapses CRLF/CR to LF and trims the document, the text form
// every offset in a Chunk is relative to.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// Chunk splits normalized text into ordered, non-empty chunks with
// contiguous chunkIndex starting at 0 (§4.2). Used for plain-text ingestion
// (indexText) where there is no section structure to preserve.
func (c *Chunker) Chunk(text string) []Chunk {
	return c.chunkRange(text, 0, nil)
}

// ChunkSections splits a parsed document's sections into chunks, chunking
// each section's content independently (so overlap never bleeds across a
// heading boundary) while keeping a single contiguous chunkIndex and
// offsets relative to the full document text. Each chunk inherits its
// section's title/page metadata, plus light structural enrichment from
// structure.go.
func (c *Chunker) ChunkSections(sections []parser.Section) []Chunk {
	var all []Chunk
	offset := 0
	nextIndex := 0

	for _, sec := range sections {
		body := sectionBody(sec)
		if strings.TrimSpace(sec.Content) == "" {
			offset += len(body) + 2
			continue
		}

		meta := sectionMetadata(sec)
		secChunks := c.chunkRange(body, offset, meta)
		for i := range secChunks {
			secChunks[i].ChunkIndex = nextIndex
			nextIndex++
		}
		all = append(all, secChunks...)

		offset += len(body) + 2 // account for the "\n\n" join the coordinator uses when flattening sections
	}

	if len(all) == 0 {
		// No section produced content (e.g. heading-only sections); fall
		// back to chunking the concatenated raw text so ingestion never
		// rejects a document for having zero chunks when it has content.
		var b strings.Builder
		for i, sec := range sections {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(sectionBody(sec))
		}
		return c.Chunk(Normalize(b.String()))
	}
	return all
}

func sectionBody(sec parser.Section) string {
	var b strings.Builder
	if sec.Title != "" {
		b.WriteString(sec.Title)
		b.WriteString("\n")
	}
	b.WriteString(sec.Content)
	return Normalize(b.String())
}

func sectionMetadata(sec parser.Section) map[string]string {
	meta := map[string]string{}
	for k, v := range sec.Metadata {
		meta[k] = v
	}
	if sec.Title != "" {
		meta["sectionTitle"] = sec.Title
	}
	if sec.PageNumber > 0 {
		meta["pageNumber"] = strconv.Itoa(sec.PageNumber)
	}
	if sec.Type != "" {
		meta["sectionType"] = sec.Type
	}
	return meta
}

// chunkRange performs the actual sliding-window cut over a single
// contiguous block of text, offsetting every StartOffset/EndOffset by
// baseOffset so callers can compose it across multiple sections. baseMeta
// is copied onto every chunk produced from this block, enriched per-chunk
// with structural signals (requirements, clause numbering, table shape).
func (c *Chunker) chunkRange(text string, baseOffset int, baseMeta map[string]string) []Chunk {
	if text == "" {
		return nil
	}

	chunkChars := c.cfg.ChunkSize * 4
	overlapChars := c.cfg.ChunkOverlap * 4
	minChars := c.cfg.MinChunkSize * 4

	if len(text) <= chunkChars {
		return []Chunk{c.buildChunk(text, 0, baseOffset, baseMeta)}
	}

	var raw []Chunk
	start := 0
	for start < len(text) {
		end := start + chunkChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = backOffToBoundary(text, start, end)
		}
		if end <= start {
			end = min(start+chunkChars, len(text))
		}

		raw = append(raw, c.buildChunk(text[start:end], start, baseOffset, baseMeta))

		if end >= len(text) {
			break
		}
		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}

	// The final chunk may fall under minChunkSize only when it is the
	// whole document (i.e. there is exactly one chunk). Otherwise merge a
	// short trailing chunk into its predecessor so no chunk is emitted
	// that is smaller than minChunkSize without cause (§4.2).
	if len(raw) > 1 {
		last := raw[len(raw)-1]
		if last.EndOffset-last.StartOffset < minChars {
			prev := raw[len(raw)-2]
			merged := c.buildChunk(text[prev.StartOffset-baseOffset:last.EndOffset-baseOffset], prev.StartOffset-baseOffset, baseOffset, baseMeta)
			merged.ChunkIndex = prev.ChunkIndex
			raw = append(raw[:len(raw)-2], merged)
		}
	}

	for i := range raw {
		raw[i].ChunkIndex = i
	}
	return raw
}

func (c *Chunker) buildChunk(content string, localStart, baseOffset int, baseMeta map[string]string) Chunk {
	trimmed := strings.TrimSpace(content)
	meta := map[string]string{}
	for k, v := range baseMeta {
		meta[k] = v
	}
	enrich(trimmed, meta)

	return Chunk{
		Content:     trimmed,
		StartOffset: baseOffset + localStart,
		EndOffset:   baseOffset + localStart + len(content),
		TokenCount:  EstimateTokens(trimmed),
		Metadata:    meta,
	}
}

// enrich attaches structural signals from structure.go so downstream
// retrieval/reasoning can weight or surface chunks by shape without
// re-deriving it from raw content every time. Requirement language
// (SHALL/MUST/REQUIRED) is recorded as requirementLevel "mandatory"; no
// other requirement levels, cross-references or standards references are
// detected.
func enrich(content string, meta map[string]string) {
	if content == "" {
		return
	}
	meta["contentType"] = ContentType(content)

	if looksLikeRequirement(content) {
		meta["requirementLevel"] = "mandatory"
	}
	if num, ok := DetectNumbering(firstLine(content)); ok {
		meta["clauseNumber"] = num
	}
}

// backOffToBoundary moves end left to the nearest preceding whitespace run
// so a chunk boundary never splits a word, as long as doing so doesn't
// shrink the window to nothing.
func backOffToBoundary(text string, start, end int) int {
	limit := start + (end-start)/2 // don't back off more than half the window
	for i := end; i > limit; i-- {
		if text[i-1] == ' ' || text[i-1] == '\n' || text[i-1] == '\t' {
			return i
		}
	}
	return end
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
