package chunker

import (
	"strings"
	"testing"

	"github.com/brunobiangulo/ragline/parser"
)

func TestChunkSingleChunkWhenShort(t *testing.T) {
	c := New(DefaultConfig())
	text := Normalize("This is a short document that fits in a single chunk.")

	chunks := c.Chunk(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ChunkIndex != 0 {
		t.Errorf("ChunkIndex = %d, want 0", chunks[0].ChunkIndex)
	}
	if chunks[0].StartOffset != 0 || chunks[0].EndOffset != len(text) {
		t.Errorf("offsets = [%d,%d), want [0,%d)", chunks[0].StartOffset, chunks[0].EndOffset, len(text))
	}
	if chunks[0].Content != text {
		t.Errorf("Content = %q, want %q", chunks[0].Content, text)
	}
}

func TestChunkEmptyTextProducesNoChunks(t *testing.T) {
	c := New(DefaultConfig())
	if chunks := c.Chunk(""); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestChunkContiguousIndexAndOffsets(t *testing.T) {
	c := New(Config{ChunkSize: 20, ChunkOverlap: 5, MinChunkSize: 5})
	// A long paragraph of repeated words, comfortably longer than one window.
	text := strings.Repeat("alpha bravo charlie delta echo foxtrot golf hotel ", 40)
	text = Normalize(text)

	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long input, got %d", len(chunks))
	}

	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d: ChunkIndex = %d, want %d", i, ch.ChunkIndex, i)
		}
		if ch.Content == "" {
			t.Errorf("chunk %d: empty content", i)
		}
		if ch.StartOffset >= ch.EndOffset {
			t.Errorf("chunk %d: StartOffset %d >= EndOffset %d", i, ch.StartOffset, ch.EndOffset)
		}
		if ch.TokenCount != EstimateTokens(ch.Content) {
			t.Errorf("chunk %d: TokenCount = %d, want %d", i, ch.TokenCount, EstimateTokens(ch.Content))
		}
	}

	// Successive windows must overlap: chunk i+1 starts before chunk i ends.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartOffset >= chunks[i-1].EndOffset {
			t.Errorf("chunk %d does not overlap chunk %d: start=%d prevEnd=%d",
				i, i-1, chunks[i].StartOffset, chunks[i-1].EndOffset)
		}
	}
}

func TestChunkDoesNotSplitWordsWhereAvoidable(t *testing.T) {
	c := New(Config{ChunkSize: 10, ChunkOverlap: 2, MinChunkSize: 2})
	text := Normalize(strings.Repeat("word ", 60))

	chunks := c.Chunk(text)
	for i, ch := range chunks[:len(chunks)-1] {
		if strings.HasSuffix(ch.Content, "wor") || strings.HasSuffix(ch.Content, "wo") {
			t.Errorf("chunk %d ends mid-word: %q", i, ch.Content)
		}
	}
}

func TestChunkSectionsAttachesMetadata(t *testing.T) {
	c := New(DefaultConfig())
	sections := []parser.Section{
		{
			Title:      "Introduction",
			Content:    "The contractor shall comply with all applicable standards.",
			Level:      1,
			PageNumber: 1,
			Type:       "section",
		},
		{
			Title:      "Definitions",
			Content:    "\"Acceptance\" means formal sign-off by the client.",
			Level:      1,
			PageNumber: 2,
			Type:       "definition",
		},
	}

	chunks := c.ChunkSections(sections)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (one per section), got %d", len(chunks))
	}

	if chunks[0].Metadata["sectionTitle"] != "Introduction" {
		t.Errorf("chunk 0 sectionTitle = %q, want %q", chunks[0].Metadata["sectionTitle"], "Introduction")
	}
	if chunks[0].Metadata["pageNumber"] != "1" {
		t.Errorf("chunk 0 pageNumber = %q, want %q", chunks[0].Metadata["pageNumber"], "1")
	}
	if chunks[0].Metadata["requirementLevel"] != "mandatory" {
		t.Errorf("chunk 0 requirementLevel = %q, want %q", chunks[0].Metadata["requirementLevel"], "mandatory")
	}

	if chunks[1].ChunkIndex != 1 {
		t.Errorf("chunk 1 ChunkIndex = %d, want 1", chunks[1].ChunkIndex)
	}
}

func TestChunkSectionsSkipsEmptySections(t *testing.T) {
	c := New(DefaultConfig())
	sections := []parser.Section{
		{Title: "Empty", Content: "", Type: "section"},
		{Title: "Real", Content: "There is content here.", Type: "section"},
	}

	chunks := c.ChunkSections(sections)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk (empty section skipped), got %d", len(chunks))
	}
	if chunks[0].Metadata["sectionTitle"] != "Real" {
		t.Errorf("sectionTitle = %q, want %q", chunks[0].Metadata["sectionTitle"], "Real")
	}
}

func TestEstimateTokensIsCharacterBased(t *testing.T) {
	text := "abcdefgh" // 8 chars
	if got, want := EstimateTokens(text), 2; got != want {
		t.Errorf("EstimateTokens(%q) = %d, want %d", text, got, want)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
}

func TestNormalizeCollapsesLineEndings(t *testing.T) {
	got := Normalize("line one\r\nline two\rline three\n  ")
	want := "line one\nline two\nline three"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}
