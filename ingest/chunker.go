package ingest

import (
	"strings"
	"unicode"

	"studyrag/types"
)

type ChunkerConfig struct {
	Window      int
	Overlap     int
	MinFragment int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Window:      1200,
		Overlap:     200,
		MinFragment: 40,
	}
}

// Chunker splits page text into fixed windows measured in runes. The
// recorded offsets are core ranges that partition the page without
// overlap; the chunk text additionally carries up to Overlap runes of
// leading context from the previous window. Window ends snap backward
// to a word boundary so words are not cut, except when a single run of
// non-space runes exceeds the window.
type Chunker struct {
	cfg ChunkerConfig
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.Window <= 0 {
		cfg = DefaultChunkerConfig()
	}
	return &Chunker{cfg: cfg}
}

func (c *Chunker) Split(pages []types.Page) []types.ChunkDraft {
	var drafts []types.ChunkDraft
	for _, page := range pages {
		drafts = append(drafts, c.splitPage(page)...)
	}
	return drafts
}

func (c *Chunker) splitPage(page types.Page) []types.ChunkDraft {
	runes := []rune(page.Text)
	if len(strings.TrimSpace(page.Text)) == 0 {
		return nil
	}

	var drafts []types.ChunkDraft
	pos := 0
	for pos < len(runes) {
		end := pos + c.cfg.Window
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapToWordBoundary(runes, pos, end)
		}

		core := string(runes[pos:end])
		if len([]rune(strings.TrimSpace(core))) >= c.cfg.MinFragment {
			textStart := pos - c.cfg.Overlap
			if textStart < 0 {
				textStart = 0
			}
			drafts = append(drafts, types.ChunkDraft{
				Text:        string(runes[textStart:end]),
				Page:        page.Number,
				StartOffset: pos,
				EndOffset:   end,
			})
		}

		pos = end
	}

	return drafts
}

// snapToWordBoundary moves end back to the last space inside the
// window. A window with no space at all keeps the hard cut.
func snapToWordBoundary(runes []rune, pos, end int) int {
	for i := end; i > pos; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
