// Package splitter breaks document text into overlapping, size-bounded chunks.
//
// Splitting is recursive over an ordered list of separators: the text is cut
// on the first separator it contains, pieces that are still too large are cut
// again with the separators that follow, and the empty separator finally
// slices a piece into single characters. Small pieces are then merged back
// together up to the chunk size, and each new chunk starts with a tail of the
// previous one so context carries across boundaries.
//
// Overlap is carried only between chunks merged from the same run of small
// pieces. Where a run ends, at an oversized piece that is split on a finer
// separator or at the end of its parent piece, the next chunk starts fresh.
// Overlap is also made of whole pieces, so two paragraphs that each fill
// most of a chunk share none.
//
// Sizes are measured in runes. Split is a pure function.
package splitter

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the maximum number of runes per chunk.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the maximum number of runes carried over from
	// the end of one chunk into the start of the next.
	DefaultChunkOverlap = 200
)

// DefaultSeparators splits on paragraphs, then lines, then words, then
// characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Config controls how text is split.
type Config struct {
	// ChunkSize is the maximum chunk length in runes.
	ChunkSize int

	// ChunkOverlap is the maximum overlap between adjacent chunks in runes.
	// Overlap is assembled from whole pieces, so it can be shorter than this.
	ChunkOverlap int

	// Separators is tried in priority order. Include "" as the last entry to
	// guarantee that no chunk exceeds ChunkSize. Nil means DefaultSeparators.
	Separators []string
}

// DefaultConfig returns the splitter configuration used by ingestion when no
// override is supplied.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Separators:   DefaultSeparators,
	}
}

// Validate reports whether the configuration can produce chunks.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("splitter: chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("splitter: chunk overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("splitter: chunk overlap (%d) must be smaller than chunk size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Split returns the ordered chunks of text. Whitespace-only text yields nil.
// An invalid cfg falls back to the defaults for the offending fields.
func Split(text string, cfg Config) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	cfg = normalise(cfg)
	return splitRecursive(text, cfg.Separators, cfg)
}

// normalise replaces unusable fields with defaults so Split never loops.
func normalise(cfg Config) Config {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultSeparators
	}
	return cfg
}

// splitRecursive cuts text on the highest-priority separator it contains and
// recurses into oversized pieces with the remaining separators.
func splitRecursive(text string, separators []string, cfg Config) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			sep = ""
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var chunks []string
	var small []string
	for _, piece := range cut(text, sep) {
		if runeLen(piece) < cfg.ChunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			chunks = append(chunks, merge(small, sep, cfg)...)
			small = nil
		}
		if len(rest) == 0 {
			// No finer separator left: the piece is an atomic unit.
			chunks = append(chunks, piece)
			continue
		}
		chunks = append(chunks, splitRecursive(piece, rest, cfg)...)
	}
	if len(small) > 0 {
		chunks = append(chunks, merge(small, sep, cfg)...)
	}
	return chunks
}

// cut splits text on sep, dropping empty pieces. The empty separator yields
// one piece per rune.
func cut(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	raw := strings.Split(text, sep)
	pieces := raw[:0]
	for _, p := range raw {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// merge joins pieces with sep into chunks of at most cfg.ChunkSize runes.
// When a chunk is emitted, pieces are dropped from the front of the window
// until at most cfg.ChunkOverlap runes remain; those become the head of the
// next chunk. Nothing carries into or out of the returned slice.
func merge(pieces []string, sep string, cfg Config) []string {
	sepLen := runeLen(sep)

	var chunks []string
	var window []string
	total := 0

	joinLen := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		n := runeLen(p)
		if total+n+joinLen(len(window)) > cfg.ChunkSize && len(window) > 0 {
			if c := join(window, sep); c != "" {
				chunks = append(chunks, c)
			}
			for total > cfg.ChunkOverlap || (total > 0 && total+n+joinLen(len(window)) > cfg.ChunkSize) {
				total -= runeLen(window[0]) + joinLen(len(window)-1)
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n + joinLen(len(window)-1)
	}
	if c := join(window, sep); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

func join(pieces []string, sep string) string {
	return strings.TrimSpace(strings.Join(pieces, sep))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
