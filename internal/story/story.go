// Package story holds the immutable parameters of a single story run and the
// outline scope heuristics derived from them.
package story

import "fmt"

// Config captures the length budget for one story. It is immutable once
// constructed; derived fields are computed at construction time.
type Config struct {
	PageLimit    int
	WordsPerPage int
	Protagonist  string

	// TotalWords is PageLimit * WordsPerPage.
	TotalWords int
	// Checkpoint1Words and Checkpoint2Words sit at 33% and 66% of the budget.
	Checkpoint1Words int
	Checkpoint2Words int
}

// NewConfig derives the word budget and checkpoint thresholds.
func NewConfig(pageLimit, wordsPerPage int, protagonist string) (Config, error) {
	if pageLimit <= 0 {
		return Config{}, fmt.Errorf("story: page limit must be positive, got %d", pageLimit)
	}
	if wordsPerPage <= 0 {
		return Config{}, fmt.Errorf("story: words per page must be positive, got %d", wordsPerPage)
	}
	total := pageLimit * wordsPerPage
	return Config{
		PageLimit:        pageLimit,
		WordsPerPage:     wordsPerPage,
		Protagonist:      protagonist,
		TotalWords:       total,
		Checkpoint1Words: int(float64(total) * 0.33),
		Checkpoint2Words: int(float64(total) * 0.66),
	}, nil
}

// ScopeGuidance describes the narrative shape that fits the page limit. The
// bands are coarse on purpose; they only steer prompt construction.
func (c Config) ScopeGuidance() string {
	switch {
	case c.PageLimit <= 3:
		return "a focused, single-scene story with minimal cast"
	case c.PageLimit <= 5:
		return "a story with 2-3 key scenes and small cast"
	case c.PageLimit <= 10:
		return "a multi-scene narrative with developed characters"
	default:
		return "a complex narrative with multiple plot threads"
	}
}
