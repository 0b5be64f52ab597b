package story

import (
	"fmt"
	"regexp"
)

// Lexical markers used to estimate outline complexity. The categories are
// deliberately broad; this is an advisory heuristic, not a gate.
var (
	sceneMarkers      = regexp.MustCompile(`(?i)scene|moment|sequence|vignette|chapter|part`)
	characterMarkers  = regexp.MustCompile(`(?i)character|protagonist|antagonist|dr\.|mr\.|ms\.|prof\.`)
	transitionMarkers = regexp.MustCompile(`(?i)then|next|after|finally|revelation|twist|discovers|realizes`)
	detailMarkers     = regexp.MustCompile(`(?i)page \d+|specifically|detailed|extensive|multiple`)
)

// complexityPerPage scales the expected-complexity ceiling with the page
// limit. Rough heuristic carried over from observed outline sizes.
const complexityPerPage = 5

// ScopeVerdict is the result of evaluating an outline against the budget.
type ScopeVerdict struct {
	Acceptable  bool
	Score       float64
	Ceiling     float64
	Explanation string
}

// EvaluateScope scores a planning/outline text against the configured page
// limit. Plot-transition markers count at half weight. Three bands: above
// 1.5x the ceiling the outline is rejected as too complex, above 1.0x it is
// accepted with a caveat, otherwise it is accepted as appropriate.
func (c Config) EvaluateScope(outline string) ScopeVerdict {
	scenes := len(sceneMarkers.FindAllString(outline, -1))
	characters := len(characterMarkers.FindAllString(outline, -1))
	transitions := len(transitionMarkers.FindAllString(outline, -1))
	details := len(detailMarkers.FindAllString(outline, -1))

	score := float64(scenes) + float64(characters) + float64(transitions)*0.5 + float64(details)
	ceiling := float64(c.PageLimit * complexityPerPage)

	verdict := ScopeVerdict{Score: score, Ceiling: ceiling}
	switch {
	case score > ceiling*1.5:
		verdict.Acceptable = false
		verdict.Explanation = fmt.Sprintf(
			"This outline appears too complex for %d pages (complexity score: %.1f, recommended max: %.0f)",
			c.PageLimit, score, ceiling)
	case score > ceiling:
		verdict.Acceptable = true
		verdict.Explanation = fmt.Sprintf(
			"This outline is ambitious for %d pages - focus on the core elements during writing",
			c.PageLimit)
	default:
		verdict.Acceptable = true
		verdict.Explanation = "Outline scope appears appropriate for the target length"
	}
	return verdict
}
