// Package signal extracts structural control markers from agent output:
// handoff directives, completion, approval, and conflict signals.
//
// Everything here is best-effort pattern matching over text the parser treats
// as opaque. Name resolution in particular uses bidirectional substring
// containment ("Read" matches "Reader" and vice versa), which tolerates
// nicknames but can misfire on short or overlapping role names. Callers must
// treat the results as advisory.
package signal

import (
	"regexp"
	"strings"
)

// Handoff conventions. Across conventions the match appearing earliest in the
// text is authoritative; list order only breaks ties at the same offset, so
// `[@Reader]` resolves via the bracketed form rather than the bare mention
// it contains.
var handoffPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[@(\w+)\]`),        // [@Writer]
	regexp.MustCompile(`(?i)\[Next:\s*(\w+)\]`), // [Next: Reader]
	regexp.MustCompile(`(?i)\[(\w+)'s turn\]`),  // [Writer's turn]
	regexp.MustCompile(`(?i)@(\w+)`),            // @Expert
}

// Phrases configures the lexical trigger sets. The lists are configuration
// data so they can be extended without touching the parser.
type Phrases struct {
	Completion    []string
	Approval      []string
	TechnicalPass []string
	Conflict      []string
}

// Parser matches agent output against a fixed set of roles and phrase lists.
type Parser struct {
	roles    []string
	techRole string
	phrases  Phrases
}

// NewParser builds a parser for the given role names. techRole names the
// technical-review role whose approval requires a technical-pass phrase.
func NewParser(roles []string, techRole string, phrases Phrases) *Parser {
	return &Parser{
		roles:    append([]string(nil), roles...),
		techRole: techRole,
		phrases:  phrases,
	}
}

// Signals is the full structural read of one agent response.
type Signals struct {
	// NextSpeaker is the resolved handoff target, empty when none was found.
	NextSpeaker string
	Completion  bool
	Approval    bool
	Conflict    bool
}

// Parse extracts all signals from text. speaker is the role that produced the
// text; it only affects approval semantics (see Approval).
func (p *Parser) Parse(text, speaker string) Signals {
	return Signals{
		NextSpeaker: p.NextSpeaker(text),
		Completion:  p.Completion(text),
		Approval:    p.Approval(text, speaker),
		Conflict:    p.Conflict(text),
	}
}

// NextSpeaker returns the role a cooperating agent handed control to, or ""
// when no convention matched a known role.
func (p *Parser) NextSpeaker(text string) string {
	best := ""
	bestAt := -1
	for _, pattern := range handoffPatterns {
		loc := pattern.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		role := p.resolveRole(text[loc[2]:loc[3]])
		if role == "" {
			continue
		}
		if bestAt == -1 || loc[0] < bestAt {
			best = role
			bestAt = loc[0]
		}
	}
	return best
}

// resolveRole maps an extracted name onto a known role using case-insensitive
// substring containment in either direction.
func (p *Parser) resolveRole(name string) string {
	lower := strings.ToLower(name)
	for _, role := range p.roles {
		roleLower := strings.ToLower(role)
		if strings.Contains(roleLower, lower) || strings.Contains(lower, roleLower) {
			return role
		}
	}
	return ""
}

// Completion reports whether the text carries a completion marker. Tag-style
// markers are compared against the uppercased text so `[end]` and `[END]`
// both count; soft phrases match the same way.
func (p *Parser) Completion(text string) bool {
	upper := strings.ToUpper(text)
	for _, marker := range p.phrases.Completion {
		if strings.Contains(upper, strings.ToUpper(marker)) {
			return true
		}
	}
	return false
}

// Approval reports whether the text contains an approval phrase. When the
// speaker is the technical-review role (Expert), a bare approval phrase is
// not sufficient: the text must also contain a technical-pass phrase.
func (p *Parser) Approval(text, speaker string) bool {
	lower := strings.ToLower(text)
	approved := false
	for _, phrase := range p.phrases.Approval {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			approved = true
			break
		}
	}
	if !approved {
		return false
	}
	if strings.EqualFold(speaker, p.techRole) {
		for _, phrase := range p.phrases.TechnicalPass {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				return true
			}
		}
		return false
	}
	return true
}

// Conflict reports whether the text contains a strong-disagreement phrase.
// The phrase set is deliberately narrow; mild disagreement must not trigger
// arbitration.
func (p *Parser) Conflict(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range p.phrases.Conflict {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
