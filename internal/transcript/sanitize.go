package transcript

import (
	"regexp"
	"strings"
)

// charReplacements maps Unicode characters that render badly in plain-text
// transcripts to safe equivalents. Order matters: the DC4 rewrite must run
// before control characters are stripped.
var charReplacements = []struct {
	old string
	new string
}{
	{"\u0014", "\u2014"}, // Device Control Four, seen in mangled model output, to em dash
	{"\u2018", "'"},       // left single quote
	{"\u2019", "'"},       // right single quote
	{"\u201c", `"`},       // left double quote
	{"\u201d", `"`},       // right double quote
	{"\u2026", "..."},     // horizontal ellipsis
	{"\u00a0", " "},       // non-breaking space
	{"\u200b", ""},        // zero-width space
	{"\u200c", ""},        // zero-width non-joiner
	{"\u200d", ""},        // zero-width joiner
	{"\ufeff", ""},        // zero-width no-break space (BOM)
	{"\ufffd", "?"},       // replacement character from invalid UTF-8
}

var (
	controlChars   = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	multipleSpaces = regexp.MustCompile("  +")
	trailingSpaces = regexp.MustCompile(" +\n")
	leadingSpaces  = regexp.MustCompile("\n +")
)

// Sanitize replaces problematic Unicode characters and strips control
// characters, preserving newlines and tabs. A simple find/replace pass, not
// a normalizer.
func Sanitize(text string) string {
	if text == "" {
		return text
	}
	for _, r := range charReplacements {
		text = strings.ReplaceAll(text, r.old, r.new)
	}
	text = controlChars.ReplaceAllString(text, "")
	text = multipleSpaces.ReplaceAllString(text, " ")
	text = trailingSpaces.ReplaceAllString(text, "\n")
	text = leadingSpaces.ReplaceAllString(text, "\n")
	return text
}
