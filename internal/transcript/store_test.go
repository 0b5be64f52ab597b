package transcript

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return NewStore(
		filepath.Join(dir, "discussions", "story_discussion.md"),
		filepath.Join(dir, "output", "story_output.md"),
		WithClock(func() time.Time { return fixed }),
	)
}

func TestAppendAndRead(t *testing.T) {
	store := newTestStore(t)
	if err := store.Append("Writer", "Here is my outline."); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append("Reader", "Looks promising."); err != nil {
		t.Fatalf("append: %v", err)
	}
	content, err := store.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(content, "## [Writer] - [2025-06-01 10:00:00]") {
		t.Fatalf("missing writer block header:\n%s", content)
	}
	if !strings.Contains(content, "Looks promising.") {
		t.Fatalf("missing reader message:\n%s", content)
	}
	if strings.Index(content, "Writer") > strings.Index(content, "Reader") {
		t.Fatalf("blocks out of order")
	}
}

func TestReadMissingDiscussionIsEmpty(t *testing.T) {
	store := newTestStore(t)
	content, err := store.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if content != "" {
		t.Fatalf("content = %q, want empty", content)
	}
}

func TestExtractStoryTakesLastBlock(t *testing.T) {
	store := newTestStore(t)
	first := BeginMarker + "\nDraft one.\n" + EndMarker
	second := BeginMarker + "\nDraft two, revised.\n" + EndMarker
	if err := store.Append("Writer", first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append("Writer", second); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := store.ExtractStory()
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "Draft two, revised." {
		t.Fatalf("extracted = %q, want the last draft", got)
	}
}

func TestExtractStoryRoundTrip(t *testing.T) {
	body := "The library shelved itself at night.\n\nNobody asked how."
	content := "chatter before\n" + BeginMarker + "\n" + body + "\n" + EndMarker + "\nchatter after"
	got, err := ExtractStory(content)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != body {
		t.Fatalf("round trip mismatch:\ngot  %q\nwant %q", got, body)
	}
}

func TestExtractStoryMissingBlock(t *testing.T) {
	_, err := ExtractStory("plenty of discussion, no delimited draft")
	if !errors.Is(err, ErrNoStory) {
		t.Fatalf("err = %v, want ErrNoStory", err)
	}
}

func TestWriteFinalOverwrites(t *testing.T) {
	store := newTestStore(t)
	if err := store.WriteFinal("first version"); err != nil {
		t.Fatalf("write final: %v", err)
	}
	if err := store.WriteFinal("second version"); err != nil {
		t.Fatalf("write final: %v", err)
	}
	got, err := store.ReadFinal()
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if got != "second version" {
		t.Fatalf("final = %q, want overwrite", got)
	}
}

func TestResetTruncatesBothFiles(t *testing.T) {
	store := newTestStore(t)
	if err := store.Append("Writer", "old run"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.WriteFinal("old story"); err != nil {
		t.Fatalf("write final: %v", err)
	}
	if err := store.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if content, _ := store.Read(); content != "" {
		t.Fatalf("discussion not truncated: %q", content)
	}
	if final, _ := store.ReadFinal(); final != "" {
		t.Fatalf("output not truncated: %q", final)
	}
}

func TestSanitizeReplacements(t *testing.T) {
	in := "“It’s done…” she said quietly.​"
	want := `"It's done..." she said quietly.`
	if got := Sanitize(in); got != want {
		t.Fatalf("sanitize = %q, want %q", got, want)
	}
}

func TestSanitizeStripsControlCharacters(t *testing.T) {
	in := "line one\x07\x00\nline\ttwo"
	want := "line one\nline\ttwo"
	if got := Sanitize(in); got != want {
		t.Fatalf("sanitize = %q, want %q", got, want)
	}
}

func TestSanitizeCollapsesSpaceRuns(t *testing.T) {
	in := "a    b   \nc\n   d"
	want := "a b\nc\nd"
	if got := Sanitize(in); got != want {
		t.Fatalf("sanitize = %q, want %q", got, want)
	}
}

func TestAppendSanitizesMessage(t *testing.T) {
	store := newTestStore(t)
	if err := store.Append("Writer", "smart \u201cquotes\u201d here"); err != nil {
		t.Fatalf("append: %v", err)
	}
	content, err := store.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(content, `smart "quotes" here`) {
		t.Fatalf("message not sanitized:\n%s", content)
	}
	if strings.Contains(content, "\u201c") {
		t.Fatalf("smart quote survived sanitization")
	}
}
