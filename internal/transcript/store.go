// Package transcript manages the shared discussion file the agents write to
// and the final story artifact extracted from it.
package transcript

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Story delimiters. Agents wrap every draft in these markers; the engine
// extracts the last delimited block as the current version.
const (
	BeginMarker = "---BEGIN STORY---"
	EndMarker   = "---END STORY---"
)

var storyBlock = regexp.MustCompile(`(?s)---BEGIN STORY---\s*(.*?)\s*---END STORY---`)

// ErrNoStory is returned when no delimited story block exists in the
// transcript.
var ErrNoStory = errors.New("transcript: no delimited story block found")

// Store is an append-only text sink for one story discussion plus the final
// output artifact. Turns are serialized by the engine, so the store does not
// lock around file access.
type Store struct {
	discussionPath string
	outputPath     string
	now            func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for block header timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore builds a store over the given discussion and output paths.
func NewStore(discussionPath, outputPath string, opts ...Option) *Store {
	s := &Store{
		discussionPath: discussionPath,
		outputPath:     outputPath,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset truncates both files so a new story starts clean.
func (s *Store) Reset() error {
	for _, path := range []string{s.discussionPath, s.outputPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("transcript: ensure dir for %s: %w", path, err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("transcript: reset %s: %w", path, err)
		}
	}
	return nil
}

// Append adds one speaker block to the discussion. The message is sanitized
// before writing so control characters and mangled Unicode never reach the
// transcript.
func (s *Store) Append(speaker, message string) error {
	if err := os.MkdirAll(filepath.Dir(s.discussionPath), 0o755); err != nil {
		return fmt.Errorf("transcript: ensure discussion dir: %w", err)
	}
	file, err := os.OpenFile(s.discussionPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("transcript: open discussion: %w", err)
	}
	defer file.Close()
	stamp := s.now().Format("2006-01-02 15:04:05")
	block := fmt.Sprintf("\n## [%s] - [%s]\n%s\n---\n", speaker, stamp, Sanitize(message))
	if _, err := file.WriteString(block); err != nil {
		return fmt.Errorf("transcript: append block: %w", err)
	}
	return nil
}

// Read returns the full discussion contents. A missing file reads as empty.
func (s *Store) Read() (string, error) {
	data, err := os.ReadFile(s.discussionPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("transcript: read discussion: %w", err)
	}
	return string(data), nil
}

// ExtractStory returns the most recent delimited story block, trimmed and
// sanitized. Multiple blocks represent successive draft versions; the last
// one is authoritative.
func (s *Store) ExtractStory() (string, error) {
	content, err := s.Read()
	if err != nil {
		return "", err
	}
	return ExtractStory(content)
}

// ExtractStory pulls the last delimited story block out of raw transcript
// text.
func ExtractStory(content string) (string, error) {
	matches := storyBlock.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return "", ErrNoStory
	}
	last := matches[len(matches)-1][1]
	return Sanitize(strings.TrimSpace(last)), nil
}

// WriteFinal overwrites the output artifact with the finalized story.
func (s *Store) WriteFinal(storyText string) error {
	if err := os.MkdirAll(filepath.Dir(s.outputPath), 0o755); err != nil {
		return fmt.Errorf("transcript: ensure output dir: %w", err)
	}
	if err := os.WriteFile(s.outputPath, []byte(storyText), 0o644); err != nil {
		return fmt.Errorf("transcript: write final story: %w", err)
	}
	return nil
}

// ReadFinal returns the output artifact contents, empty when absent.
func (s *Store) ReadFinal() (string, error) {
	data, err := os.ReadFile(s.outputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("transcript: read final story: %w", err)
	}
	return string(data), nil
}

// OutputPath returns the path of the final story artifact.
func (s *Store) OutputPath() string {
	return s.outputPath
}
