// Package progress tracks how much of the word budget a story has consumed
// and decides when checkpoint reviews fire.
package progress

import (
	"strings"
	"time"

	"github.com/storyloom/storyloom/internal/story"
)

// Checkpoint names the review gates of a single story run.
type Checkpoint string

const (
	CheckpointOutlineApproval Checkpoint = "outline_approval"
	CheckpointPage1Review     Checkpoint = "page_1_review"
	CheckpointPage2Review     Checkpoint = "page_2_review"
	CheckpointFinalApproval   Checkpoint = "final_approval"
)

// slackWords lets a checkpoint fire slightly before its exact threshold so a
// long writer turn cannot blow straight past a review.
const slackWords = 50

// emergencyRatio forces the second checkpoint once this fraction of the
// budget is consumed, whether or not the normal threshold logic ran.
const emergencyRatio = 0.9

// Record is one completed checkpoint in the history log.
type Record struct {
	Checkpoint Checkpoint
	Timestamp  time.Time
	WordCount  int
	PageCount  float64
}

// EndingConfidence labels how much room remains for a satisfying conclusion.
type EndingConfidence string

const (
	EndingInsufficient EndingConfidence = "insufficient"
	EndingLimited      EndingConfidence = "limited"
	EndingAdequate     EndingConfidence = "adequate"
	EndingSufficient   EndingConfidence = "sufficient"
)

// Tracker owns the checkpoint set for one story. Checkpoints are monotonic:
// once marked complete they stay complete for the life of the run.
type Tracker struct {
	cfg       story.Config
	completed map[Checkpoint]bool
	history   []Record
	wordCount int
	now       func() time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock injects a deterministic clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.now = clock
		}
	}
}

// NewTracker builds a tracker for the given story budget.
func NewTracker(cfg story.Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:       cfg,
		completed: map[Checkpoint]bool{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CountWords returns the whitespace-delimited token count of text. An empty
// or missing document counts as zero.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Update recomputes counts from the current draft text.
func (t *Tracker) Update(draft string) {
	t.wordCount = CountWords(draft)
}

// WordCount returns the last observed word count.
func (t *Tracker) WordCount() int {
	return t.wordCount
}

// PageCount returns the last observed page count.
func (t *Tracker) PageCount() float64 {
	return float64(t.wordCount) / float64(t.cfg.WordsPerPage)
}

// DueCheckpoint reports which progress checkpoint should fire for the current
// draft, or "" when none is due. Each checkpoint fires at most once per run:
// crossing a threshold that has already been reviewed is not a new firing.
// When the draft reaches 90% of the budget with the second review still
// unfired, that review fires immediately regardless of its normal threshold.
func (t *Tracker) DueCheckpoint(draft string) Checkpoint {
	t.Update(draft)
	if t.wordCount >= t.cfg.Checkpoint1Words-slackWords && !t.completed[CheckpointPage1Review] {
		return CheckpointPage1Review
	}
	if float64(t.wordCount) >= float64(t.cfg.TotalWords)*emergencyRatio && !t.completed[CheckpointPage2Review] {
		return CheckpointPage2Review
	}
	if t.wordCount >= t.cfg.Checkpoint2Words-slackWords && !t.completed[CheckpointPage2Review] {
		return CheckpointPage2Review
	}
	return ""
}

// MarkComplete records a checkpoint completion. Completing an already
// complete checkpoint is a no-op; the history keeps exactly one record per
// checkpoint.
func (t *Tracker) MarkComplete(cp Checkpoint) {
	if t.completed[cp] {
		return
	}
	t.completed[cp] = true
	t.history = append(t.history, Record{
		Checkpoint: cp,
		Timestamp:  t.now(),
		WordCount:  t.wordCount,
		PageCount:  t.PageCount(),
	})
}

// IsComplete reports whether a checkpoint has fired.
func (t *Tracker) IsComplete(cp Checkpoint) bool {
	return t.completed[cp]
}

// Completed returns the full checkpoint set as a map of completion booleans.
func (t *Tracker) Completed() map[Checkpoint]bool {
	out := make(map[Checkpoint]bool, 4)
	for _, cp := range []Checkpoint{
		CheckpointOutlineApproval, CheckpointPage1Review,
		CheckpointPage2Review, CheckpointFinalApproval,
	} {
		out[cp] = t.completed[cp]
	}
	return out
}

// History returns the checkpoint completion log in firing order.
func (t *Tracker) History() []Record {
	return append([]Record(nil), t.history...)
}

// RemainingWords returns the unused part of the word budget, never negative.
func (t *Tracker) RemainingWords() int {
	remaining := t.cfg.TotalWords - t.wordCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingPages returns the unused part of the page budget, never negative.
func (t *Tracker) RemainingPages() float64 {
	remaining := float64(t.cfg.PageLimit) - t.PageCount()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// EndingOutlook classifies the remaining budget into a confidence band for
// reaching a satisfying conclusion.
func (t *Tracker) EndingOutlook() EndingConfidence {
	switch remaining := t.RemainingWords(); {
	case remaining < 100:
		return EndingInsufficient
	case remaining < 200:
		return EndingLimited
	case remaining < 300:
		return EndingAdequate
	default:
		return EndingSufficient
	}
}

// ShouldStartConclusion reports whether the writer should begin wrapping up:
// past 2.5 pages of a 3-page budget scaled, or fewer than 200 words left.
func (t *Tracker) ShouldStartConclusion() bool {
	return t.RemainingPages() <= 0.5 || t.RemainingWords() < 200
}

// PacingHint describes where the story should be, given how much of the
// budget is spent.
func (t *Tracker) PacingHint() string {
	ratio := float64(t.wordCount) / float64(t.cfg.TotalWords)
	switch {
	case ratio < 1.0/6:
		return "Early development - establish atmosphere and core concept"
	case ratio < 2.0/6:
		return "Building tension - develop the premise and its implications"
	case ratio < 3.0/6:
		return "Mid-story - escalate stakes and reveal key information"
	case ratio < 4.0/6:
		return "Approaching climax - build toward revelation or crisis"
	case ratio < 5.0/6:
		return "Begin resolution - start tying up plot threads"
	default:
		return "Final stretch - focus on satisfying conclusion"
	}
}
