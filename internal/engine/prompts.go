package engine

import (
	"fmt"

	"github.com/storyloom/storyloom/internal/progress"
)

// checkpointPrompt builds the review instruction injected when a progress
// threshold fires. It replaces whatever prompt the Writer was about to
// receive and is addressed to the Reader.
func (e *Engine) checkpointPrompt(cp progress.Checkpoint) string {
	pages := e.tracker.PageCount()
	words := e.tracker.WordCount()
	switch cp {
	case progress.CheckpointPage1Review:
		return fmt.Sprintf(`[CHECKPOINT] You've reached approximately %.1f pages (%d words).

Writer: Please pause your writing.
[@Reader]: Please review the story so far and provide feedback on:
- Engagement and atmosphere
- Pacing and flow
- Any concerns or suggestions for the remaining %.1f pages`,
			pages, words, e.tracker.RemainingPages())
	case progress.CheckpointPage2Review:
		return fmt.Sprintf(`[CRITICAL CHECKPOINT] You've reached approximately %.1f pages (%d words).

Writer: Please pause your writing.
[@Reader]: This is critical - please evaluate:
- Can the story reach a satisfying conclusion in ~%d words?
- What plot threads need resolution?
- Is the pacing appropriate for a strong ending?
- Specific suggestions for the conclusion`,
			pages, words, e.tracker.RemainingWords())
	default:
		return "Checkpoint review needed."
	}
}

// expertReviewPrompt frames the mandatory technical review that follows a
// Reader approval.
func expertReviewPrompt(previousSpeaker, response string) string {
	return fmt.Sprintf(`The Writer and Reader have both approved the story.

You must now perform a MANDATORY FINAL TECHNICAL REVIEW before the story can
be published.

Please carefully read the complete story and check for:
- Spelling errors and typos (including joined words)
- Grammar and punctuation issues
- Formatting consistency
- Any technical errors that would detract from professional presentation

If you find ANY errors, list them specifically and send back to [@Writer].
If the story passes all technical checks, approve with:
"I APPROVE this story as Expert - technical review passed"

%s said: %s`, previousSpeaker, response)
}

// arbitrationPrompt frames a conflict the Expert must resolve.
func arbitrationPrompt(previousSpeaker, response string) string {
	return fmt.Sprintf(`There appears to be a disagreement that needs resolution.

%s said: %s

Please review the discussion and make a balanced decision to move the
project forward.`, previousSpeaker, response)
}

// handoffPrompt is the regular turn-to-turn context.
func handoffPrompt(previousSpeaker, response string) string {
	return fmt.Sprintf("%s said: %s\n\nPlease respond.", previousSpeaker, response)
}

// beginWritingPrompt moves the conversation out of the outline phase.
const beginWritingPrompt = "The outline has been sufficiently developed. Please begin writing the story now."
