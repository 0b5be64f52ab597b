package engine

import (
	"time"

	"github.com/storyloom/storyloom/internal/agent"
	"github.com/storyloom/storyloom/internal/progress"
)

// Phase tracks where a run is in the story lifecycle. Transitions are
// one-directional except the checkpoint phases, which hand control back to
// writing once the review turn lands.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseOutline      Phase = "outline"
	PhaseWriting      Phase = "writing"
	PhaseCheckpoint1  Phase = "checkpoint_1"
	PhaseCheckpoint2  Phase = "checkpoint_2"
	PhaseConcluding   Phase = "concluding"
	PhaseCompleted    Phase = "completed"
)

// Outcome names the distinct ways a run can end. Callers need to tell a
// finished story from an abandoned one, and both from the serious case of an
// approval whose content could not be recovered.
type Outcome string

const (
	// OutcomeCompleted: the Expert approved and the story was extracted and
	// written to the output artifact.
	OutcomeCompleted Outcome = "completed"
	// OutcomeConcluded: an explicit completion marker ended the run without
	// the Expert approval handshake. Any delimited draft is still published.
	OutcomeConcluded Outcome = "concluded"
	// OutcomeStalled: no override and no parsed handoff; the conversation
	// ended without explicit completion. A normal terminal condition.
	OutcomeStalled Outcome = "stalled"
	// OutcomeTurnBudget: the configured maximum turn count was reached.
	OutcomeTurnBudget Outcome = "turn_budget_exhausted"
	// OutcomeTimedOut: an agent call exceeded its bound. Fatal, no retry.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeAgentError: an agent call failed for a reason other than the
	// per-turn deadline.
	OutcomeAgentError Outcome = "agent_error"
	// OutcomeContentLost: approval was signaled but no delimited story block
	// existed in the transcript. A data-integrity error, never silent.
	OutcomeContentLost Outcome = "content_lost"
)

// TurnRecord is one entry of the append-only conversation history.
type TurnRecord struct {
	Turn     int
	Speaker  agent.Role
	Phase    Phase
	Response string
	Elapsed  time.Duration
}

// Result describes how a run ended.
type Result struct {
	Outcome Outcome
	Turns   int
	// Err carries the underlying failure for timed_out, agent_error, and
	// content_lost outcomes.
	Err error
}

// Status is a point-in-time snapshot safe to read while the run is live.
type Status struct {
	Phase       Phase
	Turn        int
	Speaker     agent.Role
	WordCount   int
	PageCount   float64
	Checkpoints map[progress.Checkpoint]bool
	Complete    bool
	Outcome     Outcome
}
