// Package engine implements the turn-coordination state machine: it decides
// after each agent response who speaks next, when a checkpoint review is
// forced, when the story is complete, and how runaway iteration is cut off.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/storyloom/storyloom/internal/agent"
	"github.com/storyloom/storyloom/internal/journal"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/signal"
	"github.com/storyloom/storyloom/internal/story"
	"github.com/storyloom/storyloom/internal/transcript"
)

// Settings bounds one run of the engine.
type Settings struct {
	MaxTurns             int
	TurnTimeout          time.Duration
	OutlineMinIterations int
	OutlineMaxIterations int
}

// Validate enforces positive bounds.
func (s Settings) Validate() error {
	if s.MaxTurns <= 0 {
		return fmt.Errorf("engine: max turns must be positive, got %d", s.MaxTurns)
	}
	if s.TurnTimeout <= 0 {
		return fmt.Errorf("engine: turn timeout must be positive, got %s", s.TurnTimeout)
	}
	if s.OutlineMinIterations < 1 || s.OutlineMaxIterations < s.OutlineMinIterations {
		return fmt.Errorf("engine: outline iteration bounds invalid (%d, %d)",
			s.OutlineMinIterations, s.OutlineMaxIterations)
	}
	return nil
}

// Engine drives one story run. It owns its ConversationState exclusively:
// concurrent runs must each construct their own Engine.
type Engine struct {
	cfg      story.Config
	settings Settings
	agents   agent.Set
	store    *transcript.Store
	parser   *signal.Parser
	tracker  *progress.Tracker
	journal  *journal.Journal
	clock    func() time.Time

	mu sync.Mutex
	// state below is guarded by mu so Status() can be polled mid-run.
	turnCount     int
	phase         Phase
	speaker       agent.Role
	complete      bool
	outcome       Outcome
	history       []TurnRecord
	outlineIters  int
	scopeAdvisory string
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithJournal attaches a run journal; without one the engine stays silent.
func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// New wires an engine to its collaborators. The transcript store and agent
// set are required; there is no ambient global state.
func New(cfg story.Config, settings Settings, agents agent.Set, store *transcript.Store, parser *signal.Parser, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if agents == nil {
		return nil, fmt.Errorf("engine: agent set is required")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: transcript store is required")
	}
	if parser == nil {
		return nil, fmt.Errorf("engine: signal parser is required")
	}
	e := &Engine{
		cfg:      cfg,
		settings: settings,
		agents:   agents,
		store:    store,
		parser:   parser,
		clock:    time.Now,
		phase:    PhaseInitializing,
		speaker:  agent.RoleWriter,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tracker = progress.NewTracker(cfg, progress.WithClock(e.clock))
	return e, nil
}

// Tracker exposes the run's progress tracker for status reporting.
func (e *Engine) Tracker() *progress.Tracker {
	return e.tracker
}

// Status returns a snapshot of the conversation state. Safe to call from
// other goroutines while Run is in flight.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Phase:       e.phase,
		Turn:        e.turnCount,
		Speaker:     e.speaker,
		WordCount:   e.tracker.WordCount(),
		PageCount:   e.tracker.PageCount(),
		Checkpoints: e.tracker.Completed(),
		Complete:    e.complete,
		Outcome:     e.outcome,
	}
}

// History returns a copy of the append-only turn log.
func (e *Engine) History() []TurnRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TurnRecord(nil), e.history...)
}

// Run executes the conversation until completion, stall, budget exhaustion,
// or a fatal agent failure. The transcript is reset first: each run starts
// from a clean discussion.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if err := e.store.Reset(); err != nil {
		return Result{}, err
	}
	e.setPhase(PhaseOutline)
	e.journal.Info("run started: %d page budget, %d words", e.cfg.PageLimit, e.cfg.TotalWords)

	prompt := agent.OpeningPrompt
	for e.turn() < e.settings.MaxTurns && !e.isComplete() {
		e.advanceTurn()

		// Checkpoint injection: before the Writer writes more, ask the
		// tracker whether a review is due. The override wins over whatever
		// the previous turn's signals selected.
		if e.speakerIs(agent.RoleWriter) && e.pastOutline() {
			if cp := e.dueCheckpoint(); cp != "" {
				prompt = e.checkpointPrompt(cp)
				e.fireCheckpoint(cp)
				e.setSpeaker(agent.RoleReader)
			}
		}

		speaker := e.currentSpeaker()
		response, elapsed, err := e.invoke(ctx, speaker, prompt)
		if err != nil {
			outcome := OutcomeAgentError
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = OutcomeTimedOut
				e.journal.Error("%s timed out at turn %d", speaker, e.turn())
			} else {
				e.journal.Error("%s failed at turn %d: %v", speaker, e.turn(), err)
			}
			e.finish(outcome)
			return Result{Outcome: outcome, Turns: e.turn(), Err: err}, nil
		}
		if err := e.store.Append(string(speaker), response); err != nil {
			return Result{}, err
		}
		e.recordTurn(speaker, response, elapsed)

		sig := e.parser.Parse(response, string(speaker))
		if sig.Conflict {
			e.journal.Warn("conflict language detected in %s's turn %d", speaker, e.turn())
		}
		if sig.Completion && e.currentPhase() == PhaseWriting {
			e.setPhase(PhaseConcluding)
			e.journal.Info("completion marker seen in %s's turn %d", speaker, e.turn())
		}

		var forced agent.Role
		if sig.Approval {
			switch speaker {
			case agent.RoleReader:
				// The technical review is a mandatory quality gate; agents
				// cannot skip it by omitting a handoff tag.
				e.journal.Info("Reader approved; forcing Expert technical review")
				forced = agent.RoleExpert
				e.setPhase(PhaseConcluding)
			case agent.RoleExpert:
				return e.finalize()
			}
		}

		overridePrompt := e.outlineStep(speaker, response)

		next := forced
		if next == "" {
			next = agent.Role(sig.NextSpeaker)
		}
		if next == "" && overridePrompt != "" {
			// Transitioning out of the outline phase hands the pen back to
			// the Writer even when no explicit tag was parsed.
			next = agent.RoleWriter
		}
		if next == "" {
			if e.isComplete() {
				break
			}
			if sig.Completion {
				// An explicit completion marker with no handoff is a finished
				// run, not a stall, even though it skipped the Expert gate.
				e.journal.Info("completion signaled by %s with no handoff - ending run", speaker)
				if err := e.conclude(); err != nil {
					return Result{}, err
				}
				return Result{Outcome: OutcomeConcluded, Turns: e.turn()}, nil
			}
			e.journal.Info("no next speaker indicated - ending conversation")
			e.finish(OutcomeStalled)
			return Result{Outcome: OutcomeStalled, Turns: e.turn()}, nil
		}
		if next == speaker {
			next = fallbackSpeaker(speaker)
			e.journal.Warn("%s attempted to keep the turn; handing to %s", speaker, next)
		}

		// Checkpoint phases return control to writing once the review turn
		// has been taken.
		if (e.currentPhase() == PhaseCheckpoint1 || e.currentPhase() == PhaseCheckpoint2) && speaker == agent.RoleReader {
			e.setPhase(PhaseWriting)
		}

		prompt = e.nextPrompt(speaker, next, response, sig.Approval, overridePrompt)
		e.setSpeaker(next)
	}

	if e.isComplete() {
		return Result{Outcome: OutcomeCompleted, Turns: e.turn()}, nil
	}
	e.journal.Warn("turn budget exhausted after %d turns", e.turn())
	e.finish(OutcomeTurnBudget)
	return Result{Outcome: OutcomeTurnBudget, Turns: e.turn()}, nil
}

// invoke dispatches one agent call under the per-turn deadline.
func (e *Engine) invoke(ctx context.Context, speaker agent.Role, prompt string) (string, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.settings.TurnTimeout)
	defer cancel()
	start := e.clock()
	response, err := e.agents[speaker].Invoke(callCtx, prompt)
	elapsed := e.clock().Sub(start)
	if err != nil {
		return "", elapsed, err
	}
	return response, elapsed, nil
}

// finalize runs after the Expert signals approval: extract the last
// delimited story block and publish it. A missing block is a data-integrity
// error, never silent success.
func (e *Engine) finalize() (Result, error) {
	content, err := e.store.ExtractStory()
	if err != nil {
		if errors.Is(err, transcript.ErrNoStory) {
			e.journal.Error("approval signaled but no story block found in transcript")
			e.finish(OutcomeContentLost)
			return Result{Outcome: OutcomeContentLost, Turns: e.turn(), Err: err}, nil
		}
		return Result{}, err
	}
	if err := e.store.WriteFinal(content); err != nil {
		return Result{}, err
	}
	e.mu.Lock()
	e.tracker.Update(content)
	e.tracker.MarkComplete(progress.CheckpointFinalApproval)
	e.complete = true
	e.phase = PhaseCompleted
	e.outcome = OutcomeCompleted
	e.mu.Unlock()
	e.journal.Checkpoint(string(progress.CheckpointFinalApproval), e.tracker.WordCount(), e.tracker.PageCount())
	e.journal.Info("story approved with technical review passed (%d words)", e.tracker.WordCount())
	return Result{Outcome: OutcomeCompleted, Turns: e.turn()}, nil
}

// conclude ends the run on an explicit completion marker. Unlike finalize no
// approval was claimed, so a transcript without a delimited draft is not a
// data-integrity error; any draft present is still published.
func (e *Engine) conclude() error {
	if content, err := e.store.ExtractStory(); err == nil {
		if err := e.store.WriteFinal(content); err != nil {
			return err
		}
		e.mu.Lock()
		e.tracker.Update(content)
		e.mu.Unlock()
	}
	e.mu.Lock()
	e.complete = true
	e.phase = PhaseCompleted
	e.outcome = OutcomeConcluded
	e.mu.Unlock()
	e.journal.Info("story marked complete by its authors (%d words)", e.tracker.WordCount())
	return nil
}

// outlineStep applies the outline-phase iteration rules and returns a prompt
// override when the conversation should move to the writing phase.
func (e *Engine) outlineStep(speaker agent.Role, response string) string {
	if e.currentPhase() != PhaseOutline {
		return ""
	}
	lower := strings.ToLower(response)
	if speaker == agent.RoleWriter && strings.Contains(lower, "outline") {
		e.mu.Lock()
		e.outlineIters++
		iters := e.outlineIters
		e.mu.Unlock()
		if iters == 1 {
			verdict := e.cfg.EvaluateScope(response)
			e.journal.Info("outline scope: %s", verdict.Explanation)
			if !verdict.Acceptable {
				e.mu.Lock()
				e.scopeAdvisory = verdict.Explanation
				e.mu.Unlock()
			}
		}
	}
	e.mu.Lock()
	iters := e.outlineIters
	e.mu.Unlock()
	if iters >= e.settings.OutlineMinIterations && speaker == agent.RoleReader {
		if strings.Contains(lower, "approved") || iters >= e.settings.OutlineMaxIterations {
			e.setPhase(PhaseWriting)
			e.mu.Lock()
			e.tracker.MarkComplete(progress.CheckpointOutlineApproval)
			e.mu.Unlock()
			e.journal.Info("moving to writing phase after %d outline iterations", iters)
			return beginWritingPrompt
		}
	}
	return ""
}

// nextPrompt builds the context handed to the next speaker. Checkpoint and
// phase-transition overrides take precedence over the regular handoff frame.
func (e *Engine) nextPrompt(previous, next agent.Role, response string, approved bool, override string) string {
	if override != "" {
		return override
	}
	if next == agent.RoleExpert {
		if previous == agent.RoleReader && approved {
			return expertReviewPrompt(string(previous), response)
		}
		return arbitrationPrompt(string(previous), response)
	}
	prompt := handoffPrompt(string(previous), response)
	e.mu.Lock()
	advisory := e.scopeAdvisory
	e.scopeAdvisory = ""
	e.mu.Unlock()
	if advisory != "" && next == agent.RoleWriter {
		prompt = fmt.Sprintf("[SYSTEM NOTICE] %s\nPlease simplify the outline to fit the target length.\n\n%s", advisory, prompt)
	}
	if next == agent.RoleWriter && e.pastOutline() {
		prompt = fmt.Sprintf("%s\n\n[Pacing: %s]", prompt, e.pacingNote())
	}
	return prompt
}

// pacingNote tells the Writer where the story should be in its arc given the
// budget consumed so far.
func (e *Engine) pacingNote() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tracker.ShouldStartConclusion() {
		return fmt.Sprintf("%s. Roughly %d words remain; begin concluding now.",
			e.tracker.PacingHint(), e.tracker.RemainingWords())
	}
	return e.tracker.PacingHint()
}

// dueCheckpoint reads the current draft and asks the tracker whether a
// review threshold was crossed. A transcript without a draft yet simply
// reports nothing due.
func (e *Engine) dueCheckpoint() progress.Checkpoint {
	draft, err := e.store.ExtractStory()
	if err != nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.DueCheckpoint(draft)
}

// fireCheckpoint marks the checkpoint and moves the phase.
func (e *Engine) fireCheckpoint(cp progress.Checkpoint) {
	e.mu.Lock()
	e.tracker.MarkComplete(cp)
	e.mu.Unlock()
	e.journal.Checkpoint(string(cp), e.tracker.WordCount(), e.tracker.PageCount())
	switch cp {
	case progress.CheckpointPage1Review:
		e.setPhase(PhaseCheckpoint1)
	case progress.CheckpointPage2Review:
		e.setPhase(PhaseCheckpoint2)
	}
}

// fallbackSpeaker substitutes self-succession with a deterministic
// alternative. An agent holding its own turn produces no new information and
// risks an infinite loop.
func fallbackSpeaker(current agent.Role) agent.Role {
	switch current {
	case agent.RoleWriter:
		return agent.RoleReader
	case agent.RoleReader:
		return agent.RoleWriter
	default:
		return agent.RoleWriter
	}
}

func (e *Engine) recordTurn(speaker agent.Role, response string, elapsed time.Duration) {
	e.mu.Lock()
	record := TurnRecord{
		Turn:     e.turnCount,
		Speaker:  speaker,
		Phase:    e.phase,
		Response: response,
		Elapsed:  elapsed,
	}
	e.history = append(e.history, record)
	e.mu.Unlock()
	e.journal.Turn(record.Turn, string(speaker), string(record.Phase), elapsed)
}

func (e *Engine) advanceTurn() {
	e.mu.Lock()
	e.turnCount++
	e.mu.Unlock()
}

func (e *Engine) turn() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnCount
}

func (e *Engine) currentSpeaker() agent.Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaker
}

func (e *Engine) speakerIs(role agent.Role) bool {
	return e.currentSpeaker() == role
}

func (e *Engine) setSpeaker(role agent.Role) {
	e.mu.Lock()
	e.speaker = role
	e.mu.Unlock()
}

func (e *Engine) currentPhase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

func (e *Engine) pastOutline() bool {
	switch e.currentPhase() {
	case PhaseWriting, PhaseCheckpoint1, PhaseCheckpoint2, PhaseConcluding:
		return true
	}
	return false
}

func (e *Engine) isComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete
}

func (e *Engine) finish(outcome Outcome) {
	e.mu.Lock()
	e.outcome = outcome
	e.mu.Unlock()
}
