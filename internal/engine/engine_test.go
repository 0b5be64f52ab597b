package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/storyloom/storyloom/internal/agent"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/signal"
	"github.com/storyloom/storyloom/internal/story"
	"github.com/storyloom/storyloom/internal/transcript"
)

func testPhrases() signal.Phrases {
	return signal.Phrases{
		Completion:    []string{"[STORY COMPLETE]", "[END]", "[FINISHED]"},
		Approval:      []string{"i approve this story"},
		TechnicalPass: []string{"technical review passed"},
		Conflict:      []string{"strongly disagree"},
	}
}

func testSettings() Settings {
	return Settings{
		MaxTurns:             20,
		TurnTimeout:          time.Second,
		OutlineMinIterations: 1,
		OutlineMaxIterations: 3,
	}
}

func newTestEngine(t *testing.T, settings Settings, writer, reader, expert agent.Agent) (*Engine, *transcript.Store) {
	t.Helper()
	cfg, err := story.NewConfig(3, 100, "Dr. Voss")
	if err != nil {
		t.Fatalf("story config: %v", err)
	}
	dir := t.TempDir()
	store := transcript.NewStore(
		filepath.Join(dir, "discussion.md"),
		filepath.Join(dir, "story.md"),
	)
	parser := signal.NewParser([]string{"Writer", "Reader", "Expert"}, "Expert", testPhrases())
	set, err := agent.NewSet(writer, reader, expert)
	if err != nil {
		t.Fatalf("agent set: %v", err)
	}
	eng, err := New(cfg, settings, set, store, parser)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng, store
}

func TestRunCompletesThroughExpertApproval(t *testing.T) {
	draft := strings.TrimSpace(strings.Repeat("night ", 120))
	writer := agent.NewMock(agent.RoleWriter,
		"Here is my outline for the story. [@Reader]",
		fmt.Sprintf("Here is the opening.\n---BEGIN STORY---\n%s\n---END STORY---\n[@Reader]", draft),
	)
	reader := agent.NewMock(agent.RoleReader,
		"The outline looks solid. Approved. [@Writer]",
		"Wonderful pacing and atmosphere. I APPROVE this story. [@Writer]",
	)
	expert := agent.NewMock(agent.RoleExpert,
		"Checked spelling and grammar. I APPROVE this story as Expert - technical review passed.",
	)
	eng, store := newTestEngine(t, testSettings(), writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeCompleted)
	}
	if result.Turns != 5 {
		t.Fatalf("turns = %d, want 5", result.Turns)
	}
	final, err := store.ReadFinal()
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if final != draft {
		t.Fatalf("final story = %q, want the last delimited block", final)
	}
	status := eng.Status()
	if !status.Complete || status.Phase != PhaseCompleted {
		t.Fatalf("status = %+v, want complete in phase %s", status, PhaseCompleted)
	}
	if !status.Checkpoints[progress.CheckpointOutlineApproval] {
		t.Errorf("outline approval checkpoint not marked")
	}
	if !status.Checkpoints[progress.CheckpointFinalApproval] {
		t.Errorf("final approval checkpoint not marked")
	}
	if status.WordCount != 120 {
		t.Errorf("word count = %d, want 120", status.WordCount)
	}
}

func TestRunInjectsCheckpointBeforeWriterContinues(t *testing.T) {
	draft := strings.TrimSpace(strings.Repeat("fog ", 60))
	writer := agent.NewMock(agent.RoleWriter,
		"My outline covers one scene. [@Reader]",
		fmt.Sprintf("---BEGIN STORY---\n%s\n---END STORY---\n[@Reader]", draft),
		"I will wrap up here with no handoff.",
	)
	reader := agent.NewMock(agent.RoleReader,
		"Approved, begin writing. [@Writer]",
		"Good start, keep going. [@Writer]",
		"Checkpoint review done, pacing holds. [@Writer]",
	)
	expert := agent.NewMock(agent.RoleExpert, "standing by")
	eng, _ := newTestEngine(t, testSettings(), writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeStalled {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeStalled)
	}
	if !eng.Tracker().IsComplete(progress.CheckpointPage1Review) {
		t.Fatalf("first checkpoint never fired")
	}
	history := eng.History()
	var reviewTurn *TurnRecord
	for i := range history {
		if history[i].Phase == PhaseCheckpoint1 {
			reviewTurn = &history[i]
			break
		}
	}
	if reviewTurn == nil {
		t.Fatalf("no turn recorded in phase %s", PhaseCheckpoint1)
	}
	if reviewTurn.Speaker != agent.RoleReader {
		t.Fatalf("checkpoint turn taken by %s, want %s", reviewTurn.Speaker, agent.RoleReader)
	}
}

func TestRunSubstitutesSelfSuccession(t *testing.T) {
	writer := agent.NewMock(agent.RoleWriter,
		"Outline draft one, I will continue myself. [@Writer]",
	)
	reader := agent.NewMock(agent.RoleReader,
		"Noted, no further direction.",
	)
	expert := agent.NewMock(agent.RoleExpert, "standing by")
	eng, _ := newTestEngine(t, testSettings(), writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeStalled {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeStalled)
	}
	history := eng.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[1].Speaker != agent.RoleReader {
		t.Fatalf("second speaker = %s, want %s after self-succession", history[1].Speaker, agent.RoleReader)
	}
}

func TestRunExhaustsTurnBudgetWithoutArtifact(t *testing.T) {
	writer := agent.NewMock(agent.RoleWriter, "Still thinking. [@Reader]")
	reader := agent.NewMock(agent.RoleReader, "Still waiting. [@Writer]")
	expert := agent.NewMock(agent.RoleExpert, "standing by")
	settings := testSettings()
	settings.MaxTurns = 3
	eng, store := newTestEngine(t, settings, writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeTurnBudget {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeTurnBudget)
	}
	if result.Turns != 3 {
		t.Fatalf("turns = %d, want 3", result.Turns)
	}
	final, err := store.ReadFinal()
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if final != "" {
		t.Fatalf("final artifact written without approval: %q", final)
	}
}

type blockingAgent struct {
	role agent.Role
}

func (b blockingAgent) Role() agent.Role { return b.role }

func (b blockingAgent) Invoke(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunTreatsTimeoutAsFatal(t *testing.T) {
	writer := blockingAgent{role: agent.RoleWriter}
	reader := agent.NewMock(agent.RoleReader, "unused")
	expert := agent.NewMock(agent.RoleExpert, "unused")
	settings := testSettings()
	settings.TurnTimeout = 10 * time.Millisecond
	eng, _ := newTestEngine(t, settings, writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeTimedOut)
	}
	if !errors.Is(result.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", result.Err)
	}
}

func TestRunReportsAgentFailure(t *testing.T) {
	boom := errors.New("upstream refused")
	writer := agent.NewMock(agent.RoleWriter, "unused").FailWith(boom)
	reader := agent.NewMock(agent.RoleReader, "unused")
	expert := agent.NewMock(agent.RoleExpert, "unused")
	eng, _ := newTestEngine(t, testSettings(), writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeAgentError {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeAgentError)
	}
	if !errors.Is(result.Err, boom) {
		t.Fatalf("err = %v, want %v", result.Err, boom)
	}
}

func TestRunFlagsApprovalWithoutStoryBlock(t *testing.T) {
	writer := agent.NewMock(agent.RoleWriter,
		"My outline, no draft yet. [@Reader]",
	)
	reader := agent.NewMock(agent.RoleReader,
		"I APPROVE this story. [@Expert]",
	)
	expert := agent.NewMock(agent.RoleExpert,
		"I APPROVE this story as Expert - technical review passed.",
	)
	eng, _ := newTestEngine(t, testSettings(), writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeContentLost {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeContentLost)
	}
	if !errors.Is(result.Err, transcript.ErrNoStory) {
		t.Fatalf("err = %v, want %v", result.Err, transcript.ErrNoStory)
	}
}

func TestRunEndsConcludedOnCompletionMarker(t *testing.T) {
	draft := strings.TrimSpace(strings.Repeat("ash ", 30))
	writer := agent.NewMock(agent.RoleWriter,
		"Outline sketched. [@Reader]",
		fmt.Sprintf("---BEGIN STORY---\n%s\n---END STORY---\n[STORY COMPLETE]", draft),
	)
	reader := agent.NewMock(agent.RoleReader,
		"Approved, start writing. [@Writer]",
	)
	expert := agent.NewMock(agent.RoleExpert, "standing by")
	eng, store := newTestEngine(t, testSettings(), writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeConcluded {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeConcluded)
	}
	if result.Turns != 3 {
		t.Fatalf("turns = %d, want 3", result.Turns)
	}
	status := eng.Status()
	if !status.Complete || status.Phase != PhaseCompleted {
		t.Fatalf("status = %+v, want complete in phase %s", status, PhaseCompleted)
	}
	if status.WordCount != 30 {
		t.Fatalf("word count = %d, want 30", status.WordCount)
	}
	final, err := store.ReadFinal()
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if final != draft {
		t.Fatalf("final story = %q, want the delimited draft", final)
	}
}

func TestRunMovesToConcludingOnCompletionWithHandoff(t *testing.T) {
	draft := strings.TrimSpace(strings.Repeat("ash ", 30))
	writer := agent.NewMock(agent.RoleWriter,
		"Outline sketched. [@Reader]",
		fmt.Sprintf("---BEGIN STORY---\n%s\n---END STORY---\n[STORY COMPLETE] [@Reader]", draft),
	)
	reader := agent.NewMock(agent.RoleReader,
		"Approved, start writing. [@Writer]",
		"Noted.",
	)
	expert := agent.NewMock(agent.RoleExpert, "standing by")
	eng, _ := newTestEngine(t, testSettings(), writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// The handoff keeps the conversation alive; the Reader's tagless,
	// marker-less reply then ends it as a stall, still in concluding.
	if result.Outcome != OutcomeStalled {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeStalled)
	}
	if got := eng.Status().Phase; got != PhaseConcluding {
		t.Fatalf("phase = %s, want %s", got, PhaseConcluding)
	}
}

func TestRunHonorsOutlineMinimumIterations(t *testing.T) {
	writer := agent.NewMock(agent.RoleWriter,
		"First outline pass. [@Reader]",
		"Revised outline after feedback. [@Reader]",
		"---BEGIN STORY---\nThe door would not close.\n---END STORY---",
	)
	reader := agent.NewMock(agent.RoleReader,
		"Approved already! [@Writer]",
		"Approved for real now. [@Writer]",
	)
	expert := agent.NewMock(agent.RoleExpert, "standing by")
	settings := testSettings()
	settings.OutlineMinIterations = 2
	eng, _ := newTestEngine(t, settings, writer, reader, expert)

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeStalled {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeStalled)
	}
	history := eng.History()
	// Turns 1-3 stay in the outline phase: the Reader's first approval lands
	// before the minimum iteration count is met.
	for _, record := range history[:3] {
		if record.Phase != PhaseOutline {
			t.Fatalf("turn %d phase = %s, want %s", record.Turn, record.Phase, PhaseOutline)
		}
	}
	if !eng.Tracker().IsComplete(progress.CheckpointOutlineApproval) {
		t.Fatalf("outline approval never marked after second iteration")
	}
}

func TestSettingsValidate(t *testing.T) {
	good := testSettings()
	if err := good.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
	bad := good
	bad.MaxTurns = 0
	if err := bad.Validate(); err == nil {
		t.Errorf("expected error for zero max turns")
	}
	bad = good
	bad.TurnTimeout = 0
	if err := bad.Validate(); err == nil {
		t.Errorf("expected error for zero timeout")
	}
	bad = good
	bad.OutlineMaxIterations = 0
	if err := bad.Validate(); err == nil {
		t.Errorf("expected error for inverted outline bounds")
	}
}
