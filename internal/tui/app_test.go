package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/storyloom/storyloom/internal/agent"
	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/session"
	"github.com/storyloom/storyloom/internal/story"
)

func finishedSession(t *testing.T) *session.Session {
	t.Helper()
	dir := t.TempDir()
	if err := config.InitStoryloomDir(dir); err != nil {
		t.Fatalf("init project dir: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Project.Story.OutlineMinIterations = 1
	cfg.Project.Story.TurnTimeout = config.Duration(time.Second)
	builder := func(theme string, storyCfg story.Config) (agent.Set, error) {
		writer := agent.NewMock(agent.RoleWriter,
			"Outline sketched. [@Reader]",
			"---BEGIN STORY---\nThe tide took the last light.\n---END STORY---\n[@Reader]",
		)
		reader := agent.NewMock(agent.RoleReader,
			"Approved, start writing. [@Writer]",
			"I APPROVE this story. [@Writer]",
		)
		expert := agent.NewMock(agent.RoleExpert,
			"I APPROVE this story as Expert - technical review passed.",
		)
		return agent.NewSet(writer, reader, expert)
	}
	mgr, err := session.NewManager(cfg, builder)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	sess, err := mgr.Start(context.Background(), session.StartRequest{Theme: "the drowned bell"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := sess.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	return sess
}

func TestUpdateHandlesResizeAndQuit(t *testing.T) {
	app := NewApp(finishedSession(t), 900)

	model, _ := app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	app = model.(*App)
	if app.width != 120 {
		t.Fatalf("width = %d, want 120", app.width)
	}

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q did not quit")
	}
}

func TestRefreshStopsOnceFinished(t *testing.T) {
	app := NewApp(finishedSession(t), 900)

	msg := app.snapshot()
	if !msg.status.Finished {
		t.Fatalf("snapshot not finished: %+v", msg.status)
	}
	model, cmd := app.Update(msg)
	app = model.(*App)
	if cmd != nil {
		t.Fatalf("refresh rescheduled after the run finished")
	}
	if len(app.journalLines) == 0 {
		t.Fatalf("journal panel empty after completed run")
	}
}

func TestViewRendersRunState(t *testing.T) {
	app := NewApp(finishedSession(t), 900)
	model, _ := app.Update(app.snapshot())
	app = model.(*App)

	view := app.View()
	for _, want := range []string{"STORYLOOM", "the drowned bell", "completed", "final_approval"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
