// cmd/storyloom/main.go
//
// Entry point for the storyloom CLI. Three agents (Writer, Reader, Expert)
// collaborate on a short story; this binary wires them to a project's
// .storyloom directory and either runs one story to completion, monitors it
// in a TUI, or serves the HTTP API.

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/storyloom/storyloom/internal/agent"
	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/engine"
	"github.com/storyloom/storyloom/internal/logging"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/server"
	"github.com/storyloom/storyloom/internal/session"
	"github.com/storyloom/storyloom/internal/story"
	"github.com/storyloom/storyloom/internal/tui"
)

func main() {
	var (
		theme       = flag.String("theme", "", "story theme to write about")
		pages       = flag.Int("pages", 0, "page budget (default from config)")
		protagonist = flag.String("protagonist", "", "optional protagonist name")
		mock        = flag.Bool("mock", false, "use scripted agents instead of the configured LLM")
		withTUI     = flag.Bool("tui", false, "monitor the run in a terminal UI")
		serve       = flag.Bool("serve", false, "serve the HTTP API instead of running one story")
		addr        = flag.String("addr", "", "listen address for -serve (default 127.0.0.1:8377)")
		dir         = flag.String("dir", "", "project directory (default: current directory)")
	)
	flag.Parse()

	if err := run(*theme, *pages, *protagonist, *mock, *withTUI, *serve, *addr, *dir); err != nil {
		fmt.Fprintf(os.Stderr, "storyloom: %v\n", err)
		os.Exit(1)
	}
}

func run(theme string, pages int, protagonist string, mock, withTUI, serve bool, addr, dir string) error {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		dir = cwd
	}
	if err := config.InitStoryloomDir(dir); err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if cfg.Project.LLM.APIKey == "" {
		cfg.Project.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	log, err := logging.New(dir)
	if err != nil {
		return err
	}
	defer log.Close()

	builder := agentBuilder(cfg, mock)
	mgr, err := session.NewManager(cfg, builder)
	if err != nil {
		return err
	}

	if serve {
		return serveAPI(mgr, addr, log)
	}

	if strings.TrimSpace(theme) == "" {
		return fmt.Errorf("a theme is required; pass -theme %q", "the lighthouse keeper")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.With("cli").Printf("starting story: theme=%q pages=%d mock=%v", theme, pages, mock)
	sess, err := mgr.Start(ctx, session.StartRequest{
		Theme:       theme,
		Protagonist: protagonist,
		PageLimit:   pages,
	})
	if err != nil {
		return err
	}

	if withTUI {
		pageLimit := pages
		if pageLimit == 0 {
			pageLimit = cfg.Project.Story.PageLimit
		}
		if err := tui.Run(sess, pageLimit*cfg.Project.Story.WordsPerPage); err != nil {
			return err
		}
	}

	result, err := sess.Wait(ctx)
	if err != nil {
		return err
	}
	printSummary(os.Stdout, sess, result)
	switch result.Outcome {
	case engine.OutcomeCompleted, engine.OutcomeConcluded:
		return nil
	default:
		return fmt.Errorf("run ended without a finished story (%s)", result.Outcome)
	}
}

// agentBuilder wires the provider registry. The mock provider scripts a full
// run so the whole pipeline can be exercised without an API key.
func agentBuilder(cfg *config.Config, mock bool) session.AgentBuilder {
	return func(theme string, storyCfg story.Config) (agent.Set, error) {
		reg := agent.NewRegistry()
		if err := reg.Register("openai", func(role agent.Role) (agent.Agent, error) {
			system := agent.SystemPrompt(role, theme, storyCfg)
			return agent.NewOpenAIAgent(role, system, cfg.Project.LLM)
		}); err != nil {
			return nil, err
		}
		if err := reg.Register("mock", func(role agent.Role) (agent.Agent, error) {
			return scriptedAgent(role, theme, storyCfg), nil
		}); err != nil {
			return nil, err
		}
		provider := cfg.Project.LLM.Provider
		if mock {
			provider = "mock"
		}
		return reg.Build(provider)
	}
}

// scriptedAgent plays out a minimal but complete run: outline, approval,
// draft, reader approval, expert approval.
func scriptedAgent(role agent.Role, theme string, cfg story.Config) agent.Agent {
	switch role {
	case agent.RoleWriter:
		draft := demoDraft(theme, cfg)
		return agent.NewMock(role,
			fmt.Sprintf("Here is my outline for a story about %s: one scene, one revelation. [@Reader]", theme),
			fmt.Sprintf("---BEGIN STORY---\n%s\n---END STORY---\n[@Reader]", draft),
		)
	case agent.RoleReader:
		return agent.NewMock(role,
			"The outline is approved; it fits the budget. [@Writer]",
			"The draft lands well. I APPROVE this story. [@Writer]",
		)
	default:
		return agent.NewMock(role,
			"No spelling or formatting issues found. I APPROVE this story as Expert - technical review passed.",
		)
	}
}

func demoDraft(theme string, cfg story.Config) string {
	protagonist := cfg.Protagonist
	if protagonist == "" {
		protagonist = "The keeper"
	}
	opening := fmt.Sprintf("# %s\n\n%s had heard the stories about %s, and dismissed every one of them.",
		theme, protagonist, theme)
	filler := strings.TrimSpace(strings.Repeat("The night held its breath and the house settled around the silence. ", 8))
	closing := fmt.Sprintf("By morning, %s no longer dismissed anything at all.", protagonist)
	return opening + "\n\n" + filler + "\n\n" + closing
}

func serveAPI(mgr *session.Manager, addr string, log *logging.Logger) error {
	settings := server.DefaultSettings()
	if addr != "" {
		host, portText, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("parse -addr: %w", err)
		}
		port, err := strconv.Atoi(portText)
		if err != nil {
			return fmt.Errorf("parse -addr port: %w", err)
		}
		settings.Host = host
		settings.Port = port
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(settings, mgr, server.WithLogger(log.With("server")))
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("storyloom API listening on %s\n", srv.BaseURL())
	<-ctx.Done()
	fmt.Println("shutting down")
	return srv.Shutdown(context.Background())
}

func printSummary(w *os.File, sess *session.Session, result engine.Result) {
	status := sess.Status()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== story run summary ===")
	fmt.Fprintf(w, "theme:       %s\n", status.Theme)
	fmt.Fprintf(w, "outcome:     %s after %d turns\n", result.Outcome, result.Turns)
	fmt.Fprintf(w, "length:      %d words (%.1f pages)\n", status.Engine.WordCount, status.Engine.PageCount)
	speakerTurns := map[string]int{}
	for _, record := range sess.History() {
		speakerTurns[string(record.Speaker)]++
	}
	for _, role := range agent.Roles() {
		if n := speakerTurns[string(role)]; n > 0 {
			fmt.Fprintf(w, "turns:       %s spoke %d time(s)\n", role, n)
		}
	}
	for _, cp := range []progress.Checkpoint{
		progress.CheckpointOutlineApproval,
		progress.CheckpointPage1Review,
		progress.CheckpointPage2Review,
		progress.CheckpointFinalApproval,
	} {
		mark := " "
		if status.Engine.Checkpoints[cp] {
			mark = "x"
		}
		fmt.Fprintf(w, "checkpoint:  [%s] %s\n", mark, cp)
	}
	if text, err := sess.Story(); err == nil && text != "" {
		fmt.Fprintf(w, "story saved under the project's %s output directory\n", config.StoryloomDir)
		preview := text
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		fmt.Fprintf(w, "preview:     %s\n", strings.ReplaceAll(preview, "\n", " "))
	}
	if lines, _ := sess.JournalTail(5); len(lines) > 0 {
		fmt.Fprintln(w, "journal:")
		for _, line := range lines {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
