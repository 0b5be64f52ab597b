// Package session manages concurrent story runs. Each run gets its own
// engine, transcript files, and journal, keyed by a generated ID, so several
// stories can be in flight in one project without sharing state.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storyloom/storyloom/internal/agent"
	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/engine"
	"github.com/storyloom/storyloom/internal/journal"
	"github.com/storyloom/storyloom/internal/signal"
	"github.com/storyloom/storyloom/internal/story"
	"github.com/storyloom/storyloom/internal/transcript"
)

// AgentBuilder constructs the agent set for one run. The theme and story
// budget feed the system prompts, so agents cannot be shared across runs.
type AgentBuilder func(theme string, cfg story.Config) (agent.Set, error)

// StartRequest carries the per-run parameters. Zero values fall back to the
// project configuration.
type StartRequest struct {
	Theme       string
	Protagonist string
	PageLimit   int
}

// Session is one story run. All methods are safe for concurrent use.
type Session struct {
	id        string
	theme     string
	createdAt time.Time
	engine    *engine.Engine
	store     *transcript.Store
	journal   *journal.Journal
	done      chan struct{}

	mu       sync.Mutex
	finished bool
	result   engine.Result
	runErr   error
}

// Status is a point-in-time view of a session.
type Status struct {
	ID        string
	Theme     string
	CreatedAt time.Time
	Finished  bool
	Engine    engine.Status
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Theme returns the story theme this session was started with.
func (s *Session) Theme() string { return s.theme }

// CreatedAt returns the session start time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Done is closed when the run finishes, however it ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status snapshots the session and its engine.
func (s *Session) Status() Status {
	s.mu.Lock()
	finished := s.finished
	s.mu.Unlock()
	return Status{
		ID:        s.id,
		Theme:     s.theme,
		CreatedAt: s.createdAt,
		Finished:  finished,
		Engine:    s.engine.Status(),
	}
}

// Result returns the run result once the session has finished. The boolean
// reports whether the run is done yet.
func (s *Session) Result() (engine.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.finished
}

// Wait blocks until the run finishes or ctx is cancelled.
func (s *Session) Wait(ctx context.Context) (engine.Result, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr != nil {
		return s.result, s.runErr
	}
	return s.result, nil
}

// History returns the run's turn records so far.
func (s *Session) History() []engine.TurnRecord {
	return s.engine.History()
}

// Story returns the finalized story text, empty until the Expert approves.
func (s *Session) Story() (string, error) {
	return s.store.ReadFinal()
}

// Transcript returns the full discussion so far.
func (s *Session) Transcript() (string, error) {
	return s.store.Read()
}

// JournalTail returns the most recent journal lines for this run.
func (s *Session) JournalTail(maxLines int) ([]string, int) {
	return s.journal.Tail(maxLines)
}

func (s *Session) run(ctx context.Context) {
	result, err := s.engine.Run(ctx)
	s.mu.Lock()
	s.result = result
	s.runErr = err
	s.finished = true
	s.mu.Unlock()
	close(s.done)
}

// Manager owns the live session set for one project.
type Manager struct {
	cfg   *config.Config
	build AgentBuilder

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds a manager over the given project configuration.
func NewManager(cfg *config.Config, build AgentBuilder) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session: project config is required")
	}
	if build == nil {
		return nil, fmt.Errorf("session: agent builder is required")
	}
	return &Manager{
		cfg:      cfg,
		build:    build,
		sessions: map[string]*Session{},
	}, nil
}

// Start launches a new run in its own goroutine and returns immediately. The
// passed context governs the whole run: cancelling it aborts the session.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if strings.TrimSpace(req.Theme) == "" {
		return nil, fmt.Errorf("session: theme is required")
	}
	pageLimit := req.PageLimit
	if pageLimit == 0 {
		pageLimit = m.cfg.Project.Story.PageLimit
	}
	storyCfg, err := story.NewConfig(pageLimit, m.cfg.Project.Story.WordsPerPage, req.Protagonist)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	short := id[:8]
	store := transcript.NewStore(
		filepath.Join(m.cfg.StoryloomProjectDir, "discussions", fmt.Sprintf("story_discussion_%s.md", short)),
		filepath.Join(m.cfg.StoryloomProjectDir, "output", fmt.Sprintf("story_%s.md", short)),
	)
	jrnl, err := journal.New(filepath.Join(m.cfg.StoryloomProjectDir, "logs", fmt.Sprintf("run_%s.log", short)))
	if err != nil {
		return nil, err
	}
	parser := signal.NewParser(agent.RoleNames(), string(agent.RoleExpert), signal.Phrases{
		Completion:    m.cfg.Project.Signals.Completion,
		Approval:      m.cfg.Project.Signals.Approval,
		TechnicalPass: m.cfg.Project.Signals.TechnicalPass,
		Conflict:      m.cfg.Project.Signals.Conflict,
	})
	agents, err := m.build(req.Theme, storyCfg)
	if err != nil {
		return nil, fmt.Errorf("session: build agents: %w", err)
	}
	settings := engine.Settings{
		MaxTurns:             m.cfg.Project.Story.MaxTurns,
		TurnTimeout:          m.cfg.Project.Story.TurnTimeout.Std(),
		OutlineMinIterations: m.cfg.Project.Story.OutlineMinIterations,
		OutlineMaxIterations: m.cfg.Project.Story.OutlineMaxIterations,
	}
	eng, err := engine.New(storyCfg, settings, agents, store, parser, engine.WithJournal(jrnl))
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        id,
		theme:     req.Theme,
		createdAt: time.Now(),
		engine:    eng,
		store:     store,
		journal:   jrnl,
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	go s.run(ctx)
	return s, nil
}

// Get looks up a session by its full ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns all sessions ordered by start time, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}
