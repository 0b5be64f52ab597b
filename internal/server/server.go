// Package server exposes story runs over HTTP: start a run, poll its
// progress, and fetch the finished story as markdown or rendered HTML.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/storyloom/storyloom/internal/session"
)

// Settings configures the HTTP listener.
type Settings struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

// DefaultSettings returns the listener defaults.
func DefaultSettings() Settings {
	return Settings{
		Host:         "127.0.0.1",
		Port:         8377,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

// Address returns the host:port the server binds.
func (s Settings) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Logger is the minimal logging surface the server needs.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Server serves the story API on top of a session manager.
type Server struct {
	settings Settings
	manager  *session.Manager
	logger   Logger
	clock    func() time.Time
	markdown goldmark.Markdown

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	runCtx    context.Context
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New prepares a story API server.
func New(settings Settings, manager *session.Manager, opts ...Option) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("server: session manager is required")
	}
	s := &Server{
		settings: settings,
		manager:  manager,
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		runCtx:   context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Handler returns the route table, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/stories", s.handleStartStory)
	mux.HandleFunc("GET /api/stories", s.handleListStories)
	mux.HandleFunc("GET /api/stories/{id}", s.handleGetStory)
	mux.HandleFunc("GET /api/stories/{id}/story", s.handleStoryText)
	mux.HandleFunc("GET /api/stories/{id}/story.html", s.handleStoryHTML)
	mux.HandleFunc("GET /api/stories/{id}/transcript", s.handleTranscript)
	return mux
}

// Start binds the TCP listener and begins serving. Sessions started through
// the API inherit ctx; cancelling it aborts their runs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server: already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	if ctx != nil {
		s.runCtx = ctx
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server: serve error: %v", err)
		}
	}()
	s.logger.Printf("server: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound address once the server is started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return "http://" + s.settings.Address()
	}
	return "http://" + addr
}

type startRequest struct {
	Theme       string `json:"theme"`
	Protagonist string `json:"protagonist"`
	PageLimit   int    `json:"page_limit"`
}

type storyResponse struct {
	ID          string          `json:"id"`
	Theme       string          `json:"theme"`
	CreatedAt   time.Time       `json:"created_at"`
	Phase       string          `json:"phase"`
	Turn        int             `json:"turn"`
	Speaker     string          `json:"speaker"`
	WordCount   int             `json:"word_count"`
	PageCount   float64         `json:"page_count"`
	Checkpoints map[string]bool `json:"checkpoints"`
	Finished    bool            `json:"finished"`
	Outcome     string          `json:"outcome,omitempty"`
}

func toStoryResponse(status session.Status) storyResponse {
	checkpoints := make(map[string]bool, len(status.Engine.Checkpoints))
	for cp, done := range status.Engine.Checkpoints {
		checkpoints[string(cp)] = done
	}
	return storyResponse{
		ID:          status.ID,
		Theme:       status.Theme,
		CreatedAt:   status.CreatedAt,
		Phase:       string(status.Engine.Phase),
		Turn:        status.Engine.Turn,
		Speaker:     string(status.Engine.Speaker),
		WordCount:   status.Engine.WordCount,
		PageCount:   status.Engine.PageCount,
		Checkpoints: checkpoints,
		Finished:    status.Finished,
		Outcome:     string(status.Engine.Outcome),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	start := s.startTime
	s.mu.RUnlock()
	uptime := int64(0)
	if !start.IsZero() {
		uptime = int64(s.clock().Sub(start).Seconds())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"uptime_seconds": uptime,
		"sessions":       len(s.manager.List()),
	})
}

func (s *Server) handleStartStory(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload exceeds limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to read body"})
		return
	}
	var req startRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	s.mu.RLock()
	runCtx := s.runCtx
	s.mu.RUnlock()
	sess, err := s.manager.Start(runCtx, session.StartRequest{
		Theme:       req.Theme,
		Protagonist: req.Protagonist,
		PageLimit:   req.PageLimit,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Printf("server: started story %s (%q)", sess.ID(), sess.Theme())
	writeJSON(w, http.StatusAccepted, toStoryResponse(sess.Status()))
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	sessions := s.manager.List()
	out := make([]storyResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toStoryResponse(sess.Status()))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown story"})
		return
	}
	writeJSON(w, http.StatusOK, toStoryResponse(sess.Status()))
}

func (s *Server) handleStoryText(w http.ResponseWriter, r *http.Request) {
	text, status := s.finalStory(r.PathValue("id"))
	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": storyErrMessage(status)})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, text)
}

func (s *Server) handleStoryHTML(w http.ResponseWriter, r *http.Request) {
	text, status := s.finalStory(r.PathValue("id"))
	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": storyErrMessage(status)})
		return
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		s.logger.Printf("server: render story: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "render failed"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown story"})
		return
	}
	text, err := sess.Transcript()
	if err != nil {
		s.logger.Printf("server: read transcript: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "transcript unavailable"})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, text)
}

// finalStory resolves a session's finished story. 404 covers both an unknown
// ID and a story that has no approved artifact yet.
func (s *Server) finalStory(id string) (string, int) {
	sess, ok := s.manager.Get(id)
	if !ok {
		return "", http.StatusNotFound
	}
	text, err := sess.Story()
	if err != nil {
		s.logger.Printf("server: read story %s: %v", id, err)
		return "", http.StatusInternalServerError
	}
	if text == "" {
		return "", http.StatusNotFound
	}
	return text, http.StatusOK
}

func storyErrMessage(status int) string {
	if status == http.StatusNotFound {
		return "story not available"
	}
	return "story unavailable"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
