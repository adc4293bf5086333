// server.go — HTTP surface of the daemon: extension events, queries and report
// actions on a loopback listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/browser"
	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/ingest"
	"github.com/EmreDinc10/bugscribe/internal/persistence"
	"github.com/EmreDinc10/bugscribe/internal/report"
	"github.com/EmreDinc10/bugscribe/internal/scheduler"
)

// DefaultPort is the loopback port the extension talks to.
const DefaultPort = 7345

const shutdownTimeout = 5 * time.Second

// CaptureControl arms and disarms screenshot capture.
type CaptureControl interface {
	StartCapture(tabID int)
	StopCapture(tabID int)
	State() (scheduler.State, int)
}

// CommandQueue hands queued commands to the polling extension.
type CommandQueue interface {
	PendingCommands() []browser.Command
}

// Deps are the components the server fronts. Commands may be nil when screenshots
// are taken over DevTools instead of through the extension.
type Deps struct {
	Capture   *capture.Capture
	Router    *ingest.Router
	Drafter   *report.Drafter
	Assistant *report.Assistant
	Manager   *persistence.Manager
	Control   CaptureControl
	Commands  CommandQueue
}

// Server serves the HTTP API.
type Server struct {
	Deps
	logger      *zap.Logger
	extensionID string
	version     string
	startedAt   time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithExtensionID pins accepted extension origins to one extension.
func WithExtensionID(id string) Option { return func(s *Server) { s.extensionID = id } }

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

// New creates a server over deps.
func New(deps Deps, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		Deps:      deps,
		logger:    logger.Named("http"),
		version:   "dev",
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, middleware-wrapped API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /events", s.handleEvents)
	mux.HandleFunc("GET /console-logs", s.handleConsoleLogs)
	mux.HandleFunc("GET /network-logs", s.handleNetworkLogs)

	mux.HandleFunc("POST /prepare-report", s.handlePrepareReport)
	mux.HandleFunc("POST /refine-draft", s.handleRefineDraft)
	mux.HandleFunc("POST /chat-with-context", s.handleChatWithContext)
	mux.HandleFunc("GET /issue-page-ready", s.handleIssuePageReady)

	mux.HandleFunc("POST /chat-history/load", s.handleChatHistoryLoad)
	mux.HandleFunc("POST /chat-history/save", s.handleChatHistorySave)
	mux.HandleFunc("POST /popup-state/load", s.handlePopupStateLoad)
	mux.HandleFunc("POST /popup-state/save", s.handlePopupStateSave)

	mux.HandleFunc("POST /capture/start", s.handleCaptureStart)
	mux.HandleFunc("POST /capture/stop", s.handleCaptureStop)
	mux.HandleFunc("GET /pending-commands", s.handlePendingCommands)

	return s.recoverMiddleware(s.corsMiddleware(mux))
}

// Serve runs the API on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
