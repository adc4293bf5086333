// handlers.go — API endpoint handlers.
// Every response is {"ok": bool, "error"?: string, ...}.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/browser"
	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/ingest"
	"github.com/EmreDinc10/bugscribe/internal/llm"
	"github.com/EmreDinc10/bugscribe/internal/persistence"
	"github.com/EmreDinc10/bugscribe/internal/prompt"
	"github.com/EmreDinc10/bugscribe/internal/report"
	"github.com/EmreDinc10/bugscribe/internal/types"
	"github.com/EmreDinc10/bugscribe/internal/util"
)

var errInvalidJSON = errors.New("invalid JSON")

func failure(msg string) map[string]any {
	return map[string]any{"ok": false, "error": msg}
}

func success(fields map[string]any) map[string]any {
	out := map[string]any{"ok": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	var se *llm.StatusError
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, errInvalidJSON),
		errors.Is(err, report.ErrEmptyPrompt),
		errors.Is(err, persistence.ErrMissingIdentifiers),
		errors.Is(err, ingest.ErrMalformedPayload),
		errors.Is(err, ingest.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, llm.ErrMissingAPIKey):
		return http.StatusServiceUnavailable
	case errors.As(err, &se), errors.Is(err, llm.ErrNoChoices):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	util.JSONResponse(w, status, failure(err.Error()), s.logger)
}

func (s *Server) ok(w http.ResponseWriter, fields map[string]any) {
	util.JSONResponse(w, http.StatusOK, success(fields), s.logger)
}

// readBody reads a request body capped at capture.MaxPostBody.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, capture.MaxPostBody)
	return io.ReadAll(r.Body)
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errInvalidJSON
	}
	return nil
}

// ============================================
// Health
// ============================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	fields := map[string]any{
		"version":        s.version,
		"uptimeSeconds":  int64(time.Since(s.startedAt).Seconds()),
		"counts":         s.Capture.Counts(),
		"loggingEnabled": s.Capture.LoggingEnabled(),
	}
	if s.Control != nil {
		state, tab := s.Control.State()
		fields["capture"] = map[string]any{"state": state.String(), "tabId": tab}
	}
	s.ok(w, fields)
}

// ============================================
// Ingestion and queries
// ============================================

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.Router.DispatchRaw(r.Context(), body)
	if err != nil && n == 0 {
		s.fail(w, r, err)
		return
	}
	fields := map[string]any{"accepted": n}
	if err != nil {
		fields["error"] = err.Error()
	}
	s.ok(w, fields)
}

func (s *Server) handleConsoleLogs(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, map[string]any{"logs": s.Capture.ConsoleLogs()})
}

func (s *Server) handleNetworkLogs(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, map[string]any{"logs": s.Capture.NetworkLogs()})
}

// ============================================
// Report actions
// ============================================

func (s *Server) handlePrepareReport(w http.ResponseWriter, r *http.Request) {
	var in prompt.IssueInput
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.Drafter.PrepareReport(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]any{"draft": res.Draft, "assistantContent": res.AssistantContent})
}

func (s *Server) handleRefineDraft(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.Drafter.RefineDraft(r.Context(), in.Prompt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]any{"draft": res.Draft, "assistantContent": res.AssistantContent})
}

func (s *Server) handleChatWithContext(w http.ResponseWriter, r *http.Request) {
	var in report.ChatInput
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.Assistant.ChatWithContext(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]any{"reply": res.Reply, "chatHistory": res.History})
}

func (s *Server) handleIssuePageReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.Drafter.IssuePageReady()
	s.ok(w, map[string]any{
		"draft":            ready.Draft,
		"assistantContent": ready.AssistantContent,
		"screenshots":      ready.Screenshots,
	})
}

// ============================================
// Keyed UI state
// ============================================

type keyedRequest struct {
	TabID       int                 `json:"tabId"`
	URL         string              `json:"url"`
	ChatHistory []types.ChatMessage `json:"chatHistory,omitempty"`
	IsOpen      bool                `json:"isOpen,omitempty"`
}

func (s *Server) handleChatHistoryLoad(w http.ResponseWriter, r *http.Request) {
	var in keyedRequest
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	history, err := s.Manager.LoadChatHistory(r.Context(), in.TabID, in.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]any{"chatHistory": history})
}

func (s *Server) handleChatHistorySave(w http.ResponseWriter, r *http.Request) {
	var in keyedRequest
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Manager.SaveChatHistory(r.Context(), in.TabID, in.URL, in.ChatHistory); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) handlePopupStateLoad(w http.ResponseWriter, r *http.Request) {
	var in keyedRequest
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	open, err := s.Manager.LoadPopupState(r.Context(), in.TabID, in.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]any{"isOpen": open})
}

func (s *Server) handlePopupStateSave(w http.ResponseWriter, r *http.Request) {
	var in keyedRequest
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Manager.SavePopupState(r.Context(), in.TabID, in.URL, in.IsOpen); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, nil)
}

// ============================================
// Capture control
// ============================================

func (s *Server) captureTab(w http.ResponseWriter, r *http.Request) (int, bool) {
	var in struct {
		TabID int `json:"tabId"`
	}
	if err := decodeBody(w, r, &in); err != nil {
		s.fail(w, r, err)
		return 0, false
	}
	if in.TabID <= 0 {
		s.fail(w, r, persistence.ErrMissingIdentifiers)
		return 0, false
	}
	if s.Control == nil {
		util.JSONResponse(w, http.StatusServiceUnavailable, failure("screenshot capture disabled"), s.logger)
		return 0, false
	}
	return in.TabID, true
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	tab, ok := s.captureTab(w, r)
	if !ok {
		return
	}
	s.Control.StartCapture(tab)
	state, tracked := s.Control.State()
	s.ok(w, map[string]any{"state": state.String(), "tabId": tracked})
}

func (s *Server) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	tab, ok := s.captureTab(w, r)
	if !ok {
		return
	}
	s.Control.StopCapture(tab)
	state, tracked := s.Control.State()
	s.ok(w, map[string]any{"state": state.String(), "tabId": tracked})
}

func (s *Server) handlePendingCommands(w http.ResponseWriter, _ *http.Request) {
	cmds := []browser.Command{}
	if s.Commands != nil {
		if pending := s.Commands.PendingCommands(); len(pending) > 0 {
			cmds = pending
		}
	}
	s.ok(w, map[string]any{"commands": cmds})
}
