// handlers.go — Per-tag event handlers.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/prompt"
	"github.com/EmreDinc10/bugscribe/internal/types"
)

// maxBodyChars bounds request and response bodies from page-script wrappers.
const maxBodyChars = 8000

// ============================================
// Tab lifecycle
// ============================================

func (r *Router) handlePageActive(_ context.Context, ev types.Event) error {
	if err := requireTab(ev); err != nil {
		return err
	}
	if r.tabs != nil {
		r.tabs.PageActive(ev.TabID, ev.URL)
	}
	if r.control != nil {
		r.control.StartCapture(ev.TabID)
	}
	r.requestSave()
	return nil
}

func (r *Router) handleTabActivated(_ context.Context, ev types.Event) error {
	if err := requireTab(ev); err != nil {
		return err
	}
	if r.tabs != nil {
		r.tabs.TabActivated(ev.TabID)
	}
	return nil
}

func (r *Router) handleTabRemoved(_ context.Context, ev types.Event) error {
	if err := requireTab(ev); err != nil {
		return err
	}
	if r.tabs != nil {
		r.tabs.TabRemoved(ev.TabID)
	}
	if r.control != nil {
		r.control.TabRemoved(ev.TabID)
	}
	return nil
}

// ============================================
// Page-script streams
// ============================================

func (r *Router) handleConsole(_ context.Context, ev types.Event) error {
	var p types.ConsolePayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}

	msg := rawText(p.Message)
	if len(p.Message) == 0 && len(p.Args) > 0 {
		parts := make([]string, len(p.Args))
		for i, a := range p.Args {
			parts[i] = rawText(a)
		}
		msg = strings.Join(parts, " ")
	}

	level := p.Level
	if level == "" {
		level = "log"
	}
	ts := int64(p.Timestamp)
	if ts <= 0 {
		ts = r.nowMillis()
	}
	url := p.URL
	if url == "" {
		url = ev.URL
	}

	total := r.capture.AddConsole(types.LogEntry{
		Level:     level,
		Message:   msg,
		Timestamp: ts,
		Stack:     p.Stack,
		URL:       url,
	})
	if total%consoleSaveEvery == 0 {
		r.requestSave()
	}
	return nil
}

func (r *Router) handleInteraction(_ context.Context, ev types.Event) error {
	var p types.InteractionPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if p.Kind == "" {
		return fmt.Errorf("%w: interaction without kind", ErrMalformedPayload)
	}
	r.capture.AddInteraction(types.InteractionRecord{
		Kind:     p.Kind,
		Selector: p.Selector,
		Text:     p.Text,
		Key:      p.Key,
		At:       r.nowMillis(),
	})
	return nil
}

func (r *Router) handleDomSnapshot(_ context.Context, ev types.Event) error {
	var p types.DomSnapshotPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	r.capture.AddDomSnapshot(types.DomSnapshotRecord{
		Selector:  p.Selector,
		OuterHTML: prompt.Bound(p.OuterHTML, capture.MaxOuterHTML),
		At:        r.nowMillis(),
	})
	return nil
}

// handleNetworkLog stores a request seen by the fetch or xhr wrapper under a
// synthetic id, since these never correlate with browser lifecycle ids.
func (r *Router) handleNetworkLog(_ context.Context, ev types.Event) error {
	var p types.NetworkLogPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if p.URL == "" {
		return fmt.Errorf("%w: network log without url", ErrMalformedPayload)
	}

	source := types.SourceFetch
	if p.Kind == types.SourceXHR {
		source = types.SourceXHR
	}
	method := p.Method
	if method == "" {
		method = "GET"
	}

	rec := types.NetworkRecord{
		ID:           "page-" + uuid.NewString(),
		URL:          p.URL,
		Method:       strings.ToUpper(method),
		Timestamp:    r.nowMillis() - p.DurationMs,
		Source:       source,
		DurationMs:   p.DurationMs,
		RequestBody:  bodyText(p.RequestBody),
		ResponseBody: bodyText(p.ResponseBody),
	}

	status, failed := parseStatus(p.Status)
	switch {
	case failed:
		rec.Error = p.Error
		if rec.Error == "" {
			rec.Error = "error"
		}
	case status != nil:
		rec.ResponseStatusCode = status
	}
	rec.ResponseHeaders = parseHeaders(p.ResponseHeaders)

	if !r.capture.AddPageNetwork(rec) {
		r.logger.Debug("network logging disabled, dropped page request")
	}
	return nil
}

// ============================================
// Browser network lifecycle
// ============================================

func (r *Router) handleRequestStart(_ context.Context, ev types.Event) error {
	var p types.RequestStartPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if p.RequestID == "" {
		return fmt.Errorf("%w: missing requestId", ErrMalformedPayload)
	}
	ts := int64(p.TimeStamp)
	if ts <= 0 {
		ts = r.nowMillis()
	}
	r.capture.OnRequestStart(p.RequestID, p.URL, strings.ToUpper(p.Method), p.Type, ts,
		capture.FrameInfo{FrameID: p.FrameID, ParentFrameID: p.ParentFrameID})
	return nil
}

func (r *Router) handleRequestHeaders(_ context.Context, ev types.Event) error {
	var p types.RequestHeadersPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if !r.capture.OnRequestHeaders(p.RequestID, p.RequestHeaders) {
		r.logger.Debug("headers for unknown request", zap.String("id", p.RequestID))
	}
	return nil
}

func (r *Router) handleRequestComplete(_ context.Context, ev types.Event) error {
	var p types.RequestCompletePayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if !r.capture.OnRequestComplete(p.RequestID, p.StatusCode, p.ResponseHeaders) {
		r.logger.Debug("completion for unknown request", zap.String("id", p.RequestID))
	}
	return nil
}

func (r *Router) handleRequestError(_ context.Context, ev types.Event) error {
	var p types.RequestErrorPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if !r.capture.OnRequestError(p.RequestID, p.Error) {
		r.logger.Debug("error for unknown request", zap.String("id", p.RequestID))
	}
	return nil
}

// ============================================
// Control
// ============================================

func (r *Router) handleScreenshot(_ context.Context, ev types.Event) error {
	var p types.ScreenshotPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if !strings.HasPrefix(p.DataURL, "data:image/") {
		return fmt.Errorf("%w: screenshot is not an image data url", ErrMalformedPayload)
	}
	at := p.CapturedAt
	if at <= 0 {
		at = r.nowMillis()
	}
	r.capture.AddScreenshot(types.ScreenshotRecord{ImageData: p.DataURL, CapturedAt: at})
	return nil
}

func (r *Router) handleSetLogging(_ context.Context, ev types.Event) error {
	var p types.SetLoggingPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	r.capture.SetLogging(p.Enabled)
	r.requestSave()
	return nil
}

// ============================================
// Payload coercion
// ============================================

// rawText renders a JSON value as text: strings unquoted, anything else compacted.
func rawText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	var s string
	if trimmed[0] == '"' && json.Unmarshal(trimmed, &s) == nil {
		return s
	}
	return prompt.SafeJSON(json.RawMessage(trimmed), prompt.DefaultLimit)
}

func bodyText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	return prompt.Truncate(rawText(trimmed), maxBodyChars)
}

// parseStatus reads a numeric status or the "error" sentinel.
func parseStatus(raw json.RawMessage) (status *int, failed bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	var n float64
	if err := json.Unmarshal(trimmed, &n); err == nil {
		code := int(n)
		return &code, false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil && s == "error" {
		return nil, true
	}
	return nil, false
}

// parseHeaders accepts a header object (fetch) or a raw CRLF header block (xhr).
func parseHeaders(raw json.RawMessage) []types.HTTPHeader {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	switch trimmed[0] {
	case '{':
		var m map[string]string
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil
		}
		names := make([]string, 0, len(m))
		for k := range m {
			names = append(names, k)
		}
		sort.Strings(names)
		headers := make([]types.HTTPHeader, 0, len(names))
		for _, k := range names {
			headers = append(headers, types.HTTPHeader{Name: k, Value: m[k]})
		}
		return headers
	case '"':
		var block string
		if err := json.Unmarshal(trimmed, &block); err != nil {
			return nil
		}
		var headers []types.HTTPHeader
		for _, line := range strings.Split(block, "\n") {
			name, value, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
			if !ok || strings.TrimSpace(name) == "" {
				continue
			}
			headers = append(headers, types.HTTPHeader{
				Name:  strings.ToLower(strings.TrimSpace(name)),
				Value: strings.TrimSpace(value),
			})
		}
		return headers
	}
	return nil
}
