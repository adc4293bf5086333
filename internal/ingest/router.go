// router.go — Tag-dispatched ingestion of extension events into capture state.
// One message is handled at a time and each handler does a single bounded insert.
// A bad message is logged and dropped without touching any other stream.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/types"
	"github.com/EmreDinc10/bugscribe/internal/util"
)

var (
	// ErrUnknownEvent is returned for an unrecognized event tag.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMalformedPayload is returned when a payload is missing or fails validation.
	ErrMalformedPayload = errors.New("malformed payload")
)

// consoleSaveEvery triggers an opportunistic save every N console entries.
const consoleSaveEvery = 10

// Saver schedules a snapshot save without blocking.
type Saver interface {
	RequestSave()
}

// CaptureControl arms and disarms screenshot capture.
type CaptureControl interface {
	StartCapture(tabID int)
	TabRemoved(tabID int)
}

// TabObserver is told about tab focus and lifetime.
type TabObserver interface {
	PageActive(tabID int, url string)
	TabActivated(tabID int)
	TabRemoved(tabID int)
}

// Router dispatches inbound events to capture state.
type Router struct {
	capture  *capture.Capture
	saver    Saver
	control  CaptureControl
	tabs     TabObserver
	logger   *zap.Logger
	now      func() time.Time
	handlers map[string]func(context.Context, types.Event) error
}

// Option configures a Router.
type Option func(*Router)

// WithSaver enables opportunistic snapshot saves.
func WithSaver(s Saver) Option { return func(r *Router) { r.saver = s } }

// WithCaptureControl lets page-active and tab-removed drive the capture scheduler.
func WithCaptureControl(c CaptureControl) Option { return func(r *Router) { r.control = c } }

// WithTabObserver forwards tab focus events.
func WithTabObserver(t TabObserver) Option { return func(r *Router) { r.tabs = t } }

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option { return func(r *Router) { r.now = now } }

// NewRouter creates a router writing into c.
func NewRouter(c *capture.Capture, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		capture: c,
		logger:  logger.Named("ingest"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handlers = map[string]func(context.Context, types.Event) error{
		types.EventPageActive:             r.handlePageActive,
		types.EventTabActivated:           r.handleTabActivated,
		types.EventTabRemoved:             r.handleTabRemoved,
		types.EventConsoleEntry:           r.handleConsole,
		types.EventConsoleLog:             r.handleConsole,
		types.EventInteraction:            r.handleInteraction,
		types.EventDomSnapshot:            r.handleDomSnapshot,
		types.EventNetworkLog:             r.handleNetworkLog,
		types.EventNetworkRequestStart:    r.handleRequestStart,
		types.EventNetworkRequestHeaders:  r.handleRequestHeaders,
		types.EventNetworkRequestComplete: r.handleRequestComplete,
		types.EventNetworkRequestError:    r.handleRequestError,
		types.EventScreenshot:             r.handleScreenshot,
		types.EventSetLogging:             r.handleSetLogging,
	}
	return r
}

// Dispatch handles one event. Errors are logged at warn and returned so the
// transport can report them; they never affect state.
func (r *Router) Dispatch(ctx context.Context, ev types.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: %v", ErrMalformedPayload, ev.Type, p)
			r.logger.Error("event handler panicked", zap.String("type", ev.Type), zap.Any("panic", p))
		}
	}()

	h, ok := r.handlers[ev.Type]
	if !ok {
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
		r.logger.Warn("dropping event", zap.String("type", ev.Type), zap.Error(err))
		return err
	}
	if err = h(ctx, ev); err != nil {
		r.logger.Warn("dropping event",
			zap.String("type", ev.Type),
			zap.Int("tab", ev.TabID),
			zap.String("origin", util.LogURL(ev.URL)),
			zap.Error(err))
	}
	return err
}

// DispatchRaw decodes body as one event or a JSON array of events and dispatches
// each in order. Returns how many were accepted and the joined errors of the rest.
func (r *Router) DispatchRaw(ctx context.Context, body []byte) (int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	var events []types.Event
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	} else {
		var ev types.Event
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		events = []types.Event{ev}
	}

	accepted := 0
	var errs []error
	for _, ev := range events {
		if err := r.Dispatch(ctx, ev); err != nil {
			errs = append(errs, err)
			continue
		}
		accepted++
	}
	return accepted, errors.Join(errs...)
}

func (r *Router) nowMillis() int64 {
	return r.now().UnixMilli()
}

func (r *Router) requestSave() {
	if r.saver != nil {
		r.saver.RequestSave()
	}
}

// decode unmarshals a required payload.
func decode(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: missing payload", ErrMalformedPayload)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func requireTab(ev types.Event) error {
	if ev.TabID <= 0 {
		return fmt.Errorf("%w: missing tab id", ErrMalformedPayload)
	}
	return nil
}
