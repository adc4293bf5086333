// capture_scheduler.go — Timer-driven screenshot capture for the tracked tab.
//
// Two states: idle (no tracked tab) and armed (tracked tab set, ticker running).
// StartCapture arms for a tab, replacing any prior one. StopCapture and TabRemoved
// disarm only when the tab matches. Each tick captures only if the tracked tab is
// the foreground tab.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/types"
	"github.com/EmreDinc10/bugscribe/internal/util"
)

// DefaultCaptureInterval is the screenshot period while armed.
const DefaultCaptureInterval = 5 * time.Second

// ErrCaptureDeferred is returned by a Capturer that hands the capture to another
// party (the extension), which will deliver the frame itself.
var ErrCaptureDeferred = errors.New("capture deferred")

// TabQuerier answers whether a tab is the foreground tab of its window.
type TabQuerier interface {
	IsActive(ctx context.Context, tabID int) (bool, error)
}

// Capturer takes a screenshot of a tab and returns it as a data URL.
type Capturer interface {
	Capture(ctx context.Context, tabID int) (string, error)
}

// ScreenshotSink receives captured frames.
type ScreenshotSink interface {
	AddScreenshot(rec types.ScreenshotRecord)
}

// State is the scheduler's state.
type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// CaptureScheduler drives periodic screenshots of one tracked tab.
type CaptureScheduler struct {
	mu       sync.Mutex
	tab      int
	state    State
	stopTick context.CancelFunc // cancels the current ticker goroutine

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	period   time.Duration
	tabs     TabQuerier
	capturer Capturer
	sink     ScreenshotSink
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a CaptureScheduler.
type Option func(*CaptureScheduler)

// WithPeriod overrides DefaultCaptureInterval.
func WithPeriod(d time.Duration) Option {
	return func(s *CaptureScheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithClock overrides time.Now for capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *CaptureScheduler) { s.now = now }
}

// NewCaptureScheduler creates an idle scheduler.
func NewCaptureScheduler(tabs TabQuerier, capturer Capturer, sink ScreenshotSink, logger *zap.Logger, opts ...Option) *CaptureScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &CaptureScheduler{
		base:     base,
		cancel:   cancel,
		period:   DefaultCaptureInterval,
		tabs:     tabs,
		capturer: capturer,
		sink:     sink,
		logger:   logger.Named("capture"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCapture arms the scheduler for tabID, replacing any tracked tab and
// restarting the ticker.
func (s *CaptureScheduler) StartCapture(tabID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base.Err() != nil {
		return
	}
	s.disarmLocked()

	ctx, stop := context.WithCancel(s.base)
	s.tab = tabID
	s.state = Armed
	s.stopTick = stop

	s.wg.Add(1)
	util.SafeGo(s.logger, func() {
		defer s.wg.Done()
		s.loop(ctx, tabID)
	})
	s.logger.Debug("capture armed", zap.Int("tab", tabID))
}

// StopCapture disarms the scheduler if tabID is the tracked tab. Stopping any
// other tab is a no-op.
func (s *CaptureScheduler) StopCapture(tabID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Armed || s.tab != tabID {
		return
	}
	s.disarmLocked()
	s.logger.Debug("capture stopped", zap.Int("tab", tabID))
}

// TabRemoved is an implicit StopCapture for a closed tab.
func (s *CaptureScheduler) TabRemoved(tabID int) {
	s.StopCapture(tabID)
}

func (s *CaptureScheduler) disarmLocked() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
	s.state = Idle
	s.tab = 0
}

// State returns the current state and tracked tab (0 when idle).
func (s *CaptureScheduler) State() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.tab
}

// Run blocks until ctx is done, then stops all capture goroutines.
func (s *CaptureScheduler) Run(ctx context.Context) error {
	<-ctx.Done()
	s.Close()
	return nil
}

// Close disarms and waits for the ticker goroutine to exit. Safe to call twice.
func (s *CaptureScheduler) Close() {
	s.mu.Lock()
	s.disarmLocked()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *CaptureScheduler) loop(ctx context.Context, tabID int) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, tabID)
		}
	}
}

// tick captures one frame if tabID is in the foreground. Failures are logged
// and never stop the ticker.
func (s *CaptureScheduler) tick(ctx context.Context, tabID int) {
	active, err := s.tabs.IsActive(ctx, tabID)
	if err != nil {
		s.logger.Debug("tab query failed", zap.Int("tab", tabID), zap.Error(err))
		return
	}
	if !active {
		return
	}

	dataURL, err := s.capturer.Capture(ctx, tabID)
	if errors.Is(err, ErrCaptureDeferred) {
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("capture screenshot failed", zap.Int("tab", tabID), zap.Error(err))
		}
		return
	}
	if ctx.Err() != nil {
		// Disarmed while capturing
		return
	}
	s.sink.AddScreenshot(types.ScreenshotRecord{ImageData: dataURL, CapturedAt: s.now().UnixMilli()})
}
