// relay.go — Screenshot capture relayed through the extension.
// The daemon cannot see the browser window, so a capture becomes a queued command.
// The extension polls GET /pending-commands, captures the visible tab and posts the
// frame back as a screenshot event.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/buffers"
	"github.com/EmreDinc10/bugscribe/internal/scheduler"
)

// CommandCaptureScreenshot asks the extension to capture a tab's visible area.
const CommandCaptureScreenshot = "capture-screenshot"

// maxPendingCommands bounds the queue when the extension stops polling.
const maxPendingCommands = 16

// Command is one instruction waiting for the extension.
type Command struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TabID    int    `json:"tabId"`
	IssuedAt int64  `json:"issuedAt"`
}

// RelayCapturer implements scheduler.Capturer by queueing commands.
type RelayCapturer struct {
	mu     sync.Mutex // serializes the pending check with the push
	queue  *buffers.RingBuffer[Command]
	logger *zap.Logger
	now    func() time.Time
}

// NewRelayCapturer creates an empty command queue.
func NewRelayCapturer(logger *zap.Logger) *RelayCapturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &RelayCapturer{
		queue:  buffers.NewRingBuffer[Command](maxPendingCommands),
		logger: logger.Named("relay"),
		now:    time.Now,
	}
	r.queue.OnEvict(func(cmd Command) {
		r.logger.Debug("dropping unclaimed command", zap.String("id", cmd.ID), zap.Int("tab", cmd.TabID))
	})
	return r
}

// Capture queues a capture command for tabID unless one is already pending, and
// always returns scheduler.ErrCaptureDeferred.
func (r *RelayCapturer) Capture(_ context.Context, tabID int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, pending := r.queue.Find(func(c Command) bool {
		return c.Type == CommandCaptureScreenshot && c.TabID == tabID
	})
	if !pending {
		r.queue.Push(Command{
			ID:       uuid.NewString(),
			Type:     CommandCaptureScreenshot,
			TabID:    tabID,
			IssuedAt: r.now().UnixMilli(),
		})
	}
	return "", scheduler.ErrCaptureDeferred
}

// PendingCommands hands every queued command to the caller and empties the queue.
func (r *RelayCapturer) PendingCommands() []Command {
	return r.queue.Drain()
}

// Pending returns the queue depth.
func (r *RelayCapturer) Pending() int {
	return r.queue.Len()
}
