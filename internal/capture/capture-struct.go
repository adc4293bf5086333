// capture-struct.go — Main Capture struct and factory function.
// Capture owns all telemetry state for the life of the process: the five streams,
// the logging flag and the current draft.
package capture

import (
	"sync"
	"time"

	"github.com/EmreDinc10/bugscribe/internal/buffers"
	"github.com/EmreDinc10/bugscribe/internal/types"
)

// Capture manages all buffered telemetry state.
//
// Writers (the ingest router and the persistence manager's Restore) take mu for
// writing; Snapshot takes it for reading, so a snapshot never straddles a write
// across streams. Each stream also locks itself, which keeps single-stream reads
// cheap. Lock order: Capture.mu, NetworkTable.mu, buffer locks.
type Capture struct {
	mu sync.RWMutex

	// ============================================
	// Telemetry Streams
	// ============================================

	console      *buffers.RingBuffer[types.LogEntry]          // cap: MaxConsoleLogs
	network      *NetworkTable                                // cap: MaxNetworkRecords, id-indexed
	interactions *buffers.RingBuffer[types.InteractionRecord] // cap: MaxInteractions
	dom          *buffers.RingBuffer[types.DomSnapshotRecord] // cap: MaxDomSnapshots
	screenshots  *buffers.RingBuffer[types.ScreenshotRecord]  // cap: MaxScreenshots

	// ============================================
	// Scalar State (protected by mu)
	// ============================================

	loggingEnabled bool
	draft          *types.Draft
}

// NewCapture creates a new Capture instance with initialized buffers.
// Network logging starts enabled.
func NewCapture() *Capture {
	return &Capture{
		console:        buffers.NewRingBuffer[types.LogEntry](MaxConsoleLogs),
		network:        NewNetworkTable(MaxNetworkRecords, NetworkWindow),
		interactions:   buffers.NewRingBuffer[types.InteractionRecord](MaxInteractions),
		dom:            buffers.NewRingBuffer[types.DomSnapshotRecord](MaxDomSnapshots),
		screenshots:    buffers.NewRingBuffer[types.ScreenshotRecord](MaxScreenshots),
		loggingEnabled: true,
	}
}

// ============================================
// Writers
// ============================================

// AddConsole appends a console entry and returns the stream's lifetime count.
func (c *Capture) AddConsole(entry types.LogEntry) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console.Push(entry)
	return c.console.TotalAdded()
}

// AddInteraction appends a user interaction.
func (c *Capture) AddInteraction(rec types.InteractionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interactions.Push(rec)
}

// AddDomSnapshot appends a DOM snapshot.
func (c *Capture) AddDomSnapshot(rec types.DomSnapshotRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dom.Push(rec)
}

// AddScreenshot appends a captured frame, evicting the older one beyond MaxScreenshots.
func (c *Capture) AddScreenshot(rec types.ScreenshotRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenshots.Push(rec)
}

// OnRequestStart records a request start. Dropped when network logging is disabled.
// Returns whether the record was inserted.
func (c *Capture) OnRequestStart(id, url, method, reqType string, timestamp int64, frame FrameInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggingEnabled {
		return false
	}
	c.network.OnRequestStart(id, url, method, reqType, timestamp, frame)
	return true
}

// OnRequestHeaders forwards to the correlation table. Unknown ids are a no-op.
func (c *Capture) OnRequestHeaders(id string, headers []types.HTTPHeader) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network.OnRequestHeaders(id, headers)
}

// OnRequestComplete forwards to the correlation table. Unknown ids are a no-op.
func (c *Capture) OnRequestComplete(id string, status int, headers []types.HTTPHeader) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network.OnRequestComplete(id, status, headers)
}

// OnRequestError forwards to the correlation table. Unknown ids are a no-op.
func (c *Capture) OnRequestError(id, errorCode string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network.OnRequestError(id, errorCode)
}

// AddPageNetwork stores a request observed by a page-script wrapper. These arrive
// complete, so they skip correlation. Dropped when network logging is disabled.
func (c *Capture) AddPageNetwork(rec types.NetworkRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggingEnabled {
		return false
	}
	c.network.AddCompleted(rec)
	return true
}

// SetLogging toggles network capture.
func (c *Capture) SetLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggingEnabled = enabled
}

// SetDraft replaces the current draft.
func (c *Capture) SetDraft(d types.Draft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = &d
}

// Sweep drops network records and console entries older than NetworkWindow.
// Returns how many were removed from each stream.
func (c *Capture) Sweep(now time.Time) (network, console int) {
	cutoff := now.Add(-NetworkWindow).UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	network = c.network.Sweep(now)
	console = c.console.Filter(func(e types.LogEntry) bool {
		return e.Timestamp > cutoff
	})
	return network, console
}

// ============================================
// Readers
// ============================================

// LoggingEnabled reports whether network capture is on.
func (c *Capture) LoggingEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggingEnabled
}

// Draft returns the current draft, if any.
func (c *Capture) Draft() (types.Draft, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.draft == nil {
		return types.Draft{}, false
	}
	return *c.draft, true
}

// ConsoleLogs returns the console stream, oldest first.
func (c *Capture) ConsoleLogs() []types.LogEntry {
	return c.console.Snapshot()
}

// NetworkLogs returns the network stream, oldest first.
func (c *Capture) NetworkLogs() []types.NetworkRecord {
	return c.network.Snapshot()
}

// LookupRequest returns a copy of the record for a request id.
func (c *Capture) LookupRequest(id string) (types.NetworkRecord, bool) {
	return c.network.Lookup(id)
}

// Screenshots returns the retained frames, oldest first.
func (c *Capture) Screenshots() []types.ScreenshotRecord {
	return c.screenshots.Snapshot()
}

// Counts returns the current length of every stream.
func (c *Capture) Counts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]int{
		"console":      c.console.Len(),
		"network":      c.network.Len(),
		"interactions": c.interactions.Len(),
		"dom":          c.dom.Len(),
		"screenshots":  c.screenshots.Len(),
	}
}
