package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmreDinc10/bugscribe/internal/types"
)

func TestConsoleCapacity(t *testing.T) {
	t.Parallel()

	c := NewCapture()
	now := time.Now().UnixMilli()
	for i := 0; i < MaxConsoleLogs+5; i++ {
		c.AddConsole(types.LogEntry{Level: "log", Message: "m", Timestamp: now})
	}
	assert.Len(t, c.ConsoleLogs(), MaxConsoleLogs)
}

func TestAddConsoleReturnsLifetimeCount(t *testing.T) {
	t.Parallel()

	c := NewCapture()
	var last int64
	for i := 0; i < 3; i++ {
		last = c.AddConsole(types.LogEntry{Message: "x"})
	}
	assert.Equal(t, int64(3), last)
}

func TestScreenshotsKeepNewestTwo(t *testing.T) {
	t.Parallel()

	c := NewCapture()
	for i := int64(1); i <= 3; i++ {
		c.AddScreenshot(types.ScreenshotRecord{ImageData: "data:image/png;base64,AA", CapturedAt: i})
	}
	shots := c.Screenshots()
	require.Len(t, shots, MaxScreenshots)
	assert.Equal(t, int64(2), shots[0].CapturedAt)
	assert.Equal(t, int64(3), shots[1].CapturedAt)
}

func TestLoggingDisabledDropsRequestStart(t *testing.T) {
	t.Parallel()

	c := NewCapture()
	c.SetLogging(false)
	assert.False(t, c.OnRequestStart("r1", "https://example.com", "GET", "", time.Now().UnixMilli(), FrameInfo{}))
	assert.False(t, c.AddPageNetwork(types.NetworkRecord{ID: "page-1"}))
	assert.Empty(t, c.NetworkLogs())

	c.SetLogging(true)
	assert.True(t, c.OnRequestStart("r1", "https://example.com", "GET", "", time.Now().UnixMilli(), FrameInfo{}))
	assert.Len(t, c.NetworkLogs(), 1)
}

func TestSweepCoversConsoleAndNetwork(t *testing.T) {
	t.Parallel()

	c := NewCapture()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.AddConsole(types.LogEntry{Message: "old", Timestamp: base.UnixMilli()})
	c.AddConsole(types.LogEntry{Message: "fresh", Timestamp: base.Add(50 * time.Second).UnixMilli()})
	c.OnRequestStart("r1", "https://example.com", "GET", "", base.UnixMilli(), FrameInfo{})

	network, console := c.Sweep(base.Add(61 * time.Second))
	assert.Equal(t, 1, network)
	assert.Equal(t, 1, console)

	logs := c.ConsoleLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "fresh", logs[0].Message)
	assert.Empty(t, c.NetworkLogs())
}

func TestSnapshotAndRestore(t *testing.T) {
	t.Parallel()

	c := NewCapture()
	c.AddConsole(types.LogEntry{Level: "error", Message: "boom", Timestamp: 10})
	c.OnRequestStart("r1", "https://example.com", "GET", "", 11, FrameInfo{})
	c.AddInteraction(types.InteractionRecord{Kind: "click", Selector: "#go", At: 12})
	c.AddDomSnapshot(types.DomSnapshotRecord{Selector: "#go", OuterHTML: "<button>", At: 12})
	c.AddScreenshot(types.ScreenshotRecord{CapturedAt: 13})
	c.SetDraft(types.Draft{Title: "T", Body: "B"})
	c.SetLogging(false)

	snap := c.Snapshot()

	restored := NewCapture()
	restored.Restore(snap)
	again := restored.Snapshot()

	assert.Equal(t, snap.Console, again.Console)
	assert.Equal(t, snap.Network, again.Network)
	assert.Equal(t, snap.Interactions, again.Interactions)
	assert.Equal(t, snap.DomSnapshots, again.DomSnapshots)
	assert.Equal(t, snap.Screenshots, again.Screenshots)
	assert.Equal(t, snap.Draft, again.Draft)
	assert.False(t, again.LoggingEnabled)

	// Correlation still works after restore
	assert.True(t, restored.OnRequestComplete("r1", 200, nil))
}

func TestSnapshotDraftIsCopy(t *testing.T) {
	t.Parallel()

	c := NewCapture()
	c.SetDraft(types.Draft{Title: "T"})
	snap := c.Snapshot()
	snap.Draft.Title = "changed"

	d, ok := c.Draft()
	require.True(t, ok)
	assert.Equal(t, "T", d.Title)
}

func TestConcurrentWritersAndSnapshots(t *testing.T) {
	t.Parallel()

	c := NewCapture()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.AddConsole(types.LogEntry{Message: "x", Timestamp: time.Now().UnixMilli()})
				c.AddInteraction(types.InteractionRecord{Kind: "click"})
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	counts := c.Counts()
	assert.Equal(t, MaxConsoleLogs, counts["console"])
	assert.Equal(t, MaxInteractions, counts["interactions"])
}
