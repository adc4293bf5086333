// snapshot.go — Consistent point-in-time copy of all telemetry streams.
package capture

import (
	"time"

	"github.com/EmreDinc10/bugscribe/internal/types"
)

// Snapshot is a consistent copy of every stream plus the draft. Used for
// persistence and for prompt assembly.
type Snapshot struct {
	Console        []types.LogEntry
	Network        []types.NetworkRecord
	Interactions   []types.InteractionRecord
	DomSnapshots   []types.DomSnapshotRecord
	Screenshots    []types.ScreenshotRecord
	Draft          *types.Draft
	LoggingEnabled bool
	TakenAt        time.Time
}

// Snapshot copies all streams under the read lock. No writer can land between
// two stream copies.
func (c *Capture) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Console:        c.console.Snapshot(),
		Network:        c.network.Snapshot(),
		Interactions:   c.interactions.Snapshot(),
		DomSnapshots:   c.dom.Snapshot(),
		Screenshots:    c.screenshots.Snapshot(),
		LoggingEnabled: c.loggingEnabled,
		TakenAt:        time.Now(),
	}
	if c.draft != nil {
		d := *c.draft
		s.Draft = &d
	}
	return s
}

// Restore replaces all state with s. Used on cold start.
func (c *Capture) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.console.Clear()
	c.console.Write(s.Console)
	c.network.Restore(s.Network)
	c.interactions.Clear()
	c.interactions.Write(s.Interactions)
	c.dom.Clear()
	c.dom.Write(s.DomSnapshots)
	c.screenshots.Clear()
	c.screenshots.Write(s.Screenshots)

	c.loggingEnabled = s.LoggingEnabled
	c.draft = nil
	if s.Draft != nil {
		d := *s.Draft
		c.draft = &d
	}
}
