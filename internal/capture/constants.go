// constants.go — Buffer capacity and retention constants.
// All configuration values for capture package.
package capture

import "time"

const (
	// Buffer capacity constants (exported for health and query responses)
	MaxConsoleLogs    = 200
	MaxNetworkRecords = 200
	MaxInteractions   = 200
	MaxDomSnapshots   = 50
	MaxScreenshots    = 2 // Tightest bound: each entry is a full PNG data URL

	// NetworkWindow is the rolling age limit applied by Sweep, independent of
	// the FIFO cap. The console stream shares it.
	NetworkWindow = 60 * time.Second

	// DefaultSweepInterval is how often the window sweep runs.
	DefaultSweepInterval = 5 * time.Second

	// MaxPostBody caps incoming extension POST bodies.
	MaxPostBody = 5 << 20 // 5MB

	// MaxOuterHTML bounds a stored DOM snapshot.
	MaxOuterHTML = 4000
)
