// tabs.go — Active tab and per-tab URL tracking from extension events.
package browser

import (
	"context"
	"sync"
)

// TabTracker records which tab is in the foreground and the last URL seen per tab.
// It answers the capture scheduler's foreground check.
type TabTracker struct {
	mu     sync.RWMutex
	active int
	urls   map[int]string
}

// NewTabTracker creates an empty tracker with no active tab.
func NewTabTracker() *TabTracker {
	return &TabTracker{urls: make(map[int]string)}
}

// PageActive marks tabID as the foreground tab showing url.
func (t *TabTracker) PageActive(tabID int, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = tabID
	if url != "" {
		t.urls[tabID] = url
	}
}

// TabActivated marks tabID as the foreground tab.
func (t *TabTracker) TabActivated(tabID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = tabID
}

// TabRemoved forgets tabID.
func (t *TabTracker) TabRemoved(tabID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.urls, tabID)
	if t.active == tabID {
		t.active = 0
	}
}

// IsActive reports whether tabID is the foreground tab.
func (t *TabTracker) IsActive(_ context.Context, tabID int) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return tabID > 0 && t.active == tabID, nil
}

// Active returns the foreground tab, or 0 if none is known.
func (t *TabTracker) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// URL returns the last URL reported for tabID.
func (t *TabTracker) URL(tabID int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.urls[tabID]
	return u, ok
}
