// manager.go — Snapshot & persistence manager.
// Serializes a consistent cross-stream snapshot under a fixed key, restores it on
// cold start, and keeps per-(tab, url) chat history and popup state with write
// timestamps for expiry.
//
// Failure semantics: periodic and opportunistic saves log store errors and carry
// on; telemetry capture never stops because storage failed. Keyed calls return
// their error to the caller as a failure result.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/types"
)

const (
	// StateKey holds the global telemetry snapshot.
	StateKey = "bugscribe:state"

	chatPrefix  = "chat:"
	popupPrefix = "popup:"

	// DefaultRetention is how long chat history and popup state survive without a write.
	DefaultRetention = 24 * time.Hour
	// DefaultSnapshotInterval is the period of the background save.
	DefaultSnapshotInterval = 30 * time.Second
)

// ErrMissingIdentifiers is returned by keyed calls without a tab id or url.
var ErrMissingIdentifiers = errors.New("missing tab id or url")

// persistedState is the stored form of a capture.Snapshot. Screenshots keep only
// their capture time.
type persistedState struct {
	ConsoleLogs  []types.LogEntry          `json:"consoleLogs"`
	NetworkLogs  []types.NetworkRecord     `json:"networkLogs"`
	Interactions []types.InteractionRecord `json:"interactions"`
	DomSnapshots []types.DomSnapshotRecord `json:"domSnapshots"`
	Screenshots  []screenshotStamp         `json:"screenshots"`
	LastDraft    *types.Draft              `json:"lastDraft,omitempty"`
	IsLogging    *bool                     `json:"isLogging,omitempty"` // nil means enabled
	SavedAt      int64                     `json:"savedAt"`
}

type screenshotStamp struct {
	CapturedAt int64 `json:"capturedAt"`
}

// Manager owns the store and the capture state it snapshots.
type Manager struct {
	store     Store
	capture   *capture.Capture
	logger    *zap.Logger
	retention time.Duration
	now       func() time.Time

	saveRequests chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetention overrides DefaultRetention.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithClock overrides time.Now for write timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager over store and c.
func NewManager(store Store, c *capture.Capture, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:        store,
		capture:      c,
		logger:       logger.Named("persistence"),
		retention:    DefaultRetention,
		now:          time.Now,
		saveRequests: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ============================================
// Global snapshot
// ============================================

// Save writes the current snapshot. Errors are logged and returned; callers on
// the background paths ignore them.
func (m *Manager) Save(ctx context.Context) error {
	snap := m.capture.Snapshot()

	st := persistedState{
		ConsoleLogs:  snap.Console,
		NetworkLogs:  snap.Network,
		Interactions: snap.Interactions,
		DomSnapshots: snap.DomSnapshots,
		Screenshots:  make([]screenshotStamp, len(snap.Screenshots)),
		LastDraft:    snap.Draft,
		SavedAt:      m.now().UnixMilli(),
	}
	for i, s := range snap.Screenshots {
		st.Screenshots[i] = screenshotStamp{CapturedAt: s.CapturedAt}
	}
	logging := snap.LoggingEnabled
	st.IsLogging = &logging

	data, err := json.Marshal(st)
	if err != nil {
		m.logger.Warn("snapshot encode failed", zap.Error(err))
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.store.Put(ctx, StateKey, data, m.now()); err != nil {
		m.logger.Warn("snapshot save failed", zap.Error(err))
		return err
	}
	m.logger.Debug("snapshot saved",
		zap.Int("console", len(st.ConsoleLogs)),
		zap.Int("network", len(st.NetworkLogs)),
		zap.Int("bytes", len(data)))
	return nil
}

// Load restores the stored snapshot into the capture state. Returns false when
// nothing was stored. A corrupt snapshot is logged and ignored (start fresh).
func (m *Manager) Load(ctx context.Context) (bool, error) {
	entry, err := m.store.Get(ctx, StateKey)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		m.logger.Warn("snapshot load failed", zap.Error(err))
		return false, err
	}

	var st persistedState
	if err := json.Unmarshal(entry.Value, &st); err != nil {
		// Corrupted JSON: start fresh
		m.logger.Warn("snapshot corrupt, starting fresh", zap.Error(err))
		return false, nil
	}

	snap := capture.Snapshot{
		Console:        st.ConsoleLogs,
		Network:        st.NetworkLogs,
		Interactions:   st.Interactions,
		DomSnapshots:   st.DomSnapshots,
		Screenshots:    make([]types.ScreenshotRecord, len(st.Screenshots)),
		Draft:          st.LastDraft,
		LoggingEnabled: st.IsLogging == nil || *st.IsLogging,
	}
	for i, s := range st.Screenshots {
		snap.Screenshots[i] = types.ScreenshotRecord{CapturedAt: s.CapturedAt}
	}
	m.capture.Restore(snap)

	m.logger.Info("snapshot restored",
		zap.Int("console", len(snap.Console)),
		zap.Int("network", len(snap.Network)),
		zap.Bool("draft", snap.Draft != nil))
	return true, nil
}

// RequestSave asks the background loop for a save without blocking. Requests
// coalesce while one is pending.
func (m *Manager) RequestSave() {
	select {
	case m.saveRequests <- struct{}{}:
	default:
	}
}

// ServeSaveRequests performs requested saves until ctx is done.
func (m *Manager) ServeSaveRequests(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.saveRequests:
			_ = m.Save(ctx)
		}
	}
}

// ============================================
// Keyed per-(tab, url) records
// ============================================

func keyFor(prefix string, tabID int, url string) (string, error) {
	if tabID <= 0 || url == "" {
		return "", ErrMissingIdentifiers
	}
	return prefix + strconv.Itoa(tabID) + ":" + url, nil
}

// SaveChatHistory stores the assistant conversation for (tabID, url).
func (m *Manager) SaveChatHistory(ctx context.Context, tabID int, url string, history []types.ChatMessage) error {
	key, err := keyFor(chatPrefix, tabID, url)
	if err != nil {
		return err
	}
	if history == nil {
		history = []types.ChatMessage{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}
	if err := m.store.Put(ctx, key, data, m.now()); err != nil {
		m.logger.Warn("chat history save failed", zap.Int("tab", tabID), zap.Error(err))
		return err
	}
	return nil
}

// LoadChatHistory returns the stored conversation for (tabID, url), or an empty
// history when none exists.
func (m *Manager) LoadChatHistory(ctx context.Context, tabID int, url string) ([]types.ChatMessage, error) {
	key, err := keyFor(chatPrefix, tabID, url)
	if err != nil {
		return nil, err
	}
	entry, err := m.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return []types.ChatMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	var history []types.ChatMessage
	if err := json.Unmarshal(entry.Value, &history); err != nil {
		m.logger.Warn("chat history corrupt, dropping", zap.String("key", key), zap.Error(err))
		return []types.ChatMessage{}, nil
	}
	return history, nil
}

// SavePopupState stores whether the assistant popup is open on (tabID, url).
func (m *Manager) SavePopupState(ctx context.Context, tabID int, url string, isOpen bool) error {
	key, err := keyFor(popupPrefix, tabID, url)
	if err != nil {
		return err
	}
	data, _ := json.Marshal(struct {
		IsOpen bool `json:"isOpen"`
	}{isOpen})
	if err := m.store.Put(ctx, key, data, m.now()); err != nil {
		m.logger.Warn("popup state save failed", zap.Int("tab", tabID), zap.Error(err))
		return err
	}
	return nil
}

// LoadPopupState returns the stored popup state, false when none exists.
func (m *Manager) LoadPopupState(ctx context.Context, tabID int, url string) (bool, error) {
	key, err := keyFor(popupPrefix, tabID, url)
	if err != nil {
		return false, err
	}
	entry, err := m.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var v struct {
		IsOpen bool `json:"isOpen"`
	}
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		return false, nil
	}
	return v.IsOpen, nil
}

// Cleanup removes chat history and popup state written more than the retention
// period before now. Returns the number of keys removed.
func (m *Manager) Cleanup(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-m.retention)
	removed := 0
	for _, prefix := range []string{chatPrefix, popupPrefix} {
		keys, err := m.store.List(ctx, prefix)
		if err != nil {
			m.logger.Warn("cleanup list failed", zap.String("prefix", prefix), zap.Error(err))
			return removed, err
		}
		for _, k := range keys {
			if !k.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := m.store.Delete(ctx, k.Key); err != nil {
				m.logger.Warn("cleanup delete failed", zap.String("key", k.Key), zap.Error(err))
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("expired conversation state removed", zap.Int("keys", removed))
	}
	return removed, nil
}
