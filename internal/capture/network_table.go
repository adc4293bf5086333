// network_table.go — Network Correlation Table.
// Merges the staged lifecycle events of one request (start, headers, completion or
// error) into a single record, keyed by request id.
//
// Records live in a ring buffer of pointers; index maps id to the live pointer so
// every lookup is O(1) and never depends on buffer position. The buffer's evict
// hook keeps index in sync with both FIFO eviction and the window sweep.
//
// Lock order: NetworkTable.mu, then the buffer's own lock (taken inside buffer calls).
package capture

import (
	"sync"
	"time"

	"github.com/EmreDinc10/bugscribe/internal/buffers"
	"github.com/EmreDinc10/bugscribe/internal/types"
)

// FrameInfo carries the frame identifiers reported with a request start.
type FrameInfo struct {
	FrameID       int
	ParentFrameID int
}

// NetworkTable correlates network lifecycle events by request id.
type NetworkTable struct {
	mu     sync.Mutex
	buf    *buffers.RingBuffer[*types.NetworkRecord]
	index  map[string]*types.NetworkRecord
	window time.Duration
}

// NewNetworkTable creates a table holding at most capacity records and dropping
// records older than window on Sweep.
func NewNetworkTable(capacity int, window time.Duration) *NetworkTable {
	t := &NetworkTable{
		buf:    buffers.NewRingBuffer[*types.NetworkRecord](capacity),
		index:  make(map[string]*types.NetworkRecord),
		window: window,
	}
	t.buf.OnEvict(t.unindex)
	return t
}

// unindex runs under the buffer lock with t.mu held by the caller.
// A newer record may have taken over the id (redirects reuse request ids), so only
// drop the entry if it still points at the evicted record.
func (t *NetworkTable) unindex(rec *types.NetworkRecord) {
	if cur, ok := t.index[rec.ID]; ok && cur == rec {
		delete(t.index, rec.ID)
	}
}

// OnRequestStart inserts a new in-flight record.
func (t *NetworkTable) OnRequestStart(id, url, method, reqType string, timestamp int64, frame FrameInfo) {
	rec := &types.NetworkRecord{
		ID:            id,
		URL:           url,
		Method:        method,
		RequestType:   reqType,
		Timestamp:     timestamp,
		Time:          formatMillis(timestamp),
		FrameID:       frame.FrameID,
		ParentFrameID: frame.ParentFrameID,
		Source:        types.SourceWebRequest,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(rec)
}

// AddCompleted inserts a record that is already complete, such as one observed by
// a page-script fetch or xhr wrapper.
func (t *NetworkTable) AddCompleted(rec types.NetworkRecord) {
	r := rec.Clone()
	if r.Time == "" {
		r.Time = formatMillis(r.Timestamp)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(&r)
}

func (t *NetworkTable) insertLocked(rec *types.NetworkRecord) {
	// Push first: if it evicts an older record with the same id, the hook must
	// not remove the entry we are about to write.
	t.buf.Push(rec)
	if rec.ID != "" {
		t.index[rec.ID] = rec
	}
}

// mutate applies fn to the live record for id. Misses and finished records are
// silently ignored.
func (t *NetworkTable) mutate(id string, fn func(*types.NetworkRecord)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.index[id]
	if !ok || rec.Done() {
		return false
	}
	fn(rec)
	return true
}

// OnRequestHeaders records the headers sent with the request.
func (t *NetworkTable) OnRequestHeaders(id string, headers []types.HTTPHeader) bool {
	return t.mutate(id, func(r *types.NetworkRecord) {
		r.RequestHeaders = copyHeaders(headers)
	})
}

// OnRequestComplete records the response status and headers.
func (t *NetworkTable) OnRequestComplete(id string, status int, headers []types.HTTPHeader) bool {
	return t.mutate(id, func(r *types.NetworkRecord) {
		code := status
		r.ResponseStatusCode = &code
		r.ResponseHeaders = copyHeaders(headers)
	})
}

// OnRequestError records a network-level failure such as net::ERR_ABORTED.
func (t *NetworkTable) OnRequestError(id string, errorCode string) bool {
	return t.mutate(id, func(r *types.NetworkRecord) {
		r.Error = errorCode
		if r.Error == "" {
			r.Error = "unknown"
		}
	})
}

// Lookup returns a copy of the live record for id.
func (t *NetworkTable) Lookup(id string) (types.NetworkRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.index[id]
	if !ok {
		return types.NetworkRecord{}, false
	}
	return rec.Clone(), true
}

// Sweep drops every record whose start timestamp is at or before now-window.
// Returns the number of records removed.
func (t *NetworkTable) Sweep(now time.Time) int {
	cutoff := now.Add(-t.window).UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Filter(func(r *types.NetworkRecord) bool {
		return r.Timestamp > cutoff
	})
}

// Snapshot returns copies of all records, oldest first.
func (t *NetworkTable) Snapshot() []types.NetworkRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	ptrs := t.buf.Snapshot()
	out := make([]types.NetworkRecord, len(ptrs))
	for i, p := range ptrs {
		out[i] = p.Clone()
	}
	return out
}

// Last returns copies of the newest n records, oldest first.
func (t *NetworkTable) Last(n int) []types.NetworkRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	ptrs := t.buf.ReadLast(n)
	out := make([]types.NetworkRecord, len(ptrs))
	for i, p := range ptrs {
		out[i] = p.Clone()
	}
	return out
}

// Restore replaces the table contents with records, in order.
func (t *NetworkTable) Restore(records []types.NetworkRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Clear()
	t.index = make(map[string]*types.NetworkRecord, len(records))
	for _, rec := range records {
		r := rec.Clone()
		t.insertLocked(&r)
	}
}

// Len returns the number of live records.
func (t *NetworkTable) Len() int {
	return t.buf.Len()
}

// Indexed returns the number of ids in the lookup index.
func (t *NetworkTable) Indexed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}

func copyHeaders(h []types.HTTPHeader) []types.HTTPHeader {
	if h == nil {
		return []types.HTTPHeader{}
	}
	return append([]types.HTTPHeader(nil), h...)
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
