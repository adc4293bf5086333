package capture

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmreDinc10/bugscribe/internal/types"
)

func TestRequestStartThenComplete(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(MaxNetworkRecords, NetworkWindow)
	now := time.Now().UnixMilli()
	tbl.OnRequestStart("r1", "https://example.com/api", "GET", "xmlhttprequest", now, FrameInfo{FrameID: 0, ParentFrameID: -1})

	require.True(t, tbl.OnRequestComplete("r1", 200, nil))

	rec, ok := tbl.Lookup("r1")
	require.True(t, ok)
	require.NotNil(t, rec.ResponseStatusCode)
	assert.Equal(t, 200, *rec.ResponseStatusCode)
	assert.Equal(t, "https://example.com/api", rec.URL)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, -1, rec.ParentFrameID)
	assert.NotEmpty(t, rec.Time)
}

func TestUnknownIDNeverCreatesRecord(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(MaxNetworkRecords, NetworkWindow)
	assert.False(t, tbl.OnRequestHeaders("unknown-id", []types.HTTPHeader{{Name: "a", Value: "b"}}))
	assert.False(t, tbl.OnRequestComplete("unknown-id", 500, nil))
	assert.False(t, tbl.OnRequestError("unknown-id", "net::ERR_FAILED"))

	assert.Equal(t, 0, tbl.Len())
	_, ok := tbl.Lookup("unknown-id")
	assert.False(t, ok)
}

func TestHeadersThenError(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(10, NetworkWindow)
	tbl.OnRequestStart("r2", "https://example.com/x", "POST", "fetch", time.Now().UnixMilli(), FrameInfo{})
	require.True(t, tbl.OnRequestHeaders("r2", []types.HTTPHeader{{Name: "Content-Type", Value: "application/json"}}))
	require.True(t, tbl.OnRequestError("r2", "net::ERR_CONNECTION_RESET"))

	rec, ok := tbl.Lookup("r2")
	require.True(t, ok)
	assert.Equal(t, "net::ERR_CONNECTION_RESET", rec.Error)
	assert.Len(t, rec.RequestHeaders, 1)
	assert.Nil(t, rec.ResponseStatusCode)
}

func TestFinishedRecordIsFrozen(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(10, NetworkWindow)
	tbl.OnRequestStart("r3", "https://example.com/", "GET", "main_frame", time.Now().UnixMilli(), FrameInfo{})
	require.True(t, tbl.OnRequestComplete("r3", 204, nil))

	assert.False(t, tbl.OnRequestError("r3", "late"))
	assert.False(t, tbl.OnRequestComplete("r3", 500, nil))
	assert.False(t, tbl.OnRequestHeaders("r3", []types.HTTPHeader{{Name: "x", Value: "y"}}))

	rec, _ := tbl.Lookup("r3")
	assert.Equal(t, 204, *rec.ResponseStatusCode)
	assert.Empty(t, rec.Error)
	assert.Empty(t, rec.RequestHeaders)
}

func TestLookupReturnsCopy(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(10, NetworkWindow)
	tbl.OnRequestStart("r4", "https://example.com/", "GET", "", time.Now().UnixMilli(), FrameInfo{})
	tbl.OnRequestComplete("r4", 200, []types.HTTPHeader{{Name: "a", Value: "1"}})

	rec, _ := tbl.Lookup("r4")
	*rec.ResponseStatusCode = 999
	rec.ResponseHeaders[0].Value = "changed"

	again, _ := tbl.Lookup("r4")
	assert.Equal(t, 200, *again.ResponseStatusCode)
	assert.Equal(t, "1", again.ResponseHeaders[0].Value)
}

func TestSweepDropsRecordsOutsideWindow(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(MaxNetworkRecords, NetworkWindow)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tbl.OnRequestStart("old", "https://example.com/old", "GET", "", base.UnixMilli(), FrameInfo{})
	tbl.OnRequestStart("new", "https://example.com/new", "GET", "", base.Add(30*time.Second).UnixMilli(), FrameInfo{})

	// Present immediately after insertion
	assert.Equal(t, 0, tbl.Sweep(base.Add(time.Second)))
	_, ok := tbl.Lookup("old")
	require.True(t, ok)

	// Exactly at the window edge the record is dropped
	removed := tbl.Sweep(base.Add(NetworkWindow))
	assert.Equal(t, 1, removed)
	_, ok = tbl.Lookup("old")
	assert.False(t, ok)
	_, ok = tbl.Lookup("new")
	assert.True(t, ok)
	assert.Equal(t, 1, tbl.Indexed())

	// Late events for a swept id are ignored
	assert.False(t, tbl.OnRequestComplete("old", 200, nil))
}

func TestFIFOEvictionKeepsIndexInSync(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(3, NetworkWindow)
	now := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		tbl.OnRequestStart(fmt.Sprintf("r%d", i), "https://example.com/", "GET", "", now, FrameInfo{})
	}

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, 3, tbl.Indexed())
	_, ok := tbl.Lookup("r0")
	assert.False(t, ok)
	_, ok = tbl.Lookup("r4")
	assert.True(t, ok)
}

func TestDuplicateIDPointsAtNewest(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(2, NetworkWindow)
	now := time.Now().UnixMilli()
	tbl.OnRequestStart("dup", "https://example.com/first", "GET", "", now, FrameInfo{})
	tbl.OnRequestStart("dup", "https://example.com/second", "GET", "", now, FrameInfo{})
	// Evicts the first "dup"; the index must keep pointing at the second
	tbl.OnRequestStart("other", "https://example.com/other", "GET", "", now, FrameInfo{})

	rec, ok := tbl.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/second", rec.URL)
	require.True(t, tbl.OnRequestComplete("dup", 301, nil))
}

func TestAddCompletedIsLookupable(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(10, NetworkWindow)
	status := 201
	tbl.AddCompleted(types.NetworkRecord{
		ID:                 "page-1",
		URL:                "https://example.com/items",
		Method:             "POST",
		Timestamp:          time.Now().UnixMilli(),
		Source:             types.SourceFetch,
		ResponseStatusCode: &status,
		DurationMs:         42,
	})
	status = 0

	rec, ok := tbl.Lookup("page-1")
	require.True(t, ok)
	assert.Equal(t, 201, *rec.ResponseStatusCode)
	assert.False(t, tbl.OnRequestError("page-1", "late"))
}

func TestRestoreRebuildsIndex(t *testing.T) {
	t.Parallel()

	tbl := NewNetworkTable(10, NetworkWindow)
	tbl.Restore([]types.NetworkRecord{
		{ID: "a", URL: "https://a", Timestamp: 1},
		{ID: "b", URL: "https://b", Timestamp: 2},
	})
	assert.Equal(t, 2, tbl.Indexed())
	rec, ok := tbl.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "https://b", rec.URL)
	assert.Len(t, tbl.Last(1), 1)
	assert.Equal(t, "b", tbl.Last(1)[0].ID)
}
