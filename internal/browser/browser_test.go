package browser

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmreDinc10/bugscribe/internal/scheduler"
)

func TestTabTrackerForeground(t *testing.T) {
	t.Parallel()
	tr := NewTabTracker()
	ctx := context.Background()

	active, err := tr.IsActive(ctx, 1)
	require.NoError(t, err)
	assert.False(t, active)

	tr.PageActive(1, "https://a.example/")
	tr.PageActive(2, "https://b.example/")
	active, _ = tr.IsActive(ctx, 2)
	assert.True(t, active)
	active, _ = tr.IsActive(ctx, 1)
	assert.False(t, active)

	tr.TabActivated(1)
	assert.Equal(t, 1, tr.Active())
	u, ok := tr.URL(1)
	assert.True(t, ok)
	assert.Equal(t, "https://a.example/", u)
}

func TestTabTrackerRemove(t *testing.T) {
	t.Parallel()
	tr := NewTabTracker()
	tr.PageActive(4, "https://x.example/")
	tr.PageActive(5, "https://y.example/")

	tr.TabRemoved(4)
	_, ok := tr.URL(4)
	assert.False(t, ok)
	assert.Equal(t, 5, tr.Active())

	tr.TabRemoved(5)
	assert.Equal(t, 0, tr.Active())
	active, _ := tr.IsActive(context.Background(), 0)
	assert.False(t, active)
}

func TestTabTrackerEmptyURLKeepsPrevious(t *testing.T) {
	t.Parallel()
	tr := NewTabTracker()
	tr.PageActive(3, "https://keep.example/")
	tr.PageActive(3, "")
	u, _ := tr.URL(3)
	assert.Equal(t, "https://keep.example/", u)
}

func TestRelayCapturerQueuesOncePerTab(t *testing.T) {
	t.Parallel()
	r := NewRelayCapturer(nil)
	ctx := context.Background()

	data, err := r.Capture(ctx, 9)
	assert.ErrorIs(t, err, scheduler.ErrCaptureDeferred)
	assert.Empty(t, data)

	_, _ = r.Capture(ctx, 9)
	_, _ = r.Capture(ctx, 10)
	assert.Equal(t, 2, r.Pending())

	cmds := r.PendingCommands()
	require.Len(t, cmds, 2)
	assert.Equal(t, CommandCaptureScreenshot, cmds[0].Type)
	assert.Equal(t, 9, cmds[0].TabID)
	assert.Equal(t, 10, cmds[1].TabID)
	assert.NotEmpty(t, cmds[0].ID)
	assert.NotEqual(t, cmds[0].ID, cmds[1].ID)

	assert.Empty(t, r.PendingCommands())

	// Claimed commands can be reissued
	_, _ = r.Capture(ctx, 9)
	assert.Equal(t, 1, r.Pending())
}

func TestRelayCapturerBounded(t *testing.T) {
	t.Parallel()
	r := NewRelayCapturer(nil)
	for tab := 1; tab <= maxPendingCommands+5; tab++ {
		_, _ = r.Capture(context.Background(), tab)
	}
	cmds := r.PendingCommands()
	require.Len(t, cmds, maxPendingCommands)
	assert.Equal(t, 6, cmds[0].TabID)
}

func TestRelayCapturerConcurrent(t *testing.T) {
	t.Parallel()
	r := NewRelayCapturer(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(tab int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = r.Capture(context.Background(), tab)
				if j%10 == 0 {
					r.PendingCommands()
				}
			}
		}(i + 1)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Pending(), maxPendingCommands)
}

type staticURLs map[int]string

func (s staticURLs) URL(tab int) (string, bool) {
	u, ok := s[tab]
	return u, ok
}

func TestRodCapturerUnknownTab(t *testing.T) {
	t.Parallel()
	r := NewRodCapturer("http://127.0.0.1:1", staticURLs{}, nil)
	_, err := r.Capture(context.Background(), 3)
	assert.ErrorIs(t, err, ErrUnknownTab)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

var (
	_ scheduler.Capturer   = (*RelayCapturer)(nil)
	_ scheduler.Capturer   = (*RodCapturer)(nil)
	_ scheduler.TabQuerier = (*TabTracker)(nil)
	_ URLResolver          = (*TabTracker)(nil)
)
