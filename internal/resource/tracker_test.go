// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resource

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

func TestTrackAccountsAndReleases(t *testing.T) {
	tr := NewTracker(1000, 0.8)

	require.NoError(t, tr.Track("a", 300, false))
	require.NoError(t, tr.Track("b", 200, false))
	assert.Equal(t, int64(500), tr.Used())

	tr.Release("a")
	assert.Equal(t, int64(200), tr.Used())

	tr.Release("missing") // no-op
	assert.Equal(t, int64(200), tr.Used())
}

func TestThresholdEvictsOldestNonEssential(t *testing.T) {
	tr := NewTracker(1000, 0.8)

	require.NoError(t, tr.Track("old", 400, false))
	require.NoError(t, tr.Track("keep", 200, true))

	// 400+200+300 would cross the 800 threshold; "old" goes first.
	require.NoError(t, tr.Track("new", 300, false))

	assert.Equal(t, int64(500), tr.Used())
	assert.Equal(t, 1, tr.Evictions())
}

func TestEssentialEntriesSurviveEviction(t *testing.T) {
	tr := NewTracker(1000, 0.5)

	require.NoError(t, tr.Track("essential", 400, true))
	require.NoError(t, tr.Track("extra", 300, false))

	// Nothing evictable existed when the threshold was crossed: the
	// essential entry stays and the budget still holds.
	assert.Equal(t, int64(700), tr.Used())
	assert.Equal(t, 0, tr.Evictions())
}

func TestHardBudgetBreachSurfacesError(t *testing.T) {
	tr := NewTracker(1000, 0.8)

	require.NoError(t, tr.Track("pinned", 900, true))
	err := tr.Track("over", 200, false)
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	// Failed Track accounts nothing.
	assert.Equal(t, int64(900), tr.Used())
}

func TestMarkEvictableAllowsLaterEviction(t *testing.T) {
	tr := NewTracker(1000, 0.8)

	require.NoError(t, tr.Track("raw", 700, true))
	tr.MarkEvictable("raw")

	require.NoError(t, tr.Track("next", 400, false))
	assert.Equal(t, int64(400), tr.Used(), "raw should have been evicted once evictable")
}

func TestReleaseAll(t *testing.T) {
	tr := NewTracker(1000, 0.8)
	require.NoError(t, tr.Track("a", 100, true))
	require.NoError(t, tr.Track("b", 100, false))

	tr.ReleaseAll()
	assert.Equal(t, int64(0), tr.Used())
}

func TestConcurrentAccountingIsSafe(t *testing.T) {
	tr := NewTracker(1<<20, 0.8)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("r%d", n)
			_ = tr.Track(id, 100, false)
			tr.Release(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(0), tr.Used())
}

func TestEstimateSizeCountsPayload(t *testing.T) {
	small := EstimateSize(types.SearchResult{})
	big := EstimateSize(types.SearchResult{
		Title:       "a title",
		URL:         "https://example.com/page",
		Description: "a longer description with more bytes",
	})
	assert.Greater(t, big, small)
	assert.Equal(t, int64(perRecordOverhead), small)
}
