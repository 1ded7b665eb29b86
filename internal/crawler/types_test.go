package crawler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	got := Config{BaseURL: "http://h"}.withDefaults()
	require.Equal(t, DefaultConcurrency, got.Concurrency)
	require.Equal(t, DefaultTimeout, got.Timeout)
	require.Equal(t, DefaultMaxPages, got.MaxPages)

	got = Config{BaseURL: "http://h", Concurrency: -3, Timeout: -time.Second, MaxPages: -1}.withDefaults()
	require.Equal(t, DefaultConcurrency, got.Concurrency)
	require.Equal(t, DefaultTimeout, got.Timeout)
	require.Equal(t, DefaultMaxPages, got.MaxPages)

	got = Config{BaseURL: "http://h", Concurrency: 2, Timeout: time.Second, MaxPages: 7}.withDefaults()
	require.Equal(t, 2, got.Concurrency)
	require.Equal(t, time.Second, got.Timeout)
	require.Equal(t, 7, got.MaxPages)
}

func TestLinkSet(t *testing.T) {
	t.Parallel()

	set := NewLinkSet("http://h/b", "http://h/a", "http://h/b")
	require.Len(t, set, 2)
	require.True(t, set.Contains("http://h/a"))
	require.False(t, set.Contains("http://h/c"))
	require.Equal(t, []string{"http://h/a", "http://h/b"}, set.Sorted())
}

func TestResults(t *testing.T) {
	t.Parallel()

	r := Results{
		"http://h/b": NewLinkSet("http://h/a"),
		"http://h/a": NewLinkSet("http://h/b", "http://h/c"),
	}
	require.Equal(t, []string{"http://h/a", "http://h/b"}, r.SortedPages())
	require.Equal(t, 3, r.TotalLinks())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "draining", StateDraining.String())
	require.Equal(t, "done", StateDone.String())
	require.Equal(t, "unknown", State(99).String())
}

func TestSnapshotJSON(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Snapshot{State: StateRunning, Pages: 3, QueueDepth: 2, LastURL: "http://h/a"})
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"running","pages":3,"queue_depth":2,"last_url":"http://h/a"}`, string(raw))

	raw, err = json.Marshal(Snapshot{State: StateIdle})
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"idle","pages":0,"queue_depth":0}`, string(raw))
}
