package localfile

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalescesRepeatedPaths(t *testing.T) {
	deb := newDebouncer(20*time.Millisecond, slog.Default())
	defer deb.Stop()

	// Given rapid events for the same path and one other
	deb.Add("/tmp/a.txt")
	deb.Add("/tmp/a.txt")
	deb.Add("/tmp/a.txt")
	deb.Add("/tmp/b.txt")

	// When the window elapses
	select {
	case paths := <-deb.Output():
		// Then each path appears once
		assert.ElementsMatch(t, []string{"/tmp/a.txt", "/tmp/b.txt"}, paths)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a flushed batch")
	}
}

func TestDebouncerSeparateWindowsSeparateBatches(t *testing.T) {
	deb := newDebouncer(10*time.Millisecond, slog.Default())
	defer deb.Stop()

	deb.Add("/tmp/first.txt")
	first := <-deb.Output()
	require.Equal(t, []string{"/tmp/first.txt"}, first)

	deb.Add("/tmp/second.txt")
	second := <-deb.Output()
	require.Equal(t, []string{"/tmp/second.txt"}, second)
}

func TestDebouncerStopDropsLateAdds(t *testing.T) {
	deb := newDebouncer(10*time.Millisecond, slog.Default())
	deb.Stop()
	deb.Add("/tmp/ignored.txt")

	_, open := <-deb.Output()
	assert.False(t, open)
}
