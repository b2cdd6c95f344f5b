package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedup_RemembersWithinWindow(t *testing.T) {
	d := NewDedup(time.Minute)
	defer d.Close()

	_, ok := d.Lookup("k1", "digest-a")
	assert.False(t, ok)

	d.Remember("k1", "digest-a", "rec-1")

	id, ok := d.Lookup("k1", "digest-a")
	assert.True(t, ok)
	assert.Equal(t, "rec-1", id)

	// Same digest under a different session key is a different pair.
	_, ok = d.Lookup("k2", "digest-a")
	assert.False(t, ok)
}

func TestDedup_ExpiresAfterWindow(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)
	defer d.Close()

	d.Remember("k1", "digest-a", "rec-1")
	time.Sleep(25 * time.Millisecond)

	_, ok := d.Lookup("k1", "digest-a")
	assert.False(t, ok)
}

func TestDedup_CleanupRemovesStaleEntries(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)
	defer d.Close()

	d.Remember("k1", "digest-a", "rec-1")
	time.Sleep(25 * time.Millisecond)
	d.cleanup()

	d.mu.RLock()
	n := len(d.entries)
	d.mu.RUnlock()
	assert.Zero(t, n)
}
