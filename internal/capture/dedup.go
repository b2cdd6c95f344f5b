package capture

import (
	"sync"
	"time"
)

// dedupEntry remembers one accepted capture within the window.
type dedupEntry struct {
	recordID string
	seenAt   time.Time
}

// Dedup answers repeated (session key, payload digest) submissions with the
// original record ID for the length of the window.
type Dedup struct {
	mu      sync.RWMutex
	entries map[string]*dedupEntry
	window  time.Duration
	stopCh  chan struct{}
}

// NewDedup creates a dedup window and starts its cleanup loop.
func NewDedup(window time.Duration) *Dedup {
	d := &Dedup{
		entries: make(map[string]*dedupEntry),
		window:  window,
		stopCh:  make(chan struct{}),
	}
	go d.cleanupLoop()
	return d
}

func dedupKey(sessionKey, digest string) string {
	return sessionKey + "\x00" + digest
}

// Lookup returns the record ID previously accepted for the pair, if still
// inside the window.
func (d *Dedup) Lookup(sessionKey, digest string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[dedupKey(sessionKey, digest)]
	if !ok || time.Since(e.seenAt) > d.window {
		return "", false
	}
	return e.recordID, true
}

// Remember stores an accepted capture for the window.
func (d *Dedup) Remember(sessionKey, digest, recordID string) {
	d.mu.Lock()
	d.entries[dedupKey(sessionKey, digest)] = &dedupEntry{recordID: recordID, seenAt: time.Now()}
	d.mu.Unlock()
}

func (d *Dedup) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.cleanup()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Dedup) cleanup() {
	cutoff := time.Now().Add(-d.window)

	d.mu.Lock()
	for key, e := range d.entries {
		if e.seenAt.Before(cutoff) {
			delete(d.entries, key)
		}
	}
	d.mu.Unlock()
}

// Close stops the cleanup goroutine.
func (d *Dedup) Close() {
	close(d.stopCh)
}
