package binary

import (
	"strings"
	"sync"
)

// Trust is the user's consent to run tools whose digest is not whitelisted.
//
// The latch covers the current run only. Digests passed to Accept (usually
// read back from the configuration) are trusted individually.
// A nil *Trust trusts nothing.
type Trust struct {
	mu       sync.RWMutex
	latched  bool
	accepted map[string]struct{}
}

// NewTrust returns a Trust that already accepts the given digests.
func NewTrust(digests ...string) *Trust {
	t := &Trust{accepted: make(map[string]struct{})}
	for _, d := range digests {
		t.Accept(d)
	}
	return t
}

// Latch trusts every digest until the Trust is discarded.
func (t *Trust) Latch() {
	t.mu.Lock()
	t.latched = true
	t.mu.Unlock()
}

// Latched reports whether Latch was called.
func (t *Trust) Latched() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latched
}

// Accept trusts one digest.
func (t *Trust) Accept(digest string) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if digest == "" {
		return
	}
	t.mu.Lock()
	if t.accepted == nil {
		t.accepted = make(map[string]struct{})
	}
	t.accepted[digest] = struct{}{}
	t.mu.Unlock()
}

// Allows reports whether a tool with digest may run.
func (t *Trust) Allows(digest string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latched {
		return true
	}
	_, ok := t.accepted[strings.ToLower(digest)]
	return ok
}
