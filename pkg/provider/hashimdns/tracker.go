package hashimdns

import (
	"sort"
	"time"
)

// tracker remembers when each instance name was last answered for.
// hashicorp/mdns has no goodbye handling, so an instance that stops
// answering for staleAfter is treated as withdrawn.
type tracker struct {
	staleAfter time.Duration
	lastSeen   map[string]time.Time
}

func newTracker(staleAfter time.Duration) *tracker {
	return &tracker{staleAfter: staleAfter, lastSeen: make(map[string]time.Time)}
}

// seen records an answer and reports whether the name is new.
func (t *tracker) seen(name string, now time.Time) bool {
	_, ok := t.lastSeen[name]
	t.lastSeen[name] = now
	return !ok
}

// expire forgets and returns, sorted, every name not seen since now-staleAfter.
func (t *tracker) expire(now time.Time) []string {
	var gone []string
	for name, at := range t.lastSeen {
		if now.Sub(at) >= t.staleAfter {
			gone = append(gone, name)
			delete(t.lastSeen, name)
		}
	}
	sort.Strings(gone)
	return gone
}

func (t *tracker) len() int { return len(t.lastSeen) }
