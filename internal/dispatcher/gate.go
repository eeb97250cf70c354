// internal/dispatcher/gate.go
package dispatcher

import "sync"

// Gate holds the external pause flags. While either flag is set the
// dispatcher stops re-enqueueing polls. Clearing the last set flag
// restarts the poll cycle.
type Gate struct {
	mu       sync.Mutex
	loading  bool
	playback bool
	onResume func()
}

func (g *Gate) SetLoading(v bool)  { g.set(&g.loading, v) }
func (g *Gate) SetPlayback(v bool) { g.set(&g.playback, v) }

// Paused reports whether polling is paused by either flag.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loading || g.playback
}

func (g *Gate) set(flag *bool, v bool) {
	g.mu.Lock()
	was := g.loading || g.playback
	*flag = v
	resumed := was && !(g.loading || g.playback)
	fn := g.onResume
	g.mu.Unlock()

	if resumed && fn != nil {
		fn()
	}
}

// setOnResume installs the paused to unpaused callback. It runs on the
// goroutine that cleared the flag.
func (g *Gate) setOnResume(fn func()) {
	g.mu.Lock()
	g.onResume = fn
	g.mu.Unlock()
}
