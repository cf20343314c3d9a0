// Package cleanup provides a scoped resource guard that releases
// borrowed resources on every exit path exactly once.
package cleanup

import (
	"sync"

	"github.com/ghe-utils/reposync/internal/log"
)

// Guard owns release functions for resources borrowed by a run, such
// as per-node GC toggles and temporary directories. Run executes them
// in LIFO order, once, regardless of how the run ends.
type Guard struct {
	mu       sync.Mutex
	done     bool
	releases []func()
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Add registers a release function. A function added after Run has
// executed is invoked immediately: the run is already over and the
// resource must not leak.
func (g *Guard) Add(release func()) {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		release()
		return
	}
	g.releases = append(g.releases, release)
	g.mu.Unlock()
}

// Run releases all registered resources in reverse registration order.
// Only the first call has any effect.
func (g *Guard) Run() {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return
	}
	g.done = true
	releases := g.releases
	g.releases = nil
	g.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		invoke(releases[i])
	}
}

// invoke recovers from a panicking release function. One broken
// cleanup must not keep the remaining ones, GC re-enable among them,
// from running.
func invoke(release func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Default().WithField("panic", r).Error("cleanup function panicked")
		}
	}()
	release()
}
