// Package dashboard holds the shared dashboard state and the pure
// render-tree construction for the conformance pages.
package dashboard

import (
	"sort"
	"sync"

	"github.com/boa-dev/conformoor/pkg/report"
)

// State is the shared application state behind the dashboard pages: the
// engine info document and the most recent snapshot per ref. It replaces
// the page script's module-level globals with an explicitly passed,
// lock-guarded handle. Reads for refs that have not been populated yet
// return nil; callers render nothing for them.
type State struct {
	mu     sync.RWMutex
	info   *report.Info
	latest map[string]*report.Latest
}

// NewState creates an empty dashboard state.
func NewState() *State {
	return &State{
		latest: make(map[string]*report.Latest, 4),
	}
}

// SetInfo stores the engine info document.
func (s *State) SetInfo(info *report.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info = info
}

// Info returns the stored engine info document, or nil.
func (s *State) Info() *report.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.info
}

// SetLatest stores the most recent snapshot for a ref.
func (s *State) SetLatest(ref string, latest *report.Latest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[ref] = latest
}

// Latest returns the most recent snapshot for a ref, or nil when the
// ref has not been populated.
func (s *State) Latest(ref string) *report.Latest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latest[ref]
}

// Refs returns the populated refs in sorted order.
func (s *State) Refs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]string, 0, len(s.latest))
	for ref := range s.latest {
		refs = append(refs, ref)
	}

	sort.Strings(refs)

	return refs
}
