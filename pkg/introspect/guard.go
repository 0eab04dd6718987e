package introspect

import (
	"strings"
	"sync"

	"gitlab.com/tozd/go/errors"
)

// StalePolicy decides what happens to an answer that arrives after a newer
// request for the same document was issued.
type StalePolicy string

const (
	StaleIgnore StalePolicy = "ignore"
	StaleApply  StalePolicy = "apply"
)

func ParseStalePolicy(s string) (StalePolicy, error) {
	switch p := StalePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return StaleIgnore, nil
	case StaleIgnore, StaleApply:
		return p, nil
	}
	return "", errors.Errorf("unknown stale response policy %q", s)
}

// Guard numbers the introspection requests of each document.
type Guard struct {
	policy StalePolicy

	mu          sync.Mutex
	generations map[string]uint64
}

func NewGuard(policy StalePolicy) *Guard {
	if policy == "" {
		policy = StaleIgnore
	}
	return &Guard{policy: policy, generations: map[string]uint64{}}
}

func (g *Guard) Policy() StalePolicy {
	return g.policy
}

// Begin starts a request and returns its generation.
func (g *Guard) Begin(documentID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generations[documentID]++
	return g.generations[documentID]
}

// Invalidate marks every in-flight request of the document as stale, for
// example when the user jumps elsewhere before an answer arrived.
func (g *Guard) Invalidate(documentID string) {
	g.Begin(documentID)
}

// Accept reports whether an answer for generation may still be applied.
func (g *Guard) Accept(documentID string, generation uint64) bool {
	if g.policy == StaleApply {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generations[documentID] == generation
}

// Forget drops the counter of a closed document.
func (g *Guard) Forget(documentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.generations, documentID)
}
