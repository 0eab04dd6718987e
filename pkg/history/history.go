// Package history keeps the per-document stack of positions a user jumped
// away from, so that a jump can be undone.
package history

import (
	"sync"

	"github.com/walteh/gotodef/pkg/tokens"
)

// Position is the origin of a jump: the clicked token and the cell it was in.
// History never looks inside it.
type Position struct {
	Token tokens.Token `json:"token"`
	Cell  int          `json:"cell"`
}

// History maps a document identity to its stack of positions. The zero value
// is ready to use.
type History struct {
	mu     sync.Mutex
	stacks map[string][]Position
}

func New() *History {
	return &History{}
}

// Store pushes a position for the document.
func (h *History) Store(documentID string, pos Position) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stacks == nil {
		h.stacks = map[string][]Position{}
	}
	h.stacks[documentID] = append(h.stacks[documentID], pos)
}

// Recollect pops the most recent position of the document.
func (h *History) Recollect(documentID string) (Position, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stack := h.stacks[documentID]
	if len(stack) == 0 {
		return Position{}, false
	}
	pos := stack[len(stack)-1]
	h.stacks[documentID] = stack[:len(stack)-1]
	return pos, true
}

// Len returns the depth of the document's stack.
func (h *History) Len(documentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stacks[documentID])
}

// Forget drops the stack of a closed document.
func (h *History) Forget(documentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.stacks, documentID)
}
