package analysis

import (
	"sync"

	"github.com/dooshek/gamecoach/internal/types"
)

// History keeps the most recent advice, newest first
type History struct {
	mu    sync.RWMutex
	items []types.Advice
	limit int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1
	}
	return &History{limit: limit}
}

// Add prepends advice and drops the oldest entries beyond the limit
func (h *History) Add(advice types.Advice) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append([]types.Advice{advice}, h.items...)
	if len(h.items) > h.limit {
		h.items = h.items[:h.limit]
	}
}

// Items returns a copy of the entries, newest first
func (h *History) Items() []types.Advice {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]types.Advice, len(h.items))
	copy(out, h.items)
	return out
}

// Resize changes the limit, trimming if needed
func (h *History) Resize(limit int) {
	if limit <= 0 {
		limit = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.limit = limit
	if len(h.items) > limit {
		h.items = h.items[:limit]
	}
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}
