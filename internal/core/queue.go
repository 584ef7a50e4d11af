package core

import (
	"sync"

	"github.com/variouspotatoes/discord-music-player/internal/domain"
)

// Queue is the ordered set of pending items for one session, FIFO, unbounded.
// Only the owning session mutates it; reads may come from any goroutine.
type Queue struct {
	mu    sync.Mutex
	items []*domain.PlaybackItem
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push appends to the tail. Never blocks, never fails.
func (q *Queue) Push(item *domain.PlaybackItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// PopFront removes and returns the head. Empty is a state, not an error.
func (q *Queue) PopFront() (*domain.PlaybackItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item, true
}

// PeekFront returns the head without removing it.
func (q *Queue) PeekFront() (*domain.PlaybackItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns up to n items from the front as a point-in-time copy.
// n <= 0 means everything.
func (q *Queue) Snapshot(n int) []*domain.PlaybackItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	out := make([]*domain.PlaybackItem, n)
	copy(out, q.items[:n])
	return out
}

// Clear drops all pending items without invoking their callbacks and reports
// how many were dropped. Used only on session teardown.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}
