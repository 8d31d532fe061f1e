// Package queue tracks the ordered list of items a player session works
// through, with sequential, shuffled, and repeat playback behaviors.
package queue

import (
	"sync"

	"github.com/samber/lo"

	"github.com/alxayo/streamcore/internal/dsp"
	"github.com/alxayo/streamcore/internal/ids"
)

// Behavior selects how the queue advances between tracks.
type Behavior int

const (
	Sequential Behavior = iota
	Random
	LoopTrack
	LoopAll
)

// Item is a single queued entry: the catalog item to play and the loudness
// normalization level to apply to it.
type Item struct {
	ItemId    ids.ItemId
	NormLevel dsp.NormalizationLevel
}

// Queue holds an ordered item list plus a play-order permutation (the
// identity order for Sequential/LoopTrack/LoopAll, a shuffled order for
// Random), and the listener's current position within that permutation.
type Queue struct {
	mu        sync.Mutex
	items     []Item
	positions []int
	position  int
	behavior  Behavior
}

// New creates an empty queue with Sequential behavior.
func New() *Queue {
	return &Queue{behavior: Sequential}
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.positions = nil
	q.position = 0
}

// Fill replaces the queue's contents with items, starting playback at
// position (an index into items, not into the play-order permutation).
func (q *Queue) Fill(items []Item, position int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append([]Item(nil), items...)
	q.positions = make([]int, len(q.items))
	for i := range q.positions {
		q.positions[i] = i
	}
	q.position = position
	q.positions = q.computePositions()
}

// SetBehavior changes the queue's advance/shuffle behavior, recomputing the
// play order immediately so a switch to Random takes effect at once.
func (q *Queue) SetBehavior(b Behavior) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.behavior = b
	q.positions = q.computePositions()
}

// Behavior returns the queue's current behavior.
func (q *Queue) Behavior() Behavior {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.behavior
}

// computePositions rebuilds the play-order permutation and moves q.position
// so the currently playing item stays current: Random swaps that item to
// slot 0 and shuffles the rest behind it; the other behaviors use the
// identity order with q.position at the item's playlist index. Switching
// behavior mid-playback therefore never skips or repeats the current track.
func (q *Queue) computePositions() []int {
	positions := make([]int, len(q.items))
	for i := range positions {
		positions[i] = i
	}

	playlistPosition := q.position
	if len(q.positions) > 1 && q.position >= 0 && q.position < len(q.positions) {
		playlistPosition = q.positions[q.position]
	}
	q.position = playlistPosition

	if q.behavior == Random && len(positions) > 1 && playlistPosition >= 0 && playlistPosition < len(positions) {
		positions[0], positions[playlistPosition] = positions[playlistPosition], positions[0]
		rest := lo.Shuffle(append([]int(nil), positions[1:]...))
		copy(positions[1:], rest)
		q.position = 0
	}
	return positions
}

// SkipToPrevious moves the listener's position to the previous slot.
func (q *Queue) SkipToPrevious() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.position = q.previousPosition()
}

// SkipToNext moves the listener's position to the next slot, per behavior.
func (q *Queue) SkipToNext() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.position = q.nextPosition()
}

// SkipToFollowing moves to the slot that will play after the current one
// finishes naturally (distinct from SkipToNext for LoopTrack, which repeats
// in place but still reports the track "following" it as the next one).
func (q *Queue) SkipToFollowing() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.position = q.followingPosition()
}

// Current returns the item at the listener's current position, or false if
// the queue is empty or the position has run off the end.
func (q *Queue) Current() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.itemAt(q.position)
}

// Following returns the item that will play after the current one.
func (q *Queue) Following() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.itemAt(q.followingPosition())
}

func (q *Queue) itemAt(position int) (Item, bool) {
	if position < 0 || position >= len(q.positions) {
		return Item{}, false
	}
	idx := q.positions[position]
	if idx < 0 || idx >= len(q.items) {
		return Item{}, false
	}
	return q.items[idx], true
}

func (q *Queue) previousPosition() int {
	if q.position == 0 {
		return 0
	}
	return q.position - 1
}

func (q *Queue) nextPosition() int {
	switch q.behavior {
	case LoopAll:
		if len(q.items) == 0 {
			return 0
		}
		return (q.position + 1) % len(q.items)
	default:
		return q.position + 1
	}
}

func (q *Queue) followingPosition() int {
	switch q.behavior {
	case LoopTrack:
		return q.position
	case LoopAll:
		if len(q.items) == 0 {
			return 0
		}
		return (q.position + 1) % len(q.items)
	default:
		return q.position + 1
	}
}
