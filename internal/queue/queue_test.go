package queue

import (
	"testing"

	"github.com/alxayo/streamcore/internal/ids"
)

func fixtureItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{ItemId: ids.NewItemId(ids.ItemKindTrack, []byte{byte(i)})}
	}
	return items
}

func TestFillSetsCurrentToRequestedPosition(t *testing.T) {
	q := New()
	items := fixtureItems(3)
	q.Fill(items, 1)

	got, ok := q.Current()
	if !ok {
		t.Fatalf("expected a current item")
	}
	if got != items[1] {
		t.Fatalf("Current() = %+v, want %+v", got, items[1])
	}
}

func TestSequentialSkipToNextAdvances(t *testing.T) {
	q := New()
	items := fixtureItems(3)
	q.Fill(items, 0)

	q.SkipToNext()
	got, ok := q.Current()
	if !ok || got != items[1] {
		t.Fatalf("Current() after SkipToNext = %+v, ok=%v, want %+v", got, ok, items[1])
	}
}

func TestSequentialPastEndHasNoCurrent(t *testing.T) {
	q := New()
	items := fixtureItems(2)
	q.Fill(items, 1)

	q.SkipToNext()
	if _, ok := q.Current(); ok {
		t.Fatalf("expected no current item past the end of a sequential queue")
	}
}

func TestLoopAllWrapsAround(t *testing.T) {
	q := New()
	items := fixtureItems(3)
	q.Fill(items, 2)
	q.SetBehavior(LoopAll)

	q.SkipToNext()
	got, ok := q.Current()
	if !ok || got != items[0] {
		t.Fatalf("Current() after wraparound = %+v, ok=%v, want %+v", got, ok, items[0])
	}
}

func TestLoopTrackFollowingStaysOnCurrent(t *testing.T) {
	q := New()
	items := fixtureItems(3)
	q.Fill(items, 0)
	q.SetBehavior(LoopTrack)

	got, ok := q.Following()
	if !ok || got != items[0] {
		t.Fatalf("Following() under LoopTrack = %+v, ok=%v, want repeat of %+v", got, ok, items[0])
	}
}

func TestRandomKeepsCurrentItemInPlaceWhenEnabled(t *testing.T) {
	q := New()
	items := fixtureItems(10)
	q.Fill(items, 4)

	before, ok := q.Current()
	if !ok {
		t.Fatalf("expected a current item before switching behavior")
	}

	q.SetBehavior(Random)

	after, ok := q.Current()
	if !ok {
		t.Fatalf("expected a current item after switching to Random")
	}
	if before != after {
		t.Fatalf("switching to Random changed the currently playing item: before=%+v after=%+v", before, after)
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	q := New()
	q.Fill(fixtureItems(3), 0)
	q.Clear()

	if _, ok := q.Current(); ok {
		t.Fatalf("expected no current item after Clear")
	}
}

func TestSkipToPreviousNeverGoesNegative(t *testing.T) {
	q := New()
	q.Fill(fixtureItems(3), 0)
	q.SkipToPrevious()

	got, ok := q.Current()
	if !ok || got != fixtureItems(3)[0] {
		t.Fatalf("Current() after SkipToPrevious at start = %+v, ok=%v, want item 0", got, ok)
	}
}
