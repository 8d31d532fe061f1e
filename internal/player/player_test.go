package player

import (
	"testing"
	"time"

	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/player/hooks"
)

func TestHookEventTypeCoversEveryEventKind(t *testing.T) {
	kinds := []EventKind{
		EventLoading, EventPlaying, EventPosition, EventPaused, EventResumed,
		EventEndOfTrack, EventStopped, EventPreloadNext, EventAudioOutputUnderrun, EventError,
	}
	seen := make(map[hooks.EventType]bool)
	for _, k := range kinds {
		ht := hookEventType(k)
		if ht == "" {
			t.Fatalf("hookEventType(%v) returned empty EventType", k)
		}
		seen[ht] = true
	}
	if len(seen) != len(kinds) {
		t.Fatalf("expected %d distinct hook event types, got %d", len(kinds), len(seen))
	}
}

func TestToHookEventCarriesItemPositionAndDuration(t *testing.T) {
	item := ids.NewItemId(ids.ItemKindTrack, []byte("toHookEventItem0"))
	ev := Event{Kind: EventPlaying, ItemId: item, Position: 30 * time.Second, Duration: 3 * time.Minute}

	h := toHookEvent(ev)
	if h.Type != hooks.EventPlaying {
		t.Fatalf("Type = %v, want EventPlaying", h.Type)
	}
	if h.ItemID != item.String() {
		t.Fatalf("ItemID = %q, want %q", h.ItemID, item.String())
	}
	if h.PositionMs != 30000 {
		t.Fatalf("PositionMs = %d, want 30000", h.PositionMs)
	}
	if h.DurationMs != 180000 {
		t.Fatalf("DurationMs = %d, want 180000", h.DurationMs)
	}
}

func TestToHookEventOmitsZeroItem(t *testing.T) {
	h := toHookEvent(Event{Kind: EventStopped})
	if h.ItemID != "" {
		t.Fatalf("ItemID = %q, want empty for a zero-value event", h.ItemID)
	}
}
