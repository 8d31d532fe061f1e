package player

import (
	"context"
	"testing"

	"github.com/alxayo/streamcore/internal/audiokey"
	"github.com/alxayo/streamcore/internal/cache"
	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/mercury"
)

// fakeSession satisfies mediaSource without a live access-point connection.
// Mercury/AudioKey panic if actually invoked, so tests that exercise only
// the cache-hit path fail loudly if they accidentally fall through to a
// network fetch.
type fakeSession struct {
	country string
}

func (f fakeSession) Mercury() *mercury.Dispatcher   { panic("unexpected mercury fetch") }
func (f fakeSession) AudioKey() *audiokey.Dispatcher { panic("unexpected audio key request") }
func (f fakeSession) CountryCode() string            { return f.country }

func openTestCache(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	return store
}

func TestLoadTrackReturnsCachedCopyWithoutFetching(t *testing.T) {
	store := openTestCache(t)
	item := ids.NewItemId(ids.ItemKindTrack, []byte("track-item-0000"))
	want := Track{Gid: []byte("gid"), Duration: 1000}
	if err := store.SaveTrackMetadata(item, &want); err != nil {
		t.Fatalf("SaveTrackMetadata: %v", err)
	}

	got, err := loadTrack(context.Background(), item, fakeSession{}, store)
	if err != nil {
		t.Fatalf("loadTrack: %v", err)
	}
	if string(got.Gid) != "gid" || got.Duration != want.Duration {
		t.Fatalf("loadTrack() = %+v, want %+v", got, want)
	}
}

func TestLoadAudioKeyReturnsCachedKeyWithoutRequesting(t *testing.T) {
	store := openTestCache(t)
	path := ids.MediaPath{ItemId: ids.NewItemId(ids.ItemKindTrack, []byte("item")), FileId: ids.FileId{1, 2, 3}}
	want := ids.AudioKey{9, 9, 9}
	if err := store.SaveAudioKey(path.ItemId, path.FileId, want); err != nil {
		t.Fatalf("SaveAudioKey: %v", err)
	}

	got, err := loadAudioKey(context.Background(), path, fakeSession{}, store)
	if err != nil {
		t.Fatalf("loadAudioKey: %v", err)
	}
	if got != want {
		t.Fatalf("loadAudioKey() = %v, want %v", got, want)
	}
}

func TestGetCountryCodePrefersCacheOverSession(t *testing.T) {
	store := openTestCache(t)
	if err := store.SaveCountryCode("DE"); err != nil {
		t.Fatalf("SaveCountryCode: %v", err)
	}

	got := getCountryCode(context.Background(), fakeSession{country: "US"}, store)
	if got != "DE" {
		t.Fatalf("getCountryCode() = %q, want cached %q", got, "DE")
	}
}

func TestGetCountryCodeFallsBackToSessionAndPersists(t *testing.T) {
	store := openTestCache(t)

	got := getCountryCode(context.Background(), fakeSession{country: "FR"}, store)
	if got != "FR" {
		t.Fatalf("getCountryCode() = %q, want %q", got, "FR")
	}

	saved, ok := store.GetCountryCode()
	if !ok || saved != "FR" {
		t.Fatalf("expected FR to be persisted to cache, got %q ok=%v", saved, ok)
	}
}

func TestLoadMediaPathForTrackFallsBackToAllowedAlternative(t *testing.T) {
	store := openTestCache(t)
	item := ids.NewItemId(ids.ItemKindTrack, []byte("restricted-track"))
	altID := ids.NewItemId(ids.ItemKindTrack, []byte("alt-track-000000"))

	track := Track{
		Gid:          item.Raw(),
		Duration:     2000,
		Restrictions: []Restriction{{CountriesForbidden: "US"}},
		Alternatives: []Track{{Gid: altID.Raw()}},
	}
	if err := store.SaveTrackMetadata(item, &track); err != nil {
		t.Fatalf("SaveTrackMetadata: %v", err)
	}

	altTrack := Track{
		Gid:      altID.Raw(),
		Duration: 2000,
		Files:    []AudioFileRef{{FileId: ids.FileId{7}, Format: ids.FormatOggVorbis160}},
	}
	if err := store.SaveTrackMetadata(altID, &altTrack); err != nil {
		t.Fatalf("SaveTrackMetadata(alt): %v", err)
	}
	if err := store.SaveCountryCode("US"); err != nil {
		t.Fatalf("SaveCountryCode: %v", err)
	}

	path, err := loadMediaPathForTrack(context.Background(), item, fakeSession{}, store, 160)
	if err != nil {
		t.Fatalf("loadMediaPathForTrack: %v", err)
	}
	if path.ItemId != item {
		t.Fatalf("resolved path reports ItemId %v, want the originally requested %v", path.ItemId, item)
	}
	if path.Format != ids.FormatOggVorbis160 {
		t.Fatalf("Format = %v, want OggVorbis160 (from the alternative track)", path.Format)
	}
}
