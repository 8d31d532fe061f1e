package localfiles

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewEmitsExistingAudioFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "track.mp3"), []byte("not a real mp3"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	select {
	case track := <-w.Tracks():
		if filepath.Base(track.Path) != "track.mp3" {
			t.Fatalf("unexpected track emitted: %+v", track)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected existing audio file to be emitted")
	}

	select {
	case track := <-w.Tracks():
		t.Fatalf("did not expect a second track, got %+v", track)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewEmitsNewlyCreatedAudioFile(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	path := filepath.Join(dir, "new-track.flac")
	if err := os.WriteFile(path, []byte("fake flac bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	select {
	case track := <-w.Tracks():
		if filepath.Base(track.Path) != "new-track.flac" {
			t.Fatalf("unexpected track emitted: %+v", track)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected newly created file to be detected")
	}
}
