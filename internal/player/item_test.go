package player

import (
	"testing"

	"github.com/alxayo/streamcore/internal/ids"
)

func TestPreferredFormatsForBitratePutsExactMatchFirst(t *testing.T) {
	formats := preferredFormatsForBitrate(160)
	if formats[0] != ids.FormatOggVorbis160 {
		t.Fatalf("formats[0] = %v, want OggVorbis160", formats[0])
	}
}

func TestToMediaPathPrefersNextHigherBitrate(t *testing.T) {
	track := Track{
		Gid:      []byte("gid0000000000000"),
		Duration: 1000,
		Files: []AudioFileRef{
			{FileId: ids.FileId{1}, Format: ids.FormatOggVorbis96},
			{FileId: ids.FileId{2}, Format: ids.FormatOggVorbis320},
		},
	}

	path, ok := toMediaPath(track, 160)
	if !ok {
		t.Fatalf("expected a resolved MediaPath")
	}
	// Neither available file matches 160 exactly; the next higher bitrate
	// (320) is preferred over the next lower one (96).
	if path.Format != ids.FormatOggVorbis320 {
		t.Fatalf("Format = %v, want OggVorbis320 (next higher than 160)", path.Format)
	}
}

func TestToMediaPathFailsWithNoFiles(t *testing.T) {
	_, ok := toMediaPath(Track{Gid: []byte("gid")}, 160)
	if ok {
		t.Fatalf("expected no MediaPath for a track with no files")
	}
}

func TestEpisodeToMediaPathPicksAvailableFormat(t *testing.T) {
	episode := Episode{
		Gid: []byte("epgid000000000000"),
		Files: []AudioFileRef{
			{FileId: ids.FileId{9}, Format: ids.FormatMp3320},
		},
	}
	path, ok := episodeToMediaPath(episode, 320)
	if !ok {
		t.Fatalf("expected a resolved MediaPath")
	}
	if path.Format != ids.FormatMp3320 {
		t.Fatalf("Format = %v, want Mp3320", path.Format)
	}
	if path.Kind != ids.MediaPathCdn {
		t.Fatalf("Kind = %v, want MediaPathCdn", path.Kind)
	}
}
