package cachemirror

import (
	"testing"

	"github.com/alxayo/streamcore/internal/ids"
)

func TestAudioBlobNameIsStableAndKeyedByFileId(t *testing.T) {
	a, _ := ids.ParseFileId("0123456789abcdef0123456789abcdef01234567")
	b, _ := ids.ParseFileId("fedcba9876543210fedcba9876543210fedcba98")

	if got, want := audioBlobName(a), "audio/0123456789abcdef0123456789abcdef01234567"; got != want {
		t.Fatalf("audioBlobName(a) = %q, want %q", got, want)
	}
	if audioBlobName(a) == audioBlobName(b) {
		t.Fatalf("expected distinct blob names for distinct file ids")
	}
}
