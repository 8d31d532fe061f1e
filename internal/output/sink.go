// Package output drives the realtime audio device via ebitengine/oto,
// pulling processed PCM from a ring buffer the player's decode loop feeds.
package output

import (
	"sync"

	"github.com/ebitengine/oto/v3"

	rerrors "github.com/alxayo/streamcore/internal/errors"
)

const ringBufferCapacity = 1024 * 4 * 4 // bytes: 4096 frames * 2 channels * 2 bytes-per-sample, stereo 16-bit

// Sink owns the realtime output stream. Its Writer is the single producer;
// the underlying oto.Player is the single consumer, pulling on its own
// goroutine managed by the oto library.
type Sink struct {
	ctx    *oto.Context
	player *oto.Player
	ring   *RingBuffer

	mu      sync.Mutex
	volume  float64
	playing bool
}

// Open creates the realtime output stream for the given format. Only one
// Sink may be open per process, matching oto's single-context restriction.
func Open(sampleRate, channels int) (*Sink, error) {
	ring := NewRingBuffer(ringBufferCapacity)

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, rerrors.NewAudioOutputError("output.open_context", err)
	}
	<-ready

	player := ctx.NewPlayer(ring)
	return &Sink{ctx: ctx, player: player, ring: ring, volume: 1.0}, nil
}

// Writer returns the producer side of the sink's ring buffer: the decode/DSP
// pipeline writes finished PCM here.
func (s *Sink) Writer() *RingBuffer { return s.ring }

// Play starts (or resumes) playback.
func (s *Sink) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player.Play()
	s.playing = true
}

// Pause stops pulling from the ring buffer without discarding it.
func (s *Sink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player.Pause()
	s.playing = false
}

// IsPlaying reports whether the stream is currently pulling samples.
func (s *Sink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// SetVolume adjusts playback volume in [0, 1].
func (s *Sink) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = volume
	s.player.SetVolume(volume)
}

// Volume returns the last volume set via SetVolume.
func (s *Sink) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Clear discards buffered, not-yet-played samples (used on seek/skip).
func (s *Sink) Clear() {
	s.ring.Clear()
}

// Underruns reports how many times playback has had to fall back to
// silence because the decode pipeline fell behind.
func (s *Sink) Underruns() int64 { return s.ring.Underruns() }

// Close stops playback and releases the underlying stream and ring buffer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.player.Close(); err != nil {
		return rerrors.NewAudioOutputError("output.close_player", err)
	}
	return s.ring.Close()
}
