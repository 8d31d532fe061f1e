// Package dsp applies gain normalization, sample-rate conversion, and
// channel mapping to decoded PCM before it reaches the output sink.
package dsp

import (
	"encoding/binary"
	"io"
	"math"

	rerrors "github.com/alxayo/streamcore/internal/errors"
)

// normalizationDataOffset is the byte offset, within the (header-inclusive)
// decrypted stream, where Spotify stores the four normalization floats.
const normalizationDataOffset = 144

// NormalizationLevel selects which of a track's stored gain/peak pair to
// apply during playback.
type NormalizationLevel int

const (
	NormalizationNone NormalizationLevel = iota
	NormalizationTrack
	NormalizationAlbum
)

// NormalizationData holds the track- and album-level ReplayGain-style
// loudness metadata Spotify embeds in every encoded file's header.
type NormalizationData struct {
	TrackGainDb float32
	TrackPeak   float32
	AlbumGainDb float32
	AlbumPeak   float32
}

// ParseNormalizationData reads the normalization floats from r, which must
// be seekable to the start of the file's container header (before any
// format-specific offset is applied).
func ParseNormalizationData(r io.ReadSeeker) (NormalizationData, error) {
	if _, err := r.Seek(normalizationDataOffset, io.SeekStart); err != nil {
		return NormalizationData{}, rerrors.NewAudioDecodingError("dsp.normalize.seek", err)
	}

	var raw [16]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return NormalizationData{}, rerrors.NewAudioDecodingError("dsp.normalize.read", err)
	}

	return NormalizationData{
		TrackGainDb: readFloat32LE(raw[0:4]),
		TrackPeak:   readFloat32LE(raw[4:8]),
		AlbumGainDb: readFloat32LE(raw[8:12]),
		AlbumPeak:   readFloat32LE(raw[12:16]),
	}, nil
}

func readFloat32LE(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// FactorForLevel computes the linear gain factor for the given level and
// pregain (dB), clamping so the result never pushes the stored peak sample
// above full scale.
func (d NormalizationData) FactorForLevel(level NormalizationLevel, pregainDb float32) float32 {
	switch level {
	case NormalizationTrack:
		return factor(pregainDb, d.TrackGainDb, d.TrackPeak)
	case NormalizationAlbum:
		return factor(pregainDb, d.AlbumGainDb, d.AlbumPeak)
	default:
		return 1.0
	}
}

func factor(pregainDb, gainDb, peak float32) float32 {
	nf := float32(math.Pow(10.0, float64(pregainDb+gainDb)/20.0))
	if peak > 0 && nf*peak > 1.0 {
		nf = 1.0 / peak
	}
	return nf
}

// NormGain applies a fixed linear gain factor to interleaved 16-bit PCM
// samples in place, clamping on overflow.
type NormGain struct {
	Factor float32
}

// Apply scales every sample in buf (interleaved 16-bit LE PCM) by g.Factor.
func (g NormGain) Apply(buf []byte) {
	if g.Factor == 1.0 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		s := int16(binary.LittleEndian.Uint16(buf[i:]))
		scaled := float32(s) * g.Factor
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(scaled)))
	}
}
