package dsp

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestParseNormalizationDataReadsFourFloats(t *testing.T) {
	buf := make([]byte, normalizationDataOffset+16)
	putF32 := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	putF32(normalizationDataOffset, -6.5)
	putF32(normalizationDataOffset+4, 0.9)
	putF32(normalizationDataOffset+8, -4.0)
	putF32(normalizationDataOffset+12, 0.95)

	got, err := ParseNormalizationData(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("ParseNormalizationData: %v", err)
	}
	if got.TrackGainDb != -6.5 || got.TrackPeak != 0.9 {
		t.Fatalf("unexpected track fields: %+v", got)
	}
	if got.AlbumGainDb != -4.0 || got.AlbumPeak != 0.95 {
		t.Fatalf("unexpected album fields: %+v", got)
	}
}

func TestFactorForLevelClampsToPeak(t *testing.T) {
	d := NormalizationData{TrackGainDb: 20, TrackPeak: 0.5}
	// 10^((0+20)/20) = 10, but peak*nf must not exceed 1 -> clamp to 1/0.5=2.
	got := d.FactorForLevel(NormalizationTrack, 0)
	if got != 2.0 {
		t.Fatalf("FactorForLevel = %v, want 2.0", got)
	}
}

func TestFactorForLevelNoneIsUnity(t *testing.T) {
	d := NormalizationData{TrackGainDb: 20, TrackPeak: 0.5}
	if got := d.FactorForLevel(NormalizationNone, 0); got != 1.0 {
		t.Fatalf("FactorForLevel(None) = %v, want 1.0", got)
	}
}

func TestNormGainAppliesAndClamps(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:], uint16(int16(16000)))
	binary.LittleEndian.PutUint16(buf[2:], uint16(int16(-16000)))

	g := NormGain{Factor: 3.0}
	g.Apply(buf)

	s0 := int16(binary.LittleEndian.Uint16(buf[0:]))
	s1 := int16(binary.LittleEndian.Uint16(buf[2:]))
	if s0 != 32767 {
		t.Fatalf("sample 0 = %d, want clamped to 32767", s0)
	}
	if s1 != -32768 {
		t.Fatalf("sample 1 = %d, want clamped to -32768", s1)
	}
}

func TestResamplerBypassesWhenRatesMatch(t *testing.T) {
	r, err := NewResampler(ResamplingSpec{InputRate: 44100, OutputRate: 44100, Channels: 2}, 0)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	defer r.Close()

	in := []byte{1, 2, 3, 4}
	out, err := r.Process(in)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("Process() = %v, want passthrough %v", out, in)
	}
}

func TestChannelMapperMonoToStereo(t *testing.T) {
	m := ChannelMapper{SourceChannels: 1, TargetChannels: 2}
	in := make([]byte, 4)
	binary.LittleEndian.PutUint16(in[0:], 100)
	binary.LittleEndian.PutUint16(in[2:], 200)

	out := m.Map(in)
	if len(out) != 8 {
		t.Fatalf("len(out) = %d, want 8", len(out))
	}
	if binary.LittleEndian.Uint16(out[0:]) != 100 || binary.LittleEndian.Uint16(out[2:]) != 100 {
		t.Fatalf("first frame not duplicated: %v", out[:4])
	}
	if binary.LittleEndian.Uint16(out[4:]) != 200 || binary.LittleEndian.Uint16(out[6:]) != 200 {
		t.Fatalf("second frame not duplicated: %v", out[4:])
	}
}

func TestChannelMapperStereoToMonoAverages(t *testing.T) {
	m := ChannelMapper{SourceChannels: 2, TargetChannels: 1}
	in := make([]byte, 4)
	binary.LittleEndian.PutUint16(in[0:], uint16(int16(100)))
	binary.LittleEndian.PutUint16(in[2:], uint16(int16(200)))

	out := m.Map(in)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if got := int16(binary.LittleEndian.Uint16(out)); got != 150 {
		t.Fatalf("averaged sample = %d, want 150", got)
	}
}

func TestChannelMapperIdentityWhenCountsMatch(t *testing.T) {
	m := ChannelMapper{SourceChannels: 2, TargetChannels: 2}
	in := []byte{1, 2, 3, 4}
	out := m.Map(in)
	if !bytes.Equal(out, in) {
		t.Fatalf("Map() = %v, want identity %v", out, in)
	}
}
