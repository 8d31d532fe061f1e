package dsp

import "encoding/binary"

// ChannelMapper converts interleaved 16-bit PCM between a source channel
// count and the output sink's channel count. Spotify only ever serves mono
// or stereo; this handles both directions between them.
type ChannelMapper struct {
	SourceChannels int
	TargetChannels int
}

// Map converts in (interleaved 16-bit LE PCM at m.SourceChannels) to
// m.TargetChannels, returning a new buffer. Identity when the counts match.
func (m ChannelMapper) Map(in []byte) []byte {
	if m.SourceChannels == m.TargetChannels {
		return in
	}
	switch {
	case m.SourceChannels == 1 && m.TargetChannels == 2:
		return monoToStereo(in)
	case m.SourceChannels == 2 && m.TargetChannels == 1:
		return stereoToMono(in)
	default:
		return in
	}
}

func monoToStereo(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i := 0; i+1 < len(in); i += 2 {
		copy(out[i*2:], in[i:i+2])
		copy(out[i*2+2:], in[i:i+2])
	}
	return out
}

func stereoToMono(in []byte) []byte {
	frames := len(in) / 4
	out := make([]byte, frames*2)
	for f := 0; f < frames; f++ {
		i, o := f*4, f*2
		l := int16(binary.LittleEndian.Uint16(in[i:]))
		r := int16(binary.LittleEndian.Uint16(in[i+2:]))
		avg := int16((int32(l) + int32(r)) / 2)
		binary.LittleEndian.PutUint16(out[o:], uint16(avg))
	}
	return out
}
