// Package decode selects and wraps a PCM decoder (Ogg Vorbis or MP3) for a
// decrypted audio stream, presenting a single Decoder interface to the
// downstream DSP and output stages regardless of source format.
package decode

import (
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/ids"
	ioadapt "github.com/alxayo/streamcore/internal/ioutil"
)

// oggVorbisHeaderLength is the size, in bytes, of the container header
// Spotify prepends to every Ogg Vorbis encoded file before the actual
// Vorbis stream. MP3 files carry no such prefix.
const oggVorbisHeaderLength = 167

// Decoder produces interleaved 16-bit signed PCM samples from an encoded
// audio stream and reports the source's native sample rate and channel
// count, so downstream DSP stages can normalize and resample as needed.
type Decoder interface {
	io.Reader
	SampleRate() int
	ChannelCount() int
}

// New selects a Decoder for format and wraps src, skipping the container
// header Ogg Vorbis formats carry. src must be positioned at the start of
// the (possibly headered) decrypted stream.
func New(src io.ReadSeeker, format ids.AudioFormat) (Decoder, error) {
	switch {
	case format.IsVorbis():
		headered, err := ioadapt.NewOffsetReader(src, oggVorbisHeaderLength)
		if err != nil {
			return nil, rerrors.NewAudioDecodingError("decode.skip_header", err)
		}
		return newVorbisDecoder(headered)
	case format.IsMp3():
		return newMp3Decoder(src)
	default:
		return nil, rerrors.NewAudioDecodingError("decode.new", errUnsupportedFormat(format))
	}
}

type errUnsupportedFormat ids.AudioFormat

func (e errUnsupportedFormat) Error() string {
	return "decode: unsupported audio format"
}

// vorbisDecoder adapts jfreymuth/oggvorbis's float32 sample reader to the
// Decoder interface's interleaved 16-bit PCM output.
type vorbisDecoder struct {
	reader  *oggvorbis.Reader
	samples []float32
	buf     []byte
}

func newVorbisDecoder(r io.Reader) (*vorbisDecoder, error) {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, rerrors.NewAudioDecodingError("decode.vorbis.open", err)
	}
	return &vorbisDecoder{reader: reader}, nil
}

func (d *vorbisDecoder) SampleRate() int   { return d.reader.SampleRate() }
func (d *vorbisDecoder) ChannelCount() int { return d.reader.Channels() }

func (d *vorbisDecoder) Read(p []byte) (int, error) {
	if len(d.buf) > 0 {
		n := copy(p, d.buf)
		d.buf = d.buf[n:]
		return n, nil
	}

	sampleCount := len(p) / 2
	if cap(d.samples) < sampleCount {
		d.samples = make([]float32, sampleCount)
	}
	samples := d.samples[:sampleCount]
	n, err := d.reader.Read(samples)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	raw := pcm16FromFloat32(samples[:n])
	written := copy(p, raw)
	if written < len(raw) {
		d.buf = raw[written:]
	}
	return written, err
}

// mp3Decoder adapts hajimehoshi/go-mp3, which already decodes to 16-bit
// stereo PCM, to the Decoder interface.
type mp3Decoder struct {
	dec *mp3.Decoder
}

func newMp3Decoder(r io.Reader) (*mp3Decoder, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, rerrors.NewAudioDecodingError("decode.mp3.open", err)
	}
	return &mp3Decoder{dec: dec}, nil
}

func (d *mp3Decoder) SampleRate() int   { return d.dec.SampleRate() }
func (d *mp3Decoder) ChannelCount() int { return 2 }

func (d *mp3Decoder) Read(p []byte) (int, error) { return d.dec.Read(p) }

func pcm16FromFloat32(samples []float32) []byte {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767)
		raw[i*2] = byte(v)
		raw[i*2+1] = byte(v >> 8)
	}
	return raw
}
