package dsp

import (
	"bytes"

	"github.com/zaf/resample"

	rerrors "github.com/alxayo/streamcore/internal/errors"
)

// ResamplingSpec describes a sample-rate conversion: the source rate, the
// rate the output sink expects, and the channel count both sides share.
type ResamplingSpec struct {
	InputRate  int
	OutputRate int
	Channels   int
}

// Ratio returns OutputRate/InputRate.
func (s ResamplingSpec) Ratio() float64 {
	return float64(s.OutputRate) / float64(s.InputRate)
}

// Resampler converts interleaved 16-bit PCM from InputRate to OutputRate.
// It bypasses conversion entirely when the rates already match, the same
// shortcut the normalization/resample pipeline this is grounded on takes.
type Resampler struct {
	spec ResamplingSpec
	buf  bytes.Buffer
	r    *resample.Resampler
}

// NewResampler builds a Resampler for spec. quality is a libsamplerate-style
// converter quality tier (0 = best/slowest sinc interpolation, 4 = fastest).
func NewResampler(spec ResamplingSpec, quality int) (*Resampler, error) {
	rs := &Resampler{spec: spec}
	if spec.InputRate == spec.OutputRate {
		return rs, nil
	}

	r, err := resample.New(&rs.buf, float64(spec.InputRate), float64(spec.OutputRate), spec.Channels, resample.I16, quality)
	if err != nil {
		return nil, rerrors.NewResamplingError(quality, err)
	}
	rs.r = r
	return rs, nil
}

// Process resamples in (interleaved 16-bit LE PCM) and returns the
// converted bytes. The returned slice is only valid until the next call.
func (rs *Resampler) Process(in []byte) ([]byte, error) {
	if rs.r == nil {
		return in, nil
	}
	rs.buf.Reset()
	if _, err := rs.r.Write(in); err != nil {
		return nil, rerrors.NewResamplingError(0, err)
	}
	return rs.buf.Bytes(), nil
}

// Close releases the underlying converter's resources.
func (rs *Resampler) Close() error {
	if rs.r == nil {
		return nil
	}
	return rs.r.Close()
}
