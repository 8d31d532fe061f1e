// Package ioutil provides small io.ReadSeeker adapters used to splice an
// audio header out of a decrypted stream before handing it to a decoder.
package ioutil

import "io"

// OffsetReader presents a view of an underlying stream starting offset
// bytes in, so SeekStart(0) on the wrapper lands at offset in the
// underlying stream. Used to skip the fixed-size Ogg Vorbis container
// header Spotify prepends to every encoded file.
type OffsetReader struct {
	src    io.ReadSeeker
	offset int64
}

// NewOffsetReader wraps src, seeking it to offset immediately.
func NewOffsetReader(src io.ReadSeeker, offset int64) (*OffsetReader, error) {
	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return &OffsetReader{src: src, offset: offset}, nil
}

// Read implements io.Reader.
func (r *OffsetReader) Read(p []byte) (int, error) { return r.src.Read(p) }

// Seek implements io.Seeker, translating wrapper-relative offsets to
// underlying-stream offsets for SeekStart and passing SeekCurrent/SeekEnd
// through unchanged.
func (r *OffsetReader) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekStart {
		offset += r.offset
	}
	newPos, err := r.src.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	if newPos < r.offset {
		return 0, nil
	}
	return newPos - r.offset, nil
}

// FixedSizeReader wraps a stream with a length determined once up front
// (by seeking to the end), exposing it without re-querying the underlying
// source on every call.
type FixedSizeReader struct {
	src io.ReadSeeker
	len int64
}

// NewFixedSizeReader measures src's length by seeking to its end, then
// rewinds it to the start.
func NewFixedSizeReader(src io.ReadSeeker) (*FixedSizeReader, error) {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return &FixedSizeReader{src: src, len: size}, nil
}

// Len returns the stream's measured length.
func (r *FixedSizeReader) Len() int64 { return r.len }

// Read implements io.Reader.
func (r *FixedSizeReader) Read(p []byte) (int, error) { return r.src.Read(p) }

// Seek implements io.Seeker.
func (r *FixedSizeReader) Seek(offset int64, whence int) (int64, error) {
	return r.src.Seek(offset, whence)
}
