// Package storage implements the sparse-file backed, byte-range-tracked
// storage that sits between a CDN range fetcher and an audio decoder: a
// reader blocks until the bytes it needs have been written, requesting any
// gap through a bounded channel the owning fetcher services.
package storage

import (
	"io"
	"os"
	"sync"

	rerrors "github.com/alxayo/streamcore/internal/errors"
)

// Range is a half-open byte range [Offset, Offset+Length).
type Range struct {
	Offset int64
	Length int64
}

// span is one covered or pending interval, kept in an ordered, merged list.
type span struct {
	start, end int64 // [start, end)
}

// Storage backs a single audio file with a temp file plus an in-memory
// coverage map. Safe for concurrent use by one writer and many readers.
type Storage struct {
	file  *os.File
	total int64

	mu       sync.Mutex
	cond     *sync.Cond
	covered  []span
	pending  []span
	requests chan Range
	closed   bool
}

// New allocates a new sparse-backed Storage of the given total length.
func New(total int64) (*Storage, error) {
	f, err := os.CreateTemp("", "streamcore-audio-*.part")
	if err != nil {
		return nil, rerrors.NewIOError("storage.new", err)
	}
	if total > 0 {
		if err := f.Truncate(total); err != nil {
			_ = f.Close()
			return nil, rerrors.NewIOError("storage.truncate", err)
		}
	}
	s := &Storage{file: f, total: total, requests: make(chan Range, 32)}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// FromCompleteFile opens an already-complete local file (e.g. from the
// on-disk cache) as a Storage with its entire range pre-covered, so reads
// never block or generate fetch requests.
func FromCompleteFile(path string) (*Storage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rerrors.NewIOError("storage.from_complete_file", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, rerrors.NewIOError("storage.stat", err)
	}
	s := &Storage{file: f, total: info.Size(), requests: make(chan Range)}
	s.cond = sync.NewCond(&s.mu)
	if info.Size() > 0 {
		s.covered = []span{{0, info.Size()}}
	}
	close(s.requests)
	return s, nil
}

// TotalLength returns the file's total length.
func (s *Storage) TotalLength() int64 { return s.total }

// Requests returns the channel of byte ranges a reader needed but that were
// not yet covered. The owning fetcher (internal/cdn) services this channel.
// Closed once the Storage is fully covered.
func (s *Storage) Requests() <-chan Range { return s.requests }

// IsComplete reports whether the entire file has been written.
func (s *Storage) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isCompleteLocked()
}

func (s *Storage) isCompleteLocked() bool {
	return len(s.covered) == 1 && s.covered[0].start == 0 && s.covered[0].end >= s.total
}

// Path returns the backing file's path on disk.
func (s *Storage) Path() string { return s.file.Name() }

// Writer returns a Writer for depositing downloaded ranges into storage.
func (s *Storage) Writer() *Writer { return &Writer{s: s} }

// Reader returns a new independent Reader over the storage, starting at
// offset 0.
func (s *Storage) Reader() *Reader { return &Reader{s: s} }

func (s *Storage) markCovered(offset, length int64) {
	s.mu.Lock()
	s.covered = mergeSpan(s.covered, span{offset, offset + length})
	s.pending = removeSpan(s.pending, span{offset, offset + length})
	if s.isCompleteLocked() && !s.closed {
		s.closed = true
		close(s.requests)
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Storage) markNotRequested(offset, length int64) {
	s.mu.Lock()
	s.pending = removeSpan(s.pending, span{offset, offset + length})
	s.cond.Broadcast()
	s.mu.Unlock()
}

// ensureRequested schedules a download for any part of [offset, offset+length)
// not already covered or pending, and returns once the gap has at least been
// requested (it does not block for the data to arrive).
func (s *Storage) ensureRequested(offset, length int64) {
	s.mu.Lock()
	gaps := subtractSpans(span{offset, offset + length}, mergeAll(s.covered, s.pending))
	for _, g := range gaps {
		s.pending = mergeSpan(s.pending, g)
	}
	s.mu.Unlock()

	for _, g := range gaps {
		// A full request queue makes this send wait for the fetcher to take
		// a request off it, so a gap marked pending is never dropped.
		s.requests <- Range{Offset: g.start, Length: g.end - g.start}
	}
}

// waitForCoverage blocks until [offset, offset+length) is fully covered.
func (s *Storage) waitForCoverage(offset, length int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !isCovered(s.covered, span{offset, offset + length}) {
		s.cond.Wait()
	}
}

// Writer deposits downloaded byte ranges into the backing file.
type Writer struct {
	s *Storage
}

// WriteAt writes p at off and marks [off, off+len(p)) as covered, waking any
// reader blocked on that range.
func (w *Writer) WriteAt(p []byte, off int64) (int, error) {
	n, err := w.s.file.WriteAt(p, off)
	if err != nil {
		return n, rerrors.NewIOError("storage.write_at", err)
	}
	w.s.markCovered(off, int64(n))
	return n, nil
}

// MarkNotRequested clears a pending-but-failed range so a future reader will
// re-request it instead of waiting forever.
func (w *Writer) MarkNotRequested(offset, length int64) {
	w.s.markNotRequested(offset, length)
}

// IsComplete reports whether the entire file has been written.
func (w *Writer) IsComplete() bool { return w.s.IsComplete() }

// Reader is an io.ReadSeeker over Storage that blocks for not-yet-downloaded
// bytes, requesting them from the owning fetcher. Not safe for concurrent
// use by multiple goroutines (create one Reader per consumer).
type Reader struct {
	s   *Storage
	pos int64
}

var _ io.ReadSeeker = (*Reader)(nil)

// Read implements io.Reader, blocking until the next chunk of bytes is
// covered by a writer.
func (r *Reader) Read(p []byte) (int, error) {
	if r.pos >= r.s.total {
		return 0, io.EOF
	}
	length := int64(len(p))
	if r.pos+length > r.s.total {
		length = r.s.total - r.pos
	}
	r.s.ensureRequested(r.pos, length)
	r.s.waitForCoverage(r.pos, length)

	n, err := r.s.file.ReadAt(p[:length], r.pos)
	r.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, rerrors.NewIOError("storage.read_at", err)
	}
	return n, nil
}

// Seek implements io.Seeker.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.pos + offset
	case io.SeekEnd:
		next = r.s.total + offset
	default:
		return 0, rerrors.NewIOError("storage.seek", io.ErrUnexpectedEOF)
	}
	if next < 0 {
		return 0, rerrors.NewIOError("storage.seek", io.ErrUnexpectedEOF)
	}
	r.pos = next
	return r.pos, nil
}
