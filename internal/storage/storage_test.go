package storage

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestReaderBlocksUntilWriterCoversRange(t *testing.T) {
	s, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := s.Writer()
	r := s.Reader()

	done := make(chan struct{})
	var buf [16]byte
	var readErr error
	go func() {
		_, readErr = io.ReadFull(r, buf[:])
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("read returned before data was written")
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := w.WriteAt(bytes.Repeat([]byte{0xAB}, 16), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("read never unblocked after write")
	}
	if readErr != nil {
		t.Fatalf("ReadFull: %v", readErr)
	}
	if !bytes.Equal(buf[:], bytes.Repeat([]byte{0xAB}, 16)) {
		t.Fatalf("unexpected data: %v", buf)
	}
	if !s.IsComplete() {
		t.Fatalf("expected storage to be complete")
	}
}

func TestReaderRequestsUncoveredRange(t *testing.T) {
	s, err := New(64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := s.Reader()
	go func() {
		buf := make([]byte, 8)
		_, _ = r.Read(buf)
	}()

	select {
	case rng := <-s.Requests():
		if rng.Offset != 0 || rng.Length != 8 {
			t.Fatalf("unexpected requested range: %+v", rng)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a fetch request")
	}
}

func TestFromCompleteFileServesWithoutBlocking(t *testing.T) {
	f, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := f.Writer().WriteAt([]byte{1, 2, 3, 4}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	path := f.Path()

	s, err := FromCompleteFile(path)
	if err != nil {
		t.Fatalf("FromCompleteFile: %v", err)
	}
	buf := make([]byte, 4)
	n, err := s.Reader().Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 4 || !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected contents: %v", buf[:n])
	}
}

func TestMarkNotRequestedAllowsRetry(t *testing.T) {
	s, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := s.Writer()
	s.ensureRequested(0, 8)
	<-s.Requests()
	w.MarkNotRequested(0, 8)

	s.ensureRequested(0, 8)
	select {
	case rng := <-s.Requests():
		if rng.Offset != 0 || rng.Length != 8 {
			t.Fatalf("unexpected retried range: %+v", rng)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected range to be re-requested after MarkNotRequested")
	}
}
