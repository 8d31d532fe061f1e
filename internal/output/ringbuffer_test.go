package output

import (
	"bytes"
	"testing"
	"time"
)

func TestRingBufferWriteThenRead(t *testing.T) {
	rb := NewRingBuffer(16)
	defer rb.Close()

	if _, err := rb.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out := make([]byte, 4)
	n, err := rb.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 4 {
		t.Fatalf("Read n = %d, want 4", n)
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("Read() = %v, want [1 2 3 4]", out)
	}
}

func TestRingBufferReadZeroFillsOnUnderrun(t *testing.T) {
	rb := NewRingBuffer(16)
	defer rb.Close()

	out := make([]byte, 8)
	for i := range out {
		out[i] = 0xFF
	}
	n, err := rb.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 8 {
		t.Fatalf("Read n = %d, want 8", n)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("byte %d = %d, want 0 (muted underrun)", i, v)
		}
	}
}

func TestRingBufferWriteWrapsAroundCapacity(t *testing.T) {
	rb := NewRingBuffer(4)
	defer rb.Close()

	first := make([]byte, 4)
	out := make([]byte, 4)
	for i := range first {
		first[i] = byte(i + 1)
	}

	if _, err := rb.Write(first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := rb.Read(out[:2]); err != nil {
		t.Fatalf("Read: %v", err)
	}

	second := []byte{10, 20}
	if _, err := rb.Write(second); err != nil {
		t.Fatalf("Write (wrap): %v", err)
	}

	rest := make([]byte, 4)
	if _, err := rb.Read(rest); err != nil {
		t.Fatalf("Read (after wrap): %v", err)
	}
	if !bytes.Equal(rest, []byte{3, 4, 10, 20}) {
		t.Fatalf("Read() after wrap = %v, want [3 4 10 20]", rest)
	}
}

func TestRingBufferWriteBlocksUntilSpaceFrees(t *testing.T) {
	rb := NewRingBuffer(4)
	defer rb.Close()

	if _, err := rb.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if _, err := rb.Write([]byte{5, 6}); err != nil {
			t.Errorf("blocked Write: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("expected Write to block while the ring is full")
	case <-time.After(20 * time.Millisecond):
	}

	drained := make([]byte, 2)
	if _, err := rb.Read(drained); err != nil {
		t.Fatalf("Read: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected blocked Write to unblock after Read frees space")
	}
}

func TestRingBufferCloseUnblocksWriter(t *testing.T) {
	rb := NewRingBuffer(2)

	if _, err := rb.Write([]byte{1, 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := rb.Write([]byte{3, 4})
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	rb.Close()

	select {
	case err := <-errc:
		if err == nil {
			t.Fatalf("expected an error from Write after Close")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected Close to unblock the pending Write")
	}
}
