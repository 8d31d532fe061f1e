package apcodec

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	sendKey := []byte("client-send-key-0123456789abcdef")
	recvKey := []byte("client-send-key-0123456789abcdef")

	writer := NewWriter(clientConn, sendKey, time.Second)
	reader := NewReader(serverConn, recvKey, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- writer.WriteFrame(Frame{Cmd: CmdPing, Payload: []byte("hello access point")})
	}()

	got, err := reader.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if got.Cmd != CmdPing {
		t.Fatalf("cmd mismatch: got 0x%02x", got.Cmd)
	}
	if !bytes.Equal(got.Payload, []byte("hello access point")) {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
}

func TestReadFrameRejectsTamperedMAC(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	tapIn, tapOut := net.Pipe()
	defer tapIn.Close()
	defer tapOut.Close()

	key := []byte("shared-session-key-material-here")
	writer := NewWriter(clientConn, key, time.Second)
	reader := NewReader(tapOut, key, time.Second)

	go func() {
		_ = writer.WriteFrame(Frame{Cmd: CmdPong, Payload: []byte("pong")})
	}()
	go func() {
		// header(3) + payload(4) + mac(4); flip the last MAC byte in transit.
		wire := make([]byte, 3+4+4)
		if _, err := io.ReadFull(serverConn, wire); err != nil {
			return
		}
		wire[len(wire)-1] ^= 0xFF
		_, _ = tapIn.Write(wire)
	}()

	if _, err := reader.ReadFrame(); !errors.Is(err, errBadMAC) {
		t.Fatalf("ReadFrame error = %v, want a MAC mismatch", err)
	}
}

func TestMultipleFramesPreserveNonceSequence(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	key := []byte("another-session-key-material-ab")
	writer := NewWriter(clientConn, key, time.Second)
	reader := NewReader(serverConn, key, time.Second)

	payloads := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	go func() {
		for _, p := range payloads {
			if err := writer.WriteFrame(Frame{Cmd: CmdStreamChunk, Payload: p}); err != nil {
				t.Errorf("WriteFrame: %v", err)
				return
			}
		}
	}()

	for _, want := range payloads {
		f, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(f.Payload, want) {
			t.Fatalf("payload mismatch: got %q want %q", f.Payload, want)
		}
	}
}
