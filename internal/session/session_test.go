package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alxayo/streamcore/internal/apcodec"
	"github.com/alxayo/streamcore/internal/handshake"
)

// acceptOnce starts a single-connection fake access point that completes the
// handshake, reads the LOGIN frame, and replies with cmd.
func acceptOnce(t *testing.T, ln net.Listener, replyCmd byte, replyPayload []byte) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		keys, err := handshake.FakeAccessPoint(conn)
		if err != nil {
			t.Errorf("FakeAccessPoint: %v", err)
			return
		}
		w := apcodec.NewWriter(conn, keys.SendKey, 5*time.Second)
		r := apcodec.NewReader(conn, keys.RecvKey, 5*time.Second)

		if _, err := r.ReadFrame(); err != nil {
			t.Errorf("server read login: %v", err)
			return
		}
		if err := w.WriteFrame(apcodec.Frame{Cmd: replyCmd, Payload: replyPayload}); err != nil {
			t.Errorf("server write reply: %v", err)
		}
	}()
}

func TestDialLoginSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	acceptOnce(t, ln, apcodec.CmdAPWelcome, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Dial(ctx, ln.Addr().String(), Credentials{Username: "alice", AuthData: []byte("token")})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()

	if s.State() != StateReady {
		t.Fatalf("expected StateReady, got %s", s.State())
	}
}

func TestDialLoginAuthFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	acceptOnce(t, ln, apcodec.CmdAuthFailure, []byte{0x09})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = Dial(ctx, ln.Addr().String(), Credentials{Username: "bob"})
	if err == nil {
		t.Fatalf("expected auth failure error")
	}
}
