package handshake

import (
	"bytes"
	"net"
	"testing"
)

func TestClientHandshakeAgainstFakeAccessPoint(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverKeys := make(chan Keys, 1)
	serverErr := make(chan error, 1)
	go func() {
		k, err := FakeAccessPoint(serverConn)
		serverKeys <- k
		serverErr <- err
	}()

	clientKeys, err := ClientHandshake(clientConn)
	if err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("FakeAccessPoint: %v", err)
	}
	apKeys := <-serverKeys

	if !bytes.Equal(clientKeys.SendKey, apKeys.RecvKey) {
		t.Fatalf("client send key must equal access point recv key")
	}
	if !bytes.Equal(clientKeys.RecvKey, apKeys.SendKey) {
		t.Fatalf("client recv key must equal access point send key")
	}
	if len(clientKeys.SendKey) != 32 || len(clientKeys.RecvKey) != 32 {
		t.Fatalf("expected 32-byte keys, got send=%d recv=%d", len(clientKeys.SendKey), len(clientKeys.RecvKey))
	}
}
