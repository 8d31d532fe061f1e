package handshake

// FakeAccessPoint is a minimal, test-only stand-in for the real access
// point's handshake responder, ADAPTED from the teacher's
// internal/rtmp/handshake/server.go server-side FSM (same deadline and
// op-wrapped-error idiom) but speaking the DH exchange instead of the RTMP
// simple handshake. It is only used from tests: internal/session's
// integration tests and this package's client_test.go.

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"time"

	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/protocol"
)

const (
	serverReadTimeout  = 5 * time.Second
	serverWriteTimeout = 5 * time.Second
)

// FakeAccessPoint completes one DH handshake as the server side and returns
// the derived Shannon keys from the access point's perspective (its
// send/recv key assignment is the client's mirrored: ap.SendKey ==
// client's RecvKey, and vice versa).
func FakeAccessPoint(conn net.Conn) (Keys, error) {
	if conn == nil {
		return Keys{}, rerrors.NewHandshakeError("init", fmt.Errorf("nil conn"))
	}

	if err := setReadDeadline(conn, serverReadTimeout); err != nil {
		return Keys{}, err
	}
	helloBytes, err := readLengthPrefixed(conn)
	if err != nil {
		if isTimeoutErr(err) {
			return Keys{}, rerrors.NewTimeoutError("read client hello", serverReadTimeout, err)
		}
		return Keys{}, rerrors.NewHandshakeError("read client hello", err)
	}
	var hello protocol.ClientHello
	if err := hello.UnmarshalBinary(helloBytes); err != nil {
		return Keys{}, rerrors.NewHandshakeError("decode client hello", err)
	}

	priv, err := rand.Int(rand.Reader, dhPrime)
	if err != nil {
		return Keys{}, rerrors.NewHandshakeError("generate private key", err)
	}
	pub := new(big.Int).Exp(big.NewInt(dhGenerator), priv, dhPrime)

	serverNonce := make([]byte, nonceSize)
	if _, err := rand.Read(serverNonce); err != nil {
		return Keys{}, rerrors.NewHandshakeError("rand server nonce", err)
	}
	resp := protocol.APResponseMessage{PublicKey: leftPad(pub.Bytes(), (dhPrime.BitLen()+7)/8), Nonce: serverNonce}
	respBytes, err := resp.MarshalBinary()
	if err != nil {
		return Keys{}, rerrors.NewHandshakeError("marshal ap response", err)
	}

	if err := setWriteDeadline(conn, serverWriteTimeout); err != nil {
		return Keys{}, err
	}
	if err := writeLengthPrefixed(conn, respBytes); err != nil {
		if isTimeoutErr(err) {
			return Keys{}, rerrors.NewTimeoutError("write ap response", serverWriteTimeout, err)
		}
		return Keys{}, rerrors.NewHandshakeError("write ap response", err)
	}

	clientPub := new(big.Int).SetBytes(hello.PublicKey)
	sharedSecret := new(big.Int).Exp(clientPub, priv, dhPrime).Bytes()
	data := deriveKeyMaterial(sharedSecret, helloBytes, respBytes)
	if len(data) < 84 {
		return Keys{}, rerrors.NewHandshakeError("derive keys", fmt.Errorf("short key material"))
	}
	wantMAC := hmacChallenge(data[:20], helloBytes, respBytes)
	clientSendKey := data[20:52]
	clientRecvKey := data[52:84]

	if err := setReadDeadline(conn, serverReadTimeout); err != nil {
		return Keys{}, err
	}
	gotMAC, err := readLengthPrefixed(conn)
	if err != nil {
		return Keys{}, rerrors.NewHandshakeError("read challenge mac", err)
	}
	if !bytesEqual(gotMAC, wantMAC) {
		return Keys{}, rerrors.NewHandshakeError("verify challenge mac", fmt.Errorf("mac mismatch"))
	}

	// From the access point's perspective it receives with the client's
	// send key and sends with the client's recv key.
	return Keys{SendKey: clientRecvKey, RecvKey: clientSendKey}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
