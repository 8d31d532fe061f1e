package handshake

// Client-side Diffie-Hellman handshake. Mirrors the teacher's RTMP simple
// handshake FSM shape (deadlines, logging, op-wrapped errors) but the wire
// exchange and key derivation follow spec §4.3 instead of RTMP's
// timestamp/random-echo handshake.

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/logger"
	"github.com/alxayo/streamcore/internal/protocol"
)

const (
	clientReadTimeout  = 5 * time.Second
	clientWriteTimeout = 5 * time.Second
	nonceSize          = 16
	paddingSize        = 16
)

// Keys holds the two Shannon cipher keys derived from a completed handshake.
type Keys struct {
	SendKey []byte
	RecvKey []byte
}

// ClientHandshake performs the Diffie-Hellman handshake as a client over
// conn: generate a keypair, exchange ClientHello/APResponseMessage, derive
// the send/recv keys, and send the completion MAC. On success the caller
// may immediately start framing traffic on conn with apcodec using the
// returned keys.
func ClientHandshake(conn net.Conn) (Keys, error) {
	if conn == nil {
		return Keys{}, rerrors.NewHandshakeError("init", fmt.Errorf("nil conn"))
	}
	log := logger.Logger().With("phase", "handshake", "side", "client")
	h := New()

	priv, err := rand.Int(rand.Reader, dhPrime)
	if err != nil {
		return Keys{}, rerrors.NewHandshakeError("generate private key", err)
	}
	if err := h.GeneratePrivateKey(priv); err != nil {
		return Keys{}, err
	}

	clientNonce := make([]byte, nonceSize)
	if _, err := rand.Read(clientNonce); err != nil {
		return Keys{}, rerrors.NewHandshakeError("rand client nonce", err)
	}
	padding := make([]byte, paddingSize)
	if _, err := rand.Read(padding); err != nil {
		return Keys{}, rerrors.NewHandshakeError("rand padding", err)
	}

	hello := protocol.ClientHello{PublicKey: h.PublicKey(), Nonce: clientNonce, Padding: padding}
	helloBytes, err := hello.MarshalBinary()
	if err != nil {
		return Keys{}, rerrors.NewHandshakeError("marshal client hello", err)
	}
	if err := h.RecordClientHello(helloBytes, clientNonce); err != nil {
		return Keys{}, err
	}

	if err := setWriteDeadline(conn, clientWriteTimeout); err != nil {
		return Keys{}, err
	}
	if err := writeLengthPrefixed(conn, helloBytes); err != nil {
		if isTimeoutErr(err) {
			return Keys{}, rerrors.NewTimeoutError("write client hello", clientWriteTimeout, err)
		}
		return Keys{}, rerrors.NewHandshakeError("write client hello", err)
	}

	if err := setReadDeadline(conn, clientReadTimeout); err != nil {
		return Keys{}, err
	}
	respBytes, err := readLengthPrefixed(conn)
	if err != nil {
		if isTimeoutErr(err) {
			return Keys{}, rerrors.NewTimeoutError("read ap response", clientReadTimeout, err)
		}
		return Keys{}, rerrors.NewHandshakeError("read ap response", err)
	}

	var resp protocol.APResponseMessage
	if err := resp.UnmarshalBinary(respBytes); err != nil {
		return Keys{}, rerrors.NewHandshakeError("decode ap response", err)
	}
	serverPub := new(big.Int).SetBytes(resp.PublicKey)
	if err := h.RecordAPResponse(respBytes, resp.Nonce, serverPub); err != nil {
		return Keys{}, err
	}

	sendKey, recvKey, challengeMAC, err := h.DeriveKeys()
	if err != nil {
		return Keys{}, err
	}

	if err := setWriteDeadline(conn, clientWriteTimeout); err != nil {
		return Keys{}, err
	}
	if err := writeLengthPrefixed(conn, challengeMAC); err != nil {
		if isTimeoutErr(err) {
			return Keys{}, rerrors.NewTimeoutError("write challenge mac", clientWriteTimeout, err)
		}
		return Keys{}, rerrors.NewHandshakeError("write challenge mac", err)
	}

	if err := h.Complete(); err != nil {
		return Keys{}, err
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		log.Warnw("failed to clear read deadline", "error", err)
	}
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		log.Warnw("failed to clear write deadline", "error", err)
	}

	log.Infow("handshake completed")
	return Keys{SendKey: sendKey, RecvKey: recvKey}, nil
}

func writeLengthPrefixed(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)+4))
	if err := writeFull(w, lenBuf[:]); err != nil {
		return err
	}
	return writeFull(w, payload)
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	if total < 4 {
		return nil, fmt.Errorf("handshake: invalid frame length %d", total)
	}
	payload := make([]byte, total-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func setReadDeadline(c net.Conn, d time.Duration) error {
	if err := c.SetReadDeadline(time.Now().Add(d)); err != nil {
		return rerrors.NewHandshakeError("set read deadline", err)
	}
	return nil
}

func setWriteDeadline(c net.Conn, d time.Duration) error {
	if err := c.SetWriteDeadline(time.Now().Add(d)); err != nil {
		return rerrors.NewHandshakeError("set write deadline", err)
	}
	return nil
}

func writeFull(w io.Writer, b []byte) error {
	off := 0
	for off < len(b) {
		n, err := w.Write(b[off:])
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

func isTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	type to interface{ Timeout() bool }
	if ne, ok := err.(to); ok && ne.Timeout() {
		return true
	}
	return false
}
