package handshake

import (
	"fmt"
	"math/big"

	rerrors "github.com/alxayo/streamcore/internal/errors"
)

// State represents the client-side Diffie-Hellman handshake progression.
type State int

const (
	StateInitial State = iota
	StateSentClientHello
	StateRecvAPResponse
	StateKeysDerived
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateSentClientHello:
		return "SentClientHello"
	case StateRecvAPResponse:
		return "RecvAPResponse"
	case StateKeysDerived:
		return "KeysDerived"
	case StateCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// dhPrime is the 1024-bit MODP group (Oakley Group 2, RFC 2409) used for the handshake's
// Diffie-Hellman exchange; dhGenerator is its generator.
var dhPrime = mustPrime("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E08" +
	"8A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B" +
	"302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9" +
	"A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE6" +
	"49286651ECE65381FFFFFFFFFFFFFFFF")

const dhGenerator = 2

func mustPrime(hexDigits string) *big.Int {
	n, ok := new(big.Int).SetString(hexDigits, 16)
	if !ok {
		panic("handshake: invalid DH prime constant")
	}
	return n
}

// Handshake holds the in-memory state of one client-side DH handshake. It
// deliberately keeps the client/server random nonces and the raw shared
// secret around so key derivation can be re-run or inspected in tests.
type Handshake struct {
	state State

	privateKey *big.Int
	publicKey  *big.Int

	clientNonce []byte
	serverNonce []byte

	clientHelloBytes []byte
	apResponseBytes  []byte

	sharedSecret []byte

	sendKey []byte
	recvKey []byte
}

// New creates a new handshake state container in Initial state.
func New() *Handshake { return &Handshake{state: StateInitial} }

// State returns the current FSM state.
func (h *Handshake) State() State { return h.state }

// GeneratePrivateKey samples a random DH private exponent and derives the
// public key g^priv mod p. Must be called from StateInitial.
func (h *Handshake) GeneratePrivateKey(priv *big.Int) error {
	if h.state != StateInitial {
		return rerrors.NewHandshakeError("generate private key", fmt.Errorf("invalid state %s", h.state))
	}
	h.privateKey = priv
	h.publicKey = new(big.Int).Exp(big.NewInt(dhGenerator), priv, dhPrime)
	return nil
}

// RecordClientHello stores the raw bytes of the sent ClientHello (needed
// later for key derivation) and the client nonce it carried, and advances
// the FSM.
func (h *Handshake) RecordClientHello(raw, nonce []byte) error {
	if h.state != StateInitial {
		return rerrors.NewHandshakeError("record client hello", fmt.Errorf("invalid state %s", h.state))
	}
	h.clientHelloBytes = append([]byte(nil), raw...)
	h.clientNonce = append([]byte(nil), nonce...)
	h.state = StateSentClientHello
	return nil
}

// RecordAPResponse stores the raw bytes of the received APResponseMessage,
// the server's nonce and DH public key, and advances the FSM.
func (h *Handshake) RecordAPResponse(raw, nonce []byte, serverPublicKey *big.Int) error {
	if h.state != StateSentClientHello {
		return rerrors.NewHandshakeError("record ap response", fmt.Errorf("invalid state %s", h.state))
	}
	if h.privateKey == nil {
		return rerrors.NewHandshakeError("record ap response", fmt.Errorf("no private key generated"))
	}
	h.apResponseBytes = append([]byte(nil), raw...)
	h.serverNonce = append([]byte(nil), nonce...)
	h.sharedSecret = new(big.Int).Exp(serverPublicKey, h.privateKey, dhPrime).Bytes()
	h.state = StateRecvAPResponse
	return nil
}

// DeriveKeys runs the HMAC-SHA1 key schedule over the shared secret and the
// exchanged hello/response bytes, producing the send/recv Shannon keys and
// the handshake completion MAC. Transition: RecvAPResponse -> KeysDerived.
func (h *Handshake) DeriveKeys() (sendKey, recvKey, challengeMAC []byte, err error) {
	if h.state != StateRecvAPResponse {
		return nil, nil, nil, rerrors.NewHandshakeError("derive keys", fmt.Errorf("invalid state %s", h.state))
	}
	data := deriveKeyMaterial(h.sharedSecret, h.clientHelloBytes, h.apResponseBytes)
	if len(data) < 84 {
		return nil, nil, nil, rerrors.NewHandshakeError("derive keys", fmt.Errorf("short key material: %d bytes", len(data)))
	}
	challengeMAC = hmacChallenge(data[:20], h.clientHelloBytes, h.apResponseBytes)
	h.sendKey = append([]byte(nil), data[20:52]...)
	h.recvKey = append([]byte(nil), data[52:84]...)
	h.state = StateKeysDerived
	return h.sendKey, h.recvKey, challengeMAC, nil
}

// Complete marks the handshake as fully completed (the completion MAC has
// been sent and accepted by the access point). Transition:
// KeysDerived -> Completed.
func (h *Handshake) Complete() error {
	if h.state != StateKeysDerived {
		return rerrors.NewHandshakeError("complete", fmt.Errorf("invalid state %s", h.state))
	}
	h.state = StateCompleted
	return nil
}

// HasCompleted returns true if the FSM reached Completed.
func (h *Handshake) HasCompleted() bool { return h.state == StateCompleted }

// PublicKey returns the client's DH public key bytes, padded to the prime's
// byte length.
func (h *Handshake) PublicKey() []byte {
	return leftPad(h.publicKey.Bytes(), (dhPrime.BitLen()+7)/8)
}

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}
