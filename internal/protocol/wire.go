// Package protocol hand-rolls the access-point handshake and Mercury
// wire messages. The real access point speaks protobuf for these; without a
// protoc toolchain available, each message instead gets an explicit
// MarshalBinary/UnmarshalBinary pair using the same marker-byte +
// length-prefix idiom the rest of this codebase's binary encoders use.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	wireerr "github.com/alxayo/streamcore/internal/errors"
)

// Field markers, analogous to AMF0 type markers: each field in a message is
// written as marker(1) | length(2 BE) | bytes, so messages can grow fields
// over time without breaking older readers (unknown markers are skipped).
const (
	fieldClientPublicKey = 0x01
	fieldClientNonce     = 0x02
	fieldClientPadding   = 0x03

	fieldServerPublicKey = 0x11
	fieldServerNonce     = 0x12
)

func encodeField(buf *[]byte, marker byte, data []byte) {
	var hdr [3]byte
	hdr[0] = marker
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(data)))
	*buf = append(*buf, hdr[:]...)
	*buf = append(*buf, data...)
}

func decodeFields(r io.Reader, op string) (map[byte][]byte, error) {
	out := make(map[byte][]byte)
	for {
		var hdr [3]byte
		_, err := io.ReadFull(r, hdr[:])
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, wireerr.NewWireError(op, err)
		}
		l := binary.BigEndian.Uint16(hdr[1:])
		data := make([]byte, l)
		if l > 0 {
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, wireerr.NewWireError(op, err)
			}
		}
		out[hdr[0]] = data
	}
}

// ClientHello is the first message sent to the access point, carrying the
// client's Diffie-Hellman public key, a client-generated nonce, and random
// padding (used, as in the real protocol, to defeat fixed-length traffic
// analysis on the initial handshake packet).
type ClientHello struct {
	PublicKey []byte
	Nonce     []byte
	Padding   []byte
}

// MarshalBinary encodes the ClientHello as a length-prefixed field stream.
func (h ClientHello) MarshalBinary() ([]byte, error) {
	var buf []byte
	encodeField(&buf, fieldClientPublicKey, h.PublicKey)
	encodeField(&buf, fieldClientNonce, h.Nonce)
	encodeField(&buf, fieldClientPadding, h.Padding)
	return buf, nil
}

// UnmarshalBinary decodes a ClientHello from its wire representation.
func (h *ClientHello) UnmarshalBinary(b []byte) error {
	fields, err := decodeFields(newByteReader(b), "clienthello.decode")
	if err != nil {
		return err
	}
	pk, ok := fields[fieldClientPublicKey]
	if !ok {
		return wireerr.NewWireError("clienthello.decode", fmt.Errorf("missing client public key field"))
	}
	h.PublicKey = pk
	h.Nonce = fields[fieldClientNonce]
	h.Padding = fields[fieldClientPadding]
	return nil
}

// APResponseMessage is the access point's handshake reply, carrying its
// Diffie-Hellman public key and a server nonce.
type APResponseMessage struct {
	PublicKey []byte
	Nonce     []byte
}

// MarshalBinary encodes the APResponseMessage as a length-prefixed field stream.
func (r APResponseMessage) MarshalBinary() ([]byte, error) {
	var buf []byte
	encodeField(&buf, fieldServerPublicKey, r.PublicKey)
	encodeField(&buf, fieldServerNonce, r.Nonce)
	return buf, nil
}

// UnmarshalBinary decodes an APResponseMessage from its wire representation.
func (r *APResponseMessage) UnmarshalBinary(b []byte) error {
	fields, err := decodeFields(newByteReader(b), "apresponse.decode")
	if err != nil {
		return err
	}
	pk, ok := fields[fieldServerPublicKey]
	if !ok {
		return wireerr.NewWireError("apresponse.decode", fmt.Errorf("missing server public key field"))
	}
	r.PublicKey = pk
	r.Nonce = fields[fieldServerNonce]
	return nil
}

type byteReader struct {
	b   []byte
	pos int
}

func newByteReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
