package protocol

import (
	"encoding/binary"
	"fmt"

	wireerr "github.com/alxayo/streamcore/internal/errors"
)

const (
	fieldMercuryURI        = 0x01
	fieldMercuryMethod     = 0x02
	fieldMercuryStatusCode = 0x03
	fieldMercuryContentType = 0x04
)

// MercuryHeader is the header frame of a Mercury request or response,
// carried as the first part of a multi-part Mercury message.
type MercuryHeader struct {
	URI        string
	Method     string
	StatusCode int32
	ContentType string
}

// MarshalBinary encodes the header as a length-prefixed field stream.
func (h MercuryHeader) MarshalBinary() ([]byte, error) {
	var buf []byte
	if h.URI != "" {
		encodeField(&buf, fieldMercuryURI, []byte(h.URI))
	}
	if h.Method != "" {
		encodeField(&buf, fieldMercuryMethod, []byte(h.Method))
	}
	if h.StatusCode != 0 {
		var sc [4]byte
		binary.BigEndian.PutUint32(sc[:], uint32(h.StatusCode))
		encodeField(&buf, fieldMercuryStatusCode, sc[:])
	}
	if h.ContentType != "" {
		encodeField(&buf, fieldMercuryContentType, []byte(h.ContentType))
	}
	return buf, nil
}

// UnmarshalBinary decodes a MercuryHeader from its wire representation.
func (h *MercuryHeader) UnmarshalBinary(b []byte) error {
	fields, err := decodeFields(newByteReader(b), "mercuryheader.decode")
	if err != nil {
		return err
	}
	if v, ok := fields[fieldMercuryURI]; ok {
		h.URI = string(v)
	}
	if v, ok := fields[fieldMercuryMethod]; ok {
		h.Method = string(v)
	}
	if v, ok := fields[fieldMercuryStatusCode]; ok {
		if len(v) != 4 {
			return wireerr.NewWireError("mercuryheader.decode", fmt.Errorf("status code field must be 4 bytes, got %d", len(v)))
		}
		h.StatusCode = int32(binary.BigEndian.Uint32(v))
	}
	if v, ok := fields[fieldMercuryContentType]; ok {
		h.ContentType = string(v)
	}
	return nil
}

// MercuryPart is one payload chunk of a multi-part Mercury message.
type MercuryPart []byte

// MercuryPacket is a single Mercury frame as read off the wire: a sequence
// number, the PARTIAL/FINAL flag, and the frame's raw parts. The logical
// header (always the overall first part) and any other part may be split
// across a run of PARTIAL frames — the last part of one frame concatenates
// with the first part of the next — so ReadMercuryPacket does not attempt
// to interpret Parts[0] as a header; stitching consecutive frames together
// and decoding the header once the run is complete is the caller's job
// (see mercury.Dispatcher and DecodeMercuryHeader).
type MercuryPacket struct {
	Seq   uint64
	Flags byte
	Parts []MercuryPart
}

// Flags recognized on a Mercury packet, per the access-point protocol.
const (
	MercuryFlagFinal   byte = 0x1
	MercuryFlagPartial byte = 0x2
)

// EncodeSeq renders seq as a big-endian byte string sized to fit (Mercury
// sequence numbers vary in width across request types: 2 bytes for
// subscriptions, 4 or 8 bytes for ordinary requests).
func EncodeSeq(seq uint64, width int) []byte {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(seq)
		seq >>= 8
	}
	return buf
}

// DecodeSeq parses a big-endian sequence number of the given width.
func DecodeSeq(b []byte) uint64 {
	var seq uint64
	for _, x := range b {
		seq = seq<<8 | uint64(x)
	}
	return seq
}

// ReadMercuryPacket parses the wire layout of a single MERCURY_REQ/
// MERCURY_PUB frame: seqLen(2 BE) | seq(seqLen) | flags(1) |
// partCount(2 BE) | part0Len(2 BE) part0 | part1Len(2 BE) part1 | ...
// Parts are returned as-is; only once a run of frames ending in FINAL has
// been stitched together is Parts[0] the encoded MercuryHeader.
func ReadMercuryPacket(payload []byte) (MercuryPacket, error) {
	var pkt MercuryPacket
	if len(payload) < 2 {
		return pkt, wireerr.NewWireError("mercury.decode", fmt.Errorf("empty payload"))
	}
	seqLen := int(binary.BigEndian.Uint16(payload[:2]))
	off := 2
	if len(payload) < off+seqLen+3 {
		return pkt, wireerr.NewWireError("mercury.decode", fmt.Errorf("truncated header"))
	}
	pkt.Seq = DecodeSeq(payload[off : off+seqLen])
	off += seqLen
	pkt.Flags = payload[off]
	off++
	partCount := int(binary.BigEndian.Uint16(payload[off : off+2]))
	off += 2

	for i := 0; i < partCount; i++ {
		if len(payload) < off+2 {
			return pkt, wireerr.NewWireError("mercury.decode", fmt.Errorf("truncated part %d length", i))
		}
		l := int(binary.BigEndian.Uint16(payload[off : off+2]))
		off += 2
		if len(payload) < off+l {
			return pkt, wireerr.NewWireError("mercury.decode", fmt.Errorf("truncated part %d body", i))
		}
		pkt.Parts = append(pkt.Parts, MercuryPart(payload[off:off+l]))
		off += l
	}
	if len(pkt.Parts) == 0 {
		return pkt, wireerr.NewWireError("mercury.decode", fmt.Errorf("no header part"))
	}
	return pkt, nil
}

// DecodeMercuryHeader interprets a fully-stitched part (one no longer split
// across frames) as the MercuryHeader found at the front of every Mercury
// request/response.
func DecodeMercuryHeader(part MercuryPart) (MercuryHeader, error) {
	var h MercuryHeader
	if err := h.UnmarshalBinary(part); err != nil {
		return MercuryHeader{}, err
	}
	return h, nil
}

// WriteMercuryPacket serializes pkt into a MERCURY_REQ/MERCURY_SUB payload.
func WriteMercuryPacket(seq uint64, seqLen int, flags byte, header MercuryHeader, parts []MercuryPart) ([]byte, error) {
	headerBytes, err := header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	allParts := append([]MercuryPart{headerBytes}, parts...)

	var buf []byte
	var sl [2]byte
	binary.BigEndian.PutUint16(sl[:], uint16(seqLen))
	buf = append(buf, sl[:]...)
	buf = append(buf, EncodeSeq(seq, seqLen)...)
	buf = append(buf, flags)
	var pc [2]byte
	binary.BigEndian.PutUint16(pc[:], uint16(len(allParts)))
	buf = append(buf, pc[:]...)
	for _, p := range allParts {
		if len(p) > 0xFFFF {
			return nil, wireerr.NewWireError("mercury.encode", fmt.Errorf("part of %d bytes exceeds 65535", len(p)))
		}
		var pl [2]byte
		binary.BigEndian.PutUint16(pl[:], uint16(len(p)))
		buf = append(buf, pl[:]...)
		buf = append(buf, p...)
	}
	return buf, nil
}
