package session

// Login payload encoding. Mirrors the marker-byte + 2-byte-length field
// idiom used throughout internal/protocol, since the LOGIN command carries
// no generated protobuf stub in this tree either.

import "encoding/binary"

const (
	fieldUsername byte = 0x01
	fieldAuthData byte = 0x02
	fieldAuthType byte = 0x03
)

func encodeLoginPayload(creds Credentials) []byte {
	buf := make([]byte, 0, 16+len(creds.Username)+len(creds.AuthData))
	buf = appendField(buf, fieldUsername, []byte(creds.Username))
	buf = appendField(buf, fieldAuthData, creds.AuthData)
	var typeBuf [4]byte
	binary.BigEndian.PutUint32(typeBuf[:], creds.AuthType)
	buf = appendField(buf, fieldAuthType, typeBuf[:])
	return buf
}

func appendField(buf []byte, marker byte, value []byte) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(value)))
	buf = append(buf, marker)
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, value...)
	return buf
}
