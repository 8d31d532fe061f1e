package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"io"
	"testing"

	"github.com/alxayo/streamcore/internal/ids"
)

func encryptFixture(t *testing.T, key ids.AudioKey, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key[:])
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	stream := cipher.NewCTR(block, initialIV[:])
	ct := make([]byte, len(plaintext))
	stream.XORKeyStream(ct, plaintext)
	return ct
}

func TestReaderDecryptsFromStart(t *testing.T) {
	var key ids.AudioKey
	for i := range key {
		key[i] = byte(i)
	}
	plaintext := bytes.Repeat([]byte("streamcore-payload-"), 10)
	ct := encryptFixture(t, key, plaintext)

	r, err := NewReader(bytes.NewReader(ct), key)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got := make([]byte, len(plaintext))
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("decrypted mismatch from start")
	}
}

func TestReaderDecryptsAfterSeek(t *testing.T) {
	var key ids.AudioKey
	for i := range key {
		key[i] = byte(i + 1)
	}
	plaintext := bytes.Repeat([]byte{0x5A}, 256)
	ct := encryptFixture(t, key, plaintext)

	src := bytes.NewReader(ct)
	r, err := NewReader(src, key)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	if _, err := r.Seek(100, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got := make([]byte, 32)
	n, err := r.Read(got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got[:n], plaintext[100:100+n]) {
		t.Fatalf("decrypted mismatch after seek")
	}
}

func TestReaderDecryptsSequentially(t *testing.T) {
	var key ids.AudioKey
	for i := range key {
		key[i] = byte(2 * i)
	}
	plaintext := bytes.Repeat([]byte{0x11, 0x22, 0x33, 0x44}, 64)
	ct := encryptFixture(t, key, plaintext)

	r, err := NewReader(bytes.NewReader(ct), key)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var out bytes.Buffer
	buf := make([]byte, 17)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Fatalf("decrypted output mismatch")
	}
}
