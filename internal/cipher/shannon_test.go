package cipher

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("a shared session send key......")
	enc := New(key)
	dec := New(key)

	enc.Nonce(0)
	dec.Nonce(0)

	plain := []byte("PING this is a test frame payload")
	buf := append([]byte(nil), plain...)

	enc.Encrypt(buf)
	if bytes.Equal(buf, plain) {
		t.Fatalf("encrypted buffer should differ from plaintext")
	}

	var mac [4]byte
	enc.Finish(mac[:])

	dec.Decrypt(buf)
	if !bytes.Equal(buf, plain) {
		t.Fatalf("decrypted buffer does not match original plaintext")
	}
	if !dec.CheckMAC(mac[:]) {
		t.Fatalf("receiver MAC did not validate sender MAC")
	}
}

func TestNonceReseedsIndependently(t *testing.T) {
	key := []byte("another-shared-key-material-____")
	a := New(key)
	b := New(key)

	a.Nonce(5)
	b.Nonce(5)

	bufA := []byte("identical nonce should produce identical keystream")
	bufB := append([]byte(nil), bufA...)

	a.Encrypt(bufA)
	b.Encrypt(bufB)
	if !bytes.Equal(bufA, bufB) {
		t.Fatalf("same key+nonce must yield identical ciphertext")
	}

	c := New(key)
	c.Nonce(6)
	bufC := append([]byte(nil), []byte("identical nonce should produce identical keystream")...)
	c.Encrypt(bufC)
	if bytes.Equal(bufA, bufC) {
		t.Fatalf("different nonce must yield different ciphertext")
	}
}

func TestCheckMACRejectsTamperedFrame(t *testing.T) {
	key := []byte("yet-another-session-key-material")
	enc := New(key)
	dec := New(key)
	enc.Nonce(1)
	dec.Nonce(1)

	buf := []byte("tamper me")
	enc.Encrypt(buf)
	var mac [4]byte
	enc.Finish(mac[:])

	dec.Decrypt(buf)
	mac[0] ^= 0xFF
	if dec.CheckMAC(mac[:]) {
		t.Fatalf("expected tampered MAC to fail validation")
	}
}
