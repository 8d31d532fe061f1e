package handshake

import (
	"crypto/hmac"
	"crypto/sha1"
)

// deriveKeyMaterial runs the access-point key schedule: five HMAC-SHA1
// blocks keyed by the DH shared secret, each computed over
// clientHello||apResponse||counter, concatenated into a 100-byte pad that
// is then split into a completion MAC key and the two Shannon cipher keys.
func deriveKeyMaterial(sharedSecret, clientHello, apResponse []byte) []byte {
	var out []byte
	for i := byte(1); i <= 5; i++ {
		mac := hmac.New(sha1.New, sharedSecret)
		mac.Write(clientHello)
		mac.Write(apResponse)
		mac.Write([]byte{i})
		out = append(out, mac.Sum(nil)...)
	}
	return out
}

// hmacChallenge computes the handshake completion MAC sent back to the
// access point to prove possession of the derived key material.
func hmacChallenge(macKey, clientHello, apResponse []byte) []byte {
	mac := hmac.New(sha1.New, macKey)
	mac.Write(clientHello)
	mac.Write(apResponse)
	return mac.Sum(nil)
}
