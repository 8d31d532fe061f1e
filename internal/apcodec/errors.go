package apcodec

import "fmt"

var errBadMAC = fmt.Errorf("apcodec: mac mismatch")

func errPayloadTooLarge(n int) error {
	return fmt.Errorf("apcodec: payload of %d bytes exceeds max %d", n, MaxPayload)
}
