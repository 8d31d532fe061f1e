// Package decrypt implements the AES-128-CTR seekable decryption layer that
// sits between storage.Reader (raw encrypted bytes from CDN or cache) and
// the format decoders.
package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"io"

	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/ids"
)

// initialIV is the fixed counter seed every encoded file uses; CTR mode
// then advances the counter by the number of 16-byte blocks consumed.
var initialIV = [aes.BlockSize]byte{
	0x72, 0xe0, 0x67, 0xfb, 0xdd, 0xcb, 0xcf, 0x77,
	0xeb, 0xe8, 0xbc, 0x64, 0x3f, 0x63, 0x0d, 0x93,
}

// Reader decrypts an AES-128-CTR encoded stream on the fly. It wraps an
// io.ReadSeeker of ciphertext and presents the same interface over
// plaintext, re-deriving the counter block on every seek so random access
// works without re-reading from the start.
type Reader struct {
	src   io.ReadSeeker
	block cipher.Block
	pos   int64
}

// NewReader builds a decrypting Reader over src using key.
func NewReader(src io.ReadSeeker, key ids.AudioKey) (*Reader, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, rerrors.NewAudioDecodingError("decrypt.new_reader", err)
	}
	return &Reader{src: src, block: block}, nil
}

// Read decrypts the next len(p) bytes of plaintext.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		stream := cipher.NewCTR(r.block, ivForOffset(r.pos))
		if skip := int(r.pos % aes.BlockSize); skip > 0 {
			stream.XORKeyStream(make([]byte, skip), make([]byte, skip))
		}
		stream.XORKeyStream(p[:n], p[:n])
		r.pos += int64(n)
	}
	return n, err
}

// Seek repositions both the plaintext cursor and the underlying ciphertext
// stream; the CTR counter is re-derived from the new offset on the next Read.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.src.Seek(offset, whence)
	if err != nil {
		return 0, rerrors.NewAudioDecodingError("decrypt.seek", err)
	}
	r.pos = pos
	return pos, nil
}

var _ io.ReadSeeker = (*Reader)(nil)

// ivForOffset computes the CTR counter block for the given absolute
// plaintext byte offset: the fixed initialIV treated as a 128-bit
// big-endian integer, advanced by offset/16 blocks.
func ivForOffset(offset int64) []byte {
	blockIndex := offset / aes.BlockSize
	iv := initialIV
	carry := uint64(blockIndex)
	for i := len(iv) - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(iv[i]) + carry
		iv[i] = byte(sum)
		carry = sum >> 8
	}
	return iv[:]
}
