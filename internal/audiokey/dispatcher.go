// Package audiokey implements the AES key request/response multiplexer:
// a simpler, single-shot sibling of the Mercury dispatcher with no
// PARTIAL/FINAL stitching, since an AUDIO_KEY request always gets exactly
// one AES_KEY or AES_KEY_ERROR reply.
package audiokey

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alxayo/streamcore/internal/apcodec"
	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/logger"
)

// SendFunc transmits a single access-point frame.
type SendFunc func(apcodec.Frame) error

// Dispatcher multiplexes REQUEST_KEY requests over a single access-point
// connection, keyed by a locally-assigned sequence number. Safe for
// concurrent use.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[uint32]chan keyResult
	nextSeq uint32

	send SendFunc
}

type keyResult struct {
	key ids.AudioKey
	err error
}

// NewDispatcher builds a Dispatcher that transmits requests via send.
func NewDispatcher(send SendFunc) *Dispatcher {
	return &Dispatcher{pending: make(map[uint32]chan keyResult), send: send}
}

// RequestKey asks the access point for the AES key that decrypts file,
// belonging to item, and blocks for the reply.
func (d *Dispatcher) RequestKey(ctx context.Context, item ids.ItemId, file ids.FileId) (ids.AudioKey, error) {
	seq := atomic.AddUint32(&d.nextSeq, 1)
	ch := make(chan keyResult, 1)

	d.mu.Lock()
	d.pending[seq] = ch
	d.mu.Unlock()

	payload := make([]byte, 0, len(file)+len(item.Raw())+4)
	payload = append(payload, file[:]...)
	payload = append(payload, item.Raw()...)
	var seqBuf [4]byte
	binary.BigEndian.PutUint32(seqBuf[:], seq)
	payload = append(payload, seqBuf[:]...)
	// Two trailing zero bytes match the access point's fixed request tail
	// (an unused "unknown" field in every known client implementation).
	payload = append(payload, 0x00, 0x00)

	if err := d.send(apcodec.Frame{Cmd: apcodec.CmdRequestKey, Payload: payload}); err != nil {
		d.drop(seq)
		return ids.AudioKey{}, rerrors.NewSessionDisconnectedError("audiokey.request", err)
	}

	select {
	case res := <-ch:
		return res.key, res.err
	case <-ctx.Done():
		d.drop(seq)
		return ids.AudioKey{}, ctx.Err()
	}
}

func (d *Dispatcher) drop(seq uint32) {
	d.mu.Lock()
	delete(d.pending, seq)
	d.mu.Unlock()
}

// HandleFrame routes an inbound AES_KEY or AES_KEY_ERROR frame to its
// pending request. Unmatched frames are logged and ignored.
func (d *Dispatcher) HandleFrame(f apcodec.Frame) error {
	switch f.Cmd {
	case apcodec.CmdAesKey:
		if len(f.Payload) < 4+16 {
			return rerrors.NewUnexpectedResponseError("audiokey.handle_frame", fmt.Errorf("short AES_KEY payload: %d bytes", len(f.Payload)))
		}
		seq := binary.BigEndian.Uint32(f.Payload[:4])
		var key ids.AudioKey
		copy(key[:], f.Payload[4:20])
		d.deliver(seq, keyResult{key: key})
		return nil
	case apcodec.CmdAesKeyError:
		if len(f.Payload) < 4+2 {
			return rerrors.NewUnexpectedResponseError("audiokey.handle_frame", fmt.Errorf("short AES_KEY_ERROR payload: %d bytes", len(f.Payload)))
		}
		seq := binary.BigEndian.Uint32(f.Payload[:4])
		code := binary.BigEndian.Uint16(f.Payload[4:6])
		d.deliver(seq, keyResult{err: fmt.Errorf("audiokey: access point returned error code %d", code)})
		return nil
	default:
		return rerrors.NewUnexpectedResponseError("audiokey.handle_frame", fmt.Errorf("unexpected cmd 0x%02x", f.Cmd))
	}
}

func (d *Dispatcher) deliver(seq uint32, res keyResult) {
	d.mu.Lock()
	ch, ok := d.pending[seq]
	if ok {
		delete(d.pending, seq)
	}
	d.mu.Unlock()
	if !ok {
		logger.Logger().Warnw("audiokey: unmatched response", "seq", seq)
		return
	}
	ch <- res
}

// Close fails every pending request with a disconnection error.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[uint32]chan keyResult)
	d.mu.Unlock()

	for _, ch := range pending {
		ch <- keyResult{err: rerrors.NewSessionDisconnectedError("audiokey.close", nil)}
	}
}
