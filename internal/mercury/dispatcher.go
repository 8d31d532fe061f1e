// Package mercury implements the Mercury RPC multiplexer: a
// sequence-numbered request/response protocol carried over MERCURY_REQ
// frames, supporting PARTIAL/FINAL-flagged multi-frame responses.
package mercury

// Grounded on internal/rtmp/rpc/dispatcher.go's Dispatcher: a mutex-guarded
// pending-request map keyed by an opaque id, with "unmatched response
// logged and ignored" as the default for anything that doesn't match a
// live request.

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alxayo/streamcore/internal/apcodec"
	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/logger"
	"github.com/alxayo/streamcore/internal/protocol"
)

// Response is the fully reassembled result of a Mercury request: a header
// plus all aggregated payload parts across every PARTIAL/FINAL frame.
type Response struct {
	Header protocol.MercuryHeader
	Parts  []protocol.MercuryPart
}

// SendFunc transmits a single access-point frame. Supplied by the owning
// session so the dispatcher never touches the network directly.
type SendFunc func(apcodec.Frame) error

// Dispatcher multiplexes Mercury requests over a single access-point
// connection. Safe for concurrent use.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[uint64]*pendingCall
	nextSeq uint64

	send SendFunc
}

type pendingCall struct {
	resultCh chan callResult
	// rawParts accumulates every part seen so far across a run of PARTIAL
	// frames, stitched as described on protocol.MercuryPacket: the last
	// entry here may still be incomplete until the next frame's first
	// part is appended to it. rawParts[0] is only decoded as the header
	// once the FINAL frame arrives.
	rawParts []protocol.MercuryPart
}

// appendParts folds in the raw parts of one more frame belonging to this
// call, concatenating the frame's first part onto whatever was left
// dangling from the previous frame.
func (c *pendingCall) appendParts(parts []protocol.MercuryPart) {
	if len(c.rawParts) > 0 && len(parts) > 0 {
		last := len(c.rawParts) - 1
		stitched := append(protocol.MercuryPart{}, c.rawParts[last]...)
		stitched = append(stitched, parts[0]...)
		c.rawParts[last] = stitched
		parts = parts[1:]
	}
	c.rawParts = append(c.rawParts, parts...)
}

// finish decodes the accumulated parts into a Response once the FINAL
// frame has arrived and no further stitching will occur.
func (c *pendingCall) finish() (Response, error) {
	if len(c.rawParts) == 0 {
		return Response{}, rerrors.NewUnexpectedResponseError("mercury.finish", fmt.Errorf("no parts received"))
	}
	header, err := protocol.DecodeMercuryHeader(c.rawParts[0])
	if err != nil {
		return Response{}, err
	}
	return Response{Header: header, Parts: c.rawParts[1:]}, nil
}

type callResult struct {
	resp Response
	err  error
}

// NewDispatcher builds a Dispatcher that transmits requests via send.
func NewDispatcher(send SendFunc) *Dispatcher {
	return &Dispatcher{pending: make(map[uint64]*pendingCall), send: send}
}

// Request issues a Mercury request and blocks until the final response
// part arrives, the context is cancelled, or the dispatcher is closed.
func (d *Dispatcher) Request(ctx context.Context, method, uri string, parts []protocol.MercuryPart) (Response, error) {
	seq := atomic.AddUint64(&d.nextSeq, 1)
	call := &pendingCall{resultCh: make(chan callResult, 1)}

	d.mu.Lock()
	d.pending[seq] = call
	d.mu.Unlock()

	payload, err := protocol.WriteMercuryPacket(seq, 8, protocol.MercuryFlagFinal, protocol.MercuryHeader{
		URI: uri, Method: method,
	}, parts)
	if err != nil {
		d.drop(seq)
		return Response{}, err
	}
	if err := d.send(apcodec.Frame{Cmd: apcodec.CmdMercuryReq, Payload: payload}); err != nil {
		d.drop(seq)
		return Response{}, rerrors.NewSessionDisconnectedError("mercury.request", err)
	}

	select {
	case res := <-call.resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		d.drop(seq)
		return Response{}, ctx.Err()
	}
}

func (d *Dispatcher) drop(seq uint64) {
	d.mu.Lock()
	delete(d.pending, seq)
	d.mu.Unlock()
}

// HandleFrame routes an inbound MERCURY_REQ frame to the pending call with
// a matching sequence number, aggregating its parts and, once the FINAL
// flag is set, delivering the completed Response. Frames with no matching
// pending call are logged and ignored, matching the teacher dispatcher's
// "unknown command" handling.
func (d *Dispatcher) HandleFrame(f apcodec.Frame) error {
	if f.Cmd != apcodec.CmdMercuryReq && f.Cmd != apcodec.CmdMercuryPub {
		return rerrors.NewUnexpectedResponseError("mercury.handle_frame", fmt.Errorf("unexpected cmd 0x%02x", f.Cmd))
	}
	pkt, err := protocol.ReadMercuryPacket(f.Payload)
	if err != nil {
		return err
	}

	d.mu.Lock()
	call, ok := d.pending[pkt.Seq]
	d.mu.Unlock()
	if !ok {
		logger.Logger().Warnw("mercury: unmatched response", "seq", pkt.Seq)
		return nil
	}

	call.appendParts(pkt.Parts)

	if pkt.Flags&protocol.MercuryFlagFinal != 0 {
		d.drop(pkt.Seq)
		resp, err := call.finish()
		call.resultCh <- callResult{resp: resp, err: err}
	}
	return nil
}

// Close fails every pending request with a disconnection error. Called by
// the owning session when the connection is torn down.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[uint64]*pendingCall)
	d.mu.Unlock()

	for _, call := range pending {
		call.resultCh <- callResult{err: rerrors.NewSessionDisconnectedError("mercury.close", nil)}
	}
}
