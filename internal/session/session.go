// Package session owns the TCP connection to an access point: it drives the
// handshake, runs the Shannon-codec read/write loop, and routes inbound
// frames to the Mercury and AudioKey dispatchers (or handles them directly,
// for PING/PONG and login).
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alxayo/streamcore/internal/apcodec"
	"github.com/alxayo/streamcore/internal/audiokey"
	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/handshake"
	"github.com/alxayo/streamcore/internal/logger"
	"github.com/alxayo/streamcore/internal/mercury"
)

// State represents the lifecycle state of an access-point session.
type State uint8

const (
	StateUninitialized State = iota
	StateHandshaking
	StateAuthenticating
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateHandshaking:
		return "Handshaking"
	case StateAuthenticating:
		return "Authenticating"
	case StateReady:
		return "Ready"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

const frameTimeout = 10 * time.Second

// Credentials authenticates a LOGIN request.
type Credentials struct {
	Username string
	AuthData []byte
	AuthType uint32
}

// Session represents an authenticated connection to an access point.
type Session struct {
	id      string
	netConn net.Conn
	log     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex
	writer  *apcodec.Writer
	reader  *apcodec.Reader

	mercury  *mercury.Dispatcher
	audiokey *audiokey.Dispatcher

	state atomic.Uint32

	countryCodeMu sync.Mutex
	countryCode   string

	welcomeCh chan welcomeResult
}

type welcomeResult struct {
	countryCode string
	err         error
}

var sessionCounter uint64

func nextID() string { return fmt.Sprintf("s%06d", atomic.AddUint64(&sessionCounter, 1)) }

// Dial connects to addr, completes the Diffie-Hellman handshake, logs in
// with creds, and starts the session's read loop.
func Dial(ctx context.Context, addr string, creds Credentials) (*Session, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, rerrors.NewSessionDisconnectedError("session.dial", err)
	}

	start := time.Now()
	keys, err := handshake.ClientHandshake(raw)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	dur := time.Since(start)

	id := nextID()
	lgr := logger.WithConn(logger.Logger(), id, raw.RemoteAddr().String())
	lgr.Infow("handshake completed", "duration_ms", dur.Milliseconds())

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:        id,
		netConn:   raw,
		log:       lgr,
		ctx:       sctx,
		cancel:    cancel,
		writer:    apcodec.NewWriter(raw, keys.SendKey, frameTimeout),
		reader:    apcodec.NewReader(raw, keys.RecvKey, 0),
		welcomeCh: make(chan welcomeResult, 1),
	}
	s.mercury = mercury.NewDispatcher(s.SendFrame)
	s.audiokey = audiokey.NewDispatcher(s.SendFrame)
	s.state.Store(uint32(StateAuthenticating))

	s.startReadLoop()

	if err := s.login(creds); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.state.Store(uint32(StateReady))
	return s, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Mercury returns the session's Mercury RPC dispatcher.
func (s *Session) Mercury() *mercury.Dispatcher { return s.mercury }

// AudioKey returns the session's AES key dispatcher.
func (s *Session) AudioKey() *audiokey.Dispatcher { return s.audiokey }

// CountryCode returns the account's country code, if the access point has
// sent one yet.
func (s *Session) CountryCode() string {
	s.countryCodeMu.Lock()
	defer s.countryCodeMu.Unlock()
	return s.countryCode
}

// SendFrame transmits a single frame. Safe for concurrent use (the
// underlying apcodec.Writer is not, so callers are serialized by a mutex).
func (s *Session) SendFrame(f apcodec.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writer.WriteFrame(f)
}

// Close tears down the connection and fails every pending Mercury/AudioKey request.
func (s *Session) Close() error {
	s.state.Store(uint32(StateDisconnected))
	if s.cancel != nil {
		s.cancel()
	}
	err := s.netConn.Close()
	s.wg.Wait()
	s.mercury.Close()
	s.audiokey.Close()
	return err
}

func (s *Session) startReadLoop() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			f, err := s.reader.ReadFrame()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
					s.log.Debugw("read loop closed", "error", err)
				} else {
					s.log.Errorw("read loop error", "error", err)
				}
				return
			}
			s.dispatch(f)
		}
	}()
}

func (s *Session) dispatch(f apcodec.Frame) {
	switch f.Cmd {
	case apcodec.CmdPing:
		if err := s.SendFrame(apcodec.Frame{Cmd: apcodec.CmdPong, Payload: f.Payload}); err != nil {
			s.log.Warnw("failed to reply to ping", "error", err)
		}
	case apcodec.CmdCountryCode:
		s.countryCodeMu.Lock()
		s.countryCode = string(f.Payload)
		s.countryCodeMu.Unlock()
	case apcodec.CmdAPWelcome:
		s.welcomeCh <- welcomeResult{countryCode: s.CountryCode()}
	case apcodec.CmdAuthFailure:
		code := uint32(0)
		if len(f.Payload) >= 1 {
			code = uint32(f.Payload[0])
		}
		s.welcomeCh <- welcomeResult{err: rerrors.NewAuthFailedError(code)}
	case apcodec.CmdMercuryReq, apcodec.CmdMercuryPub:
		if err := s.mercury.HandleFrame(f); err != nil {
			s.log.Warnw("mercury dispatch error", "error", err)
		}
	case apcodec.CmdAesKey, apcodec.CmdAesKeyError:
		if err := s.audiokey.HandleFrame(f); err != nil {
			s.log.Warnw("audiokey dispatch error", "error", err)
		}
	default:
		s.log.Debugw("unhandled frame", "cmd", f.Cmd, "len", len(f.Payload))
	}
}

func (s *Session) login(creds Credentials) error {
	payload := encodeLoginPayload(creds)
	if err := s.SendFrame(apcodec.Frame{Cmd: apcodec.CmdLogin, Payload: payload}); err != nil {
		return rerrors.NewSessionDisconnectedError("session.login", err)
	}
	select {
	case res := <-s.welcomeCh:
		return res.err
	case <-time.After(15 * time.Second):
		return rerrors.NewTimeoutError("session.login", 15*time.Second, nil)
	case <-s.ctx.Done():
		return rerrors.NewSessionDisconnectedError("session.login", s.ctx.Err())
	}
}
