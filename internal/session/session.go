// Package session manages one charge point's WebSocket connection to a
// CSMS: dialing, the receive loop, outbound call correlation with timeout
// eviction, and the send-side of the OCPP-J envelope.
package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/config"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/dispatch"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/metrics"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/vcperr"
)

const subprotocol = "ocpp1.6"

// DefaultCallTimeout is how long Call waits for a CallResult/CallError
// before treating the outstanding call as timed out.
const DefaultCallTimeout = 120 * time.Second

// Options configures a Session at construction.
type Options struct {
	Endpoint      string // base CSMS URL, charge point ID is appended
	ChargePointID string
	Registry      *dispatch.Registry
	TLS           *config.TLSConfig
	CallTimeout   time.Duration
	Logger        zerolog.Logger

	// OnClose fires once the read loop exits, for any reason.
	OnClose func(err error)
}

// Session is one charge point's live (or not-yet-dialed) connection.
type Session struct {
	opts Options
	log  zerolog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]*pendingEntry

	closeOnce sync.Once
	stopCh    chan struct{}
}

type pendingEntry struct {
	call  *dispatch.PendingCall
	timer *time.Timer
}

// New builds a Session that is not yet connected.
func New(opts Options) *Session {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Session{
		opts:    opts,
		log:     opts.Logger,
		pending: make(map[string]*pendingEntry),
		stopCh:  make(chan struct{}),
	}
}

// Connect dials the CSMS and starts the background receive loop. It
// returns once the WebSocket handshake completes; the receive loop runs
// until the connection closes.
func (s *Session) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Subprotocols:     []string{subprotocol},
		HandshakeTimeout: 30 * time.Second,
	}

	if s.opts.TLS != nil {
		tlsCfg, err := buildTLSConfig(s.opts.TLS)
		if err != nil {
			return vcperr.Wrap(vcperr.ConnectFailure, "failed to build TLS config", err)
		}
		dialer.TLSClientConfig = tlsCfg
	}

	url := s.opts.Endpoint + "/" + s.opts.ChargePointID
	conn, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		detail := ""
		if resp != nil {
			detail = fmt.Sprintf(" (HTTP %d)", resp.StatusCode)
		}
		return vcperr.Wrap(vcperr.ConnectFailure, "failed to connect to CSMS"+detail, err)
	}

	s.conn = conn
	metrics.ActiveSessions.Inc()
	go s.receiveLoop()
	return nil
}

func buildTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.SkipVerify}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates found in CA file")
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}

func (s *Session) receiveLoop() {
	var exitErr error
	defer func() {
		metrics.ActiveSessions.Dec()
		s.failAllPending(vcperr.Wrap(vcperr.TransportClosed, "session closed", exitErr))
		if s.opts.OnClose != nil {
			s.opts.OnClose(exitErr)
		}
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if err != io.EOF && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Msg("websocket read error")
				exitErr = err
			}
			return
		}

		s.log.Debug().Bytes("frame", data).Msg("received frame")

		frame, err := ocpp16.ParseFrame(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to parse frame")
			var fe *ocpp16.FrameError
			if errors.As(err, &fe) && fe.MessageID != "" {
				_ = s.SendCallError(fe.MessageID, fe.Code, fe.Error(), nil)
			}
			continue
		}

		go dispatch.HandleFrame(s.opts.Registry, sessionAdapter{s}, frame)
	}
}

// Call sends a Call frame and blocks until a matching CallResult/CallError
// arrives or the call times out.
func (s *Session) Call(ctx context.Context, action string, req interface{}) (interface{}, error) {
	messageID := ocpp16.NewMessageID()
	data, err := ocpp16.MarshalCall(messageID, action, req)
	if err != nil {
		return nil, vcperr.Wrap(vcperr.ProtocolFraming, "failed to marshal call", err)
	}

	type outcome struct {
		resp interface{}
		err  *vcperr.VCPError
	}
	done := make(chan outcome, 1)

	entry := &pendingEntry{
		call: &dispatch.PendingCall{
			Action:  action,
			Request: req,
			Complete: func(resp interface{}, callErr *vcperr.VCPError) {
				done <- outcome{resp: resp, err: callErr}
			},
		},
	}
	entry.timer = time.AfterFunc(s.opts.CallTimeout, func() {
		s.pendingMu.Lock()
		_, ok := s.pending[messageID]
		if ok {
			delete(s.pending, messageID)
		}
		s.pendingMu.Unlock()
		if !ok {
			return // response won the race, its outcome is already queued
		}
		done <- outcome{err: vcperr.New(vcperr.CallTimeout, "no response for "+action+" within "+s.opts.CallTimeout.String())}
	})

	s.pendingMu.Lock()
	s.pending[messageID] = entry
	s.pendingMu.Unlock()

	start := time.Now()
	if err := s.writeRaw(data); err != nil {
		s.pendingMu.Lock()
		delete(s.pending, messageID)
		s.pendingMu.Unlock()
		entry.timer.Stop()
		return nil, vcperr.Wrap(vcperr.TransportClosed, "failed to send call", err)
	}
	metrics.CallsSent.WithLabelValues(action).Inc()

	select {
	case out := <-done:
		entry.timer.Stop()
		metrics.CallDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
		if out.err != nil {
			if out.err.Code != "" {
				metrics.CallErrors.WithLabelValues(out.err.Code).Inc()
			}
			return nil, out.err
		}
		return out.resp, nil
	case <-ctx.Done():
		entry.timer.Stop()
		s.pendingMu.Lock()
		delete(s.pending, messageID)
		s.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// SendCallResult marshals and sends a CallResult frame.
func (s *Session) SendCallResult(messageID string, payload interface{}) error {
	data, err := ocpp16.MarshalCallResult(messageID, payload)
	if err != nil {
		return vcperr.Wrap(vcperr.ProtocolFraming, "failed to marshal call result", err)
	}
	return s.writeRaw(data)
}

// SendCallError marshals and sends a CallError frame.
func (s *Session) SendCallError(messageID string, code ocpp16.ErrorCode, description string, details interface{}) error {
	data, err := ocpp16.MarshalCallError(messageID, code, description, details)
	if err != nil {
		return vcperr.Wrap(vcperr.ProtocolFraming, "failed to marshal call error", err)
	}
	metrics.CallErrors.WithLabelValues(string(code)).Inc()
	return s.writeRaw(data)
}

// TakePending removes and returns the pending call for messageID, if any.
func (s *Session) TakePending(messageID string) (*dispatch.PendingCall, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	entry, ok := s.pending[messageID]
	if !ok {
		return nil, false
	}
	delete(s.pending, messageID)
	entry.timer.Stop()
	return entry.call, true
}

func (s *Session) failAllPending(err *vcperr.VCPError) {
	s.pendingMu.Lock()
	entries := s.pending
	s.pending = make(map[string]*pendingEntry)
	s.pendingMu.Unlock()

	for _, entry := range entries {
		entry.timer.Stop()
		entry.call.Complete(nil, err)
	}
}

func (s *Session) writeRaw(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session not connected")
	}
	s.log.Debug().Bytes("frame", data).Msg("sending frame")
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection, triggering the receive loop's
// OnClose callback.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		if s.conn != nil {
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			err = s.conn.Close()
		}
	})
	return err
}

// sessionAdapter lets dispatch.HandleFrame address *Session through the
// narrow dispatch.Session interface without exposing Call/Connect/Close to
// handlers.
type sessionAdapter struct{ s *Session }

func (a sessionAdapter) SendCallResult(messageID string, payload interface{}) error {
	return a.s.SendCallResult(messageID, payload)
}

func (a sessionAdapter) SendCallError(messageID string, code ocpp16.ErrorCode, description string, details interface{}) error {
	return a.s.SendCallError(messageID, code, description, details)
}

func (a sessionAdapter) TakePending(messageID string) (*dispatch.PendingCall, bool) {
	return a.s.TakePending(messageID)
}
