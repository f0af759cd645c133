package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

// TransportManager owns the send and receive transports and answers the engine's
// negotiation callbacks over the signaling channel.
type TransportManager struct {
	sig      core.Signaler
	device   core.Device
	forceTCP bool
	logger   zerolog.Logger

	mu          sync.Mutex
	send        core.SendTransport
	recv        core.RecvTransport
	created     map[core.TransportDirection]bool
	states      map[core.TransportDirection]core.TransportState
	onRecvReady func()
	onRecvLost  func()
}

var _ core.TransportNegotiator = (*TransportManager)(nil)

func NewTransportManager(sig core.Signaler, device core.Device, forceTCP bool, logger zerolog.Logger) *TransportManager {
	return &TransportManager{
		sig:      sig,
		device:   device,
		forceTCP: forceTCP,
		logger:   logger.With().Str("component", "transports").Logger(),
		created:  make(map[core.TransportDirection]bool),
		states:   make(map[core.TransportDirection]core.TransportState),
	}
}

// OnRecvReady is called once the receive transport exists.
func (m *TransportManager) OnRecvReady(fn func()) {
	m.mu.Lock()
	m.onRecvReady = fn
	m.mu.Unlock()
}

// OnRecvLost is called after a disconnected receive transport was closed.
func (m *TransportManager) OnRecvLost(fn func()) {
	m.mu.Lock()
	m.onRecvLost = fn
	m.mu.Unlock()
}

func (m *TransportManager) CreateRecv(ctx context.Context) error {
	return m.create(ctx, core.DirectionRecv)
}

func (m *TransportManager) CreateSend(ctx context.Context) error {
	return m.create(ctx, core.DirectionSend)
}

// create builds the transport for dir at most once per session; later calls only warn.
func (m *TransportManager) create(ctx context.Context, dir core.TransportDirection) error {
	m.mu.Lock()
	if m.created[dir] {
		m.mu.Unlock()
		m.logger.Warn().Str("direction", string(dir)).Msg("transport already created")
		return nil
	}
	m.created[dir] = true
	m.states[dir] = core.TransportNew
	m.mu.Unlock()

	op := fmt.Sprintf("create %s transport", dir)
	req := protocol.CreateTransportRequest{ForceTCP: m.forceTCP}
	if dir == core.DirectionSend {
		caps := m.device.RtpCapabilities()
		req.RtpCapabilities = &caps
	}
	var resp protocol.CreateTransportResponse
	if err := m.sig.Request(ctx, protocol.MethodCreateTransport, req, &resp); err != nil {
		m.forgetFailed(dir)
		return core.NewOpError(op, err, "")
	}

	var (
		t   core.Transport
		err error
	)
	switch dir {
	case core.DirectionSend:
		var st core.SendTransport
		st, err = m.device.CreateSendTransport(resp.Params, m)
		t = st
		if err == nil {
			m.mu.Lock()
			m.send = st
			m.mu.Unlock()
		}
	case core.DirectionRecv:
		var rt core.RecvTransport
		rt, err = m.device.CreateRecvTransport(resp.Params, m)
		t = rt
		if err == nil {
			m.mu.Lock()
			m.recv = rt
			m.mu.Unlock()
		}
	}
	if err != nil {
		m.forgetFailed(dir)
		return core.NewOpError(op, err, resp.Params.ID)
	}

	t.OnStateChange(func(st core.TransportState) { m.handleState(dir, t, st) })
	m.mu.Lock()
	m.states[dir] = t.State()
	ready := m.onRecvReady
	m.mu.Unlock()

	m.logger.Info().Str("direction", string(dir)).Str("transport_id", t.ID()).Msg("transport created")
	if dir == core.DirectionRecv && ready != nil {
		ready()
	}
	return nil
}

// forgetFailed keeps the at-most-once rule for transports that exist, not for failed attempts.
func (m *TransportManager) forgetFailed(dir core.TransportDirection) {
	m.mu.Lock()
	delete(m.created, dir)
	delete(m.states, dir)
	m.mu.Unlock()
}

func (m *TransportManager) handleState(dir core.TransportDirection, t core.Transport, st core.TransportState) {
	m.mu.Lock()
	m.states[dir] = st
	m.mu.Unlock()
	m.logger.Info().Str("direction", string(dir)).Str("transport_id", t.ID()).Str("state", string(st)).Msg("transport state")

	if dir == core.DirectionRecv && st.Terminal() {
		// engine callbacks may hold engine locks
		go m.closeRecv(t)
	}
}

func (m *TransportManager) closeRecv(t core.Transport) {
	m.mu.Lock()
	if m.recv == nil || m.recv.ID() != t.ID() {
		m.mu.Unlock()
		return
	}
	m.recv = nil
	m.states[core.DirectionRecv] = core.TransportClosed
	lost := m.onRecvLost
	m.mu.Unlock()

	if err := t.Close(); err != nil {
		m.logger.Warn().Err(err).Str("transport_id", t.ID()).Msg("close receive transport")
	}
	if lost != nil {
		lost()
	}
}

func (m *TransportManager) Send() (core.SendTransport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.send == nil {
		return nil, core.NewOpError("send transport", core.ErrTransportNotReady, "")
	}
	return m.send, nil
}

func (m *TransportManager) Recv() (core.RecvTransport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recv == nil {
		return nil, core.NewOpError("receive transport", core.ErrTransportNotReady, "")
	}
	return m.recv, nil
}

func (m *TransportManager) State(dir core.TransportDirection) core.TransportState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[dir]
}

func (m *TransportManager) Close() error {
	m.mu.Lock()
	send, recv := m.send, m.recv
	m.send, m.recv = nil, nil
	for dir := range m.states {
		m.states[dir] = core.TransportClosed
	}
	m.mu.Unlock()

	var errs []error
	if send != nil {
		if err := send.Close(); err != nil {
			errs = append(errs, core.NewOpError("close send transport", err, send.ID()))
		}
	}
	if recv != nil {
		if err := recv.Close(); err != nil {
			errs = append(errs, core.NewOpError("close receive transport", err, recv.ID()))
		}
	}
	return errors.Join(errs...)
}

func (m *TransportManager) OnConnectNegotiation(ctx context.Context, transportID string, params protocol.ConnectParameters) error {
	req := protocol.ConnectTransportRequest{TransportID: transportID, ConnectParameters: params}
	if err := m.sig.Request(ctx, protocol.MethodConnectTransport, req, nil); err != nil {
		return negotiationError("connect transport", transportID, err)
	}
	m.logger.Debug().Str("transport_id", transportID).Msg("transport connect negotiated")
	return nil
}

func (m *TransportManager) OnProduceNegotiation(ctx context.Context, transportID string, kind domain.MediaKind, rtp protocol.RtpParameters) (domain.ProducerID, error) {
	req := protocol.ProduceRequest{ProducerTransportID: transportID, Kind: kind, RtpParameters: rtp}
	var resp protocol.ProduceResponse
	if err := m.sig.Request(ctx, protocol.MethodProduce, req, &resp); err != nil {
		return "", negotiationError("produce", transportID, err)
	}
	if resp.ProducerID == "" {
		return "", core.NewOpError("produce", core.ErrNegotiationRejected, "empty producer id")
	}
	return resp.ProducerID, nil
}

// negotiationError marks server refusals as rejected negotiation and keeps the rest as is.
func negotiationError(op, details string, err error) error {
	var remote *core.RemoteError
	if errors.As(err, &remote) {
		return core.NewOpError(op, fmt.Errorf("%w: %w", core.ErrNegotiationRejected, err), details)
	}
	return core.NewOpError(op, err, details)
}
