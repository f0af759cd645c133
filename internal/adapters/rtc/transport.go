package rtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

var (
	ErrWrongDirection  = errors.New("operation not supported on this transport direction")
	ErrTransportClosed = errors.New("transport closed")
)

// negotiateTimeout bounds gathering plus the CONNECT_TRANSPORT round trip.
const negotiateTimeout = 20 * time.Second

// PionTrack is a local track backed by a pion TrackLocal.
type PionTrack interface {
	core.LocalTrack
	TrackLocal() webrtc.TrackLocal
}

// Transport is one direction of the client's media path. The ICE/DTLS
// handshake runs on first Produce or Consume.
type Transport struct {
	id     string
	dir    core.TransportDirection
	api    *webrtc.API
	stack  *stack
	remote protocol.TransportParams
	caps   protocol.RtpCapabilities
	neg    core.TransportNegotiator
	logger zerolog.Logger

	// ctx lives as long as the transport; the handshake runs under it.
	ctx         context.Context
	cancel      context.CancelFunc
	connectOnce sync.Once
	done        chan struct{}
	connErr     error

	mu        sync.Mutex
	state     core.TransportState
	onState   func(core.TransportState)
	closed    bool
	producers map[domain.ProducerID]*Producer
	consumers map[string]*Consumer
}

func newTransport(api *webrtc.API, st *stack, remote protocol.TransportParams, dir core.TransportDirection, caps protocol.RtpCapabilities, neg core.TransportNegotiator) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		ctx:       ctx,
		cancel:    cancel,
		id:        remote.ID,
		dir:       dir,
		api:       api,
		stack:     st,
		remote:    remote,
		caps:      caps,
		neg:       neg,
		done:      make(chan struct{}),
		state:     core.TransportNew,
		producers: make(map[domain.ProducerID]*Producer),
		consumers: make(map[string]*Consumer),
		logger: log.With().
			Str("module", "rtc.transport").
			Str("transport_id", remote.ID).
			Str("direction", string(dir)).
			Logger(),
	}
	st.ice.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		t.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if mapped, ok := iceState(s); ok {
			t.setState(mapped)
		}
	})
	st.dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
		t.logger.Info().Str("dtls_state", s.String()).Msg("DTLS state")
		if mapped, ok := dtlsState(s); ok {
			t.setState(mapped)
		}
	})
	return t
}

func (t *Transport) ID() string                         { return t.id }
func (t *Transport) Direction() core.TransportDirection { return t.dir }

func (t *Transport) State() core.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) OnStateChange(fn func(core.TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = fn
}

func (t *Transport) setState(s core.TransportState) {
	t.mu.Lock()
	if t.state == s || t.state == core.TransportClosed {
		t.mu.Unlock()
		return
	}
	t.state = s
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// connect starts the handshake once and waits for its outcome. A caller giving up
// does not abort the handshake for later callers.
func (t *Transport) connect(ctx context.Context) error {
	t.connectOnce.Do(func() { go t.handshake() })
	select {
	case <-t.done:
		return t.connErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) handshake() {
	ctx, cancel := context.WithTimeout(t.ctx, negotiateTimeout)
	err := t.negotiate(ctx)
	cancel()
	if err != nil {
		t.finish(err)
		return
	}
	remoteDTLS := toDTLSParameters(t.remote.DtlsParameters)
	// The server side is always the DTLS server.
	remoteDTLS.Role = webrtc.DTLSRoleServer
	t.finish(t.stack.start(t.remote.IceParameters, t.remote.IceCandidates, webrtc.ICERoleControlling, remoteDTLS))
}

func (t *Transport) negotiate(ctx context.Context) error {
	t.setState(core.TransportConnecting)
	if err := t.stack.gather(ctx); err != nil {
		return err
	}
	local, err := t.stack.local()
	if err != nil {
		return err
	}
	local.dtls.Role = "client"
	return t.neg.OnConnectNegotiation(ctx, t.id, protocol.ConnectParameters{
		DtlsParameters: local.dtls,
		IceParameters:  &local.ice,
		IceCandidates:  local.candidates,
	})
}

func (t *Transport) finish(err error) {
	t.connErr = err
	close(t.done)
	if err != nil {
		t.logger.Error().Err(err).Msg("transport connect failed")
		t.setState(core.TransportFailed)
	}
}

func (t *Transport) Produce(ctx context.Context, track core.LocalTrack) (core.Producer, error) {
	if t.dir != core.DirectionSend {
		return nil, ErrWrongDirection
	}
	pt, ok := track.(PionTrack)
	if !ok {
		return nil, fmt.Errorf("track %s is not backed by a pion track", track.ID())
	}
	if t.isClosed() {
		return nil, ErrTransportClosed
	}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	sender, err := t.api.NewRTPSender(pt.TrackLocal(), t.stack.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w", err)
	}
	params := sender.GetParameters()
	rtpParams := t.sendParameters(track.Kind(), params)
	if len(rtpParams.Codecs) == 0 {
		_ = sender.Stop()
		return nil, fmt.Errorf("no %s codec loaded", track.Kind())
	}

	id, err := t.neg.OnProduceNegotiation(ctx, t.id, track.Kind(), rtpParams)
	if err != nil {
		_ = sender.Stop()
		return nil, err
	}
	if err := sender.Send(params); err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("rtp send: %w", err)
	}
	go drainRTCP(sender)

	p := &Producer{id: id, kind: track.Kind(), sender: sender, transport: t}
	t.mu.Lock()
	t.producers[id] = p
	t.mu.Unlock()
	t.logger.Info().Str("producer_id", string(id)).Str("kind", string(track.Kind())).Msg("producing")
	return p, nil
}

// sendParameters describes what the sender will emit, limited to the loaded codecs of kind.
func (t *Transport) sendParameters(kind domain.MediaKind, params webrtc.RTPSendParameters) protocol.RtpParameters {
	loaded := lo.Filter(t.caps.Codecs, func(c protocol.RtpCodecCapability, _ int) bool { return c.Kind == kind })
	codecs := lo.Filter(params.Codecs, func(c webrtc.RTPCodecParameters, _ int) bool {
		return lo.ContainsBy(loaded, func(l protocol.RtpCodecCapability) bool {
			return strings.EqualFold(l.MimeType, c.MimeType)
		})
	})
	return protocol.RtpParameters{
		Codecs: lo.Map(codecs, func(c webrtc.RTPCodecParameters, _ int) protocol.RtpCodecParameters {
			return fromCodecParameters(c)
		}),
		Encodings: lo.Map(params.Encodings, func(e webrtc.RTPEncodingParameters, _ int) protocol.RtpEncodingParameters {
			return protocol.RtpEncodingParameters{SSRC: uint32(e.SSRC), RID: e.RID}
		}),
	}
}

func (t *Transport) Consume(ctx context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	if t.dir != core.DirectionRecv {
		return nil, ErrWrongDirection
	}
	typ, ok := codecType(opts.Kind)
	if !ok {
		return nil, fmt.Errorf("cannot consume kind %q", opts.Kind)
	}
	if len(opts.RtpParameters.Codecs) == 0 || len(opts.RtpParameters.Encodings) == 0 {
		return nil, errors.New("consumer rtp parameters incomplete")
	}
	if t.isClosed() {
		return nil, ErrTransportClosed
	}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	receiver, err := t.api.NewRTPReceiver(typ, t.stack.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: %w", err)
	}
	enc := opts.RtpParameters.Encodings[0]
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(enc.SSRC),
				PayloadType: webrtc.PayloadType(opts.RtpParameters.Codecs[0].PayloadType),
			},
		}},
	})
	if err != nil {
		_ = receiver.Stop()
		return nil, fmt.Errorf("rtp receive: %w", err)
	}

	c := &Consumer{
		id:         opts.ID,
		producerID: opts.ProducerID,
		kind:       opts.Kind,
		receiver:   receiver,
		track:      &RemoteTrack{id: opts.ID, kind: opts.Kind, remote: receiver.Track()},
		transport:  t,
	}
	t.mu.Lock()
	t.consumers[c.id] = c
	t.mu.Unlock()
	t.logger.Info().Str("consumer_id", c.id).Str("producer_id", string(c.producerID)).Msg("consuming")
	return c, nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) forgetProducer(id domain.ProducerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.producers, id)
}

func (t *Transport) forgetConsumer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.consumers, id)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.cancel()
	producers := lo.Values(t.producers)
	consumers := lo.Values(t.consumers)
	t.producers = map[domain.ProducerID]*Producer{}
	t.consumers = map[string]*Consumer{}
	t.mu.Unlock()

	var errs []error
	for _, p := range producers {
		errs = append(errs, p.sender.Stop())
	}
	for _, c := range consumers {
		errs = append(errs, c.receiver.Stop())
	}
	errs = append(errs, t.stack.close())

	t.mu.Lock()
	t.state = core.TransportClosed
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(core.TransportClosed)
	}
	t.logger.Info().Msg("closed")
	return errors.Join(errs...)
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

type Producer struct {
	id        domain.ProducerID
	kind      domain.MediaKind
	sender    *webrtc.RTPSender
	transport *Transport
	closeOnce sync.Once
}

func (p *Producer) ID() domain.ProducerID  { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }

func (p *Producer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.transport.forgetProducer(p.id)
		err = p.sender.Stop()
	})
	return err
}

type Consumer struct {
	id         string
	producerID domain.ProducerID
	kind       domain.MediaKind
	receiver   *webrtc.RTPReceiver
	track      *RemoteTrack
	transport  *Transport
	closeOnce  sync.Once
}

func (c *Consumer) ID() string                    { return c.id }
func (c *Consumer) ProducerID() domain.ProducerID { return c.producerID }
func (c *Consumer) Kind() domain.MediaKind        { return c.kind }
func (c *Consumer) Track() core.RemoteTrack       { return c.track }

func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.transport.forgetConsumer(c.id)
		err = c.receiver.Stop()
	})
	return err
}

// RemoteTrack is the inbound media of one consumer.
type RemoteTrack struct {
	id     string
	kind   domain.MediaKind
	remote *webrtc.TrackRemote
}

func (t *RemoteTrack) ID() string                  { return t.id }
func (t *RemoteTrack) Kind() domain.MediaKind      { return t.kind }
func (t *RemoteTrack) Remote() *webrtc.TrackRemote { return t.remote }
