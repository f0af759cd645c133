package rtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/app/sfu"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

var (
	ErrTransportNotFound    = errors.New("transport not found")
	ErrProducerNotFound     = errors.New("producer not found")
	ErrTransportConnected   = errors.New("transport already connected")
	ErrTransportUnconnected = errors.New("transport not connected")
	ErrCannotConsume        = errors.New("rtp capabilities cannot decode producer")
)

type RouterConfig struct {
	Codecs         []protocol.RtpCodecCapability
	Settings       Settings
	GatherTimeout  time.Duration
	ConnectTimeout time.Duration
}

// Router is the server media plane: one ORTC transport per client transport,
// a relay per producer and a static RTP track per consumer.
type Router struct {
	api            *webrtc.API
	caps           protocol.RtpCapabilities
	settings       Settings
	relays         *sfu.RelayManager
	gatherTimeout  time.Duration
	connectTimeout time.Duration
	logger         zerolog.Logger

	mu         sync.Mutex
	transports map[string]*serverTransport
	producers  map[domain.ProducerID]*serverProducer
	consumers  map[string]*serverConsumer
}

type serverTransport struct {
	id       string
	owner    core.SessionID
	stack    *stack
	started  bool
	done     chan struct{}
	startErr error
}

func (t *serverTransport) connected() bool {
	select {
	case <-t.done:
		return t.startErr == nil
	default:
		return false
	}
}

type serverProducer struct {
	id        domain.ProducerID
	owner     core.SessionID
	kind      domain.MediaKind
	codec     protocol.RtpCodecParameters
	ssrc      uint32
	transport *serverTransport
	receiver  *webrtc.RTPReceiver
}

type serverConsumer struct {
	id         string
	owner      core.SessionID
	producerID domain.ProducerID
	transport  *serverTransport
	sender     *webrtc.RTPSender
}

func NewRouter(cfg RouterConfig, relays *sfu.RelayManager) (*Router, error) {
	codecs := cfg.Codecs
	if len(codecs) == 0 {
		codecs = DefaultCodecs()
	}
	api, accepted, err := newAPI(codecs, cfg.Settings)
	if err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return nil, ErrNoUsableCodec
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = 5 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Router{
		api:            api,
		caps:           protocol.RtpCapabilities{Codecs: accepted},
		settings:       cfg.Settings,
		relays:         relays,
		gatherTimeout:  cfg.GatherTimeout,
		connectTimeout: cfg.ConnectTimeout,
		logger:         log.With().Str("module", "rtc.router").Logger(),
		transports:     make(map[string]*serverTransport),
		producers:      make(map[domain.ProducerID]*serverProducer),
		consumers:      make(map[string]*serverConsumer),
	}, nil
}

func (r *Router) RtpCapabilities() protocol.RtpCapabilities { return r.caps }

func (r *Router) CreateTransport(ctx context.Context, owner core.SessionID, req protocol.CreateTransportRequest) (protocol.TransportParams, error) {
	st, err := newStack(r.api, r.settings.iceServers())
	if err != nil {
		return protocol.TransportParams{}, err
	}
	gctx, cancel := context.WithTimeout(ctx, r.gatherTimeout)
	defer cancel()
	if err := st.gather(gctx); err != nil {
		_ = st.close()
		return protocol.TransportParams{}, err
	}
	local, err := st.local()
	if err != nil {
		_ = st.close()
		return protocol.TransportParams{}, err
	}

	cands := local.candidates
	if req.ForceTCP {
		tcp := lo.Filter(cands, func(c protocol.IceCandidate, _ int) bool { return c.Protocol == "tcp" })
		if len(tcp) > 0 {
			cands = tcp
		} else {
			r.logger.Warn().Str("sid", string(owner)).Msg("forceTcp requested but no tcp candidates gathered")
		}
	}
	local.dtls.Role = "auto"

	t := &serverTransport{id: uuid.NewString(), owner: owner, stack: st, done: make(chan struct{})}
	logger := r.logger.With().Str("sid", string(owner)).Str("transport_id", t.id).Logger()
	st.ice.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})
	st.dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
		logger.Info().Str("dtls_state", s.String()).Msg("DTLS state")
	})

	r.mu.Lock()
	r.transports[t.id] = t
	r.mu.Unlock()

	return protocol.TransportParams{
		ID:             t.id,
		IceParameters:  local.ice,
		IceCandidates:  cands,
		DtlsParameters: local.dtls,
	}, nil
}

func (r *Router) ownedTransport(owner core.SessionID, id string) (*serverTransport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transports[id]
	if !ok || t.owner != owner {
		return nil, ErrTransportNotFound
	}
	return t, nil
}

// ConnectTransport starts the handshake; it completes in the background.
func (r *Router) ConnectTransport(_ context.Context, owner core.SessionID, req protocol.ConnectTransportRequest) error {
	if req.IceParameters == nil {
		return errors.New("ice parameters required")
	}
	if len(req.DtlsParameters.Fingerprints) == 0 {
		return errors.New("dtls fingerprints required")
	}

	r.mu.Lock()
	t, ok := r.transports[req.TransportID]
	if !ok || t.owner != owner {
		r.mu.Unlock()
		return ErrTransportNotFound
	}
	if t.started {
		r.mu.Unlock()
		return ErrTransportConnected
	}
	t.started = true
	r.mu.Unlock()

	remoteICE := *req.IceParameters
	remoteCands := req.IceCandidates
	remoteDTLS := toDTLSParameters(req.DtlsParameters)
	go func() {
		err := t.stack.start(remoteICE, remoteCands, webrtc.ICERoleControlled, remoteDTLS)
		t.startErr = err
		close(t.done)
		if err != nil {
			r.logger.Error().Err(err).Str("transport_id", t.id).Msg("transport connect failed")
			return
		}
		r.resumeConsumers(t)
	}()
	return nil
}

func (r *Router) waitConnected(ctx context.Context, t *serverTransport) error {
	ctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()
	select {
	case <-t.done:
		if t.startErr != nil {
			return fmt.Errorf("%w: %w", ErrTransportUnconnected, t.startErr)
		}
		return nil
	case <-ctx.Done():
		return ErrTransportUnconnected
	}
}

func (r *Router) resumeConsumers(t *serverTransport) {
	r.mu.Lock()
	pending := lo.Filter(lo.Values(r.consumers), func(c *serverConsumer, _ int) bool { return c.transport == t })
	r.mu.Unlock()
	for _, c := range pending {
		r.relays.ResumeSubscriber(c.producerID, c.id)
	}
}

func (r *Router) Produce(ctx context.Context, owner core.SessionID, req protocol.ProduceRequest) (domain.ProducerID, error) {
	typ, ok := codecType(req.Kind)
	if !ok {
		return "", fmt.Errorf("cannot produce kind %q", req.Kind)
	}
	if len(req.RtpParameters.Codecs) == 0 || len(req.RtpParameters.Encodings) == 0 {
		return "", errors.New("rtp parameters incomplete")
	}
	codec, ok := lo.Find(req.RtpParameters.Codecs, func(c protocol.RtpCodecParameters) bool {
		return lo.ContainsBy(r.caps.Codecs, func(rc protocol.RtpCodecCapability) bool {
			return rc.Kind == req.Kind && strings.EqualFold(rc.MimeType, c.MimeType)
		})
	})
	if !ok {
		return "", fmt.Errorf("no supported %s codec offered", req.Kind)
	}
	t, err := r.ownedTransport(owner, req.ProducerTransportID)
	if err != nil {
		return "", err
	}
	if err := r.waitConnected(ctx, t); err != nil {
		return "", err
	}

	receiver, err := r.api.NewRTPReceiver(typ, t.stack.dtls)
	if err != nil {
		return "", fmt.Errorf("rtp receiver: %w", err)
	}
	ssrc := req.RtpParameters.Encodings[0].SSRC
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(ssrc),
				PayloadType: webrtc.PayloadType(codec.PayloadType),
			},
		}},
	})
	if err != nil {
		_ = receiver.Stop()
		return "", fmt.Errorf("rtp receive: %w", err)
	}

	p := &serverProducer{
		id:        domain.ProducerID(uuid.NewString()),
		owner:     owner,
		kind:      req.Kind,
		codec:     codec,
		ssrc:      ssrc,
		transport: t,
		receiver:  receiver,
	}
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()

	r.relays.StartRelay(context.Background(), p.id, sfu.TrackSource(receiver.Track()), func() { r.requestKeyframe(p) })
	go drainReceiverRTCP(receiver)

	r.logger.Info().
		Str("sid", string(owner)).
		Str("producer_id", string(p.id)).
		Str("kind", string(p.kind)).
		Str("codec", codec.MimeType).
		Msg("producer created")
	return p.id, nil
}

func (r *Router) requestKeyframe(p *serverProducer) {
	if p.kind != domain.KindVideo {
		return
	}
	if _, err := p.transport.stack.dtls.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: p.ssrc}}); err != nil {
		r.logger.Debug().Err(err).Str("producer_id", string(p.id)).Msg("PLI write failed")
	}
}

func (r *Router) Consume(_ context.Context, owner core.SessionID, req protocol.ConsumeRequest) (protocol.ConsumeResponse, error) {
	t, err := r.ownedTransport(owner, req.ConsumerTransportID)
	if err != nil {
		return protocol.ConsumeResponse{}, err
	}
	r.mu.Lock()
	p, ok := r.producers[req.ProducerID]
	r.mu.Unlock()
	if !ok {
		return protocol.ConsumeResponse{}, ErrProducerNotFound
	}
	if !supports(req.RtpCapabilities, p.codec) {
		return protocol.ConsumeResponse{}, ErrCannotConsume
	}

	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticRTP(capabilityOf(p.codec), id, string(p.id))
	if err != nil {
		return protocol.ConsumeResponse{}, err
	}
	sender, err := r.api.NewRTPSender(local, t.stack.dtls)
	if err != nil {
		return protocol.ConsumeResponse{}, fmt.Errorf("rtp sender: %w", err)
	}
	params := sender.GetParameters()
	if err := sender.Send(params); err != nil {
		_ = sender.Stop()
		return protocol.ConsumeResponse{}, fmt.Errorf("rtp send: %w", err)
	}

	out := sfu.NewOutTrack(local)
	if !t.connected() {
		out.MarkMuted()
	}
	if err := r.relays.AddSubscriber(p.id, id, out); err != nil {
		_ = sender.Stop()
		return protocol.ConsumeResponse{}, err
	}

	c := &serverConsumer{id: id, owner: owner, producerID: p.id, transport: t, sender: sender}
	r.mu.Lock()
	r.consumers[id] = c
	r.mu.Unlock()
	// The transport may have connected between the check and the registration.
	if t.connected() {
		r.relays.ResumeSubscriber(p.id, id)
	}
	go r.readConsumerRTCP(c)

	codec := p.codec
	if sent, ok := lo.Find(params.Codecs, func(c webrtc.RTPCodecParameters) bool {
		return strings.EqualFold(c.MimeType, p.codec.MimeType)
	}); ok {
		codec = fromCodecParameters(sent)
	}
	var ssrc uint32
	if len(params.Encodings) > 0 {
		ssrc = uint32(params.Encodings[0].SSRC)
	}

	r.logger.Info().
		Str("sid", string(owner)).
		Str("consumer_id", id).
		Str("producer_id", string(p.id)).
		Msg("consumer created")
	return protocol.ConsumeResponse{
		ID:         id,
		ProducerID: p.id,
		Kind:       p.kind,
		RtpParameters: protocol.RtpParameters{
			Codecs:    []protocol.RtpCodecParameters{codec},
			Encodings: []protocol.RtpEncodingParameters{{SSRC: ssrc}},
		},
	}, nil
}

// readConsumerRTCP turns consumer picture-loss feedback into a keyframe request.
func (r *Router) readConsumerRTCP(c *serverConsumer) {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				r.relays.RequestKeyframe(c.producerID)
			}
		}
	}
}

func drainReceiverRTCP(receiver *webrtc.RTPReceiver) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := receiver.Read(buf); err != nil {
			return
		}
	}
}

func (r *Router) CloseProducer(owner core.SessionID, id domain.ProducerID) error {
	r.mu.Lock()
	p, ok := r.producers[id]
	if !ok || p.owner != owner {
		r.mu.Unlock()
		return ErrProducerNotFound
	}
	delete(r.producers, id)
	consumers := r.takeConsumers(func(c *serverConsumer) bool { return c.producerID == id })
	r.mu.Unlock()

	return r.releaseProducer(p, consumers)
}

func (r *Router) releaseProducer(p *serverProducer, consumers []*serverConsumer) error {
	r.relays.StopRelay(p.id)
	errs := []error{p.receiver.Stop()}
	for _, c := range consumers {
		errs = append(errs, c.sender.Stop())
	}
	r.logger.Info().Str("producer_id", string(p.id)).Int("consumers", len(consumers)).Msg("producer closed")
	return errors.Join(errs...)
}

// takeConsumers removes and returns the matching consumers. r.mu must be held.
func (r *Router) takeConsumers(match func(*serverConsumer) bool) []*serverConsumer {
	var out []*serverConsumer
	for id, c := range r.consumers {
		if match(c) {
			out = append(out, c)
			delete(r.consumers, id)
		}
	}
	return out
}

func (r *Router) CloseSession(owner core.SessionID) {
	r.mu.Lock()
	var producers []*serverProducer
	for id, p := range r.producers {
		if p.owner == owner {
			producers = append(producers, p)
			delete(r.producers, id)
		}
	}
	owned := lo.SliceToMap(producers, func(p *serverProducer) (domain.ProducerID, struct{}) { return p.id, struct{}{} })
	consumers := r.takeConsumers(func(c *serverConsumer) bool {
		_, fed := owned[c.producerID]
		return c.owner == owner || fed
	})
	var transports []*serverTransport
	for id, t := range r.transports {
		if t.owner == owner {
			transports = append(transports, t)
			delete(r.transports, id)
		}
	}
	r.mu.Unlock()

	for _, c := range consumers {
		r.relays.MarkSubscriberDelete(c.producerID, c.id)
		_ = c.sender.Stop()
	}
	for _, p := range producers {
		_ = r.releaseProducer(p, nil)
	}
	for _, t := range transports {
		if err := t.stack.close(); err != nil {
			r.logger.Debug().Err(err).Str("transport_id", t.id).Msg("transport close")
		}
	}
	if len(producers)+len(consumers)+len(transports) > 0 {
		r.logger.Info().
			Str("sid", string(owner)).
			Int("producers", len(producers)).
			Int("consumers", len(consumers)).
			Int("transports", len(transports)).
			Msg("session media released")
	}
}

// Stats reports relay counters for the status endpoint.
func (r *Router) Stats() []sfu.RelayStats { return r.relays.Stats() }
