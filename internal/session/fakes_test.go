package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/Conference/internal/chat"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
	"github.com/dkeye/Conference/internal/view"
)

type handler func(payload any) (any, error)

// fakeSignaler plays the server: each method has a scripted handler and every call is logged.
type fakeSignaler struct {
	mu         sync.Mutex
	handlers   map[protocol.Method]handler
	calls      []protocol.Method
	payloads   []any
	subscriber func(protocol.Event)
	closed     bool
	journal    *journal
}

func (f *fakeSignaler) Request(_ context.Context, method protocol.Method, payload, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.payloads = append(f.payloads, payload)
	h := f.handlers[method]
	f.mu.Unlock()
	if f.journal != nil {
		f.journal.add("request " + string(method))
	}
	if h == nil {
		return nil
	}
	resp, err := h(payload)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeSignaler) Subscribe(h func(protocol.Event)) {
	f.mu.Lock()
	f.subscriber = h
	f.mu.Unlock()
}

func (f *fakeSignaler) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSignaler) on(method protocol.Method, h handler) {
	f.mu.Lock()
	f.handlers[method] = h
	f.mu.Unlock()
}

func (f *fakeSignaler) count(method protocol.Method) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.calls {
		if m == method {
			n++
		}
	}
	return n
}

func (f *fakeSignaler) methods() []protocol.Method {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Method(nil), f.calls...)
}

func (f *fakeSignaler) indexOf(method protocol.Method) int {
	for i, m := range f.methods() {
		if m == method {
			return i
		}
	}
	return -1
}

var testCaps = protocol.RtpCapabilities{Codecs: []protocol.RtpCodecCapability{
	{Kind: domain.KindAudio, MimeType: "audio/opus", PreferredPayloadType: 111, ClockRate: 48000, Channels: 2},
	{Kind: domain.KindVideo, MimeType: "video/VP8", PreferredPayloadType: 96, ClockRate: 90000},
}}

// newRoomServer scripts a room where Alice (u1) is already present and self is Bob (u0).
func newRoomServer() *fakeSignaler {
	f := &fakeSignaler{handlers: map[protocol.Method]handler{}}
	f.handlers[protocol.MethodJoinRoom] = func(any) (any, error) {
		return protocol.JoinRoomResponse{Message: "joined", Peer: &domain.Peer{ID: "u0", Name: "Bob"}}, nil
	}
	f.handlers[protocol.MethodGetInRoomUsers] = func(any) (any, error) {
		return protocol.InRoomUsersResponse{Users: []domain.Peer{{ID: "u1", Name: "Alice"}}}, nil
	}
	f.handlers[protocol.MethodGetRouterCapabilities] = func(any) (any, error) { return testCaps, nil }
	f.handlers[protocol.MethodCreateTransport] = func(p any) (any, error) {
		id := "t-recv"
		if p.(protocol.CreateTransportRequest).RtpCapabilities != nil {
			id = "t-send"
		}
		return protocol.CreateTransportResponse{Params: protocol.TransportParams{ID: id}}, nil
	}
	f.handlers[protocol.MethodGetProducers] = func(any) (any, error) { return []domain.ProducerAnnouncement{}, nil }
	f.handlers[protocol.MethodConsume] = func(p any) (any, error) {
		req := p.(protocol.ConsumeRequest)
		return protocol.ConsumeResponse{ID: "c-" + string(req.ProducerID), ProducerID: req.ProducerID, Kind: domain.KindAudio}, nil
	}
	f.handlers[protocol.MethodProduce] = func(p any) (any, error) {
		req := p.(protocol.ProduceRequest)
		return protocol.ProduceResponse{ProducerID: domain.ProducerID("local-" + string(req.Kind))}, nil
	}
	return f
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeDevice struct {
	mu         sync.Mutex
	loaded     bool
	caps       protocol.RtpCapabilities
	transports map[string]*fakeTransport
	journal    *journal
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{transports: map[string]*fakeTransport{}}
}

func (d *fakeDevice) Load(caps protocol.RtpCapabilities) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded, d.caps = true, caps
	return nil
}

func (d *fakeDevice) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *fakeDevice) RtpCapabilities() protocol.RtpCapabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

func (d *fakeDevice) CanProduce(kind domain.MediaKind) bool { return kind.IsMedia() }

func (d *fakeDevice) CreateSendTransport(p protocol.TransportParams, neg core.TransportNegotiator) (core.SendTransport, error) {
	return d.newTransport(p.ID, core.DirectionSend, neg), nil
}

func (d *fakeDevice) CreateRecvTransport(p protocol.TransportParams, neg core.TransportNegotiator) (core.RecvTransport, error) {
	return d.newTransport(p.ID, core.DirectionRecv, neg), nil
}

func (d *fakeDevice) newTransport(id string, dir core.TransportDirection, neg core.TransportNegotiator) *fakeTransport {
	t := &fakeTransport{id: id, dir: dir, neg: neg, state: core.TransportNew, journal: d.journal}
	d.mu.Lock()
	d.transports[id] = t
	d.mu.Unlock()
	return t
}

func (d *fakeDevice) transport(id string) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[id]
}

type fakeTransport struct {
	id      string
	dir     core.TransportDirection
	neg     core.TransportNegotiator
	journal *journal

	mu        sync.Mutex
	state     core.TransportState
	onState   func(core.TransportState)
	connected bool
	closed    bool
	consumed  []core.ConsumeOptions
}

func (t *fakeTransport) ID() string                         { return t.id }
func (t *fakeTransport) Direction() core.TransportDirection { return t.dir }

func (t *fakeTransport) State() core.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *fakeTransport) OnStateChange(fn func(core.TransportState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

func (t *fakeTransport) setState(st core.TransportState) {
	t.mu.Lock()
	t.state = st
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.state = core.TransportClosed
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) connect(ctx context.Context) error {
	t.mu.Lock()
	done := t.connected
	t.connected = true
	t.mu.Unlock()
	if done {
		return nil
	}
	return t.neg.OnConnectNegotiation(ctx, t.id, protocol.ConnectParameters{})
}

func (t *fakeTransport) Produce(ctx context.Context, track core.LocalTrack) (core.Producer, error) {
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	id, err := t.neg.OnProduceNegotiation(ctx, t.id, track.Kind(), protocol.RtpParameters{})
	if err != nil {
		return nil, err
	}
	return &fakeProducer{id: id, kind: track.Kind(), journal: t.journal}, nil
}

func (t *fakeTransport) Consume(ctx context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.consumed = append(t.consumed, opts)
	t.mu.Unlock()
	return &fakeConsumer{opts: opts}, nil
}

type fakeProducer struct {
	id      domain.ProducerID
	kind    domain.MediaKind
	journal *journal
	closed  bool
}

func (p *fakeProducer) ID() domain.ProducerID  { return p.id }
func (p *fakeProducer) Kind() domain.MediaKind { return p.kind }
func (p *fakeProducer) Close() error {
	p.closed = true
	if p.journal != nil {
		p.journal.add("producer close")
	}
	return nil
}

type fakeConsumer struct {
	mu     sync.Mutex
	opts   core.ConsumeOptions
	closed bool
}

func (c *fakeConsumer) ID() string                    { return c.opts.ID }
func (c *fakeConsumer) ProducerID() domain.ProducerID { return c.opts.ProducerID }
func (c *fakeConsumer) Kind() domain.MediaKind        { return c.opts.Kind }
func (c *fakeConsumer) Track() core.RemoteTrack {
	return &fakeTrack{id: "remote-" + c.opts.ID, kind: c.opts.Kind}
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeTrack struct {
	id      string
	kind    domain.MediaKind
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.MediaKind { return t.kind }
func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeMedia struct {
	mu     sync.Mutex
	fail   bool
	tracks []*fakeTrack
}

func (m *fakeMedia) Acquire(_ context.Context, kind domain.MediaKind) (core.LocalTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("no device")
	}
	t := &fakeTrack{id: "local-" + string(kind), kind: kind}
	m.tracks = append(m.tracks, t)
	return t, nil
}

type fakeHistory struct {
	mu       sync.Mutex
	stored   []domain.ChatMessage
	appended chan domain.ChatMessage
}

func (h *fakeHistory) Fetch(context.Context, domain.RoomID) ([]domain.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.ChatMessage(nil), h.stored...), nil
}

func (h *fakeHistory) Append(_ context.Context, _ domain.RoomID, msg domain.ChatMessage) error {
	h.appended <- msg
	return nil
}

type recObserver struct {
	mu      sync.Mutex
	view    []view.Participant
	bundles []chat.Bundle
	notices []string
}

func (o *recObserver) OnView(p []view.Participant) {
	o.mu.Lock()
	o.view = p
	o.mu.Unlock()
}

func (o *recObserver) OnChat(b []chat.Bundle) {
	o.mu.Lock()
	o.bundles = b
	o.mu.Unlock()
}

func (o *recObserver) OnNotice(m string) {
	o.mu.Lock()
	o.notices = append(o.notices, m)
	o.mu.Unlock()
}

func (o *recObserver) lastView() []view.Participant {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view
}

// logBuffer collects log lines written from session goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
