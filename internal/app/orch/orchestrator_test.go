package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

type recordingSignal struct {
	mu     sync.Mutex
	frames []protocol.Message
	full   bool
}

func (s *recordingSignal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return errors.New("backpressure")
	}
	var msg protocol.Message
	if err := json.Unmarshal(f, &msg); err != nil {
		return err
	}
	s.frames = append(s.frames, msg)
	return nil
}

func (s *recordingSignal) Close() {}

func (s *recordingSignal) events() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Event, 0, len(s.frames))
	for _, m := range s.frames {
		ev, err := protocol.DecodeEvent(m.Method, m.Data)
		if err == nil {
			out = append(out, ev)
		}
	}
	return out
}

type fakeRouter struct {
	mu         sync.Mutex
	next       int
	closed     []domain.ProducerID
	sessions   []core.SessionID
	consumed   []domain.ProducerID
	produceErr error
}

func (r *fakeRouter) RtpCapabilities() protocol.RtpCapabilities {
	return protocol.RtpCapabilities{Codecs: []protocol.RtpCodecCapability{{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000}}}
}

func (r *fakeRouter) CreateTransport(_ context.Context, _ core.SessionID, _ protocol.CreateTransportRequest) (protocol.TransportParams, error) {
	return protocol.TransportParams{ID: "t1"}, nil
}

func (r *fakeRouter) ConnectTransport(context.Context, core.SessionID, protocol.ConnectTransportRequest) error {
	return nil
}

func (r *fakeRouter) Produce(_ context.Context, _ core.SessionID, _ protocol.ProduceRequest) (domain.ProducerID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.produceErr != nil {
		return "", r.produceErr
	}
	r.next++
	return domain.ProducerID([]string{"", "p1", "p2", "p3"}[r.next]), nil
}

func (r *fakeRouter) Consume(_ context.Context, _ core.SessionID, req protocol.ConsumeRequest) (protocol.ConsumeResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumed = append(r.consumed, req.ProducerID)
	return protocol.ConsumeResponse{ID: "c-" + string(req.ProducerID), ProducerID: req.ProducerID, Kind: domain.KindAudio}, nil
}

func (r *fakeRouter) CloseProducer(_ core.SessionID, id domain.ProducerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, id)
	return nil
}

func (r *fakeRouter) CloseSession(owner core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, owner)
}

type harness struct {
	orch    *Orchestrator
	router  *fakeRouter
	signals map[core.SessionID]*recordingSignal
	kicked  map[core.SessionID]bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		router:  &fakeRouter{},
		signals: map[core.SessionID]*recordingSignal{},
		kicked:  map[core.SessionID]bool{},
	}
	h.orch = &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.SimplePolicy{},
		Router:   h.router,
	}
	return h
}

func (h *harness) connect(sid core.SessionID) *recordingSignal {
	sig := &recordingSignal{}
	h.signals[sid] = sig
	h.orch.Connect(sid, sig, func() { h.kicked[sid] = true })
	return sig
}

func (h *harness) join(t *testing.T, sid core.SessionID, room domain.RoomID, name string) domain.Peer {
	t.Helper()
	require.NoError(t, h.orch.CreateRoom(sid, protocol.CreateRoomRequest{RoomID: room}))
	resp, err := h.orch.JoinRoom(sid, protocol.JoinRoomRequest{RoomID: room, Name: name})
	require.NoError(t, err)
	require.NotNil(t, resp.Peer)
	return *resp.Peer
}

func TestJoinRoom_RequiresCreatedRoom(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	h.connect("s1")

	// When
	_, err := h.orch.JoinRoom("s1", protocol.JoinRoomRequest{RoomID: "nowhere", Name: "Alice"})

	// Then
	req.ErrorIs(err, ErrRoomNotFound)
}

func TestJoinRoom_AnnouncesToRoomMatesAndListsOthers(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	alice := h.connect("s1")
	h.connect("s2")
	alicePeer := h.join(t, "s1", "r1", "Alice")

	// When
	bobPeer := h.join(t, "s2", "r1", "Bob")

	// Then
	req.Equal([]protocol.Event{protocol.UserJoined{User: bobPeer, Message: "Bob joined the room"}}, alice.events())
	users, err := h.orch.Users("s2")
	req.NoError(err)
	req.Equal([]domain.Peer{alicePeer}, users.Users)
	req.Empty(h.signals["s2"].events())
}

func TestJoinRoom_RejectsEmptyName(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	h.connect("s1")
	req.NoError(h.orch.CreateRoom("s1", protocol.CreateRoomRequest{RoomID: "r1"}))

	// When
	_, err := h.orch.JoinRoom("s1", protocol.JoinRoomRequest{RoomID: "r1", Name: "  "})

	// Then
	req.ErrorIs(err, domain.ErrUsernameEmpty)
}

func TestProduce_AnnouncesAndListsForOthersOnly(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	alice := h.connect("s1")
	bob := h.connect("s2")
	alicePeer := h.join(t, "s1", "r1", "Alice")
	h.join(t, "s2", "r1", "Bob")

	// When
	resp, err := h.orch.Produce(context.Background(), "s1", protocol.ProduceRequest{ProducerTransportID: "t1", Kind: domain.KindAudio})

	// Then
	req.NoError(err)
	req.Equal(domain.ProducerID("p1"), resp.ProducerID)
	ann := domain.ProducerAnnouncement{ProducerID: "p1", UserID: alicePeer.ID}
	req.Contains(bob.events(), protocol.Event(protocol.NewProducers{Producers: []domain.ProducerAnnouncement{ann}}))
	req.Len(alice.events(), 1) // only Bob's USER_JOINED

	own, err := h.orch.Producers("s1")
	req.NoError(err)
	req.Empty(own)
	others, err := h.orch.Producers("s2")
	req.NoError(err)
	req.Equal([]domain.ProducerAnnouncement{ann}, others)
}

func TestProduce_RejectsUnknownKind(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	bob := h.connect("s2")
	h.connect("s1")
	h.join(t, "s1", "r1", "Alice")
	h.join(t, "s2", "r1", "Bob")

	// When
	_, err := h.orch.Produce(context.Background(), "s1", protocol.ProduceRequest{ProducerTransportID: "t1", Kind: "data"})

	// Then
	req.Error(err)
	req.Zero(h.router.next)
	req.Empty(bob.events())
}

func TestConsume_OnlyProducersOfTheSameRoom(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	h.connect("s1")
	h.connect("s2")
	h.connect("s3")
	h.join(t, "s1", "r1", "Alice")
	h.join(t, "s2", "r1", "Bob")
	h.join(t, "s3", "r2", "Carol")
	_, err := h.orch.Produce(context.Background(), "s1", protocol.ProduceRequest{Kind: domain.KindAudio})
	req.NoError(err)

	// When
	resp, okErr := h.orch.Consume(context.Background(), "s2", protocol.ConsumeRequest{ProducerID: "p1"})
	_, crossErr := h.orch.Consume(context.Background(), "s3", protocol.ConsumeRequest{ProducerID: "p1"})

	// Then
	req.NoError(okErr)
	req.Equal("c-p1", resp.ID)
	req.ErrorIs(crossErr, ErrProducerNotFound)
	req.Equal([]domain.ProducerID{"p1"}, h.router.consumed)
}

func TestCloseProducer_OwnerOnlyAndBroadcast(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	h.connect("s1")
	bob := h.connect("s2")
	h.join(t, "s1", "r1", "Alice")
	h.join(t, "s2", "r1", "Bob")
	_, err := h.orch.Produce(context.Background(), "s1", protocol.ProduceRequest{Kind: domain.KindVideo})
	req.NoError(err)

	// When
	stolenErr := h.orch.CloseProducer("s2", protocol.CloseProducerRequest{ProducerID: "p1"})
	err = h.orch.CloseProducer("s1", protocol.CloseProducerRequest{ProducerID: "p1"})

	// Then
	req.ErrorIs(stolenErr, ErrNotProducerOwner)
	req.NoError(err)
	req.Equal([]domain.ProducerID{"p1"}, h.router.closed)
	evs := bob.events()
	req.Equal(protocol.Event(protocol.ProducerClosed{ProducerID: "p1"}), evs[len(evs)-1])
	others, err := h.orch.Producers("s2")
	req.NoError(err)
	req.Empty(others)
}

func TestDisconnect_RetractsProducersThenAnnouncesLeave(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	alice := h.connect("s1")
	bob := h.connect("s2")
	h.join(t, "s1", "r1", "Alice")
	bobPeer := h.join(t, "s2", "r1", "Bob")
	_, err := h.orch.Produce(context.Background(), "s2", protocol.ProduceRequest{Kind: domain.KindAudio})
	req.NoError(err)

	// When
	h.orch.OnDisconnect("s2", bob)

	// Then
	evs := alice.events()
	req.Equal([]protocol.Event{
		protocol.ProducerClosed{ProducerID: "p1"},
		protocol.UserLeft{User: bobPeer},
	}, evs[len(evs)-2:])
	req.Equal([]core.SessionID{"s2"}, h.router.sessions)
	users, err := h.orch.Users("s1")
	req.NoError(err)
	req.Empty(users.Users)
}

func TestDisconnect_StaleSocketIsIgnored(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	old := h.connect("s1")
	h.connect("s1")
	h.join(t, "s1", "r1", "Alice")

	// When
	h.orch.OnDisconnect("s1", old)

	// Then
	_, ok := h.orch.Registry.RoomOf("s1")
	req.True(ok)
	req.True(h.kicked["s1"])
}

func TestConnect_ReconnectReleasesOldMedia(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	old := h.connect("s1")
	h.join(t, "s1", "r1", "Alice")
	_, err := h.orch.Produce(context.Background(), "s1", protocol.ProduceRequest{ProducerTransportID: "t1", Kind: domain.KindAudio})
	req.NoError(err)

	// When the same client token opens a new socket and the old one goes away late
	h.connect("s1")
	h.orch.OnDisconnect("s1", old)

	// Then
	req.Equal([]core.SessionID{"s1"}, h.router.sessions)
	_, inRoom := h.orch.Registry.RoomOf("s1")
	req.False(inRoom)
}

func TestExitRoom_LastMemberStopsRoom(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	h.connect("s1")
	h.join(t, "s1", "r1", "Alice")

	// When
	err := h.orch.ExitRoom("s1")

	// Then
	req.NoError(err)
	_, ok := h.orch.Rooms.Get("r1")
	req.False(ok)
	req.ErrorIs(h.orch.ExitRoom("s1"), ErrNotInRoom)
}

func TestChat_StampsSenderAndRelays(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	h.connect("s1")
	bob := h.connect("s2")
	alicePeer := h.join(t, "s1", "r1", "Alice")
	h.join(t, "s2", "r1", "Bob")
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// When
	msg, err := h.orch.Chat("s1", domain.ChatMessage{Sender: domain.Peer{ID: "forged", Name: "Mallory"}, Text: " hi ", CreatedAt: at})

	// Then
	req.NoError(err)
	req.Equal(alicePeer, msg.Sender)
	req.Equal("hi", msg.Text)
	req.True(at.Equal(msg.CreatedAt))
	evs := bob.events()
	req.Equal(protocol.Event(protocol.UserChat{ChatMessage: msg}), evs[len(evs)-1])
}

func TestBroadcast_SlowMemberIsKicked(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	h.connect("s1")
	slow := h.connect("s2")
	h.join(t, "s1", "r1", "Alice")
	h.join(t, "s2", "r1", "Bob")
	slow.full = true

	// When
	_, err := h.orch.Chat("s1", domain.ChatMessage{Text: "anyone?"})

	// Then
	req.NoError(err)
	req.True(h.kicked["s2"])
	req.False(h.kicked["s1"])
}

func TestMediaRequests_RequireRoom(t *testing.T) {
	req := require.New(t)

	// Given
	h := newHarness(t)
	h.connect("s1")

	// When
	_, capsErr := h.orch.RtpCapabilities("s1")
	_, transportErr := h.orch.CreateTransport(context.Background(), "s1", protocol.CreateTransportRequest{})
	_, produceErr := h.orch.Produce(context.Background(), "s1", protocol.ProduceRequest{Kind: domain.KindAudio})

	// Then
	req.ErrorIs(capsErr, ErrNotInRoom)
	req.ErrorIs(transportErr, ErrNotInRoom)
	req.ErrorIs(produceErr, ErrNotInRoom)
}
