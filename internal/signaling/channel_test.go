package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/protocol"
)

// scriptedServer answers each request with respond(msg); a nil reply means no answer.
type scriptedServer struct {
	respond func(conn *websocket.Conn, msg protocol.Message) *protocol.Message
	mu      sync.Mutex
	conns   []*websocket.Conn
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if reply := s.respond(conn, msg); reply != nil {
			b, _ := json.Marshal(reply)
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
	}
}

func (s *scriptedServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

func startChannel(t *testing.T, srv *scriptedServer, opts ...Option) *Channel {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	ch := NewChannel("ws"+strings.TrimPrefix(ts.URL, "http"), opts...)
	require.NoError(t, ch.Connect(context.Background()))
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestChannel_RequestBeforeConnectIsUnavailable(t *testing.T) {
	ch := NewChannel("ws://127.0.0.1:1/nowhere")

	err := ch.Request(context.Background(), protocol.MethodGetProducers, nil, nil)

	require.ErrorIs(t, err, core.ErrChannelUnavailable)
}

func TestChannel_ResponseIsCorrelatedAndDecoded(t *testing.T) {
	req := require.New(t)

	// Given a server that echoes the room id
	srv := &scriptedServer{respond: func(_ *websocket.Conn, msg protocol.Message) *protocol.Message {
		var p protocol.JoinRoomRequest
		_ = msg.Decode(&p)
		resp, _ := protocol.NewResponse(msg.ID, protocol.JoinRoomResponse{Message: "joined " + string(p.RoomID)})
		return &resp
	}}
	ch := startChannel(t, srv)

	// When
	var out protocol.JoinRoomResponse
	err := ch.Request(context.Background(), protocol.MethodJoinRoom, protocol.JoinRoomRequest{RoomID: "r1", Name: "Bob"}, &out)

	// Then
	req.NoError(err)
	req.Equal("joined r1", out.Message)
}

func TestChannel_ServerErrorRejects(t *testing.T) {
	req := require.New(t)

	srv := &scriptedServer{respond: func(_ *websocket.Conn, msg protocol.Message) *protocol.Message {
		resp := protocol.NewErrorResponse(msg.ID, "room not found")
		return &resp
	}}
	ch := startChannel(t, srv)

	err := ch.Request(context.Background(), protocol.MethodJoinRoom, protocol.JoinRoomRequest{RoomID: "x"}, nil)

	var remote *core.RemoteError
	req.True(errors.As(err, &remote))
	req.Equal("room not found", remote.Reason)
	req.Equal("JOIN_ROOM", remote.Method)
}

func TestChannel_TimeoutWhenServerIsSilent(t *testing.T) {
	srv := &scriptedServer{respond: func(*websocket.Conn, protocol.Message) *protocol.Message { return nil }}
	ch := startChannel(t, srv, WithRequestTimeout(50*time.Millisecond))

	err := ch.Request(context.Background(), protocol.MethodGetProducers, nil, nil)

	require.ErrorIs(t, err, core.ErrChannelTimeout)
}

func TestChannel_DisconnectFailsPending(t *testing.T) {
	req := require.New(t)

	// Given a request the server never answers
	srv := &scriptedServer{}
	srv.respond = func(*websocket.Conn, protocol.Message) *protocol.Message {
		go srv.dropAll()
		return nil
	}
	ch := startChannel(t, srv)

	// When the server drops the socket
	err := ch.Request(context.Background(), protocol.MethodGetProducers, nil, nil)

	// Then
	req.ErrorIs(err, core.ErrChannelUnavailable)
	<-ch.Done()
	req.ErrorIs(ch.Request(context.Background(), protocol.MethodExitRoom, nil, nil), core.ErrChannelUnavailable)
}

func TestChannel_EventsArriveInOrder(t *testing.T) {
	req := require.New(t)

	// Given a server that pushes three events before answering
	srv := &scriptedServer{respond: func(conn *websocket.Conn, msg protocol.Message) *protocol.Message {
		for _, ev := range []protocol.Event{
			protocol.NewProducers{Producers: nil},
			protocol.ProducerClosed{ProducerID: "p1"},
			protocol.UserLeft{},
		} {
			n, _ := protocol.NewNotification(ev)
			b, _ := json.Marshal(n)
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
		resp, _ := protocol.NewResponse(msg.ID, nil)
		return &resp
	}}
	ch := startChannel(t, srv)

	var (
		mu  sync.Mutex
		got []protocol.EventType
	)
	ch.Subscribe(func(ev protocol.Event) {
		mu.Lock()
		got = append(got, ev.Type())
		mu.Unlock()
	})

	// When
	req.NoError(ch.Request(context.Background(), protocol.MethodGetProducers, nil, nil))

	// Then events were dispatched before the response was read
	mu.Lock()
	defer mu.Unlock()
	req.Equal([]protocol.EventType{protocol.EventNewProducers, protocol.EventProducerClosed, protocol.EventUserLeft}, got)
}
