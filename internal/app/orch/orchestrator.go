package orch

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/protocol"
)

var (
	ErrNotConnected     = errors.New("session not connected")
	ErrNotInRoom        = errors.New("not in a room")
	ErrRoomNotFound     = errors.New("room not found")
	ErrProducerNotFound = errors.New("producer not found in room")
	ErrNotProducerOwner = errors.New("producer belongs to another member")
)

// Orchestrator applies signaling requests to rooms, the media router and the chat store.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Router   core.MediaRouter
}

// Connect registers a new signaling socket. A previous socket for the same
// session is dropped from its room and its media released first; its own
// OnDisconnect is ignored once the new socket is bound.
func (o *Orchestrator) Connect(sid core.SessionID, signal core.SignalConnection, cancel func()) {
	if _, ok := o.Registry.Signal(sid); ok {
		o.leaveRoom(sid)
		if o.Router != nil {
			o.Router.CloseSession(sid)
		}
	}
	o.Registry.BindSignal(sid, signal, cancel)
}

// OnDisconnect cleans up after a socket is gone.
func (o *Orchestrator) OnDisconnect(sid core.SessionID, signal core.SignalConnection) {
	if !o.Registry.Current(sid, signal) {
		return
	}
	o.leaveRoom(sid)
	if o.Router != nil {
		o.Router.CloseSession(sid)
	}
	o.Registry.Unbind(sid, signal)
}

func (o *Orchestrator) room(sid core.SessionID) (core.RoomService, error) {
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return nil, ErrNotInRoom
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil, ErrNotInRoom
	}
	return room, nil
}

// broadcast pushes ev to every member of room except from, applying the
// backpressure policy to members that could not take it.
func (o *Orchestrator) broadcast(room core.RoomService, from core.SessionID, ev protocol.Event) {
	msg, err := protocol.NewNotification(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode notification")
		return
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode frame")
		return
	}

	res := room.Broadcast(from, frame)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		member, ok := room.Member(slow)
		if !ok {
			continue
		}
		switch o.Policy.OnBackPressure(room, member) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow)).Msg("kicking slow member")
			o.Registry.Cancel(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}
