package orch

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

func (o *Orchestrator) CreateRoom(sid core.SessionID, req protocol.CreateRoomRequest) error {
	id, err := domain.ParseRoomID(string(req.RoomID))
	if err != nil {
		return err
	}
	o.Rooms.GetOrCreate(id)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Msg("create room")
	return nil
}

// JoinRoom places the session in the room under a fresh identity. A session
// already in a room leaves it first.
func (o *Orchestrator) JoinRoom(sid core.SessionID, req protocol.JoinRoomRequest) (protocol.JoinRoomResponse, error) {
	signal, ok := o.Registry.Signal(sid)
	if !ok {
		return protocol.JoinRoomResponse{}, ErrNotConnected
	}
	id, err := domain.ParseRoomID(string(req.RoomID))
	if err != nil {
		return protocol.JoinRoomResponse{}, err
	}
	room, ok := o.Rooms.Get(id)
	if !ok {
		return protocol.JoinRoomResponse{}, ErrRoomNotFound
	}
	peer, err := domain.NewPeer(req.Name)
	if err != nil {
		return protocol.JoinRoomResponse{}, err
	}

	if from, ok := o.Registry.RoomOf(sid); ok {
		o.leaveRoom(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(from)).Msg("kicked from room")
	}

	member := domain.NewMember(*peer, time.Now().UnixMilli())
	room.AddMember(sid, core.NewMemberSession(member, signal))
	o.Registry.SetPeer(sid, *peer)
	o.Registry.UpdateRoom(sid, id)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Str("user_id", string(peer.ID)).Msg("added to room")

	o.broadcast(room, sid, protocol.UserJoined{
		User:    *peer,
		Message: fmt.Sprintf("%s joined the room", peer.Name),
	})
	return protocol.JoinRoomResponse{Message: "joined", Peer: peer}, nil
}

// Users lists the other members of the caller's room in join order.
func (o *Orchestrator) Users(sid core.SessionID) (protocol.InRoomUsersResponse, error) {
	room, err := o.room(sid)
	if err != nil {
		return protocol.InRoomUsersResponse{}, err
	}
	self, _ := o.Registry.Peer(sid)
	users := lo.Filter(room.Members(), func(p domain.Peer, _ int) bool { return p.ID != self.ID })
	return protocol.InRoomUsersResponse{Users: users}, nil
}

func (o *Orchestrator) ExitRoom(sid core.SessionID) error {
	if _, ok := o.Registry.RoomOf(sid); !ok {
		return ErrNotInRoom
	}
	o.leaveRoom(sid)
	if o.Router != nil {
		o.Router.CloseSession(sid)
	}
	return nil
}

// leaveRoom retracts the session's producers, removes it from its room and
// tells the remaining members. Empty rooms are stopped.
func (o *Orchestrator) leaveRoom(sid core.SessionID) {
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	defer o.Registry.RemoveRoom(sid)
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}

	for _, id := range room.ProducersOf(sid) {
		room.RemoveProducer(id)
		if o.Router != nil {
			if err := o.Router.CloseProducer(sid, id); err != nil {
				log.Debug().Err(err).Str("module", "orch").Str("producer_id", string(id)).Msg("close producer on leave")
			}
		}
		o.broadcast(room, sid, protocol.ProducerClosed{ProducerID: id})
	}

	ms, ok := room.RemoveMember(sid)
	if ok {
		o.broadcast(room, sid, protocol.UserLeft{User: ms.Meta().Peer})
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("left room")
	}
	if room.MemberCount() == 0 {
		o.Rooms.StopRoom(roomID)
	}
}

// EvictRoom disconnects every member and drops the room.
func (o *Orchestrator) EvictRoom(id domain.RoomID) {
	room, ok := o.Rooms.Get(id)
	if !ok {
		return
	}
	for _, sid := range room.Sessions() {
		o.Registry.Cancel(sid)
	}
	o.Rooms.StopRoom(id)
}
