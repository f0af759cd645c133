package core

import (
	"github.com/dkeye/Conference/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// RoomService is the core-facing API of a room.
// It owns the membership set and the producer directory but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	// Members returns peers in join order.
	Members() []domain.Peer
	Member(sid SessionID) (MemberSession, bool)
	// Sessions returns member session ids in join order.
	Sessions() []SessionID

	AddMember(sid SessionID, ms MemberSession) bool
	RemoveMember(sid SessionID) (MemberSession, bool)
	Broadcast(from SessionID, data Frame) PublishResult

	AddProducer(owner SessionID, ann domain.ProducerAnnouncement)
	RemoveProducer(id domain.ProducerID) (SessionID, bool)
	ProducerOwner(id domain.ProducerID) (SessionID, bool)
	// Producers lists announcements in publish order, skipping those owned by except.
	Producers(except SessionID) []domain.ProducerAnnouncement
	ProducersOf(owner SessionID) []domain.ProducerID
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}
