package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Conference/internal/domain"
)

type recordingSignal struct {
	frames []Frame
	full   bool
}

func (s *recordingSignal) TrySend(f Frame) error {
	if s.full {
		return errors.New("full")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSignal) Close() {}

func member(id, name string, sig SignalConnection) MemberSession {
	return NewMemberSession(domain.NewMember(domain.Peer{ID: domain.UserID(id), Name: name}, 0), sig)
}

func TestRoom_MembersKeepJoinOrderWithoutDuplicates(t *testing.T) {
	req := require.New(t)

	// Given
	room := NewRoomService("r1")

	// When
	req.True(room.AddMember("s1", member("u1", "Alice", &recordingSignal{})))
	req.True(room.AddMember("s2", member("u2", "Bob", &recordingSignal{})))
	req.False(room.AddMember("s1", member("u1", "Alice", &recordingSignal{})))

	// Then
	req.Equal([]domain.Peer{{ID: "u1", Name: "Alice"}, {ID: "u2", Name: "Bob"}}, room.Members())
	req.Equal(2, room.MemberCount())

	_, ok := room.RemoveMember("s1")
	req.True(ok)
	req.Equal([]domain.Peer{{ID: "u2", Name: "Bob"}}, room.Members())
}

func TestRoom_BroadcastSkipsSenderAndReportsDrops(t *testing.T) {
	req := require.New(t)

	// Given
	room := NewRoomService("r1")
	a, b, c := &recordingSignal{}, &recordingSignal{}, &recordingSignal{full: true}
	room.AddMember("a", member("ua", "A", a))
	room.AddMember("b", member("ub", "B", b))
	room.AddMember("c", member("uc", "C", c))

	// When
	res := room.Broadcast("a", Frame("hello"))

	// Then
	req.Equal(1, res.SendTo)
	req.Equal([]SessionID{"c"}, res.Dropped)
	req.Empty(a.frames)
	req.Len(b.frames, 1)
}

func TestRoom_ProducerDirectory(t *testing.T) {
	req := require.New(t)

	room := NewRoomService("r1")
	room.AddProducer("a", domain.ProducerAnnouncement{ProducerID: "p1", UserID: "ua"})
	room.AddProducer("b", domain.ProducerAnnouncement{ProducerID: "p2", UserID: "ub"})
	room.AddProducer("a", domain.ProducerAnnouncement{ProducerID: "p3", UserID: "ua"})

	req.Equal([]domain.ProducerAnnouncement{{ProducerID: "p2", UserID: "ub"}}, room.Producers("a"))
	req.Equal([]domain.ProducerID{"p1", "p3"}, room.ProducersOf("a"))

	owner, ok := room.RemoveProducer("p1")
	req.True(ok)
	req.Equal(SessionID("a"), owner)
	_, ok = room.ProducerOwner("p1")
	req.False(ok)
	req.Len(room.Producers(""), 2)
}

func TestRoom_SessionsReturnsCopyInJoinOrder(t *testing.T) {
	req := require.New(t)

	// Given
	room := NewRoomService("r1")
	room.AddMember("s2", member("u2", "Bob", &recordingSignal{}))
	room.AddMember("s1", member("u1", "Alice", &recordingSignal{}))

	// When
	sessions := room.Sessions()
	sessions[0] = "tampered"

	// Then
	req.Equal([]SessionID{"s2", "s1"}, room.Sessions())
}
