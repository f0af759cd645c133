package domain

// Member represents a peer's participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	Peer     Peer
	JoinedAt int64
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(peer Peer, joinedAt int64) *Member {
	return &Member{Peer: peer, JoinedAt: joinedAt}
}
