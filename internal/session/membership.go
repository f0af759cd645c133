package session

import (
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/domain"
)

// Membership is the ordered set of other peers in the room plus self.
type Membership struct {
	mu    sync.Mutex
	self  domain.Peer
	peers []domain.Peer
}

func NewMembership() *Membership {
	return &Membership{}
}

func (m *Membership) SetSelf(p domain.Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = p
	m.peers = lo.Reject(m.peers, func(q domain.Peer, _ int) bool { return p.ID != "" && q.ID == p.ID })
}

func (m *Membership) Self() domain.Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

// Seed replaces the peer set, dropping duplicates and self.
func (m *Membership) Seed(peers []domain.Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers = m.peers[:0]
	for _, p := range lo.UniqBy(peers, func(p domain.Peer) domain.UserID { return p.ID }) {
		if !m.isSelf(p.ID) {
			m.peers = append(m.peers, p)
		}
	}
}

// Add inserts a peer; a known id only refreshes the name.
func (m *Membership) Add(p domain.Peer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isSelf(p.ID) {
		return false
	}
	if i := slices.IndexFunc(m.peers, func(q domain.Peer) bool { return q.ID == p.ID }); i >= 0 {
		m.peers[i].Name = p.Name
		return false
	}
	m.peers = append(m.peers, p)
	return true
}

func (m *Membership) Remove(id domain.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.peers)
	m.peers = slices.DeleteFunc(m.peers, func(q domain.Peer) bool { return q.ID == id })
	return len(m.peers) != before
}

func (m *Membership) Snapshot() (domain.Peer, []domain.Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self, slices.Clone(m.peers)
}

func (m *Membership) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers) + 1
}

func (m *Membership) isSelf(id domain.UserID) bool {
	return m.self.ID != "" && id == m.self.ID
}
