package core

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/domain"
)

type producerEntry struct {
	owner SessionID
	ann   domain.ProducerAnnouncement
}

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id     domain.RoomID
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
	order  []SessionID
	byProd map[domain.ProducerID]producerEntry
	prods  []domain.ProducerID
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:     id,
		bySID:  make(map[SessionID]MemberSession),
		byProd: make(map[domain.ProducerID]producerEntry),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Member(sid SessionID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.bySID[sid]
	return ms, ok
}

func (r *roomImpl) Sessions() []SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SessionID(nil), r.order...)
}

// AddMember returns false when the session is already a member.
func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		r.bySID[sid] = ms
		return false
	}
	r.bySID[sid] = ms
	r.order = append(r.order, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Str("user", string(ms.Meta().Peer.ID)).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(sid SessionID) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return nil, false
	}
	delete(r.bySID, sid)
	r.order = lo.Without(r.order, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Msg("member removed")
	return ms, true
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, sid := range r.order {
		if sid == from {
			continue
		}
		if err := r.bySID[sid].Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Members() []domain.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(sid SessionID, _ int) domain.Peer {
		return r.bySID[sid].Meta().Peer
	})
}

func (r *roomImpl) AddProducer(owner SessionID, ann domain.ProducerAnnouncement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byProd[ann.ProducerID]; ok {
		return
	}
	r.byProd[ann.ProducerID] = producerEntry{owner: owner, ann: ann}
	r.prods = append(r.prods, ann.ProducerID)
}

func (r *roomImpl) RemoveProducer(id domain.ProducerID) (SessionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byProd[id]
	if !ok {
		return "", false
	}
	delete(r.byProd, id)
	r.prods = lo.Without(r.prods, id)
	return e.owner, true
}

func (r *roomImpl) ProducerOwner(id domain.ProducerID) (SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byProd[id]
	return e.owner, ok
}

func (r *roomImpl) Producers(except SessionID) []domain.ProducerAnnouncement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ProducerAnnouncement, 0, len(r.prods))
	for _, id := range r.prods {
		if e := r.byProd[id]; e.owner != except {
			out = append(out, e.ann)
		}
	}
	return out
}

func (r *roomImpl) ProducersOf(owner SessionID) []domain.ProducerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(r.prods, func(id domain.ProducerID, _ int) bool {
		return r.byProd[id].owner == owner
	})
}
