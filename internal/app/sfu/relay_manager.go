package sfu

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/domain"
)

var ErrNoRelay = errors.New("no relay for producer")

type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.ProducerID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[domain.ProducerID]*Relay),
	}
}

// StartRelay creates a new Relay for the producer and starts its loop.
// onKeyframe is how consumers ask the producer for a fresh keyframe.
func (m *RelayManager) StartRelay(ctx context.Context, producerID domain.ProducerID, src PacketSource, onKeyframe func()) {
	logger := log.With().
		Str("module", "relay").
		Str("producer_id", string(producerID)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, onKeyframe, cancel)

	m.mu.Lock()
	if old, ok := m.relays[producerID]; ok {
		logger.Info().Msg("replacing existing relay for producer")
		old.markAllDelete()
		old.cancel()
	}
	m.relays[producerID] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
}

func (m *RelayManager) relay(producerID domain.ProducerID) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relays[producerID]
	return r, ok
}

// AddSubscriber attaches an OutTrack to the producer's relay.
func (m *RelayManager) AddSubscriber(producerID domain.ProducerID, consumerID string, ot *OutTrack) error {
	relay, ok := m.relay(producerID)
	if !ok {
		return ErrNoRelay
	}
	relay.AddOutTrack(consumerID, ot)
	return nil
}

// ResumeSubscriber lets a muted OutTrack receive packets.
func (m *RelayManager) ResumeSubscriber(producerID domain.ProducerID, consumerID string) {
	relay, ok := m.relay(producerID)
	if !ok {
		return
	}
	if ot, ok := relay.outTrack(consumerID); ok {
		ot.MarkOk()
	}
}

// MarkSubscriberDelete marks the consumer's OutTrack as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(producerID domain.ProducerID, consumerID string) {
	relay, ok := m.relay(producerID)
	if !ok {
		return
	}
	if ot, ok := relay.outTrack(consumerID); ok {
		ot.MarkDelete()
	}
}

// RequestKeyframe forwards a consumer's picture loss to the producer side.
func (m *RelayManager) RequestKeyframe(producerID domain.ProducerID) {
	relay, ok := m.relay(producerID)
	if !ok || relay.onKeyframe == nil {
		return
	}
	relay.onKeyframe()
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(producerID domain.ProducerID) {
	m.mu.Lock()
	relay, ok := m.relays[producerID]
	if ok {
		delete(m.relays, producerID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	relay.cancel()
}

// HasRelay reports whether a relay exists for the producer.
func (m *RelayManager) HasRelay(producerID domain.ProducerID) bool {
	_, ok := m.relay(producerID)
	return ok
}

type RelayStats struct {
	ProducerID  domain.ProducerID `json:"producerId"`
	Received    uint64            `json:"received"`
	Forwarded   uint64            `json:"forwarded"`
	Subscribers int               `json:"subscribers"`
}

func (m *RelayManager) Stats() []RelayStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RelayStats, 0, len(m.relays))
	for id, r := range m.relays {
		out = append(out, RelayStats{ProducerID: id, Received: r.Received(), Forwarded: r.Forwarded(), Subscribers: r.Subscribers()})
	}
	return out
}
