package sfu

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// PacketSource yields RTP from a producer.
type PacketSource interface {
	ReadRTP() (*rtp.Packet, error)
}

type remoteSource struct{ track *webrtc.TrackRemote }

func (s remoteSource) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := s.track.ReadRTP()
	return pkt, err
}

// TrackSource adapts a pion remote track.
func TrackSource(track *webrtc.TrackRemote) PacketSource {
	return remoteSource{track: track}
}

// Relay fans one producer out to its consumers, keyed by consumer id.
type Relay struct {
	Src PacketSource

	mu        sync.RWMutex
	outTracks map[string]*OutTrack

	received   atomic.Uint64
	onKeyframe func()
	cancel     context.CancelFunc
}

func NewRelay(src PacketSource, onKeyframe func(), cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:        src,
		outTracks:  make(map[string]*OutTrack),
		onKeyframe: onKeyframe,
		cancel:     cancel,
	}
}

// loop reads RTP packets from the source and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, err := r.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay source ended")
			r.markAllDelete()
			return
		}
		r.received.Add(1)
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for consumerID, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, consumerID)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Sink.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("consumer_id", consumerID).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, consumerID)
				continue
			}
			ot.sent.Add(1)
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		if ot, ok := r.outTracks[id]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, id)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(consumerID string, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[consumerID] = ot
}

func (r *Relay) outTrack(consumerID string) (*OutTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ot, ok := r.outTracks[consumerID]
	return ot, ok
}

func (r *Relay) Received() uint64 { return r.received.Load() }

// Forwarded sums packets written to the current subscribers.
func (r *Relay) Forwarded() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n uint64
	for _, ot := range r.outTracks {
		n += ot.Sent()
	}
	return n
}

func (r *Relay) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
