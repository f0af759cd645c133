package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

var ErrLocalProducerExists = errors.New("local producer already open")

// ProducerRegistry tracks remote producer announcements and this participant's
// outbound producers (at most one per kind).
type ProducerRegistry struct {
	sig        core.Signaler
	transports *TransportManager
	logger     zerolog.Logger

	mu      sync.Mutex
	remote  []domain.ProducerAnnouncement
	owners  map[domain.ProducerID]domain.UserID
	local   map[domain.MediaKind]core.LocalMedia
	opening map[domain.MediaKind]bool
}

func NewProducerRegistry(sig core.Signaler, transports *TransportManager, logger zerolog.Logger) *ProducerRegistry {
	return &ProducerRegistry{
		sig:        sig,
		transports: transports,
		logger:     logger.With().Str("component", "producers").Logger(),
		owners:     make(map[domain.ProducerID]domain.UserID),
		local:      make(map[domain.MediaKind]core.LocalMedia),
		opening:    make(map[domain.MediaKind]bool),
	}
}

// Announce merges a batch into the remote set and returns what was new.
// Ids already known are ignored.
func (r *ProducerRegistry) Announce(batch []domain.ProducerAnnouncement) []domain.ProducerAnnouncement {
	r.mu.Lock()
	defer r.mu.Unlock()
	var added []domain.ProducerAnnouncement
	for _, ann := range batch {
		if ann.ProducerID == "" {
			continue
		}
		if _, ok := r.owners[ann.ProducerID]; ok {
			r.logger.Debug().Str("producer_id", string(ann.ProducerID)).Msg("duplicate announcement ignored")
			continue
		}
		r.owners[ann.ProducerID] = ann.UserID
		r.remote = append(r.remote, ann)
		added = append(added, ann)
	}
	return added
}

func (r *ProducerRegistry) Retract(id domain.ProducerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[id]; !ok {
		return false
	}
	delete(r.owners, id)
	r.remote = slices.DeleteFunc(r.remote, func(a domain.ProducerAnnouncement) bool { return a.ProducerID == id })
	return true
}

func (r *ProducerRegistry) Has(id domain.ProducerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.owners[id]
	return ok
}

func (r *ProducerRegistry) Remote() []domain.ProducerAnnouncement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.remote)
}

func (r *ProducerRegistry) Local() []core.LocalMedia {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(r.local)
}

func (r *ProducerRegistry) HasLocal(kind domain.MediaKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.local[kind]
	return ok
}

// OpenLocal produces track on the send transport and keeps it under kind.
// The track stays owned by the caller when this fails.
func (r *ProducerRegistry) OpenLocal(ctx context.Context, kind domain.MediaKind, track core.LocalTrack) error {
	if !kind.IsMedia() {
		return fmt.Errorf("cannot produce kind %q", kind)
	}
	r.mu.Lock()
	if _, ok := r.local[kind]; ok || r.opening[kind] {
		r.mu.Unlock()
		return ErrLocalProducerExists
	}
	r.opening[kind] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.opening, kind)
		r.mu.Unlock()
	}()

	send, err := r.transports.Send()
	if err != nil {
		return err
	}
	producer, err := send.Produce(ctx, track)
	if err != nil {
		return core.NewOpError("produce "+string(kind), err, send.ID())
	}

	r.mu.Lock()
	r.local[kind] = core.LocalMedia{Kind: kind, Producer: producer, Track: track, Stream: core.NewMediaStream(track)}
	r.mu.Unlock()
	r.logger.Info().Str("kind", string(kind)).Str("producer_id", string(producer.ID())).Msg("local producer open")
	return nil
}

// CloseLocal tells the server first, then releases the engine producer and the track.
func (r *ProducerRegistry) CloseLocal(ctx context.Context, kind domain.MediaKind) error {
	r.mu.Lock()
	lm, ok := r.local[kind]
	delete(r.local, kind)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	var errs []error
	req := protocol.CloseProducerRequest{ProducerID: lm.Producer.ID()}
	if err := r.sig.Request(ctx, protocol.MethodCloseProducer, req, nil); err != nil {
		errs = append(errs, core.NewOpError("close producer", err, string(lm.Producer.ID())))
	}
	errs = append(errs, release(lm))
	r.logger.Info().Str("kind", string(kind)).Str("producer_id", string(lm.Producer.ID())).Msg("local producer closed")
	return errors.Join(errs...)
}

// ReleaseAll drops every local producer without telling the server.
func (r *ProducerRegistry) ReleaseAll() error {
	r.mu.Lock()
	local := r.local
	r.local = make(map[domain.MediaKind]core.LocalMedia)
	r.mu.Unlock()

	var errs []error
	for _, lm := range local {
		errs = append(errs, release(lm))
	}
	return errors.Join(errs...)
}

func release(lm core.LocalMedia) error {
	err := lm.Producer.Close()
	lm.Track.Stop()
	if err != nil {
		return core.NewOpError("close local producer", err, string(lm.Producer.ID()))
	}
	return nil
}
