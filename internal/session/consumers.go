package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

// ConsumerReconciler consumes every announced remote producer exactly once.
type ConsumerReconciler struct {
	sig        core.Signaler
	device     core.Device
	transports *TransportManager
	producers  *ProducerRegistry
	logger     zerolog.Logger

	mu       sync.Mutex
	streams  map[domain.ProducerID]core.ConsumedStream
	order    []domain.ProducerID
	inflight map[domain.ProducerID]struct{}
	ignored  map[domain.ProducerID]struct{}
	onChange func()
	running  bool
	dirty    bool
	closed   bool
	wg       sync.WaitGroup
}

func NewConsumerReconciler(sig core.Signaler, device core.Device, transports *TransportManager, producers *ProducerRegistry, logger zerolog.Logger) *ConsumerReconciler {
	return &ConsumerReconciler{
		sig:        sig,
		device:     device,
		transports: transports,
		producers:  producers,
		logger:     logger.With().Str("component", "consumers").Logger(),
		streams:    make(map[domain.ProducerID]core.ConsumedStream),
		inflight:   make(map[domain.ProducerID]struct{}),
		ignored:    make(map[domain.ProducerID]struct{}),
		onChange:   func() {},
	}
}

func (r *ConsumerReconciler) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Trigger schedules a reconciliation pass. Triggers that land while a pass runs
// collapse into one more pass.
func (r *ConsumerReconciler) Trigger(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.dirty = true
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		for {
			r.mu.Lock()
			if !r.dirty || r.closed || ctx.Err() != nil {
				r.running = false
				r.mu.Unlock()
				return
			}
			r.dirty = false
			r.mu.Unlock()
			r.Reconcile(ctx)
		}
	}()
}

// Wait blocks until no pass is running.
func (r *ConsumerReconciler) Wait() {
	r.wg.Wait()
}

// Reconcile runs one pass synchronously. Without a receive transport the pass is
// deferred; the transport manager triggers again once it exists.
func (r *ConsumerReconciler) Reconcile(ctx context.Context) {
	recv, err := r.transports.Recv()
	if err != nil {
		r.logger.Debug().Msg("receive transport not ready, consumption deferred")
		return
	}

	remote := r.producers.Remote()
	r.mu.Lock()
	todo := lo.Filter(remote, func(a domain.ProducerAnnouncement, _ int) bool {
		_, consumed := r.streams[a.ProducerID]
		_, busy := r.inflight[a.ProducerID]
		_, skip := r.ignored[a.ProducerID]
		return !consumed && !busy && !skip
	})
	for _, a := range todo {
		r.inflight[a.ProducerID] = struct{}{}
	}
	r.mu.Unlock()

	for _, ann := range todo {
		if err := r.consume(ctx, recv, ann); err != nil {
			r.logger.Warn().Err(err).Str("producer_id", string(ann.ProducerID)).Str("user", string(ann.UserID)).Msg("consume failed, will retry on next change")
		}
	}
}

func (r *ConsumerReconciler) consume(ctx context.Context, recv core.RecvTransport, ann domain.ProducerAnnouncement) error {
	id := ann.ProducerID
	req := protocol.ConsumeRequest{
		RtpCapabilities:     r.device.RtpCapabilities(),
		ConsumerTransportID: recv.ID(),
		ProducerID:          id,
	}
	var resp protocol.ConsumeResponse
	if err := r.sig.Request(ctx, protocol.MethodConsume, req, &resp); err != nil {
		r.settle(id)
		return negotiationError("consume", string(id), err)
	}
	if !resp.Kind.IsMedia() {
		r.mu.Lock()
		delete(r.inflight, id)
		r.ignored[id] = struct{}{}
		r.mu.Unlock()
		r.logger.Debug().Str("producer_id", string(id)).Str("kind", string(resp.Kind)).Msg("non media producer ignored")
		return nil
	}

	consumer, err := recv.Consume(ctx, core.ConsumeOptions{
		ID:            resp.ID,
		ProducerID:    id,
		Kind:          resp.Kind,
		RtpParameters: resp.RtpParameters,
	})
	if err != nil {
		r.settle(id)
		return core.NewOpError("consume", err, string(id))
	}

	// the announcement may have been retracted while the request was out;
	// Retract always precedes Drop, so checking under r.mu cannot leak a stream
	r.mu.Lock()
	delete(r.inflight, id)
	if !r.producers.Has(id) || r.closed {
		r.mu.Unlock()
		_ = consumer.Close()
		r.logger.Debug().Str("producer_id", string(id)).Msg("producer gone before consumer was ready")
		return nil
	}
	r.streams[id] = core.ConsumedStream{
		ProducerID: id,
		Kind:       resp.Kind,
		Consumer:   consumer,
		Stream:     core.NewMediaStream(consumer.Track()),
	}
	r.order = append(r.order, id)
	notify := r.onChange
	r.mu.Unlock()

	r.logger.Info().Str("producer_id", string(id)).Str("consumer_id", consumer.ID()).Str("kind", string(resp.Kind)).Msg("consuming")
	notify()
	return nil
}

func (r *ConsumerReconciler) settle(id domain.ProducerID) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

// Drop tears down the stream for a retracted producer.
func (r *ConsumerReconciler) Drop(id domain.ProducerID) bool {
	r.mu.Lock()
	s, ok := r.streams[id]
	delete(r.streams, id)
	delete(r.ignored, id)
	if ok {
		r.order = lo.Without(r.order, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := s.Consumer.Close(); err != nil {
		r.logger.Warn().Err(err).Str("producer_id", string(id)).Msg("close consumer")
	}
	return true
}

// DropAll tears down every stream, e.g. after the receive transport is gone.
func (r *ConsumerReconciler) DropAll() {
	r.mu.Lock()
	streams := r.streams
	r.streams = make(map[domain.ProducerID]core.ConsumedStream)
	r.order = nil
	r.mu.Unlock()
	for id, s := range streams {
		if err := s.Consumer.Close(); err != nil {
			r.logger.Warn().Err(err).Str("producer_id", string(id)).Msg("close consumer")
		}
	}
}

// Close stops further passes and drops every stream.
func (r *ConsumerReconciler) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.DropAll()
}

func (r *ConsumerReconciler) Streams() []core.ConsumedStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.order, func(id domain.ProducerID, _ int) core.ConsumedStream { return r.streams[id] })
}
