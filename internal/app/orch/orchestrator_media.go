package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

var ErrNoMediaRouter = errors.New("media router not configured")

func (o *Orchestrator) RtpCapabilities(sid core.SessionID) (protocol.RtpCapabilities, error) {
	if o.Router == nil {
		return protocol.RtpCapabilities{}, ErrNoMediaRouter
	}
	if _, err := o.room(sid); err != nil {
		return protocol.RtpCapabilities{}, err
	}
	return o.Router.RtpCapabilities(), nil
}

func (o *Orchestrator) CreateTransport(ctx context.Context, sid core.SessionID, req protocol.CreateTransportRequest) (protocol.CreateTransportResponse, error) {
	if o.Router == nil {
		return protocol.CreateTransportResponse{}, ErrNoMediaRouter
	}
	if _, err := o.room(sid); err != nil {
		return protocol.CreateTransportResponse{}, err
	}
	params, err := o.Router.CreateTransport(ctx, sid, req)
	if err != nil {
		return protocol.CreateTransportResponse{}, err
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("transport_id", params.ID).Bool("force_tcp", req.ForceTCP).Msg("transport created")
	return protocol.CreateTransportResponse{Params: params}, nil
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, sid core.SessionID, req protocol.ConnectTransportRequest) error {
	if o.Router == nil {
		return ErrNoMediaRouter
	}
	return o.Router.ConnectTransport(ctx, sid, req)
}

// Produce registers the producer with the room and announces it to everyone else.
func (o *Orchestrator) Produce(ctx context.Context, sid core.SessionID, req protocol.ProduceRequest) (protocol.ProduceResponse, error) {
	if o.Router == nil {
		return protocol.ProduceResponse{}, ErrNoMediaRouter
	}
	room, err := o.room(sid)
	if err != nil {
		return protocol.ProduceResponse{}, err
	}
	if _, err := domain.ParseMediaKind(string(req.Kind)); err != nil {
		return protocol.ProduceResponse{}, err
	}
	peer, _ := o.Registry.Peer(sid)

	id, err := o.Router.Produce(ctx, sid, req)
	if err != nil {
		return protocol.ProduceResponse{}, err
	}
	// The member may have left while the router was busy.
	if _, ok := room.Member(sid); !ok {
		_ = o.Router.CloseProducer(sid, id)
		return protocol.ProduceResponse{}, ErrNotInRoom
	}

	ann := domain.ProducerAnnouncement{ProducerID: id, UserID: peer.ID}
	room.AddProducer(sid, ann)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("producer_id", string(id)).Str("kind", string(req.Kind)).Msg("producer announced")
	o.broadcast(room, sid, protocol.NewProducers{Producers: []domain.ProducerAnnouncement{ann}})
	return protocol.ProduceResponse{ProducerID: id}, nil
}

// Producers lists the producers of the caller's room mates.
func (o *Orchestrator) Producers(sid core.SessionID) ([]domain.ProducerAnnouncement, error) {
	room, err := o.room(sid)
	if err != nil {
		return nil, err
	}
	return room.Producers(sid), nil
}

func (o *Orchestrator) Consume(ctx context.Context, sid core.SessionID, req protocol.ConsumeRequest) (protocol.ConsumeResponse, error) {
	if o.Router == nil {
		return protocol.ConsumeResponse{}, ErrNoMediaRouter
	}
	room, err := o.room(sid)
	if err != nil {
		return protocol.ConsumeResponse{}, err
	}
	if _, ok := room.ProducerOwner(req.ProducerID); !ok {
		return protocol.ConsumeResponse{}, ErrProducerNotFound
	}
	return o.Router.Consume(ctx, sid, req)
}

func (o *Orchestrator) CloseProducer(sid core.SessionID, req protocol.CloseProducerRequest) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	owner, ok := room.ProducerOwner(req.ProducerID)
	if !ok {
		return ErrProducerNotFound
	}
	if owner != sid {
		return ErrNotProducerOwner
	}
	room.RemoveProducer(req.ProducerID)
	if o.Router != nil {
		if err := o.Router.CloseProducer(sid, req.ProducerID); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("producer_id", string(req.ProducerID)).Msg("router close producer")
		}
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("producer_id", string(req.ProducerID)).Msg("producer closed")
	o.broadcast(room, sid, protocol.ProducerClosed{ProducerID: req.ProducerID})
	return nil
}
