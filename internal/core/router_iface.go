package core

import (
	"context"

	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

// MediaRouter is the server-side media plane. Transports, producers and consumers
// are owned by the session that created them.
type MediaRouter interface {
	RtpCapabilities() protocol.RtpCapabilities
	CreateTransport(ctx context.Context, owner SessionID, req protocol.CreateTransportRequest) (protocol.TransportParams, error)
	ConnectTransport(ctx context.Context, owner SessionID, req protocol.ConnectTransportRequest) error
	Produce(ctx context.Context, owner SessionID, req protocol.ProduceRequest) (domain.ProducerID, error)
	Consume(ctx context.Context, owner SessionID, req protocol.ConsumeRequest) (protocol.ConsumeResponse, error)
	CloseProducer(owner SessionID, id domain.ProducerID) error
	// CloseSession releases every transport owned by the session.
	CloseSession(owner SessionID)
}
