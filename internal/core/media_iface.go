package core

import (
	"context"

	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

type TransportState string

const (
	TransportNew          TransportState = "new"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportFailed       TransportState = "failed"
	TransportClosed       TransportState = "closed"
)

// Terminal reports whether a transport in this state can no longer carry media.
func (s TransportState) Terminal() bool {
	return s == TransportDisconnected || s == TransportFailed || s == TransportClosed
}

// TransportNegotiator is implemented by the session and invoked by the media engine
// when a transport needs the server half of a handshake.
type TransportNegotiator interface {
	// OnConnectNegotiation forwards local connection parameters; a nil return completes the connect.
	OnConnectNegotiation(ctx context.Context, transportID string, params protocol.ConnectParameters) error
	// OnProduceNegotiation obtains the server-side producer id for a new outbound track.
	OnProduceNegotiation(ctx context.Context, transportID string, kind domain.MediaKind, rtp protocol.RtpParameters) (domain.ProducerID, error)
}

// Device is the local media engine: it loads router capabilities and builds transports.
type Device interface {
	Load(caps protocol.RtpCapabilities) error
	Loaded() bool
	RtpCapabilities() protocol.RtpCapabilities
	CanProduce(kind domain.MediaKind) bool
	CreateSendTransport(params protocol.TransportParams, neg TransportNegotiator) (SendTransport, error)
	CreateRecvTransport(params protocol.TransportParams, neg TransportNegotiator) (RecvTransport, error)
}

type Transport interface {
	ID() string
	Direction() TransportDirection
	State() TransportState
	// OnStateChange replaces the state callback.
	OnStateChange(func(TransportState))
	Close() error
}

type SendTransport interface {
	Transport
	Produce(ctx context.Context, track LocalTrack) (Producer, error)
}

type ConsumeOptions struct {
	ID            string
	ProducerID    domain.ProducerID
	Kind          domain.MediaKind
	RtpParameters protocol.RtpParameters
}

type RecvTransport interface {
	Transport
	Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error)
}

type Producer interface {
	ID() domain.ProducerID
	Kind() domain.MediaKind
	Close() error
}

type Consumer interface {
	ID() string
	ProducerID() domain.ProducerID
	Kind() domain.MediaKind
	Track() RemoteTrack
	Close() error
}

type Track interface {
	ID() string
	Kind() domain.MediaKind
}

// LocalTrack is a captured track; Stop releases the capture.
type LocalTrack interface {
	Track
	Stop()
}

type RemoteTrack interface {
	Track
}

// MediaSource acquires local capture for a kind (microphone, camera or a file).
type MediaSource interface {
	Acquire(ctx context.Context, kind domain.MediaKind) (LocalTrack, error)
}
