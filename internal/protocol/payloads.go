package protocol

import "github.com/dkeye/Conference/internal/domain"

type CreateRoomRequest struct {
	RoomID domain.RoomID `json:"roomId"`
}

type JoinRoomRequest struct {
	RoomID domain.RoomID `json:"roomId"`
	Name   string        `json:"name"`
}

// JoinRoomResponse echoes the caller's identity as assigned by the server.
type JoinRoomResponse struct {
	Message string       `json:"message"`
	Peer    *domain.Peer `json:"peer,omitempty"`
}

type InRoomUsersResponse struct {
	Users []domain.Peer `json:"users"`
}

type CreateTransportRequest struct {
	ForceTCP        bool             `json:"forceTcp"`
	RtpCapabilities *RtpCapabilities `json:"rtpCapabilities,omitempty"`
}

type CreateTransportResponse struct {
	Params TransportParams `json:"params"`
}

// ConnectParameters is what the local engine hands over for the remote half of the handshake.
type ConnectParameters struct {
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
	IceParameters  *IceParameters `json:"iceParameters,omitempty"`
	IceCandidates  []IceCandidate `json:"iceCandidates,omitempty"`
}

type ConnectTransportRequest struct {
	TransportID string `json:"transportId"`
	ConnectParameters
}

type ProduceRequest struct {
	ProducerTransportID string           `json:"producerTransportId"`
	Kind                domain.MediaKind `json:"kind"`
	RtpParameters       RtpParameters    `json:"rtpParameters"`
}

type ProduceResponse struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

type ConsumeRequest struct {
	RtpCapabilities     RtpCapabilities   `json:"rtpCapabilities"`
	ConsumerTransportID string            `json:"consumerTransportId"`
	ProducerID          domain.ProducerID `json:"producerId"`
}

type ConsumeResponse struct {
	ID            string            `json:"id"`
	ProducerID    domain.ProducerID `json:"producerId"`
	Kind          domain.MediaKind  `json:"kind"`
	RtpParameters RtpParameters     `json:"rtpParameters"`
}

type CloseProducerRequest struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

// ChatHistory is the body of the chat history REST endpoint.
type ChatHistory struct {
	Chats []domain.ChatMessage `json:"chats"`
}
