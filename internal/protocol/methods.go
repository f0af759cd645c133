// Package protocol holds the wire vocabulary shared by the conference client and server:
// request methods, push events, the envelope and the media parameter structs.
package protocol

type Method string

const (
	MethodCreateRoom            Method = "CREATE_ROOM"
	MethodJoinRoom              Method = "JOIN_ROOM"
	MethodGetInRoomUsers        Method = "GET_IN_ROOM_USERS"
	MethodGetRouterCapabilities Method = "GET_ROUTER_RTP_CAPABILITIES"
	MethodCreateTransport       Method = "CREATE_WEBRTC_TRANSPORT"
	MethodConnectTransport      Method = "CONNECT_TRANSPORT"
	MethodProduce               Method = "PRODUCE"
	MethodGetProducers          Method = "GET_PRODUCERS"
	MethodConsume               Method = "CONSUME"
	MethodCloseProducer         Method = "CLOSE_PRODUCER"
	MethodUserChat              Method = "USER_CHAT"
	MethodExitRoom              Method = "EXIT_ROOM"
)

type EventType string

const (
	EventUserJoined     EventType = "USER_JOINED"
	EventUserLeft       EventType = "USER_LEFT"
	EventUserChat       EventType = "USER_CHAT"
	EventNewProducers   EventType = "NEW_PRODUCERS"
	EventProducerClosed EventType = "PRODUCER_CLOSED"
)
