package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Conference/internal/domain"
)

// Event is the closed set of server-pushed notifications.
// Handlers type-switch over the concrete types below.
type Event interface {
	Type() EventType
	event()
}

type UserJoined struct {
	User    domain.Peer `json:"user"`
	Message string      `json:"message"`
}

type UserLeft struct {
	User domain.Peer `json:"user"`
}

type UserChat struct {
	domain.ChatMessage
}

type NewProducers struct {
	Producers []domain.ProducerAnnouncement
}

type ProducerClosed struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

func (UserJoined) Type() EventType     { return EventUserJoined }
func (UserLeft) Type() EventType       { return EventUserLeft }
func (UserChat) Type() EventType       { return EventUserChat }
func (NewProducers) Type() EventType   { return EventNewProducers }
func (ProducerClosed) Type() EventType { return EventProducerClosed }

func (UserJoined) event()     {}
func (UserLeft) event()       {}
func (UserChat) event()       {}
func (NewProducers) event()   {}
func (ProducerClosed) event() {}

// NEW_PRODUCERS carries a bare array on the wire.
func (e NewProducers) MarshalJSON() ([]byte, error) {
	if e.Producers == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.Producers)
}

func (e *NewProducers) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &e.Producers)
}

// DecodeEvent turns a notification frame into its typed event.
func DecodeEvent(method string, data json.RawMessage) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch EventType(method) {
	case EventUserJoined:
		var e UserJoined
		err = json.Unmarshal(data, &e)
		ev = e
	case EventUserLeft:
		var e UserLeft
		err = json.Unmarshal(data, &e)
		ev = e
	case EventUserChat:
		var e UserChat
		err = json.Unmarshal(data, &e)
		ev = e
	case EventNewProducers:
		var e NewProducers
		err = json.Unmarshal(data, &e)
		ev = e
	case EventProducerClosed:
		var e ProducerClosed
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event %q", method)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return ev, nil
}
