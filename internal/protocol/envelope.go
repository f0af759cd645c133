package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the single frame shape on the signaling socket.
// Exactly one of Request, Response or Notification is set.
type Message struct {
	Request      bool            `json:"request,omitempty"`
	Response     bool            `json:"response,omitempty"`
	Notification bool            `json:"notification,omitempty"`
	ID           uint64          `json:"id,omitempty"`
	Method       string          `json:"method,omitempty"`
	OK           bool            `json:"ok,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func NewRequest(id uint64, method Method, payload any) (Message, error) {
	data, err := marshalData(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s request: %w", method, err)
	}
	return Message{Request: true, ID: id, Method: string(method), Data: data}, nil
}

func NewResponse(id uint64, payload any) (Message, error) {
	data, err := marshalData(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode response %d: %w", id, err)
	}
	return Message{Response: true, ID: id, OK: true, Data: data}, nil
}

func NewErrorResponse(id uint64, reason string) Message {
	return Message{Response: true, ID: id, OK: false, Error: reason}
}

func NewNotification(ev Event) (Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s notification: %w", ev.Type(), err)
	}
	return Message{Notification: true, Method: string(ev.Type()), Data: data}, nil
}

// Decode unmarshals the message data into out. Empty data leaves out untouched.
func (m Message) Decode(out any) error {
	if out == nil || len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	return json.Unmarshal(m.Data, out)
}

func marshalData(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}
