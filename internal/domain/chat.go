package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxChatTextLen = 2000

var (
	ErrChatEmpty   = errors.New("chat message empty")
	ErrChatTooLong = errors.New("chat message too long")
)

type ChatMessage struct {
	Sender    Peer      `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewChatMessage(sender Peer, text string, at time.Time) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrChatEmpty
	}
	if len(text) > MaxChatTextLen {
		return ChatMessage{}, ErrChatTooLong
	}
	return ChatMessage{Sender: sender, Text: text, CreatedAt: at.UTC()}, nil
}
