package core

import (
	"context"

	"github.com/dkeye/Conference/internal/domain"
)

// ChatStore persists room chat on the server.
type ChatStore interface {
	Append(ctx context.Context, room domain.RoomID, msg domain.ChatMessage) error
	History(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error)
	Close() error
}

// ChatHistory is the client's view of the chat store.
type ChatHistory interface {
	Fetch(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error)
	Append(ctx context.Context, room domain.RoomID, msg domain.ChatMessage) error
}
