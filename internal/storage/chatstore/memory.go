package chatstore

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Conference/internal/domain"
)

// Memory keeps the last limit messages per room.
type Memory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID][]domain.ChatMessage
	limit int
}

func NewMemory(limit int) *Memory {
	return &Memory{rooms: make(map[domain.RoomID][]domain.ChatMessage), limit: limit}
}

func (m *Memory) Append(_ context.Context, room domain.RoomID, msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chats := append(m.rooms[room], msg)
	if len(chats) > m.limit {
		chats = slices.Clone(chats[len(chats)-m.limit:])
	}
	m.rooms[room] = chats
	return nil
}

func (m *Memory) History(_ context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.rooms[room]), nil
}

func (m *Memory) Close() error { return nil }
