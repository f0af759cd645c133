package session

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

const historyTimeout = 5 * time.Second

var ErrNoHistory = errors.New("chat history not configured")

// SendChat sends text to the room. Once the server acks, the message shows locally and
// is handed to the history store without waiting for it.
func (s *Session) SendChat(ctx context.Context, text string) error {
	msg, err := domain.NewChatMessage(s.Self(), text, time.Now())
	if err != nil {
		return err
	}
	if err := s.sig.Request(ctx, protocol.MethodUserChat, msg, nil); err != nil {
		return core.NewOpError("send chat", err, "")
	}
	s.appendChat(msg)

	if s.history != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
			defer cancel()
			if err := s.history.Append(ctx, s.opts.RoomID, msg); err != nil {
				s.logger.Warn().Err(err).Msg("chat append failed")
			}
		}()
	}
	return nil
}

// LoadChatHistory replaces local chat with the stored history, keeping messages
// pushed meanwhile that the store does not have yet.
func (s *Session) LoadChatHistory(ctx context.Context) error {
	if s.history == nil {
		return ErrNoHistory
	}
	stored, err := s.history.Fetch(ctx, s.opts.RoomID)
	if err != nil {
		return core.NewOpError("load chat history", err, string(s.opts.RoomID))
	}

	s.mu.Lock()
	s.chats = mergeChats(stored, s.chats)
	s.mu.Unlock()
	s.commitChat()
	return nil
}

func (s *Session) appendChat(msg domain.ChatMessage) {
	s.mu.Lock()
	s.chats = append(s.chats, msg)
	s.mu.Unlock()
	s.commitChat()
}

type chatKey struct {
	sender domain.UserID
	at     int64
	text   string
}

func keyOf(m domain.ChatMessage) chatKey {
	return chatKey{sender: m.Sender.ID, at: m.CreatedAt.UnixNano(), text: m.Text}
}

func mergeChats(stored, local []domain.ChatMessage) []domain.ChatMessage {
	seen := make(map[chatKey]struct{}, len(stored))
	out := make([]domain.ChatMessage, 0, len(stored)+len(local))
	for _, m := range stored {
		seen[keyOf(m)] = struct{}{}
		out = append(out, m)
	}
	for _, m := range local {
		if _, ok := seen[keyOf(m)]; !ok {
			out = append(out, m)
		}
	}
	return out
}
