package orch

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

// Chat relays a message to the caller's room mates. The sender is always the
// caller's own peer; the client's timestamp is kept so history merges match.
func (o *Orchestrator) Chat(sid core.SessionID, msg domain.ChatMessage) (domain.ChatMessage, error) {
	room, err := o.room(sid)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	peer, ok := o.Registry.Peer(sid)
	if !ok {
		return domain.ChatMessage{}, ErrNotInRoom
	}
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	stamped, err := domain.NewChatMessage(peer, msg.Text, at)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.ID())).Msg("chat")
	o.broadcast(room, sid, protocol.UserChat{ChatMessage: stamped})
	return stamped, nil
}
