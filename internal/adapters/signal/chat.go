package signal

import (
	"errors"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

var ErrChatRateLimited = errors.New("too many messages, slow down")

func (ctl *SignalWSController) handleChat(sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	p, err := decode[domain.ChatMessage](msg)
	if err != nil {
		ctl.reply(conn, msg, nil, err)
		return
	}
	if peer, ok := ctl.Orch.Registry.Peer(sid); ok && ctl.ChatLimiter != nil && !ctl.ChatLimiter.Allow(peer.ID) {
		ctl.reply(conn, msg, nil, ErrChatRateLimited)
		return
	}
	_, err = ctl.Orch.Chat(sid, p)
	ctl.reply(conn, msg, nil, err)
}
