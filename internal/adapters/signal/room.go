package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/protocol"
)

func (ctl *SignalWSController) handleCreateRoom(sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	p, err := decode[protocol.CreateRoomRequest](msg)
	if err != nil {
		ctl.reply(conn, msg, nil, err)
		return
	}
	ctl.reply(conn, msg, nil, ctl.Orch.CreateRoom(sid, p))
}

func (ctl *SignalWSController) handleJoin(sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	p, err := decode[protocol.JoinRoomRequest](msg)
	if err != nil {
		ctl.reply(conn, msg, nil, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room_id", string(p.RoomID)).Msg("join")
	resp, err := ctl.Orch.JoinRoom(sid, p)
	ctl.reply(conn, msg, resp, err)
}

func (ctl *SignalWSController) handleUsers(sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	resp, err := ctl.Orch.Users(sid)
	ctl.reply(conn, msg, resp, err)
}

// handleExit leaves the current room; the socket stays open.
func (ctl *SignalWSController) handleExit(sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	if peer, ok := ctl.Orch.Registry.Peer(sid); ok && ctl.ChatLimiter != nil {
		ctl.ChatLimiter.Forget(peer.ID)
	}
	ctl.reply(conn, msg, nil, ctl.Orch.ExitRoom(sid))
}
