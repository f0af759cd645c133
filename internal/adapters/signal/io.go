package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	// Closing the socket here also unblocks readPump.
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.OnDisconnect(sid, c)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

// handleSignal dispatches one request. Media requests may block on ICE and DTLS,
// so they run off the read loop; everything else is answered in order.
func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	if !msg.Request {
		log.Warn().Str("module", "signal").Str("method", msg.Method).Msg("ignoring non-request frame")
		return
	}

	switch protocol.Method(msg.Method) {
	case protocol.MethodCreateRoom:
		ctl.handleCreateRoom(sid, c, msg)
	case protocol.MethodJoinRoom:
		ctl.handleJoin(sid, c, msg)
	case protocol.MethodGetInRoomUsers:
		ctl.handleUsers(sid, c, msg)
	case protocol.MethodExitRoom:
		ctl.handleExit(sid, c, msg)
	case protocol.MethodGetRouterCapabilities:
		ctl.handleCapabilities(sid, c, msg)
	case protocol.MethodGetProducers:
		ctl.handleProducers(sid, c, msg)
	case protocol.MethodCloseProducer:
		ctl.handleCloseProducer(sid, c, msg)
	case protocol.MethodUserChat:
		ctl.handleChat(sid, c, msg)
	case protocol.MethodCreateTransport:
		go ctl.handleCreateTransport(ctx, sid, c, msg)
	case protocol.MethodConnectTransport:
		go ctl.handleConnectTransport(ctx, sid, c, msg)
	case protocol.MethodProduce:
		go ctl.handleProduce(ctx, sid, c, msg)
	case protocol.MethodConsume:
		go ctl.handleConsume(ctx, sid, c, msg)
	default:
		log.Warn().Str("module", "signal").Str("method", msg.Method).Msg("unknown signal")
		ctl.reply(c, msg, nil, errUnknownMethod(msg.Method))
	}
}

// reply answers req with payload, or with an error response when err is set.
func (ctl *SignalWSController) reply(c *WsSignalConn, req protocol.Message, payload any, err error) {
	var resp protocol.Message
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("method", req.Method).Uint64("id", req.ID).Msg("request failed")
		resp = protocol.NewErrorResponse(req.ID, err.Error())
	} else if resp, err = protocol.NewResponse(req.ID, payload); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode response")
		resp = protocol.NewErrorResponse(req.ID, "internal error")
	}
	ctl.sendJSON(c, resp)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}

// decode reads the request payload into a fresh T.
func decode[T any](msg protocol.Message) (T, error) {
	var v T
	if err := msg.Decode(&v); err != nil {
		return v, errBadPayload(err)
	}
	return v, nil
}
