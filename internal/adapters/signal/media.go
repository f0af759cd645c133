package signal

import (
	"context"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/protocol"
)

func (ctl *SignalWSController) handleCapabilities(sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	caps, err := ctl.Orch.RtpCapabilities(sid)
	ctl.reply(conn, msg, caps, err)
}

func (ctl *SignalWSController) handleProducers(sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	anns, err := ctl.Orch.Producers(sid)
	ctl.reply(conn, msg, anns, err)
}

func (ctl *SignalWSController) handleCloseProducer(sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	p, err := decode[protocol.CloseProducerRequest](msg)
	if err != nil {
		ctl.reply(conn, msg, nil, err)
		return
	}
	ctl.reply(conn, msg, nil, ctl.Orch.CloseProducer(sid, p))
}

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	p, err := decode[protocol.CreateTransportRequest](msg)
	if err != nil {
		ctl.reply(conn, msg, nil, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, mediaTimeout)
	defer cancel()
	resp, err := ctl.Orch.CreateTransport(ctx, sid, p)
	ctl.reply(conn, msg, resp, err)
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	p, err := decode[protocol.ConnectTransportRequest](msg)
	if err != nil {
		ctl.reply(conn, msg, nil, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, mediaTimeout)
	defer cancel()
	ctl.reply(conn, msg, nil, ctl.Orch.ConnectTransport(ctx, sid, p))
}

func (ctl *SignalWSController) handleProduce(ctx context.Context, sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	p, err := decode[protocol.ProduceRequest](msg)
	if err != nil {
		ctl.reply(conn, msg, nil, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, mediaTimeout)
	defer cancel()
	resp, err := ctl.Orch.Produce(ctx, sid, p)
	ctl.reply(conn, msg, resp, err)
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, sid core.SessionID, conn *WsSignalConn, msg protocol.Message) {
	p, err := decode[protocol.ConsumeRequest](msg)
	if err != nil {
		ctl.reply(conn, msg, nil, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, mediaTimeout)
	defer cancel()
	resp, err := ctl.Orch.Consume(ctx, sid, p)
	ctl.reply(conn, msg, resp, err)
}
