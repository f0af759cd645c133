package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// PacketSink receives forwarded RTP. *webrtc.TrackLocalStaticRTP satisfies it.
type PacketSink interface {
	WriteRTP(*rtp.Packet) error
}

// OutTrack represents a single consumer of a relayed producer.
type OutTrack struct {
	Sink  PacketSink
	state atomic.Int32 // Zero by default (TrackStateOk)
	sent  atomic.Uint64
}

func NewOutTrack(sink PacketSink) *OutTrack {
	return &OutTrack{Sink: sink}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

// MarkMuted holds forwarding, e.g. until the consumer's transport is connected.
func (ot *OutTrack) MarkMuted() {
	ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

func (ot *OutTrack) Sent() uint64 { return ot.sent.Load() }
