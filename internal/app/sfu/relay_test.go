package sfu

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

type chanSource struct{ ch chan *rtp.Packet }

func (s *chanSource) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-s.ch
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

type recordingSink struct {
	mu   sync.Mutex
	seqs []uint16
	fail bool
}

func (s *recordingSink) WriteRTP(p *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("closed pipe")
	}
	s.seqs = append(s.seqs, p.SequenceNumber)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seqs)
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

func TestRelay_FansOutToActiveSubscribersOnly(t *testing.T) {
	req := require.New(t)

	// Given
	m := NewRelayManager()
	src := &chanSource{ch: make(chan *rtp.Packet)}
	m.StartRelay(t.Context(), "p1", src, nil)
	a, b := &recordingSink{}, &recordingSink{}
	muted := NewOutTrack(b)
	muted.MarkMuted()
	req.NoError(m.AddSubscriber("p1", "c-a", NewOutTrack(a)))
	req.NoError(m.AddSubscriber("p1", "c-b", muted))

	// When
	src.ch <- packet(1)
	req.Eventually(func() bool { return a.count() == 1 }, time.Second, 5*time.Millisecond)
	m.ResumeSubscriber("p1", "c-b")
	src.ch <- packet(2)

	// Then
	req.Eventually(func() bool { return a.count() == 2 && b.count() == 1 }, time.Second, 5*time.Millisecond)
	req.Equal([]uint16{2}, b.seqs)
	req.Eventually(func() bool {
		stats := m.Stats()
		return len(stats) == 1 && stats[0].Received == 2 && stats[0].Forwarded == 3 && stats[0].Subscribers == 2
	}, time.Second, 5*time.Millisecond)
	close(src.ch)
}

func TestRelay_FailingSinkIsDropped(t *testing.T) {
	req := require.New(t)

	// Given
	m := NewRelayManager()
	src := &chanSource{ch: make(chan *rtp.Packet)}
	m.StartRelay(t.Context(), "p1", src, nil)
	req.NoError(m.AddSubscriber("p1", "c-bad", NewOutTrack(&recordingSink{fail: true})))

	// When
	src.ch <- packet(1)
	src.ch <- packet(2)

	// Then
	req.Eventually(func() bool {
		stats := m.Stats()
		return len(stats) == 1 && stats[0].Subscribers == 0
	}, time.Second, 5*time.Millisecond)
	m.StopRelay("p1")
	req.False(m.HasRelay("p1"))
}

func TestRelayManager_UnknownProducer(t *testing.T) {
	req := require.New(t)

	// Given
	m := NewRelayManager()
	keyframes := 0
	m.StartRelay(t.Context(), "p1", &chanSource{ch: make(chan *rtp.Packet)}, func() { keyframes++ })

	// When
	err := m.AddSubscriber("p2", "c1", NewOutTrack(&recordingSink{}))
	m.RequestKeyframe("p1")
	m.RequestKeyframe("p2")

	// Then
	req.ErrorIs(err, ErrNoRelay)
	req.Equal(1, keyframes)
}
