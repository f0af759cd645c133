package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

var ErrAlreadyJoined = errors.New("session already joined")

type step struct {
	name string
	run  func(ctx context.Context) error
}

// steps is the join sequence. Each step waits for the previous one: producing needs a
// loaded device, and consuming needs the receive transport before producers are listed.
func (s *Session) steps() []step {
	return []step{
		{"create room", s.createRoom},
		{"join room", s.joinRoom},
		{"load members", s.loadMembers},
		{"load device", s.loadDevice},
		{"create receive transport", s.transports.CreateRecv},
		{"load producers", s.loadProducers},
		{"create send transport", s.transports.CreateSend},
	}
}

// Join runs the bootstrap sequence. Any failing step aborts the join; call Leave to
// release whatever was set up before the failure.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.joined || s.left {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	s.joined = true
	s.mu.Unlock()

	for i, st := range s.steps() {
		s.logger.Debug().Int("step", i+1).Str("step_name", st.name).Msg("bootstrap step")
		if err := st.run(ctx); err != nil {
			s.logger.Error().Err(err).Int("step", i+1).Str("step_name", st.name).Msg("bootstrap aborted")
			return fmt.Errorf("join %s: %s: %w", s.opts.RoomID, st.name, err)
		}
	}
	s.logger.Info().Str("user", string(s.Self().ID)).Msg("joined")
	s.commit()
	return nil
}

func (s *Session) createRoom(ctx context.Context) error {
	return s.sig.Request(ctx, protocol.MethodCreateRoom, protocol.CreateRoomRequest{RoomID: s.opts.RoomID}, nil)
}

func (s *Session) joinRoom(ctx context.Context) error {
	var resp protocol.JoinRoomResponse
	req := protocol.JoinRoomRequest{RoomID: s.opts.RoomID, Name: s.opts.Name}
	if err := s.sig.Request(ctx, protocol.MethodJoinRoom, req, &resp); err != nil {
		return err
	}
	self := domain.Peer{Name: s.opts.Name}
	if resp.Peer != nil {
		self = *resp.Peer
	} else {
		// Without an id every roster entry, including our own, counts as a remote peer.
		s.logger.Warn().Str("name", s.opts.Name).Msg("join response carried no peer, self cannot be told apart in the roster")
	}
	s.members.SetSelf(self)
	s.logger.Info().Str("user", string(self.ID)).Str("message", resp.Message).Msg("room joined")
	return nil
}

func (s *Session) loadMembers(ctx context.Context) error {
	var resp protocol.InRoomUsersResponse
	if err := s.sig.Request(ctx, protocol.MethodGetInRoomUsers, struct{}{}, &resp); err != nil {
		return err
	}
	s.members.Seed(resp.Users)
	s.commit()
	return nil
}

func (s *Session) loadDevice(ctx context.Context) error {
	var caps protocol.RtpCapabilities
	if err := s.sig.Request(ctx, protocol.MethodGetRouterCapabilities, struct{}{}, &caps); err != nil {
		return err
	}
	if caps.Empty() {
		return core.NewOpError("load device", core.ErrCapabilityLoad, "router returned no codecs")
	}
	if s.device.Loaded() {
		s.logger.Warn().Msg("device already loaded")
		return nil
	}
	if err := s.device.Load(caps); err != nil {
		return core.NewOpError("load device", fmt.Errorf("%w: %w", core.ErrCapabilityLoad, err), "")
	}
	return nil
}

func (s *Session) loadProducers(ctx context.Context) error {
	var anns []domain.ProducerAnnouncement
	if err := s.sig.Request(ctx, protocol.MethodGetProducers, struct{}{}, &anns); err != nil {
		return err
	}
	if added := s.producers.Announce(anns); len(added) > 0 {
		s.consumers.Trigger(s.ctx)
	}
	s.commit()
	return nil
}
