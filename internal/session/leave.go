package session

import (
	"context"
	"errors"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/protocol"
)

// Leave exits the room and releases everything the session holds. Every step is
// attempted; failures are joined, never short-circuited.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return nil
	}
	s.left = true
	s.mu.Unlock()

	var errs []error
	if err := s.sig.Request(ctx, protocol.MethodExitRoom, struct{}{}, nil); err != nil {
		errs = append(errs, core.NewOpError("exit room", err, string(s.opts.RoomID)))
	}
	s.cancel()
	s.consumers.Close()
	if err := s.transports.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.producers.ReleaseAll(); err != nil {
		errs = append(errs, err)
	}
	if err := s.sig.Close(); err != nil {
		errs = append(errs, core.NewOpError("close signaling", err, ""))
	}
	s.consumers.Wait()

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn().Err(err).Msg("left with errors")
	} else {
		s.logger.Info().Msg("left")
	}
	return err
}
