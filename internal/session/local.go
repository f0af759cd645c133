package session

import (
	"context"
	"fmt"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
)

// ToggleAudio starts or stops the microphone producer and reports whether it is now on.
func (s *Session) ToggleAudio(ctx context.Context) (bool, error) {
	return s.toggle(ctx, domain.KindAudio)
}

func (s *Session) ToggleVideo(ctx context.Context) (bool, error) {
	return s.toggle(ctx, domain.KindVideo)
}

func (s *Session) toggle(ctx context.Context, kind domain.MediaKind) (bool, error) {
	if s.producers.HasLocal(kind) {
		return false, s.StopMedia(ctx, kind)
	}
	if err := s.StartMedia(ctx, kind); err != nil {
		return false, err
	}
	return true, nil
}

// StartMedia acquires local capture for kind and publishes it.
// Acquisition failures leave room state untouched.
func (s *Session) StartMedia(ctx context.Context, kind domain.MediaKind) error {
	op := "start " + string(kind)
	if _, err := s.transports.Send(); err != nil {
		return err
	}
	if !s.device.CanProduce(kind) {
		return core.NewOpError(op, fmt.Errorf("device cannot produce %s", kind), "")
	}
	if s.media == nil {
		return core.NewOpError(op, core.ErrMediaAcquisition, "no media source")
	}
	track, err := s.media.Acquire(ctx, kind)
	if err != nil {
		return core.NewOpError(op, fmt.Errorf("%w: %w", core.ErrMediaAcquisition, err), "")
	}
	if err := s.producers.OpenLocal(ctx, kind, track); err != nil {
		track.Stop()
		return err
	}
	s.commit()
	return nil
}

func (s *Session) StopMedia(ctx context.Context, kind domain.MediaKind) error {
	err := s.producers.CloseLocal(ctx, kind)
	s.commit()
	return err
}
