package session

import (
	"github.com/dkeye/Conference/internal/protocol"
)

// Dispatch routes one pushed event. The signaling channel calls it from a single
// goroutine, so events apply in arrival order.
func (s *Session) Dispatch(ev protocol.Event) {
	if s.closed() {
		return
	}
	switch e := ev.(type) {
	case protocol.UserJoined:
		s.members.Add(e.User)
		s.commit()
		if e.Message != "" {
			s.observer.OnNotice(e.Message)
		}
	case protocol.UserLeft:
		s.members.Remove(e.User.ID)
		s.commit()
	case protocol.UserChat:
		s.appendChat(e.ChatMessage)
	case protocol.NewProducers:
		if added := s.producers.Announce(e.Producers); len(added) > 0 {
			s.consumers.Trigger(s.ctx)
			s.commit()
		}
	case protocol.ProducerClosed:
		retracted := s.producers.Retract(e.ProducerID)
		dropped := s.consumers.Drop(e.ProducerID)
		if retracted || dropped {
			s.commit()
		}
	default:
		s.logger.Warn().Str("event", string(ev.Type())).Msg("unhandled event")
	}
}
