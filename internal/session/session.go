// Package session runs one participant's stay in a conference room: it bootstraps
// media capability, keeps peers, producers and consumers in step with pushed events
// and recomputes the renderable view after every change.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/chat"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/view"
)

type Options struct {
	RoomID   domain.RoomID
	Name     string
	ForceTCP bool
}

// Observer receives recomputed state. Callbacks run synchronously and must not block.
type Observer interface {
	OnView(participants []view.Participant)
	OnChat(bundles []chat.Bundle)
	OnNotice(message string)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped.
type ObserverFuncs struct {
	View   func([]view.Participant)
	Chat   func([]chat.Bundle)
	Notice func(string)
}

func (o ObserverFuncs) OnView(p []view.Participant) {
	if o.View != nil {
		o.View(p)
	}
}

func (o ObserverFuncs) OnChat(b []chat.Bundle) {
	if o.Chat != nil {
		o.Chat(b)
	}
}

func (o ObserverFuncs) OnNotice(m string) {
	if o.Notice != nil {
		o.Notice(m)
	}
}

type Deps struct {
	Signaler core.Signaler
	Device   core.Device
	Media    core.MediaSource
	History  core.ChatHistory
	Observer Observer
}

type Session struct {
	opts     Options
	sig      core.Signaler
	device   core.Device
	media    core.MediaSource
	history  core.ChatHistory
	observer Observer
	logger   zerolog.Logger

	members    *Membership
	transports *TransportManager
	producers  *ProducerRegistry
	consumers  *ConsumerReconciler

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	joined bool
	left   bool
	chats  []domain.ChatMessage
	view   []view.Participant
	bundle []chat.Bundle

	// serialize recompute+notify so observers never see an older result last
	viewMu sync.Mutex
	chatMu sync.Mutex
}

func New(opts Options, deps Deps) (*Session, error) {
	room, err := domain.ParseRoomID(string(opts.RoomID))
	if err != nil {
		return nil, err
	}
	opts.RoomID = room
	if _, err := domain.NewPeer(opts.Name); err != nil {
		return nil, err
	}
	if deps.Signaler == nil || deps.Device == nil {
		return nil, errors.New("session needs a signaler and a device")
	}
	if deps.Observer == nil {
		deps.Observer = ObserverFuncs{}
	}

	logger := log.With().Str("module", "session").Str("room", string(room)).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:     opts,
		sig:      deps.Signaler,
		device:   deps.Device,
		media:    deps.Media,
		history:  deps.History,
		observer: deps.Observer,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		members:  NewMembership(),
	}
	s.transports = NewTransportManager(deps.Signaler, deps.Device, opts.ForceTCP, logger)
	s.producers = NewProducerRegistry(deps.Signaler, s.transports, logger)
	s.consumers = NewConsumerReconciler(deps.Signaler, deps.Device, s.transports, s.producers, logger)
	s.consumers.OnChange(s.commit)
	s.transports.OnRecvReady(func() { s.consumers.Trigger(s.ctx) })
	s.transports.OnRecvLost(s.handleRecvLost)

	deps.Signaler.Subscribe(s.Dispatch)
	return s, nil
}

func (s *Session) Room() domain.RoomID { return s.opts.RoomID }

func (s *Session) Self() domain.Peer { return s.members.Self() }

// ParticipantCount counts peers plus self.
func (s *Session) ParticipantCount() int { return s.members.Count() }

func (s *Session) TransportState(dir core.TransportDirection) core.TransportState {
	return s.transports.State(dir)
}

// View returns the last computed participant list.
func (s *Session) View() []view.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.view)
}

func (s *Session) Chat() []chat.Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.bundle)
}

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left
}

// commit recomputes the participant view from scratch and notifies the observer.
func (s *Session) commit() {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	self, peers := s.members.Snapshot()
	participants := view.Merge(view.Input{
		Self:          self,
		Peers:         peers,
		Announcements: s.producers.Remote(),
		Streams:       s.consumers.Streams(),
		Local:         s.producers.Local(),
	})

	s.mu.Lock()
	s.view = participants
	s.mu.Unlock()
	s.observer.OnView(slices.Clone(participants))
}

func (s *Session) commitChat() {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()

	s.mu.Lock()
	bundles := chat.Bundles(s.chats)
	s.bundle = bundles
	s.mu.Unlock()
	s.observer.OnChat(slices.Clone(bundles))
}

func (s *Session) handleRecvLost() {
	s.logger.Warn().Msg("receive transport lost, remote media stopped")
	s.consumers.DropAll()
	s.commit()
	s.observer.OnNotice("remote media disconnected")
}
