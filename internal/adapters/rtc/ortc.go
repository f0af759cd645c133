package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/protocol"
)

// stack is one ICE gatherer, ICE transport and DTLS transport. Both sides of
// a media transport are built from it.
type stack struct {
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	gatherOnce sync.Once
	gathered   chan struct{}
	gatherErr  error
}

func newStack(api *webrtc.API, servers []webrtc.ICEServer) (*stack, error) {
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	return &stack{gatherer: gatherer, ice: ice, dtls: dtls, gathered: make(chan struct{})}, nil
}

// gather collects local candidates and blocks until gathering completes.
func (s *stack) gather(ctx context.Context) error {
	s.gatherOnce.Do(func() {
		var once sync.Once
		s.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				once.Do(func() { close(s.gathered) })
			}
		})
		if err := s.gatherer.Gather(); err != nil {
			s.gatherErr = fmt.Errorf("gather: %w", err)
			once.Do(func() { close(s.gathered) })
		}
	})
	select {
	case <-s.gathered:
		return s.gatherErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

type localParams struct {
	ice        protocol.IceParameters
	candidates []protocol.IceCandidate
	dtls       protocol.DtlsParameters
}

func (s *stack) local() (localParams, error) {
	ice, err := s.gatherer.GetLocalParameters()
	if err != nil {
		return localParams{}, fmt.Errorf("local ice parameters: %w", err)
	}
	cands, err := s.gatherer.GetLocalCandidates()
	if err != nil {
		return localParams{}, fmt.Errorf("local candidates: %w", err)
	}
	dtls, err := s.dtls.GetLocalParameters()
	if err != nil {
		return localParams{}, fmt.Errorf("local dtls parameters: %w", err)
	}
	return localParams{
		ice:        fromICEParameters(ice),
		candidates: fromICECandidates(cands),
		dtls:       fromDTLSParameters(dtls),
	}, nil
}

// start runs ICE and then DTLS against the remote half. It blocks until the
// DTLS handshake finishes.
func (s *stack) start(remoteICE protocol.IceParameters, remoteCands []protocol.IceCandidate, role webrtc.ICERole, remoteDTLS webrtc.DTLSParameters) error {
	cands, err := toICECandidates(remoteCands)
	if err != nil {
		return err
	}
	if err := s.ice.SetRemoteCandidates(cands); err != nil {
		return fmt.Errorf("remote candidates: %w", err)
	}
	if err := s.ice.Start(nil, toICEParameters(remoteICE), &role); err != nil {
		return fmt.Errorf("ice start: %w", err)
	}
	if err := s.dtls.Start(remoteDTLS); err != nil {
		return fmt.Errorf("dtls start: %w", err)
	}
	return nil
}

func (s *stack) close() error {
	return errors.Join(s.dtls.Stop(), s.ice.Stop(), s.gatherer.Close())
}

func iceState(st webrtc.ICETransportState) (core.TransportState, bool) {
	switch st {
	case webrtc.ICETransportStateChecking:
		return core.TransportConnecting, true
	case webrtc.ICETransportStateDisconnected:
		return core.TransportDisconnected, true
	case webrtc.ICETransportStateFailed:
		return core.TransportFailed, true
	case webrtc.ICETransportStateClosed:
		return core.TransportClosed, true
	default:
		return "", false
	}
}

func dtlsState(st webrtc.DTLSTransportState) (core.TransportState, bool) {
	switch st {
	case webrtc.DTLSTransportStateConnecting:
		return core.TransportConnecting, true
	case webrtc.DTLSTransportStateConnected:
		return core.TransportConnected, true
	case webrtc.DTLSTransportStateFailed:
		return core.TransportFailed, true
	case webrtc.DTLSTransportStateClosed:
		return core.TransportClosed, true
	default:
		return "", false
	}
}
