package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

var (
	ErrDeviceNotLoaded = errors.New("device not loaded")
	ErrNoUsableCodec   = errors.New("no usable audio or video codec")
)

// Device is the client media engine on top of pion's ORTC API.
type Device struct {
	settings Settings
	logger   zerolog.Logger

	mu     sync.RWMutex
	api    *webrtc.API
	caps   protocol.RtpCapabilities
	loaded bool
}

func NewDevice(settings Settings) *Device {
	return &Device{
		settings: settings,
		logger:   log.With().Str("module", "rtc.device").Logger(),
	}
}

func (d *Device) Load(caps protocol.RtpCapabilities) error {
	if caps.Empty() {
		return core.ErrCapabilityLoad
	}
	api, accepted, err := newAPI(caps.Codecs, d.settings)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCapabilityLoad, err)
	}
	if len(accepted) == 0 {
		return fmt.Errorf("%w: %w", core.ErrCapabilityLoad, ErrNoUsableCodec)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.api = api
	d.caps = protocol.RtpCapabilities{
		Codecs: accepted,
		HeaderExtensions: lo.Filter(caps.HeaderExtensions, func(h protocol.RtpHeaderExtension, _ int) bool {
			return h.Kind.IsMedia()
		}),
	}
	d.loaded = true
	d.logger.Info().Int("codecs", len(accepted)).Msg("device loaded")
	return nil
}

func (d *Device) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

func (d *Device) RtpCapabilities() protocol.RtpCapabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caps
}

func (d *Device) CanProduce(kind domain.MediaKind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.ContainsBy(d.caps.Codecs, func(c protocol.RtpCodecCapability) bool {
		return c.Kind == kind
	})
}

func (d *Device) CreateSendTransport(params protocol.TransportParams, neg core.TransportNegotiator) (core.SendTransport, error) {
	return d.newTransport(params, core.DirectionSend, neg)
}

func (d *Device) CreateRecvTransport(params protocol.TransportParams, neg core.TransportNegotiator) (core.RecvTransport, error) {
	return d.newTransport(params, core.DirectionRecv, neg)
}

func (d *Device) newTransport(params protocol.TransportParams, dir core.TransportDirection, neg core.TransportNegotiator) (*Transport, error) {
	d.mu.RLock()
	api, caps, loaded := d.api, d.caps, d.loaded
	d.mu.RUnlock()
	if !loaded {
		return nil, ErrDeviceNotLoaded
	}
	if params.ID == "" {
		return nil, errors.New("transport params without id")
	}
	st, err := newStack(api, d.settings.iceServers())
	if err != nil {
		return nil, err
	}
	return newTransport(api, st, params, dir, caps, neg), nil
}
