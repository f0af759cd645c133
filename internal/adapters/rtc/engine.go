package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

// Settings tunes the ICE agent shared by the client device and the server router.
type Settings struct {
	ICEServers      []string
	UDPPortMin      uint16
	UDPPortMax      uint16
	NAT1To1IPs      []string
	IncludeLoopback bool
}

func (s Settings) iceServers() []webrtc.ICEServer {
	if len(s.ICEServers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: s.ICEServers}}
}

// DefaultCodecs is the router codec set: Opus and VP8.
func DefaultCodecs() []protocol.RtpCodecCapability {
	return []protocol.RtpCodecCapability{
		{
			Kind:                 domain.KindAudio,
			MimeType:             webrtc.MimeTypeOpus,
			PreferredPayloadType: 111,
			ClockRate:            48000,
			Channels:             2,
			SdpFmtpLine:          "minptime=10;useinbandfec=1",
		},
		{
			Kind:                 domain.KindVideo,
			MimeType:             webrtc.MimeTypeVP8,
			PreferredPayloadType: 96,
			ClockRate:            90000,
			RtcpFeedback: []protocol.RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
			},
		},
	}
}

// newAPI registers the media codecs of caps and returns the pion API plus the
// codecs that were accepted.
func newAPI(codecs []protocol.RtpCodecCapability, s Settings) (*webrtc.API, []protocol.RtpCodecCapability, error) {
	m := &webrtc.MediaEngine{}
	accepted := make([]protocol.RtpCodecCapability, 0, len(codecs))
	for _, c := range codecs {
		typ, ok := codecType(c.Kind)
		if !ok {
			continue
		}
		if err := m.RegisterCodec(toCodecParameters(c), typ); err != nil {
			return nil, nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
		accepted = append(accepted, c)
	}

	se := webrtc.SettingEngine{}
	if s.UDPPortMin > 0 && s.UDPPortMax >= s.UDPPortMin {
		if err := se.SetEphemeralUDPPortRange(s.UDPPortMin, s.UDPPortMax); err != nil {
			return nil, nil, fmt.Errorf("udp port range: %w", err)
		}
	}
	if len(s.NAT1To1IPs) > 0 {
		se.SetNAT1To1IPs(s.NAT1To1IPs, webrtc.ICECandidateTypeHost)
	}
	se.SetIncludeLoopbackCandidate(s.IncludeLoopback)

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)), accepted, nil
}
