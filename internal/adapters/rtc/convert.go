package rtc

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

func codecType(kind domain.MediaKind) (webrtc.RTPCodecType, bool) {
	switch kind {
	case domain.KindAudio:
		return webrtc.RTPCodecTypeAudio, true
	case domain.KindVideo:
		return webrtc.RTPCodecTypeVideo, true
	default:
		return 0, false
	}
}

func kindOf(t webrtc.RTPCodecType) domain.MediaKind {
	if t == webrtc.RTPCodecTypeVideo {
		return domain.KindVideo
	}
	return domain.KindAudio
}

func toFeedback(fb []protocol.RtcpFeedback) []webrtc.RTCPFeedback {
	return lo.Map(fb, func(f protocol.RtcpFeedback, _ int) webrtc.RTCPFeedback {
		return webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter}
	})
}

func fromFeedback(fb []webrtc.RTCPFeedback) []protocol.RtcpFeedback {
	return lo.Map(fb, func(f webrtc.RTCPFeedback, _ int) protocol.RtcpFeedback {
		return protocol.RtcpFeedback{Type: f.Type, Parameter: f.Parameter}
	})
}

func toCodecParameters(c protocol.RtpCodecCapability) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     c.MimeType,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			SDPFmtpLine:  c.SdpFmtpLine,
			RTCPFeedback: toFeedback(c.RtcpFeedback),
		},
		PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
	}
}

func fromCodecParameters(c webrtc.RTPCodecParameters) protocol.RtpCodecParameters {
	return protocol.RtpCodecParameters{
		MimeType:     c.MimeType,
		PayloadType:  uint8(c.PayloadType),
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		SdpFmtpLine:  c.SDPFmtpLine,
		RtcpFeedback: fromFeedback(c.RTCPFeedback),
	}
}

func capabilityOf(c protocol.RtpCodecParameters) webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:     c.MimeType,
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		SDPFmtpLine:  c.SdpFmtpLine,
		RTCPFeedback: toFeedback(c.RtcpFeedback),
	}
}

// supports reports whether caps can decode the codec.
func supports(caps protocol.RtpCapabilities, codec protocol.RtpCodecParameters) bool {
	return lo.ContainsBy(caps.Codecs, func(c protocol.RtpCodecCapability) bool {
		return strings.EqualFold(c.MimeType, codec.MimeType) && c.ClockRate == codec.ClockRate
	})
}

func toICEParameters(p protocol.IceParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.IceLite,
	}
}

func fromICEParameters(p webrtc.ICEParameters) protocol.IceParameters {
	return protocol.IceParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		IceLite:          p.ICELite,
	}
}

func toICECandidates(in []protocol.IceCandidate) ([]webrtc.ICECandidate, error) {
	out := make([]webrtc.ICECandidate, 0, len(in))
	for _, c := range in {
		proto, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.IP,
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
			Component:  1,
			TCPType:    c.TCPType,
		})
	}
	return out, nil
}

func fromICECandidates(in []webrtc.ICECandidate) []protocol.IceCandidate {
	return lo.Map(in, func(c webrtc.ICECandidate, _ int) protocol.IceCandidate {
		return protocol.IceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
			TCPType:    c.TCPType,
		}
	})
}

func toDTLSParameters(p protocol.DtlsParameters) webrtc.DTLSParameters {
	return webrtc.DTLSParameters{
		Role: toDTLSRole(p.Role),
		Fingerprints: lo.Map(p.Fingerprints, func(f protocol.DtlsFingerprint, _ int) webrtc.DTLSFingerprint {
			return webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value}
		}),
	}
}

func fromDTLSParameters(p webrtc.DTLSParameters) protocol.DtlsParameters {
	return protocol.DtlsParameters{
		Role: fromDTLSRole(p.Role),
		Fingerprints: lo.Map(p.Fingerprints, func(f webrtc.DTLSFingerprint, _ int) protocol.DtlsFingerprint {
			return protocol.DtlsFingerprint{Algorithm: f.Algorithm, Value: f.Value}
		}),
	}
}

func toDTLSRole(role string) webrtc.DTLSRole {
	switch role {
	case "client":
		return webrtc.DTLSRoleClient
	case "server":
		return webrtc.DTLSRoleServer
	default:
		return webrtc.DTLSRoleAuto
	}
}

func fromDTLSRole(role webrtc.DTLSRole) string {
	switch role {
	case webrtc.DTLSRoleClient:
		return "client"
	case webrtc.DTLSRoleServer:
		return "server"
	default:
		return "auto"
	}
}
