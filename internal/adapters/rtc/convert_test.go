package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Conference/internal/protocol"
)

func TestCandidates_ConvertBothWays(t *testing.T) {
	req := require.New(t)

	// Given
	in := []protocol.IceCandidate{
		{Foundation: "1", Priority: 2130706431, IP: "10.0.0.5", Protocol: "udp", Port: 40000, Type: "host"},
		{Foundation: "2", Priority: 1694498815, IP: "203.0.113.9", Protocol: "tcp", Port: 443, Type: "srflx", TCPType: "passive"},
	}

	// When
	pion, err := toICECandidates(in)

	// Then
	req.NoError(err)
	req.Len(pion, 2)
	req.Equal(webrtc.ICEProtocolTCP, pion[1].Protocol)
	req.Equal(webrtc.ICECandidateTypeSrflx, pion[1].Typ)
	req.Equal(in, fromICECandidates(pion))
}

func TestCandidates_RejectUnknownProtocol(t *testing.T) {
	req := require.New(t)

	// When
	_, err := toICECandidates([]protocol.IceCandidate{{Foundation: "1", Protocol: "sctp", Type: "host"}})

	// Then
	req.Error(err)
}

func TestDTLSRole_MapsKnownRolesAndDefaultsToAuto(t *testing.T) {
	req := require.New(t)

	req.Equal(webrtc.DTLSRoleClient, toDTLSRole("client"))
	req.Equal(webrtc.DTLSRoleServer, toDTLSRole("server"))
	req.Equal(webrtc.DTLSRoleAuto, toDTLSRole(""))
	req.Equal("client", fromDTLSRole(webrtc.DTLSRoleClient))
	req.Equal("auto", fromDTLSRole(webrtc.DTLSRoleAuto))
}

func TestSupports_MatchesMimeCaseInsensitively(t *testing.T) {
	req := require.New(t)

	// Given
	caps := protocol.RtpCapabilities{Codecs: DefaultCodecs()}

	// Then
	req.True(supports(caps, protocol.RtpCodecParameters{MimeType: "audio/OPUS", ClockRate: 48000}))
	req.False(supports(caps, protocol.RtpCodecParameters{MimeType: "audio/opus", ClockRate: 8000}))
	req.False(supports(caps, protocol.RtpCodecParameters{MimeType: "video/H264", ClockRate: 90000}))
}

func TestCodecParameters_KeepFmtpLine(t *testing.T) {
	req := require.New(t)

	// Given
	opus := DefaultCodecs()[0]

	// When
	params := fromCodecParameters(toCodecParameters(opus))

	// Then
	req.Equal(opus.SdpFmtpLine, params.SdpFmtpLine)
	req.Equal(opus.SdpFmtpLine, capabilityOf(params).SDPFmtpLine)
	req.Equal(uint8(111), params.PayloadType)
}
