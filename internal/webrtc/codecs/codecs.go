package codecs

import (
	"strings"

	"github.com/videmus/relay/internal/webrtc/ortc"
)

type TrackCodecType int

const (
	TrackCodecUnknown TrackCodecType = iota
	AudioTrackCodecOpus
	VideoTrackCodecH264
	VideoTrackCodecVP8
	VideoTrackCodecVP9
)

func (c TrackCodecType) String() string {
	switch c {
	case AudioTrackCodecOpus:
		return "opus"
	case VideoTrackCodecH264:
		return "h264"
	case VideoTrackCodecVP8:
		return "vp8"
	case VideoTrackCodecVP9:
		return "vp9"
	default:
		return "unknown"
	}
}

func GetTrackCodec(mimeType string) TrackCodecType {
	switch strings.ToLower(mimeType) {
	case "audio/opus":
		return AudioTrackCodecOpus
	case "video/h264":
		return VideoTrackCodecH264
	case "video/vp8":
		return VideoTrackCodecVP8
	case "video/vp9":
		return VideoTrackCodecVP9
	default:
		return TrackCodecUnknown
	}
}

var videoFeedback = []ortc.RTCPFeedback{
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "goog-remb"},
	{Type: "transport-cc"},
}

// Codecs every router is created with. H264 is pinned to constrained baseline
// with packetization-mode 1, which is what OBS offers over WHIP.
var mediaCodecs = []ortc.RTPCodecCapability{
	{
		Kind:      ortc.MediaKindAudio,
		MimeType:  "audio/opus",
		ClockRate: 48000,
		Channels:  2,
		Parameters: ortc.Parameters{
			"minptime":     10,
			"useinbandfec": 1,
		},
		RTCPFeedback: []ortc.RTCPFeedback{{Type: "nack"}, {Type: "transport-cc"}},
	},
	{
		Kind:                 ortc.MediaKindVideo,
		MimeType:             "video/H264",
		PreferredPayloadType: 107,
		ClockRate:            90000,
		Parameters: ortc.Parameters{
			"packetization-mode":      1,
			"profile-level-id":        "42e01f",
			"level-asymmetry-allowed": 1,
		},
		RTCPFeedback: videoFeedback,
	},
	{
		Kind:         ortc.MediaKindVideo,
		MimeType:     "video/VP8",
		ClockRate:    90000,
		Parameters:   ortc.Parameters{},
		RTCPFeedback: videoFeedback,
	},
}

var headerExtensions = []ortc.RTPHeaderExtension{
	{Kind: ortc.MediaKindAudio, URI: "urn:ietf:params:rtp-hdrext:sdes:mid", PreferredID: 1, Direction: "sendrecv"},
	{Kind: ortc.MediaKindVideo, URI: "urn:ietf:params:rtp-hdrext:sdes:mid", PreferredID: 1, Direction: "sendrecv"},
	{Kind: ortc.MediaKindAudio, URI: ortc.HeaderExtensionAbsSendTime, PreferredID: 4, Direction: "sendrecv"},
	{Kind: ortc.MediaKindVideo, URI: ortc.HeaderExtensionAbsSendTime, PreferredID: 4, Direction: "sendrecv"},
	{Kind: ortc.MediaKindAudio, URI: ortc.HeaderExtensionTransportWideCC, PreferredID: 5, Direction: "recvonly"},
	{Kind: ortc.MediaKindVideo, URI: ortc.HeaderExtensionTransportWideCC, PreferredID: 5, Direction: "sendrecv"},
	{Kind: ortc.MediaKindAudio, URI: "urn:ietf:params:rtp-hdrext:ssrc-audio-level", PreferredID: 10, Direction: "sendrecv"},
	{Kind: ortc.MediaKindVideo, URI: "urn:3gpp:video-orientation", PreferredID: 11, Direction: "sendrecv"},
	{Kind: ortc.MediaKindVideo, URI: "urn:ietf:params:rtp-hdrext:toffset", PreferredID: 12, Direction: "sendrecv"},
}

// RouterCapabilities returns the capability set shared by every router. Payload
// types are assigned deterministically, so every call yields the same result.
func RouterCapabilities() (ortc.RTPCapabilities, error) {
	return ortc.GenerateRouterRTPCapabilities(mediaCodecs, headerExtensions)
}
