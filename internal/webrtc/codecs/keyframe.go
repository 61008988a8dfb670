package codecs

import (
	"github.com/pion/rtp"

	pionCodecs "github.com/pion/rtp/codecs"
)

const (
	naluTypeBitmask = 0x1f

	idrNALUType = 5
	spsNALUType = 7
	ppsNALUType = 8
)

func NewDepacketizer(codec TrackCodecType) rtp.Depacketizer {
	switch codec {
	case VideoTrackCodecH264:
		return &pionCodecs.H264Packet{}
	case VideoTrackCodecVP8:
		return &pionCodecs.VP8Packet{}
	case VideoTrackCodecVP9:
		return &pionCodecs.VP9Packet{}
	default:
		return nil
	}
}

// IsKeyframe reports whether the packet starts a keyframe. Audio packets and codecs
// without a depacketizer always count as keyframes.
func IsKeyframe(packet *rtp.Packet, codec TrackCodecType, depacketizer rtp.Depacketizer) bool {
	if depacketizer == nil {
		return true
	}

	switch codec {
	case VideoTrackCodecH264:
		nalu, err := depacketizer.Unmarshal(packet.Payload)
		if err != nil || len(nalu) < 6 {
			return false
		}

		firstNaluType := nalu[4] & naluTypeBitmask
		return firstNaluType == idrNALUType || firstNaluType == spsNALUType || firstNaluType == ppsNALUType

	case VideoTrackCodecVP8:
		vp8, ok := depacketizer.(*pionCodecs.VP8Packet)
		if !ok {
			return false
		}

		payload, err := vp8.Unmarshal(packet.Payload)
		if err != nil || len(payload) == 0 {
			return false
		}

		return vp8.S == 1 && vp8.PID == 0 && payload[0]&0x01 == 0

	case VideoTrackCodecVP9:
		vp9, ok := depacketizer.(*pionCodecs.VP9Packet)
		if !ok {
			return false
		}

		if _, err := vp9.Unmarshal(packet.Payload); err != nil {
			return false
		}

		return !vp9.P && vp9.B
	}

	return true
}
