package codecs

import (
	"errors"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/ortc"
)

// Register the codecs on the media engine, keeping their payload types. The media
// engine then resolves incoming payload types to these codecs.
func RegisterCodecs(mediaEngine *webrtc.MediaEngine, codecs []ortc.RTPCodecParameters) error {
	errs := []error{}
	for _, codec := range codecs {
		if err := mediaEngine.RegisterCodec(ToPionCodec(codec), KindOf(codec.MimeType)); err != nil {
			log.Warn().Err(err).Str("mimeType", codec.MimeType).Uint8("payloadType", codec.PayloadType).Msg("Codecs.Register.Error")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func RegisterCapabilities(mediaEngine *webrtc.MediaEngine, capabilities ortc.RTPCapabilities) error {
	codecs := make([]ortc.RTPCodecParameters, 0, len(capabilities.Codecs))
	for _, capability := range capabilities.Codecs {
		codecs = append(codecs, ortc.RTPCodecParameters{
			MimeType:     capability.MimeType,
			PayloadType:  capability.PreferredPayloadType,
			ClockRate:    capability.ClockRate,
			Channels:     capability.Channels,
			Parameters:   capability.Parameters,
			RTCPFeedback: capability.RTCPFeedback,
		})
	}

	return RegisterCodecs(mediaEngine, codecs)
}

func ToPionCodec(codec ortc.RTPCodecParameters) webrtc.RTPCodecParameters {
	feedback := make([]webrtc.RTCPFeedback, 0, len(codec.RTCPFeedback))
	for _, fb := range codec.RTCPFeedback {
		feedback = append(feedback, webrtc.RTCPFeedback{Type: fb.Type, Parameter: fb.Parameter})
	}

	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     codec.MimeType,
			ClockRate:    codec.ClockRate,
			Channels:     codec.Channels,
			SDPFmtpLine:  codec.Parameters.Fmtp(),
			RTCPFeedback: feedback,
		},
		PayloadType: webrtc.PayloadType(codec.PayloadType),
	}
}

func KindOf(mimeType string) webrtc.RTPCodecType {
	if strings.HasPrefix(strings.ToLower(mimeType), "audio/") {
		return webrtc.RTPCodecTypeAudio
	}

	return webrtc.RTPCodecTypeVideo
}
