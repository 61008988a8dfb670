package ortc

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// GetConsumableRTPParameters maps the parameters a producer sends with onto the
// router payload types. The result is what every consumer of the producer is
// derived from.
func GetConsumableRTPParameters(kind MediaKind, producerParameters RTPParameters, routerCapabilities RTPCapabilities) (RTPParameters, error) {
	consumable := RTPParameters{
		Codecs:           []RTPCodecParameters{},
		HeaderExtensions: []RTPHeaderExtensionParameters{},
		Encodings:        []RTPEncodingParameters{},
		RTCP: RTCPParameters{
			CNAME:       producerParameters.RTCP.CNAME,
			ReducedSize: true,
		},
	}

	for _, codec := range producerParameters.Codecs {
		if IsRTXMimeType(codec.MimeType) {
			continue
		}

		index := slices.IndexFunc(routerCapabilities.Codecs, func(capability RTPCodecCapability) bool {
			return !IsRTXMimeType(capability.MimeType) && matchCodecs(describeParameters(codec), describeCapability(capability), true)
		})
		if index == -1 {
			return RTPParameters{}, fmt.Errorf("%w: %s (payload type %d)", ErrUnsupportedCodec, codec.MimeType, codec.PayloadType)
		}
		capability := routerCapabilities.Codecs[index]

		consumable.Codecs = append(consumable.Codecs, RTPCodecParameters{
			MimeType:     capability.MimeType,
			PayloadType:  capability.PreferredPayloadType,
			ClockRate:    capability.ClockRate,
			Channels:     capability.Channels,
			Parameters:   codec.Parameters.Clone(),
			RTCPFeedback: slices.Clone(capability.RTCPFeedback),
		})

		if rtx := findRTXCodec(routerCapabilities.Codecs, capability.PreferredPayloadType); rtx != nil {
			consumable.Codecs = append(consumable.Codecs, RTPCodecParameters{
				MimeType:     rtx.MimeType,
				PayloadType:  rtx.PreferredPayloadType,
				ClockRate:    rtx.ClockRate,
				Parameters:   rtx.Parameters.Clone(),
				RTCPFeedback: []RTCPFeedback{},
			})
		}
	}

	if len(consumable.Codecs) == 0 {
		return RTPParameters{}, ErrNoCompatibleCodecs
	}

	for _, extension := range routerCapabilities.HeaderExtensions {
		if extension.Kind != kind || (extension.Direction != "sendrecv" && extension.Direction != "sendonly") {
			continue
		}

		consumable.HeaderExtensions = append(consumable.HeaderExtensions, RTPHeaderExtensionParameters{
			URI:        extension.URI,
			ID:         extension.PreferredID,
			Encrypt:    extension.PreferredEncrypt,
			Parameters: Parameters{},
		})
	}

	for _, encoding := range producerParameters.Encodings {
		consumable.Encodings = append(consumable.Encodings, RTPEncodingParameters{SSRC: encoding.SSRC, RID: encoding.RID})
	}

	return consumable, nil
}

// CanConsume reports whether the capabilities accept at least one media codec of
// the consumable parameters.
func CanConsume(consumable RTPParameters, capabilities RTPCapabilities) bool {
	matching := []RTPCodecParameters{}
	for _, codec := range consumable.Codecs {
		if slices.ContainsFunc(capabilities.Codecs, func(capability RTPCodecCapability) bool {
			return matchCodecs(describeCapability(capability), describeParameters(codec), true)
		}) {
			matching = append(matching, codec)
		}
	}

	return len(matching) != 0 && !IsRTXMimeType(matching[0].MimeType)
}

// GetConsumerRTPParameters narrows consumable parameters to what the consuming
// endpoint accepts. The result keeps the first matching media codec plus its RTX
// and a single encoding with freshly chosen SSRCs.
func GetConsumerRTPParameters(consumable RTPParameters, capabilities RTPCapabilities) (RTPParameters, error) {
	matched := []RTPCodecParameters{}
	for _, codec := range consumable.Codecs {
		index := slices.IndexFunc(capabilities.Codecs, func(capability RTPCodecCapability) bool {
			return matchCodecs(describeCapability(capability), describeParameters(codec), true)
		})
		if index == -1 {
			continue
		}

		codec.Parameters = codec.Parameters.Clone()
		codec.RTCPFeedback = slices.Clone(capabilities.Codecs[index].RTCPFeedback)
		if codec.RTCPFeedback == nil {
			codec.RTCPFeedback = []RTCPFeedback{}
		}
		matched = append(matched, codec)
	}

	mediaIndex := slices.IndexFunc(matched, func(codec RTPCodecParameters) bool { return !IsRTXMimeType(codec.MimeType) })
	if mediaIndex != 0 {
		return RTPParameters{}, ErrNoCompatibleCodecs
	}
	media := matched[0]

	parameters := RTPParameters{
		Codecs:           []RTPCodecParameters{media},
		HeaderExtensions: []RTPHeaderExtensionParameters{},
		RTCP:             consumable.RTCP,
	}

	rtxIndex := slices.IndexFunc(matched, func(codec RTPCodecParameters) bool {
		return IsRTXMimeType(codec.MimeType) && codec.Parameters.Int("apt", -1) == int(media.PayloadType)
	})
	if rtxIndex != -1 {
		parameters.Codecs = append(parameters.Codecs, matched[rtxIndex])
	}

	for _, extension := range consumable.HeaderExtensions {
		if slices.ContainsFunc(capabilities.HeaderExtensions, func(capability RTPHeaderExtension) bool {
			return capability.PreferredID == extension.ID && capability.URI == extension.URI
		}) {
			parameters.HeaderExtensions = append(parameters.HeaderExtensions, extension)
		}
	}

	reduceCongestionFeedback(&parameters)

	encoding := RTPEncodingParameters{SSRC: randomSSRC()}
	if rtxIndex != -1 {
		encoding.RTX = &RTXParameters{SSRC: encoding.SSRC + 1}
	}
	parameters.Encodings = []RTPEncodingParameters{encoding}

	return parameters, nil
}

func randomSSRC() uint32 {
	return 100000000 + rand.Uint32N(900000000)
}
