package ortc

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	HeaderExtensionTransportWideCC = "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"
	HeaderExtensionAbsSendTime     = "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"
)

var (
	ErrDuplicatedPayloadType = errors.New("duplicated preferred payload type")
	ErrPayloadTypesExhausted = errors.New("no more dynamic payload types available")
	ErrUnsupportedCodec      = errors.New("unsupported codec")
	ErrNoCompatibleCodecs    = errors.New("no compatible media codecs")
)

// Dynamic payload types handed out in this order when a codec has no preference
var dynamicPayloadTypes = func() []uint8 {
	pool := []uint8{}
	for pt := 100; pt <= 127; pt++ {
		pool = append(pool, uint8(pt))
	}
	for pt := 96; pt <= 99; pt++ {
		pool = append(pool, uint8(pt))
	}
	for pt := 77; pt <= 95; pt++ {
		pool = append(pool, uint8(pt))
	}
	return pool
}()

func IsRTXMimeType(mimeType string) bool {
	return strings.HasSuffix(strings.ToLower(mimeType), "/rtx")
}

func kindOfMimeType(mimeType string) MediaKind {
	kind, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	return MediaKind(kind)
}

type codecDescriptor struct {
	mimeType   string
	clockRate  uint32
	channels   uint16
	parameters Parameters
}

func describeCapability(codec RTPCodecCapability) codecDescriptor {
	return codecDescriptor{codec.MimeType, codec.ClockRate, codec.Channels, codec.Parameters}
}

func describeParameters(codec RTPCodecParameters) codecDescriptor {
	return codecDescriptor{codec.MimeType, codec.ClockRate, codec.Channels, codec.Parameters}
}

// matchCodecs compares two codecs. Strict mode additionally requires the
// profile parameters that change the bitstream to agree.
func matchCodecs(a, b codecDescriptor, strict bool) bool {
	if !strings.EqualFold(a.mimeType, b.mimeType) || a.clockRate != b.clockRate {
		return false
	}

	if kindOfMimeType(a.mimeType) == MediaKindAudio && max(a.channels, 1) != max(b.channels, 1) {
		return false
	}

	switch strings.ToLower(a.mimeType) {
	case "video/h264":
		if a.parameters.Int("packetization-mode", 0) != b.parameters.Int("packetization-mode", 0) {
			return false
		}

		if strict && !isSameH264Profile(a.parameters, b.parameters) {
			return false
		}
	case "video/vp9":
		if strict && a.parameters.Int("profile-id", 0) != b.parameters.Int("profile-id", 0) {
			return false
		}
	}

	return true
}

func reduceRTCPFeedback(a, b []RTCPFeedback) []RTCPFeedback {
	reduced := []RTCPFeedback{}
	for _, feedback := range a {
		if slices.Contains(b, feedback) {
			reduced = append(reduced, feedback)
		}
	}

	return reduced
}

// GenerateRouterRTPCapabilities assigns payload types to the given media codecs,
// appends an RTX codec after every video codec and attaches the header extensions.
func GenerateRouterRTPCapabilities(mediaCodecs []RTPCodecCapability, headerExtensions []RTPHeaderExtension) (RTPCapabilities, error) {
	capabilities := RTPCapabilities{
		Codecs:           []RTPCodecCapability{},
		HeaderExtensions: slices.Clone(headerExtensions),
	}

	reserved := map[uint8]bool{}
	for _, codec := range mediaCodecs {
		if codec.PreferredPayloadType == 0 {
			continue
		}

		if reserved[codec.PreferredPayloadType] {
			return RTPCapabilities{}, fmt.Errorf("%w: %d", ErrDuplicatedPayloadType, codec.PreferredPayloadType)
		}
		reserved[codec.PreferredPayloadType] = true
	}

	pool := slices.DeleteFunc(slices.Clone(dynamicPayloadTypes), func(pt uint8) bool { return reserved[pt] })
	nextPayloadType := func() (uint8, error) {
		if len(pool) == 0 {
			return 0, ErrPayloadTypesExhausted
		}

		pt := pool[0]
		pool = pool[1:]
		return pt, nil
	}

	for _, mediaCodec := range mediaCodecs {
		if IsRTXMimeType(mediaCodec.MimeType) {
			continue
		}

		codec := mediaCodec
		codec.Kind = kindOfMimeType(codec.MimeType)
		codec.Parameters = mediaCodec.Parameters.Clone()
		codec.RTCPFeedback = slices.Clone(mediaCodec.RTCPFeedback)
		if codec.RTCPFeedback == nil {
			codec.RTCPFeedback = []RTCPFeedback{}
		}

		if codec.PreferredPayloadType == 0 {
			pt, err := nextPayloadType()
			if err != nil {
				return RTPCapabilities{}, err
			}
			codec.PreferredPayloadType = pt
		}

		capabilities.Codecs = append(capabilities.Codecs, codec)

		if codec.Kind != MediaKindVideo {
			continue
		}

		rtxPayloadType, err := nextPayloadType()
		if err != nil {
			return RTPCapabilities{}, err
		}

		capabilities.Codecs = append(capabilities.Codecs, RTPCodecCapability{
			Kind:                 codec.Kind,
			MimeType:             string(codec.Kind) + "/rtx",
			PreferredPayloadType: rtxPayloadType,
			ClockRate:            codec.ClockRate,
			Parameters:           Parameters{"apt": int(codec.PreferredPayloadType)},
			RTCPFeedback:         []RTCPFeedback{},
		})
	}

	return capabilities, nil
}

// GetExtendedRTPCapabilities intersects local and remote capabilities. With
// preferLocalCodecsOrder the result follows the local codec order.
func GetExtendedRTPCapabilities(local, remote RTPCapabilities, preferLocalCodecsOrder bool) ExtendedRTPCapabilities {
	extended := ExtendedRTPCapabilities{}

	newExtendedCodec := func(localCodec, remoteCodec RTPCodecCapability) ExtendedCodec {
		return ExtendedCodec{
			Kind:              localCodec.Kind,
			MimeType:          localCodec.MimeType,
			ClockRate:         localCodec.ClockRate,
			Channels:          localCodec.Channels,
			LocalPayloadType:  localCodec.PreferredPayloadType,
			RemotePayloadType: remoteCodec.PreferredPayloadType,
			LocalParameters:   localCodec.Parameters.Clone(),
			RemoteParameters:  remoteCodec.Parameters.Clone(),
			RTCPFeedback:      reduceRTCPFeedback(localCodec.RTCPFeedback, remoteCodec.RTCPFeedback),
		}
	}

	if preferLocalCodecsOrder {
		for _, localCodec := range local.Codecs {
			if IsRTXMimeType(localCodec.MimeType) {
				continue
			}

			index := slices.IndexFunc(remote.Codecs, func(remoteCodec RTPCodecCapability) bool {
				return matchCodecs(describeCapability(remoteCodec), describeCapability(localCodec), true)
			})
			if index == -1 {
				continue
			}

			extended.Codecs = append(extended.Codecs, newExtendedCodec(localCodec, remote.Codecs[index]))
		}
	} else {
		for _, remoteCodec := range remote.Codecs {
			if IsRTXMimeType(remoteCodec.MimeType) {
				continue
			}

			index := slices.IndexFunc(local.Codecs, func(localCodec RTPCodecCapability) bool {
				return matchCodecs(describeCapability(localCodec), describeCapability(remoteCodec), true)
			})
			if index == -1 {
				continue
			}

			extended.Codecs = append(extended.Codecs, newExtendedCodec(local.Codecs[index], remoteCodec))
		}
	}

	for i := range extended.Codecs {
		codec := &extended.Codecs[i]

		localRTX := findRTXCodec(local.Codecs, codec.LocalPayloadType)
		remoteRTX := findRTXCodec(remote.Codecs, codec.RemotePayloadType)
		if localRTX != nil && remoteRTX != nil {
			codec.LocalRTXPayloadType = localRTX.PreferredPayloadType
			codec.RemoteRTXPayloadType = remoteRTX.PreferredPayloadType
		}
	}

	for _, remoteExtension := range remote.HeaderExtensions {
		index := slices.IndexFunc(local.HeaderExtensions, func(localExtension RTPHeaderExtension) bool {
			return localExtension.Kind == remoteExtension.Kind && localExtension.URI == remoteExtension.URI
		})
		if index == -1 {
			continue
		}
		localExtension := local.HeaderExtensions[index]

		direction := "sendrecv"
		switch remoteExtension.Direction {
		case "recvonly":
			direction = "sendonly"
		case "sendonly":
			direction = "recvonly"
		case "inactive":
			direction = "inactive"
		}

		extended.HeaderExtensions = append(extended.HeaderExtensions, ExtendedHeaderExtension{
			Kind:      remoteExtension.Kind,
			URI:       remoteExtension.URI,
			SendID:    localExtension.PreferredID,
			RecvID:    remoteExtension.PreferredID,
			Encrypt:   localExtension.PreferredEncrypt,
			Direction: direction,
		})
	}

	return extended
}

func findRTXCodec(codecs []RTPCodecCapability, payloadType uint8) *RTPCodecCapability {
	for i := range codecs {
		if IsRTXMimeType(codecs[i].MimeType) && codecs[i].Parameters.Int("apt", -1) == int(payloadType) {
			return &codecs[i]
		}
	}

	return nil
}

// GetSendingRTPParameters returns what the local side sends for the given kind,
// using its own payload types and codec parameters.
func GetSendingRTPParameters(kind MediaKind, extended ExtendedRTPCapabilities) RTPParameters {
	return sendingRTPParameters(kind, extended, false)
}

// GetSendingRemoteRTPParameters is what the remote side expects to receive: local
// payload types with the remote codec parameters and reduced congestion feedback.
func GetSendingRemoteRTPParameters(kind MediaKind, extended ExtendedRTPCapabilities) RTPParameters {
	parameters := sendingRTPParameters(kind, extended, true)
	reduceCongestionFeedback(&parameters)

	return parameters
}

func sendingRTPParameters(kind MediaKind, extended ExtendedRTPCapabilities, remote bool) RTPParameters {
	parameters := RTPParameters{
		Codecs:           []RTPCodecParameters{},
		HeaderExtensions: []RTPHeaderExtensionParameters{},
		Encodings:        []RTPEncodingParameters{},
	}

	for _, codec := range extended.Codecs {
		if codec.Kind != kind {
			continue
		}

		codecParameters := codec.LocalParameters
		if remote {
			codecParameters = codec.RemoteParameters
		}

		parameters.Codecs = append(parameters.Codecs, RTPCodecParameters{
			MimeType:     codec.MimeType,
			PayloadType:  codec.LocalPayloadType,
			ClockRate:    codec.ClockRate,
			Channels:     codec.Channels,
			Parameters:   codecParameters.Clone(),
			RTCPFeedback: slices.Clone(codec.RTCPFeedback),
		})

		if codec.LocalRTXPayloadType != 0 {
			parameters.Codecs = append(parameters.Codecs, RTPCodecParameters{
				MimeType:     string(codec.Kind) + "/rtx",
				PayloadType:  codec.LocalRTXPayloadType,
				ClockRate:    codec.ClockRate,
				Parameters:   Parameters{"apt": int(codec.LocalPayloadType)},
				RTCPFeedback: []RTCPFeedback{},
			})
		}
	}

	for _, extension := range extended.HeaderExtensions {
		if extension.Kind != kind || (extension.Direction != "sendrecv" && extension.Direction != "sendonly") {
			continue
		}

		parameters.HeaderExtensions = append(parameters.HeaderExtensions, RTPHeaderExtensionParameters{
			URI:        extension.URI,
			ID:         extension.SendID,
			Encrypt:    extension.Encrypt,
			Parameters: Parameters{},
		})
	}

	return parameters
}

// ReduceCodecs keeps the first media codec and the RTX codec bound to it. An
// answer carrying a single codec per m-line pins the codec the publisher sends.
func ReduceCodecs(codecs []RTPCodecParameters) []RTPCodecParameters {
	mediaIndex := slices.IndexFunc(codecs, func(codec RTPCodecParameters) bool { return !IsRTXMimeType(codec.MimeType) })
	if mediaIndex == -1 {
		return []RTPCodecParameters{}
	}
	media := codecs[mediaIndex]

	reduced := []RTPCodecParameters{media}
	rtxIndex := slices.IndexFunc(codecs, func(codec RTPCodecParameters) bool {
		return IsRTXMimeType(codec.MimeType) && codec.Parameters.Int("apt", -1) == int(media.PayloadType)
	})
	if rtxIndex != -1 {
		reduced = append(reduced, codecs[rtxIndex])
	}

	return reduced
}

// Transport-CC wins over REMB; REMB needs abs-send-time. Without either extension
// both feedback types are removed.
func reduceCongestionFeedback(parameters *RTPParameters) {
	hasExtension := func(uri string) bool {
		return slices.ContainsFunc(parameters.HeaderExtensions, func(extension RTPHeaderExtensionParameters) bool {
			return extension.URI == uri
		})
	}

	var drop func(RTCPFeedback) bool
	switch {
	case hasExtension(HeaderExtensionTransportWideCC):
		drop = func(feedback RTCPFeedback) bool { return feedback.Type == "goog-remb" }
	case hasExtension(HeaderExtensionAbsSendTime):
		drop = func(feedback RTCPFeedback) bool { return feedback.Type == "transport-cc" }
	default:
		drop = func(feedback RTCPFeedback) bool {
			return feedback.Type == "transport-cc" || feedback.Type == "goog-remb"
		}
	}

	for i := range parameters.Codecs {
		parameters.Codecs[i].RTCPFeedback = slices.DeleteFunc(parameters.Codecs[i].RTCPFeedback, drop)
	}
}
