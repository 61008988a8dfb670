package whipsdp

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/videmus/relay/internal/webrtc/ortc"
)

var (
	ErrNoMediaSections = errors.New("offer contains no media sections")
	ErrNoFingerprint   = errors.New("offer contains no DTLS fingerprint")
	ErrNoICEParameters = errors.New("offer contains no ICE credentials")
	ErrNoSSRC          = errors.New("no a=ssrc lines found")
)

type (
	// Offer is a parsed WHIP offer
	Offer struct {
		Capabilities   ortc.RTPCapabilities
		DTLSParameters ortc.DTLSParameters
		ICEParameters  ortc.ICEParameters
		ICECandidates  []ortc.ICECandidate
		Media          []MediaSection

		ExtMapAllowMixed bool
	}

	MediaSection struct {
		Kind       string
		MID        string
		Protocol   string
		Direction  string
		Formats    []string
		ExtMapURIs []string

		description *sdp.MediaDescription
	}
)

// IsMedia reports whether the section carries audio or video
func (m MediaSection) IsMedia() bool {
	return m.Kind == string(ortc.MediaKindAudio) || m.Kind == string(ortc.MediaKindVideo)
}

func ParseOffer(raw string) (*Offer, error) {
	description := &sdp.SessionDescription{}
	if err := description.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("unmarshal offer: %w", err)
	}

	if len(description.MediaDescriptions) == 0 {
		return nil, ErrNoMediaSections
	}

	offer := &Offer{
		Capabilities: extractRTPCapabilities(description),
	}
	_, offer.ExtMapAllowMixed = description.Attribute("extmap-allow-mixed")

	dtlsParameters, err := extractDTLSParameters(description)
	if err != nil {
		return nil, err
	}
	offer.DTLSParameters = dtlsParameters

	iceParameters, err := extractICEParameters(description)
	if err != nil {
		return nil, err
	}
	offer.ICEParameters = iceParameters

	for index, media := range description.MediaDescriptions {
		mid, ok := media.Attribute("mid")
		if !ok {
			mid = strconv.Itoa(index)
		}

		section := MediaSection{
			Kind:        media.MediaName.Media,
			MID:         mid,
			Protocol:    strings.Join(media.MediaName.Protos, "/"),
			Direction:   direction(media),
			Formats:     slices.Clone(media.MediaName.Formats),
			description: media,
		}
		for _, attribute := range media.Attributes {
			switch attribute.Key {
			case "extmap":
				if _, uri, ok := parseExtMap(attribute.Value); ok {
					section.ExtMapURIs = append(section.ExtMapURIs, uri)
				}
			case "extmap-allow-mixed":
				offer.ExtMapAllowMixed = true
			}
		}
		offer.Media = append(offer.Media, section)

		for _, attribute := range media.Attributes {
			if attribute.Key != "candidate" {
				continue
			}

			if candidate, err := parseCandidate(attribute.Value); err == nil && !slices.Contains(offer.ICECandidates, candidate) {
				offer.ICECandidates = append(offer.ICECandidates, candidate)
			}
		}
	}

	return offer, nil
}

// Extract the capabilities the offering client declared. Payload types shared by
// several media sections are taken from the first one.
func extractRTPCapabilities(description *sdp.SessionDescription) ortc.RTPCapabilities {
	capabilities := ortc.RTPCapabilities{
		Codecs:           []ortc.RTPCodecCapability{},
		HeaderExtensions: []ortc.RTPHeaderExtension{},
	}

	seenPayloadTypes := map[uint8]bool{}

	for _, media := range description.MediaDescriptions {
		kind := ortc.MediaKind(media.MediaName.Media)
		if kind != ortc.MediaKindAudio && kind != ortc.MediaKindVideo {
			continue
		}

		sectionCodecs := map[uint8]*ortc.RTPCodecCapability{}
		order := []uint8{}

		for _, attribute := range media.Attributes {
			if attribute.Key != "rtpmap" {
				continue
			}

			payloadType, codec, ok := parseRTPMap(kind, attribute.Value)
			if !ok || seenPayloadTypes[payloadType] {
				continue
			}

			seenPayloadTypes[payloadType] = true
			sectionCodecs[payloadType] = &codec
			order = append(order, payloadType)
		}

		for _, attribute := range media.Attributes {
			switch attribute.Key {
			case "fmtp":
				payloadType, value, ok := splitPayloadType(attribute.Value)
				if !ok {
					continue
				}
				if codec, found := sectionCodecs[uint8(payloadType)]; found {
					codec.Parameters = ortc.ParseFmtp(value)
				}

			case "rtcp-fb":
				target, value, found := strings.Cut(attribute.Value, " ")
				if !found {
					continue
				}

				feedbackType, parameter, _ := strings.Cut(strings.TrimSpace(value), " ")
				feedback := ortc.RTCPFeedback{Type: feedbackType, Parameter: strings.TrimSpace(parameter)}

				if target == "*" {
					for _, codec := range sectionCodecs {
						codec.RTCPFeedback = append(codec.RTCPFeedback, feedback)
					}
					continue
				}

				payloadType, err := strconv.ParseUint(target, 10, 8)
				if err != nil {
					continue
				}
				if codec, found := sectionCodecs[uint8(payloadType)]; found {
					codec.RTCPFeedback = append(codec.RTCPFeedback, feedback)
				}

			case "extmap":
				id, uri, ok := parseExtMap(attribute.Value)
				if !ok {
					continue
				}

				exists := slices.ContainsFunc(capabilities.HeaderExtensions, func(extension ortc.RTPHeaderExtension) bool {
					return extension.Kind == kind && extension.URI == uri
				})
				if !exists {
					capabilities.HeaderExtensions = append(capabilities.HeaderExtensions, ortc.RTPHeaderExtension{
						Kind:        kind,
						URI:         uri,
						PreferredID: id,
					})
				}
			}
		}

		for _, payloadType := range order {
			capabilities.Codecs = append(capabilities.Codecs, *sectionCodecs[payloadType])
		}
	}

	return capabilities
}

func parseRTPMap(kind ortc.MediaKind, value string) (uint8, ortc.RTPCodecCapability, bool) {
	payloadType, encoding, ok := splitPayloadType(value)
	if !ok {
		return 0, ortc.RTPCodecCapability{}, false
	}

	parts := strings.Split(encoding, "/")
	if len(parts) < 2 {
		return 0, ortc.RTPCodecCapability{}, false
	}

	clockRate, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, ortc.RTPCodecCapability{}, false
	}

	codec := ortc.RTPCodecCapability{
		Kind:                 kind,
		MimeType:             string(kind) + "/" + parts[0],
		PreferredPayloadType: uint8(payloadType),
		ClockRate:            uint32(clockRate),
		Parameters:           ortc.Parameters{},
		RTCPFeedback:         []ortc.RTCPFeedback{},
	}

	if kind == ortc.MediaKindAudio {
		codec.Channels = 1
		if len(parts) > 2 {
			if channels, err := strconv.ParseUint(parts[2], 10, 16); err == nil {
				codec.Channels = uint16(channels)
			}
		}
	}

	return uint8(payloadType), codec, true
}

func splitPayloadType(value string) (int, string, bool) {
	rawPayloadType, rest, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found {
		return 0, "", false
	}

	payloadType, err := strconv.ParseUint(rawPayloadType, 10, 8)
	if err != nil || payloadType > 127 {
		return 0, "", false
	}

	return int(payloadType), strings.TrimSpace(rest), true
}

func parseExtMap(value string) (int, string, bool) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return 0, "", false
	}

	// "1/sendonly" carries a direction after the id
	rawID, _, _ := strings.Cut(fields[0], "/")
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return 0, "", false
	}

	return id, fields[1], true
}

func extractDTLSParameters(description *sdp.SessionDescription) (ortc.DTLSParameters, error) {
	parameters := ortc.DTLSParameters{Role: ortc.DTLSRoleAuto}

	fingerprint, hasFingerprint := description.Attribute("fingerprint")
	setup, hasSetup := description.Attribute("setup")

	for _, media := range description.MediaDescriptions {
		if media.MediaName.Port.Value == 0 {
			continue
		}

		if value, ok := media.Attribute("fingerprint"); ok && !hasFingerprint {
			fingerprint, hasFingerprint = value, true
		}
		if value, ok := media.Attribute("setup"); ok && !hasSetup {
			setup, hasSetup = value, true
		}
	}

	if !hasFingerprint {
		return ortc.DTLSParameters{}, ErrNoFingerprint
	}

	algorithm, value, found := strings.Cut(strings.TrimSpace(fingerprint), " ")
	if !found {
		return ortc.DTLSParameters{}, fmt.Errorf("%w: malformed fingerprint %q", ErrNoFingerprint, fingerprint)
	}
	parameters.Fingerprints = []ortc.DTLSFingerprint{{Algorithm: strings.ToLower(algorithm), Value: strings.TrimSpace(value)}}

	switch strings.TrimSpace(setup) {
	case "active":
		parameters.Role = ortc.DTLSRoleClient
	case "passive":
		parameters.Role = ortc.DTLSRoleServer
	default:
		parameters.Role = ortc.DTLSRoleAuto
	}

	return parameters, nil
}

func extractICEParameters(description *sdp.SessionDescription) (ortc.ICEParameters, error) {
	ufrag, hasUfrag := description.Attribute("ice-ufrag")
	pwd, hasPwd := description.Attribute("ice-pwd")
	_, iceLite := description.Attribute("ice-lite")

	for _, media := range description.MediaDescriptions {
		if value, ok := media.Attribute("ice-ufrag"); ok && !hasUfrag {
			ufrag, hasUfrag = value, true
		}
		if value, ok := media.Attribute("ice-pwd"); ok && !hasPwd {
			pwd, hasPwd = value, true
		}
	}

	if !hasUfrag || !hasPwd {
		return ortc.ICEParameters{}, ErrNoICEParameters
	}

	return ortc.ICEParameters{UsernameFragment: ufrag, Password: pwd, ICELite: iceLite}, nil
}

// "foundation component transport priority address port typ type [tcptype x]"
func parseCandidate(value string) (ortc.ICECandidate, error) {
	fields := strings.Fields(value)
	if len(fields) < 8 || fields[6] != "typ" {
		return ortc.ICECandidate{}, fmt.Errorf("malformed candidate %q", value)
	}

	if fields[1] != "1" {
		return ortc.ICECandidate{}, fmt.Errorf("candidate for component %s ignored", fields[1])
	}

	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return ortc.ICECandidate{}, fmt.Errorf("candidate priority: %w", err)
	}

	port, err := strconv.ParseUint(fields[5], 10, 16)
	if err != nil {
		return ortc.ICECandidate{}, fmt.Errorf("candidate port: %w", err)
	}

	candidate := ortc.ICECandidate{
		Foundation: fields[0],
		Priority:   uint32(priority),
		IP:         fields[4],
		Address:    fields[4],
		Protocol:   strings.ToLower(fields[2]),
		Port:       uint16(port),
		Type:       fields[7],
	}

	for i := 8; i+1 < len(fields); i += 2 {
		if fields[i] == "tcptype" {
			candidate.TCPType = fields[i+1]
		}
	}

	return candidate, nil
}

func direction(media *sdp.MediaDescription) string {
	for _, key := range []string{"sendrecv", "sendonly", "recvonly", "inactive"} {
		if _, ok := media.Attribute(key); ok {
			return key
		}
	}

	return "sendrecv"
}

// Encodings returns the SSRC layout of the section. An ssrc-group FID pairs a
// media SSRC with its RTX SSRC.
func (m MediaSection) Encodings() ([]ortc.RTPEncodingParameters, error) {
	ssrcs := []uint32{}
	for _, attribute := range m.description.Attributes {
		if attribute.Key != "ssrc" {
			continue
		}

		rawSSRC, _, _ := strings.Cut(attribute.Value, " ")
		ssrc, err := strconv.ParseUint(rawSSRC, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed ssrc %q: %w", attribute.Value, err)
		}

		if !slices.Contains(ssrcs, uint32(ssrc)) {
			ssrcs = append(ssrcs, uint32(ssrc))
		}
	}

	if len(ssrcs) == 0 {
		return nil, ErrNoSSRC
	}

	encodings := []ortc.RTPEncodingParameters{}
	for _, attribute := range m.description.Attributes {
		if attribute.Key != "ssrc-group" {
			continue
		}

		fields := strings.Fields(attribute.Value)
		if len(fields) != 3 || fields[0] != "FID" {
			continue
		}

		ssrc, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			continue
		}
		rtxSSRC, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			continue
		}

		if !slices.Contains(ssrcs, uint32(ssrc)) {
			continue
		}

		ssrcs = slices.DeleteFunc(ssrcs, func(s uint32) bool { return s == uint32(ssrc) || s == uint32(rtxSSRC) })
		encodings = append(encodings, ortc.RTPEncodingParameters{
			SSRC: uint32(ssrc),
			RTX:  &ortc.RTXParameters{SSRC: uint32(rtxSSRC)},
		})
	}

	for _, ssrc := range ssrcs {
		encodings = append(encodings, ortc.RTPEncodingParameters{SSRC: ssrc})
	}

	return encodings, nil
}

// CNAME of the first ssrc that declares one
func (m MediaSection) CNAME() string {
	for _, attribute := range m.description.Attributes {
		if attribute.Key != "ssrc" {
			continue
		}

		fields := strings.Fields(attribute.Value)
		if len(fields) < 2 {
			continue
		}

		if cname, ok := strings.CutPrefix(fields[1], "cname:"); ok {
			return cname
		}
	}

	return ""
}
