package whipsdp

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/videmus/relay/internal/webrtc/ortc"
)

// Local transport parameters announced in the answer
type AnswerParameters struct {
	ICEParameters  ortc.ICEParameters
	ICECandidates  []ortc.ICECandidate
	DTLSParameters ortc.DTLSParameters
}

// Answer is built incrementally, one section per offer section in offer order.
type Answer struct {
	parameters AnswerParameters
	offer      *Offer
	sections   []*sdp.MediaDescription
	bundle     []string
}

func NewAnswer(offer *Offer, parameters AnswerParameters) *Answer {
	return &Answer{
		parameters: parameters,
		offer:      offer,
	}
}

// Accept appends an answer section receiving the given parameters
func (a *Answer) Accept(section MediaSection, parameters ortc.RTPParameters) {
	media := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   section.Kind,
			Port:    sdp.RangedPort{Value: 7},
			Protos:  protos(section),
			Formats: []string{},
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "127.0.0.1"},
		},
	}

	media.WithValueAttribute("mid", section.MID)
	media.WithPropertyAttribute(answerDirection(section.Direction))
	a.withTransport(media)

	for _, codec := range parameters.Codecs {
		_, encodingName, _ := strings.Cut(codec.MimeType, "/")

		channels := uint16(0)
		if codec.Channels > 1 {
			channels = codec.Channels
		}

		media.WithCodec(codec.PayloadType, encodingName, codec.ClockRate, channels, codec.Parameters.Fmtp())

		for _, feedback := range codec.RTCPFeedback {
			value := fmt.Sprintf("%d %s", codec.PayloadType, feedback.Type)
			if feedback.Parameter != "" {
				value += " " + feedback.Parameter
			}
			media.WithValueAttribute("rtcp-fb", value)
		}
	}

	for _, extension := range parameters.HeaderExtensions {
		if !slices.Contains(section.ExtMapURIs, extension.URI) {
			continue
		}

		media.WithValueAttribute("extmap", strconv.Itoa(extension.ID)+" "+extension.URI)
	}

	if a.offer != nil && a.offer.ExtMapAllowMixed {
		media.WithPropertyAttribute("extmap-allow-mixed")
	}

	media.WithPropertyAttribute("rtcp-mux")
	media.WithPropertyAttribute("rtcp-rsize")

	a.sections = append(a.sections, media)
	a.bundle = append(a.bundle, section.MID)
}

// Reject appends a disabled section (port 0) that keeps the offer's mid
func (a *Answer) Reject(section MediaSection) {
	formats := slices.Clone(section.Formats)
	if len(formats) == 0 {
		formats = []string{"0"}
	}

	media := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   section.Kind,
			Port:    sdp.RangedPort{Value: 0},
			Protos:  protos(section),
			Formats: formats[:1],
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "127.0.0.1"},
		},
	}

	media.WithValueAttribute("mid", section.MID)
	media.WithPropertyAttribute("inactive")

	a.sections = append(a.sections, media)
}

func (a *Answer) withTransport(media *sdp.MediaDescription) {
	media.WithICECredentials(a.parameters.ICEParameters.UsernameFragment, a.parameters.ICEParameters.Password)

	for _, candidate := range a.parameters.ICECandidates {
		media.WithCandidate(FormatCandidate(candidate))
	}
	media.WithPropertyAttribute("end-of-candidates")

	media.WithValueAttribute("setup", setupAttribute(a.parameters.DTLSParameters.Role))
}

func (a *Answer) Marshal() (string, error) {
	description, err := sdp.NewJSEPSessionDescription(false)
	if err != nil {
		return "", err
	}

	description.WithValueAttribute("msid-semantic", " WMS *")
	if len(a.bundle) != 0 {
		description.WithValueAttribute("group", "BUNDLE "+strings.Join(a.bundle, " "))
	}

	if fingerprints := a.parameters.DTLSParameters.Fingerprints; len(fingerprints) != 0 {
		fingerprint := fingerprints[len(fingerprints)-1]
		description.WithFingerprint(fingerprint.Algorithm, strings.ToUpper(fingerprint.Value))
	}

	for _, media := range a.sections {
		description.WithMedia(media)
	}

	raw, err := description.Marshal()
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

func FormatCandidate(candidate ortc.ICECandidate) string {
	address := candidate.Address
	if address == "" {
		address = candidate.IP
	}

	value := fmt.Sprintf("%s 1 %s %d %s %d typ %s",
		candidate.Foundation, candidate.Protocol, candidate.Priority, address, candidate.Port, candidate.Type)

	if candidate.TCPType != "" {
		value += " tcptype " + candidate.TCPType
	}

	return value
}

func protos(section MediaSection) []string {
	if section.Protocol == "" {
		return []string{"UDP", "TLS", "RTP", "SAVPF"}
	}

	return strings.Split(section.Protocol, "/")
}

func answerDirection(offerDirection string) string {
	switch offerDirection {
	case "sendonly":
		return "recvonly"
	case "recvonly":
		return "sendonly"
	case "inactive":
		return "inactive"
	default:
		return "sendrecv"
	}
}

func setupAttribute(role ortc.DTLSRole) string {
	switch role {
	case ortc.DTLSRoleClient:
		return "active"
	case ortc.DTLSRoleServer:
		return "passive"
	default:
		return "actpass"
	}
}
