package sfu

import (
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/ortc"
)

func fromPionICEParameters(parameters webrtc.ICEParameters) ortc.ICEParameters {
	return ortc.ICEParameters{
		UsernameFragment: parameters.UsernameFragment,
		Password:         parameters.Password,
		ICELite:          parameters.ICELite,
	}
}

func toPionICEParameters(parameters ortc.ICEParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: parameters.UsernameFragment,
		Password:         parameters.Password,
		ICELite:          parameters.ICELite,
	}
}

func fromPionCandidates(candidates []webrtc.ICECandidate) []ortc.ICECandidate {
	result := make([]ortc.ICECandidate, 0, len(candidates))
	for _, candidate := range candidates {
		result = append(result, ortc.ICECandidate{
			Foundation: candidate.Foundation,
			Priority:   candidate.Priority,
			IP:         candidate.Address,
			Address:    candidate.Address,
			Protocol:   candidate.Protocol.String(),
			Port:       candidate.Port,
			Type:       candidate.Typ.String(),
			TCPType:    candidate.TCPType,
		})
	}

	return result
}

func toPionCandidates(candidates []ortc.ICECandidate) []webrtc.ICECandidate {
	result := make([]webrtc.ICECandidate, 0, len(candidates))
	for _, candidate := range candidates {
		protocol, err := webrtc.NewICEProtocol(candidate.Protocol)
		if err != nil {
			log.Debug().Err(err).Str("protocol", candidate.Protocol).Msg("SFU.Candidate.Skipped")
			continue
		}

		candidateType, err := webrtc.NewICECandidateType(candidate.Type)
		if err != nil {
			log.Debug().Err(err).Str("type", candidate.Type).Msg("SFU.Candidate.Skipped")
			continue
		}

		address := candidate.Address
		if address == "" {
			address = candidate.IP
		}

		result = append(result, webrtc.ICECandidate{
			Foundation: candidate.Foundation,
			Priority:   candidate.Priority,
			Address:    address,
			Protocol:   protocol,
			Port:       candidate.Port,
			Typ:        candidateType,
			Component:  1,
			TCPType:    candidate.TCPType,
		})
	}

	return result
}

func fromPionDTLSParameters(parameters webrtc.DTLSParameters) ortc.DTLSParameters {
	fingerprints := make([]ortc.DTLSFingerprint, 0, len(parameters.Fingerprints))
	for _, fingerprint := range parameters.Fingerprints {
		fingerprints = append(fingerprints, ortc.DTLSFingerprint{
			Algorithm: fingerprint.Algorithm,
			Value:     strings.ToUpper(fingerprint.Value),
		})
	}

	return ortc.DTLSParameters{Role: ortc.DTLSRoleAuto, Fingerprints: fingerprints}
}

func toPionDTLSParameters(parameters ortc.DTLSParameters) webrtc.DTLSParameters {
	fingerprints := make([]webrtc.DTLSFingerprint, 0, len(parameters.Fingerprints))
	for _, fingerprint := range parameters.Fingerprints {
		fingerprints = append(fingerprints, webrtc.DTLSFingerprint{
			Algorithm: fingerprint.Algorithm,
			Value:     fingerprint.Value,
		})
	}

	role := webrtc.DTLSRoleAuto
	switch parameters.Role {
	case ortc.DTLSRoleClient:
		role = webrtc.DTLSRoleClient
	case ortc.DTLSRoleServer:
		role = webrtc.DTLSRoleServer
	}

	return webrtc.DTLSParameters{Role: role, Fingerprints: fingerprints}
}
