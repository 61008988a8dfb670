// Package sfu is the media engine the relay is built on: routers scoped to one
// broadcast, WebRTC transports, producers receiving publisher media and consumers
// forwarding it to viewers.
package sfu

import (
	"context"
	"errors"
	"time"

	"github.com/videmus/relay/internal/webrtc/ortc"
)

var (
	ErrRouterClosed          = errors.New("router is closed")
	ErrTransportClosed       = errors.New("transport is closed")
	ErrAlreadyConnected      = errors.New("transport is already connected")
	ErrMissingICEParameters  = errors.New("remote ICE parameters are required")
	ErrProducerNotFound      = errors.New("producer not found")
	ErrCannotConsume         = errors.New("capabilities cannot consume producer")
	ErrMissingRTPParameters  = errors.New("producer RTP parameters have no codecs or encodings")
	ErrUnsupportedMediaKind  = errors.New("unsupported media kind")
	ErrInvalidDTLSParameters = errors.New("remote DTLS parameters have no fingerprint")
)

type ICEState string

const (
	ICEStateNew          ICEState = "new"
	ICEStateConnected    ICEState = "connected"
	ICEStateDisconnected ICEState = "disconnected"
	ICEStateClosed       ICEState = "closed"
)

type (
	Engine interface {
		CreateRouter(ctx context.Context) (Router, error)
	}

	Router interface {
		ID() string
		RTPCapabilities() ortc.RTPCapabilities
		CreateWebRTCTransport(ctx context.Context) (Transport, error)
		CanConsume(producerID string, capabilities ortc.RTPCapabilities) bool
		Close()
		Closed() bool
	}

	Transport interface {
		ID() string
		ICEParameters() ortc.ICEParameters
		ICECandidates() []ortc.ICECandidate
		DTLSParameters() ortc.DTLSParameters

		// Connect starts ICE and DTLS towards the remote endpoint. It returns once
		// the parameters are accepted; the handshake completes asynchronously.
		Connect(ctx context.Context, remote RemoteParameters) error
		Produce(ctx context.Context, options ProducerOptions) (Producer, error)
		Consume(ctx context.Context, options ConsumerOptions) (Consumer, error)

		// OnICEStateChange registers the observer for ICE transitions. Only one
		// observer is kept.
		OnICEStateChange(func(ICEState))
		Close()
		Closed() bool
	}

	Producer interface {
		ID() string
		Kind() ortc.MediaKind
		RTPParameters() ortc.RTPParameters
		Stats() ProducerStats
		Close()
		Closed() bool
	}

	Consumer interface {
		ID() string
		ProducerID() string
		Kind() ortc.MediaKind
		RTPParameters() ortc.RTPParameters
		Paused() bool
		Resume() error
		Close()
		Closed() bool
	}
)

type (
	RemoteParameters struct {
		DTLSParameters ortc.DTLSParameters
		ICEParameters  *ortc.ICEParameters
		ICECandidates  []ortc.ICECandidate
	}

	ProducerOptions struct {
		Kind          ortc.MediaKind
		RTPParameters ortc.RTPParameters
	}

	ConsumerOptions struct {
		ProducerID      string
		RTPCapabilities ortc.RTPCapabilities
		Paused          bool
	}

	ProducerStats struct {
		PacketsReceived uint64    `json:"packetsReceived"`
		BytesReceived   uint64    `json:"bytesReceived"`
		Bitrate         uint64    `json:"bitrate"`
		LastKeyframe    time.Time `json:"lastKeyframe"`
	}
)
