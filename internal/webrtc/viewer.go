package webrtc

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/ortc"
	"github.com/videmus/relay/internal/webrtc/sessions/broadcast"
	"github.com/videmus/relay/internal/webrtc/sessions/viewer"
	"github.com/videmus/relay/internal/webrtc/sfu"
)

type TransportParameters struct {
	ID             string              `json:"id"`
	ICEParameters  ortc.ICEParameters  `json:"iceParameters"`
	ICECandidates  []ortc.ICECandidate `json:"iceCandidates"`
	DTLSParameters ortc.DTLSParameters `json:"dtlsParameters"`
}

func (r *Relay) liveSession(channelID string) (*broadcast.Session, error) {
	session, ok := r.sessions.FindByActiveChannel(channelID)
	if !ok {
		return nil, notFound("no broadcast is live on channel %s", channelID)
	}

	return session, nil
}

func (r *Relay) viewerSession(channelID string, transportID string) (*broadcast.Session, *viewer.Session, error) {
	session, err := r.liveSession(channelID)
	if err != nil {
		return nil, nil, err
	}

	viewerSession, ok := session.Viewer(transportID)
	if !ok {
		return nil, nil, notFound("transport %s does not exist on channel %s", transportID, channelID)
	}

	return session, viewerSession, nil
}

// Capabilities returns what the router of the broadcast live on the channel can send
func (r *Relay) Capabilities(channelID string) (ortc.RTPCapabilities, error) {
	session, err := r.liveSession(channelID)
	if err != nil {
		return ortc.RTPCapabilities{}, err
	}

	return session.Router.RTPCapabilities(), nil
}

// CreateViewerTransport opens a receive transport for a new viewer of the channel
func (r *Relay) CreateViewerTransport(ctx context.Context, channelID string) (*TransportParameters, error) {
	session, err := r.liveSession(channelID)
	if err != nil {
		return nil, err
	}

	transport, err := session.Router.CreateWebRTCTransport(ctx)
	switch {
	case errors.Is(err, sfu.ErrRouterClosed):
		return nil, notFound("broadcast on channel %s ended", channelID)
	case err != nil:
		return nil, unexpected(err, "create viewer transport on channel %s", channelID)
	}

	viewerSession := viewer.New(session.BroadcastID, channelID, transport)
	transport.OnICEStateChange(func(state sfu.ICEState) {
		go viewerSession.HandleICEStateChange(state)
	})

	if err = session.AddViewer(viewerSession); err != nil {
		transport.Close()
		return nil, notFound("broadcast on channel %s ended", channelID)
	}

	if err = viewerSession.ParamsIssued(); err != nil {
		return nil, notFound("transport %s closed", transport.ID())
	}

	log.Info().
		Str("broadcastId", session.BroadcastID).
		Str("channelId", channelID).
		Str("transportId", transport.ID()).
		Msg("Viewer.Transport.Created")

	return &TransportParameters{
		ID:             transport.ID(),
		ICEParameters:  transport.ICEParameters(),
		ICECandidates:  transport.ICECandidates(),
		DTLSParameters: transport.DTLSParameters(),
	}, nil
}

// ConnectViewer starts the DTLS handshake of a viewer transport. Connecting twice is a no-op.
// The remote ICE parameters are required; a connect without them is an invalid request.
func (r *Relay) ConnectViewer(ctx context.Context, channelID string, transportID string, remote sfu.RemoteParameters) error {
	_, viewerSession, err := r.viewerSession(channelID, transportID)
	if err != nil {
		return err
	}

	err = viewerSession.Connect(ctx, remote)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sfu.ErrAlreadyConnected):
		log.Debug().Str("transportId", transportID).Msg("Viewer.Connect.AlreadyConnected")
		return nil
	case errors.Is(err, viewer.ErrClosed), errors.Is(err, sfu.ErrTransportClosed):
		return notFound("transport %s closed", transportID)
	case errors.Is(err, sfu.ErrMissingICEParameters), errors.Is(err, sfu.ErrInvalidDTLSParameters):
		return invalidRequest(err, "connect transport %s: %v", transportID, err)
	default:
		return unexpected(err, "connect transport %s", transportID)
	}
}

// CreateConsumers creates a paused consumer for every producer the viewer can receive
func (r *Relay) CreateConsumers(ctx context.Context, channelID string, transportID string, capabilities ortc.RTPCapabilities) ([]viewer.ConsumerParameters, error) {
	session, viewerSession, err := r.viewerSession(channelID, transportID)
	if err != nil {
		return nil, err
	}

	parameters, err := viewerSession.Consume(ctx, session.Router, session.Producers(), capabilities)
	switch {
	case err == nil:
		return parameters, nil
	case errors.Is(err, viewer.ErrClosed), errors.Is(err, sfu.ErrTransportClosed), errors.Is(err, sfu.ErrProducerNotFound):
		return nil, notFound("transport %s closed", transportID)
	default:
		return nil, unexpected(err, "create consumers on transport %s", transportID)
	}
}

// ResumeConsumers starts media on every consumer of the viewer
func (r *Relay) ResumeConsumers(ctx context.Context, channelID string, transportID string) error {
	if err := ctx.Err(); err != nil {
		return unexpected(err, "resume consumers on transport %s", transportID)
	}

	_, viewerSession, err := r.viewerSession(channelID, transportID)
	if err != nil {
		return err
	}

	err = viewerSession.Resume()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, viewer.ErrClosed), errors.Is(err, sfu.ErrTransportClosed):
		return notFound("transport %s closed", transportID)
	default:
		return unexpected(err, "resume consumers on transport %s", transportID)
	}
}
