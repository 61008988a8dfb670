package webrtc

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/store"
	"github.com/videmus/relay/internal/webrtc/ortc"
	"github.com/videmus/relay/internal/webrtc/sessions/broadcast"
	"github.com/videmus/relay/internal/webrtc/sfu"
	"github.com/videmus/relay/internal/webrtc/utils"
	"github.com/videmus/relay/internal/webrtc/whipsdp"
)

type IngestResult struct {
	Answer   string
	Location string
}

// Ingest accepts a WHIP offer. Every offer builds a new router, transport and
// producers; a broadcast that was already live is closed once the new one is
// registered.
func (r *Relay) Ingest(ctx context.Context, broadcastID string, token string, offer string) (*IngestResult, error) {
	log.Info().Str("broadcastId", broadcastID).Msg("WHIP.Offer.Requested")

	channelID, err := r.authorizePublisher(ctx, broadcastID, token)
	if err != nil {
		return nil, err
	}

	parsed, err := whipsdp.ParseOffer(utils.DebugOutputOffer(offer))
	if err != nil {
		return nil, unexpected(err, "malformed offer for broadcast %s", broadcastID)
	}

	router, err := r.engine.CreateRouter(ctx)
	if err != nil {
		return nil, unexpected(err, "create router for broadcast %s", broadcastID)
	}

	session, answer, err := r.publish(ctx, broadcastID, channelID, router, parsed)
	if err != nil {
		router.Close()
		return nil, err
	}

	if previous, replaced := r.sessions.Put(broadcastID, session); replaced {
		log.Info().Str("broadcastId", broadcastID).Msg("WHIP.Offer.ReplacedSession")
		previous.Close()
	}

	// The publisher transport may have failed while the session was being registered
	if session.IsClosed() {
		r.sessions.RemoveIf(broadcastID, session)
		return nil, unexpected(sfu.ErrTransportClosed, "publisher transport of broadcast %s closed", broadcastID)
	}

	channelID = r.reconcileChannel(ctx, broadcastID, channelID)

	log.Info().
		Str("broadcastId", broadcastID).
		Str("channelId", channelID).
		Str("routerId", router.ID()).
		Int("producers", len(session.Producers())).
		Msg("WHIP.Offer.Accepted")

	return &IngestResult{
		Answer:   utils.DebugOutputAnswer(answer),
		Location: r.teardownURL(broadcastID),
	}, nil
}

// authorizePublisher returns the channel the broadcast will be served on
func (r *Relay) authorizePublisher(ctx context.Context, broadcastID string, token string) (string, error) {
	details, err := r.broadcasts.GetBroadcast(ctx, broadcastID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "", notFound("broadcast %s does not exist", broadcastID)
	case err != nil:
		return "", unexpected(err, "load broadcast %s", broadcastID)
	}

	tokenBroadcastID, err := r.tokens.ValidateToken(ctx, token)
	switch {
	case errors.Is(err, store.ErrInvalidToken):
		return "", notAvailable("broadcast token is not valid for broadcast %s", broadcastID)
	case err != nil:
		return "", unexpected(err, "validate token for broadcast %s", broadcastID)
	case tokenBroadcastID != broadcastID:
		return "", notAvailable("broadcast token is not valid for broadcast %s", broadcastID)
	}

	if !details.Approved() {
		return "", notAvailable("broadcast %s is not available yet", broadcastID)
	}

	if details.CurrentChannelID == "" {
		return "", notFound("broadcast %s has no current channel", broadcastID)
	}

	return details.CurrentChannelID, nil
}

// reconcileChannel points the registered session at the stored channel. A switch
// that ran between the authorization and the registration found nothing live and
// only reached the store.
func (r *Relay) reconcileChannel(ctx context.Context, broadcastID string, channelID string) string {
	r.channelLock.Lock()
	defer r.channelLock.Unlock()

	details, err := r.broadcasts.GetBroadcast(ctx, broadcastID)
	if err != nil {
		log.Warn().Err(err).Str("broadcastId", broadcastID).Msg("WHIP.Offer.ChannelCheckFailed")
		return channelID
	}

	if details.CurrentChannelID == "" || details.CurrentChannelID == channelID {
		return channelID
	}

	if r.sessions.SwitchChannel(broadcastID, details.CurrentChannelID) {
		log.Info().
			Str("broadcastId", broadcastID).
			Str("channelId", details.CurrentChannelID).
			Str("previousChannelId", channelID).
			Msg("WHIP.Offer.ChannelReconciled")
	}

	return details.CurrentChannelID
}

// publish creates the publisher transport and one producer per m-line, building
// the answer in offer order. The returned session is not registered yet.
func (r *Relay) publish(ctx context.Context, broadcastID string, channelID string, router sfu.Router, offer *whipsdp.Offer) (*broadcast.Session, string, error) {
	extended := ortc.GetExtendedRTPCapabilities(offer.Capabilities, router.RTPCapabilities(), true)

	transport, err := router.CreateWebRTCTransport(ctx)
	if err != nil {
		return nil, "", unexpected(err, "create publisher transport for broadcast %s", broadcastID)
	}

	localDTLS := transport.DTLSParameters()
	remoteDTLS := offer.DTLSParameters
	localDTLS.Role, remoteDTLS.Role = answerDTLSRoles(offer.DTLSParameters.Role)

	answer := whipsdp.NewAnswer(offer, whipsdp.AnswerParameters{
		ICEParameters:  transport.ICEParameters(),
		ICECandidates:  transport.ICECandidates(),
		DTLSParameters: localDTLS,
	})

	producers := []sfu.Producer{}
	for _, section := range offer.Media {
		kind := ortc.MediaKind(section.Kind)
		sending := ortc.GetSendingRTPParameters(kind, extended)
		if !section.IsMedia() || !hasMediaCodec(sending) {
			log.Warn().Str("broadcastId", broadcastID).Str("mid", section.MID).Str("kind", section.Kind).Msg("WHIP.Offer.SectionRejected")
			answer.Reject(section)
			continue
		}

		encodings, err := section.Encodings()
		if err != nil {
			log.Warn().Err(err).Str("broadcastId", broadcastID).Str("mid", section.MID).Msg("WHIP.Offer.SectionRejected")
			answer.Reject(section)
			continue
		}

		sending.MID = section.MID
		sending.Codecs = ortc.ReduceCodecs(sending.Codecs)
		sending.Encodings = encodings
		sending.RTCP = ortc.RTCPParameters{CNAME: section.CNAME(), ReducedSize: true}

		producer, err := transport.Produce(ctx, sfu.ProducerOptions{Kind: kind, RTPParameters: sending})
		if err != nil {
			return nil, "", unexpected(err, "produce %s for broadcast %s", kind, broadcastID)
		}
		producers = append(producers, producer)

		remote := ortc.GetSendingRemoteRTPParameters(kind, extended)
		remote.MID = section.MID
		remote.Codecs = ortc.ReduceCodecs(remote.Codecs)
		answer.Accept(section, remote)
	}

	if len(producers) == 0 {
		return nil, "", unexpected(ortc.ErrNoCompatibleCodecs, "offer for broadcast %s has no media the router can receive", broadcastID)
	}

	sdpAnswer, err := answer.Marshal()
	if err != nil {
		return nil, "", unexpected(err, "marshal answer for broadcast %s", broadcastID)
	}

	session := broadcast.New(broadcastID, channelID, router, transport, producers)
	r.observePublisher(session, transport)

	iceParameters := offer.ICEParameters
	if err = transport.Connect(ctx, sfu.RemoteParameters{
		DTLSParameters: remoteDTLS,
		ICEParameters:  &iceParameters,
		ICECandidates:  offer.ICECandidates,
	}); err != nil {
		return nil, "", unexpected(err, "connect publisher transport for broadcast %s", broadcastID)
	}

	return session, sdpAnswer, nil
}

// Teardown ends a live broadcast and everything attached to it
func (r *Relay) Teardown(ctx context.Context, broadcastID string) error {
	if err := ctx.Err(); err != nil {
		return unexpected(err, "teardown broadcast %s", broadcastID)
	}

	session, ok := r.sessions.Remove(broadcastID)
	if !ok {
		return notFound("broadcast %s is not live", broadcastID)
	}

	session.Close()
	log.Info().Str("broadcastId", broadcastID).Msg("WHIP.Teardown")

	return nil
}

// observePublisher tears the broadcast down when its publisher goes away: at
// once when the transport closes, after the grace period when it disconnects.
func (r *Relay) observePublisher(session *broadcast.Session, transport sfu.Transport) {
	var (
		lock  sync.Mutex
		timer *time.Timer
	)

	transport.OnICEStateChange(func(state sfu.ICEState) {
		log.Debug().Str("broadcastId", session.BroadcastID).Str("state", string(state)).Msg("WHIP.ICEStateChange")

		lock.Lock()
		defer lock.Unlock()

		if timer != nil {
			timer.Stop()
			timer = nil
		}

		switch state {
		case sfu.ICEStateClosed:
			go r.endPublisher(session, state)
		case sfu.ICEStateDisconnected:
			timer = time.AfterFunc(r.publisherICEGrace, func() {
				r.endPublisher(session, state)
			})
		}
	})
}

func (r *Relay) endPublisher(session *broadcast.Session, state sfu.ICEState) {
	if r.sessions.RemoveIf(session.BroadcastID, session) {
		log.Info().Str("broadcastId", session.BroadcastID).Str("state", string(state)).Msg("WHIP.Publisher.Lost")
	}

	session.Close()
}

// The answer takes the DTLS client role unless the publisher insists on it
func answerDTLSRoles(offerRole ortc.DTLSRole) (local ortc.DTLSRole, remote ortc.DTLSRole) {
	if offerRole == ortc.DTLSRoleClient {
		return ortc.DTLSRoleServer, ortc.DTLSRoleClient
	}

	return ortc.DTLSRoleClient, ortc.DTLSRoleServer
}

func hasMediaCodec(parameters ortc.RTPParameters) bool {
	return slices.ContainsFunc(parameters.Codecs, func(codec ortc.RTPCodecParameters) bool {
		return !ortc.IsRTXMimeType(codec.MimeType)
	})
}
