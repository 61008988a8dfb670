package webrtc

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/store"
	"github.com/videmus/relay/internal/webrtc/sessions/broadcast"
	"github.com/videmus/relay/internal/webrtc/sessions/viewer"
)

type SwitchResult int

const (
	// SwitchApplied means the live broadcast now serves the new channel
	SwitchApplied SwitchResult = iota
	// SwitchNotLive means the channel was stored but no broadcast is live yet
	SwitchNotLive
)

type (
	StreamingStatus struct {
		StreamingCount int  `json:"streamingCount"`
		IsBroadcasting bool `json:"isBroadcasting"`
	}

	BroadcastingStatus struct {
		StreamingStatus
		Producers []broadcast.ProducerState `json:"producers,omitempty"`

		// Pending is set while the broadcast is not available to publish yet
		Pending bool `json:"-"`
	}

	SessionState struct {
		BroadcastID     string                    `json:"broadcastId"`
		ActiveChannelID string                    `json:"activeChannelId"`
		StreamStart     time.Time                 `json:"streamStart"`
		Producers       []broadcast.ProducerState `json:"producers"`
		Viewers         []viewer.SessionState     `json:"viewers"`
	}
)

// SwitchChannel stores the broadcast's new channel and points the live session at it
func (r *Relay) SwitchChannel(ctx context.Context, broadcastID string, channelID string) (SwitchResult, error) {
	r.channelLock.Lock()
	defer r.channelLock.Unlock()

	err := r.broadcasts.SetCurrentChannel(ctx, broadcastID, channelID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return SwitchNotLive, notFound("broadcast %s does not exist", broadcastID)
	case errors.Is(err, store.ErrChannelNotOwned):
		return SwitchNotLive, notFound("channel %s does not belong to broadcast %s", channelID, broadcastID)
	case err != nil:
		return SwitchNotLive, unexpected(err, "store current channel of broadcast %s", broadcastID)
	}

	if !r.sessions.SwitchChannel(broadcastID, channelID) {
		log.Info().Str("broadcastId", broadcastID).Str("channelId", channelID).Msg("Channel.Switch.NotLive")
		return SwitchNotLive, nil
	}

	log.Info().Str("broadcastId", broadcastID).Str("channelId", channelID).Msg("Channel.Switch.Applied")
	return SwitchApplied, nil
}

// BroadcastingStatus is the publisher facing status, addressed by broadcast id
func (r *Relay) BroadcastingStatus(ctx context.Context, broadcastID string) (BroadcastingStatus, error) {
	details, err := r.broadcasts.GetBroadcast(ctx, broadcastID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return BroadcastingStatus{}, notFound("broadcast %s does not exist", broadcastID)
	case err != nil:
		return BroadcastingStatus{}, unexpected(err, "load broadcast %s", broadcastID)
	}

	if !details.IsAvailable || !details.Approved() {
		return BroadcastingStatus{Pending: true}, nil
	}

	session, ok := r.sessions.Get(broadcastID)
	if !ok {
		return BroadcastingStatus{}, nil
	}

	return BroadcastingStatus{
		StreamingStatus: StreamingStatus{
			StreamingCount: session.ViewerCount(),
			IsBroadcasting: true,
		},
		Producers: session.ProducerStates(),
	}, nil
}

// StreamingStatus is the viewer facing status, addressed by channel id
func (r *Relay) StreamingStatus(channelID string) (StreamingStatus, error) {
	session, err := r.liveSession(channelID)
	if err != nil {
		return StreamingStatus{}, err
	}

	return StreamingStatus{
		StreamingCount: session.ViewerCount(),
		IsBroadcasting: true,
	}, nil
}

// SessionStates lists every live broadcast with its producers and viewers
func (r *Relay) SessionStates() []SessionState {
	states := []SessionState{}
	for _, session := range r.sessions.Sessions() {
		state := SessionState{
			BroadcastID:     session.BroadcastID,
			ActiveChannelID: session.ActiveChannelID(),
			StreamStart:     session.StreamStart,
			Producers:       session.ProducerStates(),
			Viewers:         []viewer.SessionState{},
		}

		for _, viewerSession := range session.Viewers() {
			state.Viewers = append(state.Viewers, viewerSession.GetSessionState())
		}

		states = append(states, state)
	}

	return states
}
