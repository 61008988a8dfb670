package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/videmus/relay/internal/server/helpers"
	"github.com/videmus/relay/internal/webrtc"
)

type currentChannelRequestJSON struct {
	NewChannelID     string `json:"newChannelId"`
	CurrentChannelID string `json:"currentChannelId"`
}

func (a *api) broadcastingStatusHandler(responseWriter http.ResponseWriter, request *http.Request) {
	status, err := a.relay.BroadcastingStatus(request.Context(), request.PathValue("broadcastId"))
	if err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	code := http.StatusOK
	if status.Pending {
		code = http.StatusAccepted
	}

	helpers.WriteJSON(responseWriter, code, status)
}

func (a *api) streamingStatusHandler(responseWriter http.ResponseWriter, request *http.Request) {
	status, err := a.relay.StreamingStatus(request.PathValue("channelId"))
	if err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	helpers.WriteJSON(responseWriter, http.StatusOK, status)
}

func (a *api) currentChannelHandler(responseWriter http.ResponseWriter, request *http.Request) {
	var requestContent currentChannelRequestJSON
	if err := json.NewDecoder(request.Body).Decode(&requestContent); err != nil {
		helpers.LogHTTPError(responseWriter, err.Error(), http.StatusBadRequest)
		return
	}

	channelID := requestContent.NewChannelID
	if channelID == "" {
		channelID = requestContent.CurrentChannelID
	}
	if channelID == "" {
		helpers.LogHTTPError(responseWriter, "newChannelId is required", http.StatusBadRequest)
		return
	}

	result, err := a.relay.SwitchChannel(request.Context(), request.PathValue("broadcastId"), channelID)
	if err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	if result == webrtc.SwitchNotLive {
		responseWriter.WriteHeader(http.StatusAccepted)
		return
	}

	responseWriter.WriteHeader(http.StatusOK)
}
