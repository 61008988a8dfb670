package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/videmus/relay/internal/server/helpers"
)

const maxOfferSize = 1 << 20

func (a *api) whipHandler(responseWriter http.ResponseWriter, request *http.Request) {
	broadcastID := request.PathValue("broadcastId")
	token := helpers.ResolveBearerToken(request.Header.Get("Authorization"))

	offer, err := io.ReadAll(http.MaxBytesReader(responseWriter, request.Body, maxOfferSize))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		helpers.LogHTTPError(responseWriter, "offer is larger than 1 MiB", http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		helpers.LogHTTPError(responseWriter, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := a.relay.Ingest(request.Context(), broadcastID, token, string(offer))
	if err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	responseWriter.Header().Set("Content-Type", "application/sdp")
	responseWriter.Header().Set("Location", result.Location)
	responseWriter.WriteHeader(http.StatusCreated)

	if _, err = io.WriteString(responseWriter, result.Answer); err != nil {
		helpers.LogHTTPError(responseWriter, err.Error(), http.StatusInternalServerError)
	}
}

func whipOptionsHandler(responseWriter http.ResponseWriter, request *http.Request) {
	responseWriter.Header().Set("Accept-Post", "application/sdp")
	responseWriter.WriteHeader(http.StatusNoContent)
}

func (a *api) whipDeleteHandler(responseWriter http.ResponseWriter, request *http.Request) {
	if err := a.relay.Teardown(request.Context(), request.PathValue("broadcastId")); err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	responseWriter.WriteHeader(http.StatusOK)
}

// Trickle ICE and ICE restarts are not supported, candidates are all in the answer
func whipPatchHandler(responseWriter http.ResponseWriter, request *http.Request) {
	helpers.LogHTTPError(responseWriter, "trickle ICE is not supported", http.StatusMethodNotAllowed)
}
