package helpers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc"
)

// WriteRelayError answers with the status code of the relay error kind
func WriteRelayError(responseWriter http.ResponseWriter, err error) {
	relayErr := webrtc.AsError(err)
	if relayErr.Kind == webrtc.ErrorKindUnexpected {
		log.Error().Err(err).Msg("API.Unexpected")
	}

	LogHTTPError(responseWriter, relayErr.Message, relayErr.StatusCode())
}

func WriteJSON(responseWriter http.ResponseWriter, code int, content any) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(code)

	if err := json.NewEncoder(responseWriter).Encode(content); err != nil {
		log.Error().Err(err).Msg("API.WriteJSON")
	}
}
