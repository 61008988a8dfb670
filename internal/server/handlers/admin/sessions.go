package admin

import (
	"net/http"
	"os"

	"github.com/videmus/relay/internal/environment"
	"github.com/videmus/relay/internal/server/helpers"
	"github.com/videmus/relay/internal/webrtc"
)

// SessionsHandler lists every live broadcast with its producers and viewers
func SessionsHandler(relay *webrtc.Relay) http.HandlerFunc {
	return func(responseWriter http.ResponseWriter, request *http.Request) {
		if isDisabled := os.Getenv(environment.DisableStatus); isDisabled != "" {
			helpers.LogHTTPError(responseWriter, "Status Service Unavailable", http.StatusServiceUnavailable)
			return
		}

		if session := verifyAdminSession(request); !session.IsValid {
			helpers.WriteJSON(responseWriter, http.StatusUnauthorized, session)
			return
		}

		helpers.WriteJSON(responseWriter, http.StatusOK, relay.SessionStates())
	}
}
