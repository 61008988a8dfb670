package handlers

import (
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/environment"
	"github.com/videmus/relay/internal/server/handlers/admin"
	"github.com/videmus/relay/internal/webrtc"
)

type api struct {
	relay *webrtc.Relay
}

// GetServeMuxHandler routes the WHIP, viewer and status endpoints to the relay
func GetServeMuxHandler(relay *webrtc.Relay) http.HandlerFunc {
	handler := &api{relay: relay}
	serveMux := http.NewServeMux()

	serveMux.HandleFunc("POST /whip/{broadcastId}", handler.whipHandler)
	serveMux.HandleFunc("OPTIONS /whip/{broadcastId}", whipOptionsHandler)
	serveMux.HandleFunc("DELETE /whip/sessions/{broadcastId}", handler.whipDeleteHandler)
	serveMux.HandleFunc("PATCH /whip/sessions/{broadcastId}", whipPatchHandler)

	serveMux.HandleFunc("GET /broadcasting-status/{broadcastId}", handler.broadcastingStatusHandler)
	serveMux.HandleFunc("GET /streaming-status/{channelId}", handler.streamingStatusHandler)
	serveMux.HandleFunc("GET /streaming-status/{channelId}/events", handler.streamingStatusEventsHandler)
	serveMux.HandleFunc("POST /current-channel/{broadcastId}", handler.currentChannelHandler)

	serveMux.HandleFunc("GET /rtp-capabilities/{channelId}", handler.rtpCapabilitiesHandler)
	serveMux.HandleFunc("GET /viewer-transport-parameters/{channelId}", handler.viewerTransportHandler)
	serveMux.HandleFunc("POST /viewer-connect/{channelId}/{transportId}", handler.viewerConnectHandler)
	serveMux.HandleFunc("POST /consumer-parameters/{channelId}/{transportId}", handler.consumerParametersHandler)
	serveMux.HandleFunc("POST /resume-consumers/{channelId}/{transportId}", handler.resumeConsumersHandler)

	serveMux.HandleFunc("GET /admin/sessions", admin.SessionsHandler(relay))

	debugRequests := environment.IsEnabled(environment.DebugIncomingAPIRequest)
	allowedOrigins := environment.GetList(environment.CORSOrigins)

	return func(responseWriter http.ResponseWriter, request *http.Request) {
		if debugRequests {
			log.Debug().Str("method", request.Method).Str("path", request.URL.Path).Str("remote", request.RemoteAddr).Msg("API.Request")
		}

		if !setCORSHeaders(responseWriter, request, allowedOrigins) {
			serveMux.ServeHTTP(responseWriter, request)
			return
		}

		// Preflight requests of every route are answered here, WHIP discovery keeps its own handler
		if request.Method == http.MethodOptions && request.Header.Get("Access-Control-Request-Method") != "" {
			responseWriter.WriteHeader(http.StatusNoContent)
			return
		}

		serveMux.ServeHTTP(responseWriter, request)
	}
}

// setCORSHeaders reports whether the request came from an allowed origin
func setCORSHeaders(responseWriter http.ResponseWriter, request *http.Request, allowedOrigins []string) bool {
	origin := request.Header.Get("Origin")
	if origin == "" || len(allowedOrigins) == 0 {
		return false
	}

	if !slices.Contains(allowedOrigins, "*") && !slices.Contains(allowedOrigins, origin) {
		return false
	}

	header := responseWriter.Header()
	header.Set("Access-Control-Allow-Origin", origin)
	header.Add("Vary", "Origin")
	header.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	header.Set("Access-Control-Expose-Headers", "Location, Accept-Post")

	return true
}
