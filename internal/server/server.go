package server

import (
	"net/http"
	"os"

	"github.com/videmus/relay/internal/environment"
	"github.com/videmus/relay/internal/server/handlers"
	"github.com/videmus/relay/internal/webrtc"
)

// HTTP Setup
func StartWebServer(relay *webrtc.Relay) {
	setupHTTPRedirect()

	serverMux := handlers.GetServeMuxHandler(relay)

	if os.Getenv(environment.SSLKey) != "" && os.Getenv(environment.SSLCert) != "" {
		startHTTPSServer(serverMux)
	} else {
		startHTTPServer(serverMux)
	}
}

func redirectToHTTPSHandler(responseWriter http.ResponseWriter, request *http.Request) {
	target := "https://" + request.Host + request.URL.RequestURI()
	http.Redirect(responseWriter, request, target, http.StatusMovedPermanently)
}
