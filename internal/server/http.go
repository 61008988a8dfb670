package server

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/environment"
)

var (
	defaultHTTPAddress         string = ":8080"
	defaultHTTPRedirectAddress string = ":80"
)

func startHTTPServer(serverMux http.HandlerFunc) {
	server := &http.Server{
		Handler:           serverMux,
		Addr:              getHTTPAddress(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("address", getHTTPAddress()).Msg("Starting HTTP server")
	log.Fatal().Err(server.ListenAndServe()).Msg("HTTP server stopped")
}

func getHTTPAddress() string {
	if httpAddress := os.Getenv(environment.HTTPAddress); httpAddress != "" {
		return httpAddress
	}

	return defaultHTTPAddress
}

func setupHTTPRedirect() {
	if shouldRedirectToHTTPS := os.Getenv(environment.HTTPEnableRedirect); shouldRedirectToHTTPS != "" {
		httpRedirectPort := defaultHTTPRedirectAddress

		if httpRedirectPortEnvVar := os.Getenv(environment.HTTPSRedirectPort); httpRedirectPortEnvVar != "" {
			httpRedirectPort = httpRedirectPortEnvVar
		}

		go func() {
			redirectServer := &http.Server{
				Addr:              httpRedirectPort,
				Handler:           http.HandlerFunc(redirectToHTTPSHandler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			log.Info().Str("address", redirectServer.Addr).Msg("Forwarding requests to HTTPS server")
			if err := redirectServer.ListenAndServe(); err != nil {
				log.Fatal().Err(err).Msg("HTTP redirect server stopped")
			}
		}()
	}
}
