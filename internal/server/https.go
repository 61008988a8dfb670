package server

import (
	"crypto/tls"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/environment"
)

var (
	defaultHTTPSAddress string = ":443"
)

func startHTTPSServer(serverMux http.HandlerFunc) {
	sslKey := os.Getenv(environment.SSLKey)
	sslCert := os.Getenv(environment.SSLCert)

	if sslKey == "" {
		log.Fatal().Msg("Missing SSL Key")
	}
	if sslCert == "" {
		log.Fatal().Msg("Missing SSL Certificate")
	}

	server := &http.Server{
		Handler:           serverMux,
		Addr:              getHTTPSAddress(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	cert, err := tls.LoadX509KeyPair(sslCert, sslKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading SSL key pair")
	}

	server.TLSConfig = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}

	log.Info().Str("address", getHTTPSAddress()).Msg("Serving HTTPS server")
	log.Fatal().Err(server.ListenAndServeTLS("", "")).Msg("HTTPS server stopped")
}

func getHTTPSAddress() string {
	if httpsAddress := os.Getenv(environment.HTTPAddress); httpsAddress != "" {
		return httpsAddress
	}

	return defaultHTTPSAddress
}
