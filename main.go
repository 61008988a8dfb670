package main

import (
	"net/http"
	_ "net/http/pprof"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/environment"
	"github.com/videmus/relay/internal/server"
	"github.com/videmus/relay/internal/store"
	"github.com/videmus/relay/internal/webrtc"
)

func main() {
	environment.SetupLogger()
	environment.LoadEnvironmentVariables()
	// Again, LOG_LEVEL and LOG_FORMAT may come from the env file
	environment.SetupLogger()

	if environment.IsEnabled(environment.EnableProfiling) {
		go func() {
			runtime.SetBlockProfileRate(1)
			runtime.SetMutexProfileFraction(1)
			log.Warn().Err(http.ListenAndServe("localhost:6060", nil)).Msg("Profiling server stopped")
		}()
	}

	log.Info().Str("time", time.Now().Format("2006-01-02 15:04:05")).Msg("Booting up relay")

	broadcastStore, err := store.NewFileStore(environment.GetStorePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Store")
	}

	relay, err := webrtc.Setup(broadcastStore, broadcastStore)
	if err != nil {
		log.Fatal().Err(err).Msg("WebRTC")
	}

	server.StartWebServer(relay)
}
