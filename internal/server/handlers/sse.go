package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/environment"
	"github.com/videmus/relay/internal/server/helpers"
	"github.com/videmus/relay/internal/webrtc"
)

// streamingStatusEventsHandler pushes the streaming status of a channel every
// STATUS_INTERVAL until the client leaves or the broadcast ends.
func (a *api) streamingStatusEventsHandler(responseWriter http.ResponseWriter, request *http.Request) {
	if os.Getenv(environment.DisableStatus) != "" {
		helpers.LogHTTPError(responseWriter, "Status Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	channelID := request.PathValue("channelId")
	if _, err := a.relay.StreamingStatus(channelID); err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	flusher, ok := responseWriter.(http.Flusher)
	if !ok {
		http.Error(responseWriter, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	responseWriter.Header().Add("Content-Type", "text/event-stream")
	responseWriter.Header().Add("Cache-Control", "no-cache")
	responseWriter.Header().Add("Connection", "keep-alive")

	debugSseMessages := environment.IsEnabled(environment.DebugPrintSSEMessages)
	writeTimeout := 500 * time.Millisecond

	ctx := request.Context()
	responseController := http.NewResponseController(responseWriter)

	var writeLock sync.Mutex
	writeEvent := func(writeCtx context.Context, event string, content any) bool {
		if writeCtx.Err() != nil {
			return false
		}

		data, err := json.Marshal(content)
		if err != nil {
			log.Error().Err(err).Msg("API.SSE Marshal error")
			return false
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n", event, data)

		writeLock.Lock()
		defer writeLock.Unlock()

		if debugSseMessages {
			log.Debug().Str("channelId", channelID).Msg("API.SSE Sending: " + msg)
		}

		if err := responseController.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			log.Warn().Err(err).Msg("API.SSE SetWriteDeadline error")
			return false
		}

		_, err = fmt.Fprintf(responseWriter, "%s\n", msg)
		if err == nil {
			flusher.Flush()
		}

		if deadlineErr := responseController.SetWriteDeadline(time.Time{}); deadlineErr != nil && !errors.Is(deadlineErr, http.ErrNotSupported) {
			log.Warn().Err(deadlineErr).Msg("API.SSE ClearWriteDeadline error")
			return false
		}

		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				log.Warn().Msg("API.SSE Write timeout")
			} else {
				log.Warn().Err(err).Msg("API.SSE Write error")
			}
			return false
		}

		return true
	}

	writeStatus := func() bool {
		status, err := a.relay.StreamingStatus(channelID)
		if err != nil {
			writeEvent(ctx, "status", webrtc.StreamingStatus{})
			return false
		}

		return writeEvent(ctx, "status", status)
	}

	if !writeStatus() {
		return
	}

	ticker := time.NewTicker(environment.GetStatusInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("channelId", channelID).Msg("API.SSE: Client disconnected")
			return
		case <-ticker.C:
			if !writeStatus() {
				return
			}
		}
	}
}
