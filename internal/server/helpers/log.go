package helpers

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

func LogHTTPError(responseWriter http.ResponseWriter, error string, code int) {
	log.Warn().Int("status", code).Msg("LogHTTPError " + error)
	http.Error(responseWriter, error, code)
}
