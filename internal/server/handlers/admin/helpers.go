package admin

import (
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/environment"
	"github.com/videmus/relay/internal/server/helpers"
)

type sessionResponse struct {
	IsValid      bool   `json:"isValid"`
	ErrorMessage string `json:"errorMessage"`
}

// Verify that a bearer token is provided for an admin session
func verifyAdminSession(request *http.Request) *sessionResponse {
	token := helpers.ResolveBearerToken(request.Header.Get("Authorization"))
	if token == "" {
		log.Debug().Msg("Admin: Authorization was not set")

		return &sessionResponse{
			IsValid:      false,
			ErrorMessage: "Authorization was invalid",
		}
	}

	adminAPIToken := os.Getenv(environment.AdminToken)

	if adminAPIToken == "" || !strings.EqualFold(adminAPIToken, token) {
		return &sessionResponse{
			IsValid:      false,
			ErrorMessage: "Authorization was invalid",
		}
	}

	return &sessionResponse{
		IsValid:      true,
		ErrorMessage: "",
	}
}
