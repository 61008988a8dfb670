package helpers

import "strings"

// ResolveBearerToken returns the token of an `Authorization: Bearer <token>` header
func ResolveBearerToken(authorization string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(authorization), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}
