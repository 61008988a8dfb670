package helpers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveBearerToken(t *testing.T) {
	require.Equal(t, "secret", ResolveBearerToken("Bearer secret"))
	require.Equal(t, "secret", ResolveBearerToken("bearer  secret "))
	require.Empty(t, ResolveBearerToken("Basic c2VjcmV0"))
	require.Empty(t, ResolveBearerToken("secret"))
	require.Empty(t, ResolveBearerToken(""))
}

func TestWriteRelayErrorDefaultsToInternalError(t *testing.T) {
	recorder := httptest.NewRecorder()
	WriteRelayError(recorder, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestWriteJSON(t *testing.T) {
	recorder := httptest.NewRecorder()
	WriteJSON(recorder, http.StatusAccepted, map[string]bool{"isBroadcasting": false})

	require.Equal(t, http.StatusAccepted, recorder.Code)
	require.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	require.JSONEq(t, `{"isBroadcasting":false}`, recorder.Body.String())
}
