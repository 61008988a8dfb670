package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/videmus/relay/internal/server/helpers"
	"github.com/videmus/relay/internal/webrtc/ortc"
	"github.com/videmus/relay/internal/webrtc/sfu"
)

type (
	// viewerConnectRequestJSON accepts the DTLS parameters alone, or wrapped
	// together with the ICE parameters of the viewer
	viewerConnectRequestJSON struct {
		DTLSParameters *ortc.DTLSParameters `json:"dtlsParameters"`
		ICEParameters  *ortc.ICEParameters  `json:"iceParameters"`
		ICECandidates  []ortc.ICECandidate  `json:"iceCandidates"`

		Role         ortc.DTLSRole          `json:"role"`
		Fingerprints []ortc.DTLSFingerprint `json:"fingerprints"`
	}
)

func (r viewerConnectRequestJSON) remoteParameters() sfu.RemoteParameters {
	remote := sfu.RemoteParameters{
		ICEParameters: r.ICEParameters,
		ICECandidates: r.ICECandidates,
	}

	if r.DTLSParameters != nil {
		remote.DTLSParameters = *r.DTLSParameters
	} else {
		remote.DTLSParameters = ortc.DTLSParameters{Role: r.Role, Fingerprints: r.Fingerprints}
	}

	return remote
}

func (a *api) rtpCapabilitiesHandler(responseWriter http.ResponseWriter, request *http.Request) {
	capabilities, err := a.relay.Capabilities(request.PathValue("channelId"))
	if err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	helpers.WriteJSON(responseWriter, http.StatusOK, capabilities)
}

func (a *api) viewerTransportHandler(responseWriter http.ResponseWriter, request *http.Request) {
	parameters, err := a.relay.CreateViewerTransport(request.Context(), request.PathValue("channelId"))
	if err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	helpers.WriteJSON(responseWriter, http.StatusOK, parameters)
}

// viewerConnectHandler takes {"dtlsParameters", "iceParameters", "iceCandidates"}. The
// iceParameters of the viewer are required to start ICE; without them the answer is 400.
// A bare DTLS parameters object is accepted for the DTLS part.
func (a *api) viewerConnectHandler(responseWriter http.ResponseWriter, request *http.Request) {
	var requestContent viewerConnectRequestJSON
	if err := json.NewDecoder(request.Body).Decode(&requestContent); err != nil {
		helpers.LogHTTPError(responseWriter, err.Error(), http.StatusBadRequest)
		return
	}

	if err := a.relay.ConnectViewer(
		request.Context(),
		request.PathValue("channelId"),
		request.PathValue("transportId"),
		requestContent.remoteParameters(),
	); err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	responseWriter.WriteHeader(http.StatusOK)
}

func (a *api) consumerParametersHandler(responseWriter http.ResponseWriter, request *http.Request) {
	var capabilities ortc.RTPCapabilities
	if err := json.NewDecoder(request.Body).Decode(&capabilities); err != nil {
		helpers.LogHTTPError(responseWriter, err.Error(), http.StatusBadRequest)
		return
	}

	parameters, err := a.relay.CreateConsumers(
		request.Context(),
		request.PathValue("channelId"),
		request.PathValue("transportId"),
		capabilities,
	)
	if err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	helpers.WriteJSON(responseWriter, http.StatusOK, parameters)
}

func (a *api) resumeConsumersHandler(responseWriter http.ResponseWriter, request *http.Request) {
	if err := a.relay.ResumeConsumers(
		request.Context(),
		request.PathValue("channelId"),
		request.PathValue("transportId"),
	); err != nil {
		helpers.WriteRelayError(responseWriter, err)
		return
	}

	responseWriter.WriteHeader(http.StatusOK)
}
