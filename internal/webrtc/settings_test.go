package webrtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/videmus/relay/internal/environment"
)

func TestSetupNetworkTypes(t *testing.T) {
	t.Setenv(environment.TCPMuxForce, "")
	t.Setenv(environment.NetworkTypes, "")
	require.Equal(t, []webrtc.NetworkType{webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6}, setupNetworkTypes())

	t.Setenv(environment.NetworkTypes, "udp4|tcp4|carrier-pigeon")
	require.Equal(t, []webrtc.NetworkType{webrtc.NetworkTypeUDP4, webrtc.NetworkTypeTCP4}, setupNetworkTypes())

	t.Setenv(environment.TCPMuxForce, "true")
	require.Equal(t, []webrtc.NetworkType{webrtc.NetworkTypeTCP4, webrtc.NetworkTypeTCP6}, setupNetworkTypes())
}

func TestGetICEServers(t *testing.T) {
	t.Setenv(environment.STUNServers, "")
	require.Nil(t, GetICEServers())

	t.Setenv(environment.STUNServers, "stun.l.google.com:19302|stun.example.org:3478")
	require.Equal(t, []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun.example.org:3478"}},
	}, GetICEServers())
}

func TestGetSettingEngineRejectsInvalidMuxPort(t *testing.T) {
	t.Setenv(environment.UDPMuxPort, "not-a-port")

	_, err := GetSettingEngine()
	require.Error(t, err)
}
