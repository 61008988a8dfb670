package environment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetList(t *testing.T) {
	t.Setenv(STUNServers, "stun.l.google.com:19302| stun.example.org:3478 ||")
	require.Equal(t, []string{"stun.l.google.com:19302", "stun.example.org:3478"}, GetList(STUNServers))

	t.Setenv(STUNServers, "")
	require.Empty(t, GetList(STUNServers))
}

func TestIsEnabled(t *testing.T) {
	t.Setenv(DebugPrintOffer, "TRUE")
	require.True(t, IsEnabled(DebugPrintOffer))

	t.Setenv(DebugPrintOffer, "1")
	require.False(t, IsEnabled(DebugPrintOffer))
}

func TestDurations(t *testing.T) {
	t.Setenv(StatusInterval, "")
	require.Equal(t, defaultStatusInterval, GetStatusInterval())

	t.Setenv(StatusInterval, "250ms")
	require.Equal(t, 250*time.Millisecond, GetStatusInterval())

	t.Setenv(StatusInterval, "0s")
	require.Equal(t, defaultStatusInterval, GetStatusInterval())

	t.Setenv(PublisherICEGrace, "soon")
	require.Equal(t, defaultPublisherICEGrace, GetPublisherICEGrace())

	t.Setenv(PublisherICEGrace, "-1s")
	require.Equal(t, defaultPublisherICEGrace, GetPublisherICEGrace())

	t.Setenv(PublisherICEGrace, "0s")
	require.Zero(t, GetPublisherICEGrace())
}

func TestGetPublicURL(t *testing.T) {
	t.Setenv(PublicURL, "https://relay.example/")
	require.Equal(t, "https://relay.example", GetPublicURL())
}

func TestGetStorePath(t *testing.T) {
	t.Setenv(StorePath, "")
	require.Equal(t, defaultStorePath, GetStorePath())

	t.Setenv(StorePath, "/etc/relay/broadcasts.yaml")
	require.Equal(t, "/etc/relay/broadcasts.yaml", GetStorePath())
}
