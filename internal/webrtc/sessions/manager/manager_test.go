package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/videmus/relay/internal/webrtc/codecs"
	"github.com/videmus/relay/internal/webrtc/sessions/broadcast"
	"github.com/videmus/relay/internal/webrtc/sfu/sfutest"
)

func newTestSession(t *testing.T, broadcastID string, channelID string) *broadcast.Session {
	t.Helper()

	capabilities, err := codecs.RouterCapabilities()
	require.NoError(t, err)

	router, err := sfutest.NewEngine(capabilities).CreateRouter(context.Background())
	require.NoError(t, err)

	transport, err := router.CreateWebRTCTransport(context.Background())
	require.NoError(t, err)

	return broadcast.New(broadcastID, channelID, router, transport, nil)
}

func TestPutAndFind(t *testing.T) {
	manager := New()
	session := newTestSession(t, "B1", "C1")

	previous, replaced := manager.Put("B1", session)
	require.False(t, replaced)
	require.Nil(t, previous)

	found, ok := manager.Get("B1")
	require.True(t, ok)
	require.Same(t, session, found)

	found, ok = manager.FindByActiveChannel("C1")
	require.True(t, ok)
	require.Same(t, session, found)

	_, ok = manager.FindByActiveChannel("C2")
	require.False(t, ok)
}

func TestPutReplacesPreviousSession(t *testing.T) {
	manager := New()
	first := newTestSession(t, "B1", "C1")
	second := newTestSession(t, "B1", "C2")

	manager.Put("B1", first)
	previous, replaced := manager.Put("B1", second)
	require.True(t, replaced)
	require.Same(t, first, previous)

	_, ok := manager.FindByActiveChannel("C1")
	require.False(t, ok)

	found, ok := manager.FindByActiveChannel("C2")
	require.True(t, ok)
	require.Same(t, second, found)

	// a late cleanup of the replaced session leaves the successor alone
	require.False(t, manager.RemoveIf("B1", first))
	found, ok = manager.Get("B1")
	require.True(t, ok)
	require.Same(t, second, found)

	require.True(t, manager.RemoveIf("B1", second))
	_, ok = manager.Get("B1")
	require.False(t, ok)
	_, ok = manager.FindByActiveChannel("C2")
	require.False(t, ok)
}

func TestSwitchChannel(t *testing.T) {
	manager := New()
	session := newTestSession(t, "B1", "C1")
	manager.Put("B1", session)

	require.True(t, manager.SwitchChannel("B1", "C2"))
	require.Equal(t, "C2", session.ActiveChannelID())

	_, ok := manager.FindByActiveChannel("C1")
	require.False(t, ok)

	found, ok := manager.FindByActiveChannel("C2")
	require.True(t, ok)
	require.Same(t, session, found)

	require.False(t, manager.SwitchChannel("B2", "C3"))
}

func TestSwitchChannelKeepsOtherBroadcastIndex(t *testing.T) {
	manager := New()
	first := newTestSession(t, "B1", "C1")
	second := newTestSession(t, "B2", "C2")
	manager.Put("B1", first)
	manager.Put("B2", second)

	// B1 takes over C2; removing B2 afterwards must not drop B1's entry
	require.True(t, manager.SwitchChannel("B1", "C2"))
	_, ok := manager.Remove("B2")
	require.True(t, ok)

	found, ok := manager.FindByActiveChannel("C2")
	require.True(t, ok)
	require.Same(t, first, found)
}

func TestRemove(t *testing.T) {
	manager := New()
	manager.Put("B1", newTestSession(t, "B1", "C1"))

	removed, ok := manager.Remove("B1")
	require.True(t, ok)
	require.Equal(t, "B1", removed.BroadcastID)

	_, ok = manager.Remove("B1")
	require.False(t, ok)
	_, ok = manager.FindByActiveChannel("C1")
	require.False(t, ok)
}

func TestSessionsSorted(t *testing.T) {
	manager := New()
	manager.Put("B2", newTestSession(t, "B2", "C2"))
	manager.Put("B1", newTestSession(t, "B1", "C1"))
	manager.Put("B3", newTestSession(t, "B3", "C3"))

	ids := []string{}
	for _, session := range manager.Sessions() {
		ids = append(ids, session.BroadcastID)
	}

	require.Equal(t, []string{"B1", "B2", "B3"}, ids)
}
