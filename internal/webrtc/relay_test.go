package webrtc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"

	"github.com/videmus/relay/internal/store"
	"github.com/videmus/relay/internal/webrtc/codecs"
	"github.com/videmus/relay/internal/webrtc/ortc"
	"github.com/videmus/relay/internal/webrtc/sessions/viewer"
	"github.com/videmus/relay/internal/webrtc/sfu"
	"github.com/videmus/relay/internal/webrtc/sfu/sfutest"
)

const (
	testToken       = "secret"
	testGrace       = 50 * time.Millisecond
	testPublicURL   = "https://relay.example"
	testFingerprint = "6B:8B:F0:65:5F:78:E2:51:3B:AC:6F:F3:3F:46:1B:35:DC:B8:5F:64:1A:24:C2:43:F0:A1:58:D0:A1:2C:19:08"
)

var (
	offerSession = []string{
		"v=0",
		"o=- 4215775240449105457 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"a=group:BUNDLE 0 1",
		"a=msid-semantic: WMS obs",
	}

	offerAudio = []string{
		"m=audio 9 UDP/TLS/RTP/SAVPF 111",
		"c=IN IP4 0.0.0.0",
		"a=ice-ufrag:obsufrag",
		"a=ice-pwd:obspassword0123456789abcd",
		"a=fingerprint:sha-256 " + testFingerprint,
		"a=setup:actpass",
		"a=mid:0",
		"a=extmap:4 urn:ietf:params:rtp-hdrext:sdes:mid",
		"a=sendonly",
		"a=rtcp-mux",
		"a=rtpmap:111 opus/48000/2",
		"a=fmtp:111 minptime=10;useinbandfec=1",
		"a=rtcp-fb:111 transport-cc",
		"a=ssrc:1001 cname:obs-cname",
		"a=candidate:1 1 udp 2130706431 192.168.1.10 50000 typ host",
	}

	offerVideo = []string{
		"m=video 9 UDP/TLS/RTP/SAVPF 96 97",
		"c=IN IP4 0.0.0.0",
		"a=ice-ufrag:obsufrag",
		"a=ice-pwd:obspassword0123456789abcd",
		"a=fingerprint:sha-256 " + testFingerprint,
		"a=setup:actpass",
		"a=mid:1",
		"a=extmap:4 urn:ietf:params:rtp-hdrext:sdes:mid",
		"a=sendonly",
		"a=rtcp-mux",
		"a=rtcp-rsize",
		"a=rtpmap:96 H264/90000",
		"a=rtcp-fb:96 nack",
		"a=rtcp-fb:96 nack pli",
		"a=fmtp:96 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		"a=rtpmap:97 rtx/90000",
		"a=fmtp:97 apt=96",
		"a=ssrc-group:FID 2001 2002",
		"a=ssrc:2001 cname:obs-cname",
		"a=ssrc:2002 cname:obs-cname",
	}

	offerVP9 = []string{
		"m=video 9 UDP/TLS/RTP/SAVPF 98",
		"c=IN IP4 0.0.0.0",
		"a=ice-ufrag:obsufrag",
		"a=ice-pwd:obspassword0123456789abcd",
		"a=fingerprint:sha-256 " + testFingerprint,
		"a=setup:actpass",
		"a=mid:0",
		"a=sendonly",
		"a=rtpmap:98 VP9/90000",
		"a=ssrc:3001 cname:obs-cname",
	}

	offerApplication = []string{
		"m=application 9 UDP/DTLS/SCTP webrtc-datachannel",
		"c=IN IP4 0.0.0.0",
		"a=mid:2",
		"a=sctp-port:5000",
	}
)

func buildOffer(sections ...[]string) string {
	lines := append([]string{}, offerSession...)
	for _, section := range sections {
		lines = append(lines, section...)
	}

	return strings.Join(lines, "\r\n") + "\r\n"
}

var testOffer = buildOffer(offerAudio, offerVideo)

var viewerRemote = sfu.RemoteParameters{
	DTLSParameters: ortc.DTLSParameters{
		Role:         ortc.DTLSRoleClient,
		Fingerprints: []ortc.DTLSFingerprint{{Algorithm: "sha-256", Value: "00:11:22:33"}},
	},
}

type testRelay struct {
	*Relay
	engine *sfutest.Engine
	store  *store.MemoryStore
}

// newTestStore holds B1 (approved, channels C1 and C2) and B2 (pending, channel C3)
func newTestStore() *store.MemoryStore {
	memoryStore := store.NewMemoryStore()
	memoryStore.AddBroadcast(store.Broadcast{
		ID:          "B1",
		IsAvailable: true,
		Owner:       store.Owner{ID: "owner-1", Approved: true},
		Channels: []store.Channel{
			{ID: "C1", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "C2", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		},
	})
	memoryStore.AddBroadcast(store.Broadcast{
		ID:               "B2",
		IsAvailable:      false,
		Owner:            store.Owner{ID: "owner-2"},
		CurrentChannelID: "C3",
		Channels:         []store.Channel{{ID: "C3"}},
	})
	memoryStore.AddToken(testToken, "B1")
	memoryStore.AddToken("pending", "B2")

	return memoryStore
}

func newTestRelay(t *testing.T, grace time.Duration) *testRelay {
	t.Helper()

	capabilities, err := codecs.RouterCapabilities()
	require.NoError(t, err)

	memoryStore := newTestStore()
	engine := sfutest.NewEngine(capabilities)

	return &testRelay{
		Relay:  NewRelay(engine, memoryStore, memoryStore, Options{PublicURL: testPublicURL, PublisherICEGrace: grace}),
		engine: engine,
		store:  memoryStore,
	}
}

func (r *testRelay) ingest(t *testing.T) *IngestResult {
	t.Helper()

	result, err := r.Ingest(context.Background(), "B1", testToken, testOffer)
	require.NoError(t, err)

	return result
}

func (r *testRelay) publisherTransport(t *testing.T) *sfutest.Transport {
	t.Helper()

	session, ok := r.Sessions().Get("B1")
	require.True(t, ok)

	return session.Transport().(*sfutest.Transport)
}

// joinViewer runs the whole viewer handshake and returns the transport id
func (r *testRelay) joinViewer(t *testing.T, channelID string) string {
	t.Helper()
	ctx := context.Background()

	capabilities, err := r.Capabilities(channelID)
	require.NoError(t, err)

	parameters, err := r.CreateViewerTransport(ctx, channelID)
	require.NoError(t, err)

	require.NoError(t, r.ConnectViewer(ctx, channelID, parameters.ID, viewerRemote))

	consumers, err := r.CreateConsumers(ctx, channelID, parameters.ID, capabilities)
	require.NoError(t, err)
	require.Len(t, consumers, 2)

	require.NoError(t, r.ResumeConsumers(ctx, channelID, parameters.ID))

	return parameters.ID
}

func requireErrorKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()

	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, kind, relayErr.Kind)
}

func TestIngest(t *testing.T) {
	relay := newTestRelay(t, testGrace)
	result := relay.ingest(t)

	require.Equal(t, testPublicURL+"/whip/sessions/B1", result.Location)

	answer := &sdp.SessionDescription{}
	require.NoError(t, answer.Unmarshal([]byte(result.Answer)))
	require.Len(t, answer.MediaDescriptions, 2)
	for index, kind := range []string{"audio", "video"} {
		media := answer.MediaDescriptions[index]
		require.Equal(t, kind, media.MediaName.Media)
		require.NotZero(t, media.MediaName.Port.Value)

		mid, _ := media.Attribute("mid")
		require.Equal(t, []string{"0", "1"}[index], mid)

		setup, _ := media.Attribute("setup")
		require.Equal(t, "active", setup)
	}
	require.Contains(t, result.Answer, "a=rtpmap:111 opus/48000/2")
	require.Contains(t, result.Answer, "a=rtpmap:96 H264/90000")
	require.Contains(t, result.Answer, "a=ice-ufrag:ufrag-")

	session, ok := relay.Sessions().Get("B1")
	require.True(t, ok)
	require.Equal(t, "C1", session.ActiveChannelID())

	producers := session.Producers()
	require.Len(t, producers, 2)
	require.Equal(t, ortc.MediaKindAudio, producers[0].Kind())
	require.Equal(t, ortc.MediaKindVideo, producers[1].Kind())
	require.Equal(t, "0", producers[0].RTPParameters().MID)
	require.Equal(t, []ortc.RTPEncodingParameters{{SSRC: 2001, RTX: &ortc.RTXParameters{SSRC: 2002}}}, producers[1].RTPParameters().Encodings)
	require.Equal(t, "obs-cname", producers[1].RTPParameters().RTCP.CNAME)

	remote, connected := relay.publisherTransport(t).Remote()
	require.True(t, connected)
	require.Equal(t, ortc.DTLSRoleServer, remote.DTLSParameters.Role)
	require.Equal(t, "obsufrag", remote.ICEParameters.UsernameFragment)
	require.Len(t, remote.ICECandidates, 1)
}

func TestIngestAnswersOneCodecPerSection(t *testing.T) {
	relay := newTestRelay(t, testGrace)

	multiCodecVideo := []string{
		"m=video 9 UDP/TLS/RTP/SAVPF 100 96 97 98 99",
		"c=IN IP4 0.0.0.0",
		"a=ice-ufrag:obsufrag",
		"a=ice-pwd:obspassword0123456789abcd",
		"a=fingerprint:sha-256 " + testFingerprint,
		"a=setup:actpass",
		"a=mid:0",
		"a=sendonly",
		"a=rtpmap:100 VP9/90000",
		"a=rtpmap:96 H264/90000",
		"a=fmtp:96 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		"a=rtpmap:97 rtx/90000",
		"a=fmtp:97 apt=96",
		"a=rtpmap:98 VP8/90000",
		"a=rtpmap:99 rtx/90000",
		"a=fmtp:99 apt=98",
		"a=ssrc-group:FID 2001 2002",
		"a=ssrc:2001 cname:obs-cname",
		"a=ssrc:2002 cname:obs-cname",
	}

	result, err := relay.Ingest(context.Background(), "B1", testToken, buildOffer(multiCodecVideo))
	require.NoError(t, err)

	answer := &sdp.SessionDescription{}
	require.NoError(t, answer.Unmarshal([]byte(result.Answer)))
	require.Len(t, answer.MediaDescriptions, 1)
	require.Equal(t, []string{"96", "97"}, answer.MediaDescriptions[0].MediaName.Formats)
	require.NotContains(t, result.Answer, "VP8")

	session, ok := relay.Sessions().Get("B1")
	require.True(t, ok)

	producers := session.Producers()
	require.Len(t, producers, 1)
	codecs := producers[0].RTPParameters().Codecs
	require.Len(t, codecs, 2)
	require.Equal(t, "video/H264", codecs[0].MimeType)
	require.EqualValues(t, 96, codecs[0].PayloadType)
	require.EqualValues(t, 97, codecs[1].PayloadType)

	// viewers get the codec the publisher was pinned to
	ctx := context.Background()
	capabilities, err := relay.Capabilities("C1")
	require.NoError(t, err)
	transport, err := relay.CreateViewerTransport(ctx, "C1")
	require.NoError(t, err)
	consumers, err := relay.CreateConsumers(ctx, "C1", transport.ID, capabilities)
	require.NoError(t, err)
	require.Len(t, consumers, 1)
	require.Equal(t, "video/H264", consumers[0].RTPParameters.Codecs[0].MimeType)
	require.EqualValues(t, 107, consumers[0].RTPParameters.Codecs[0].PayloadType)
}

func TestIngestRejectsUnsupportedSections(t *testing.T) {
	relay := newTestRelay(t, testGrace)

	result, err := relay.Ingest(context.Background(), "B1", testToken, buildOffer(offerAudio, offerVideo, offerApplication))
	require.NoError(t, err)

	answer := &sdp.SessionDescription{}
	require.NoError(t, answer.Unmarshal([]byte(result.Answer)))
	require.Len(t, answer.MediaDescriptions, 3)

	rejected := answer.MediaDescriptions[2]
	require.Zero(t, rejected.MediaName.Port.Value)
	mid, _ := rejected.Attribute("mid")
	require.Equal(t, "2", mid)

	session, ok := relay.Sessions().Get("B1")
	require.True(t, ok)
	require.Len(t, session.Producers(), 2)
}

func TestIngestErrors(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, testGrace)

	_, err := relay.Ingest(ctx, "missing", testToken, testOffer)
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	_, err = relay.Ingest(ctx, "B1", "wrong", testOffer)
	requireErrorKind(t, err, ErrorKindNotAvailable)

	_, err = relay.Ingest(ctx, "B1", "", testOffer)
	requireErrorKind(t, err, ErrorKindNotAvailable)

	_, err = relay.Ingest(ctx, "B1", "pending", testOffer)
	requireErrorKind(t, err, ErrorKindNotAvailable)

	_, err = relay.Ingest(ctx, "B2", "pending", testOffer)
	requireErrorKind(t, err, ErrorKindNotAvailable)

	_, err = relay.Ingest(ctx, "B1", testToken, "v=0\r\nbroken")
	requireErrorKind(t, err, ErrorKindUnexpected)

	require.Empty(t, relay.engine.Routers())
	_, ok := relay.Sessions().Get("B1")
	require.False(t, ok)
}

func TestIngestWithoutCompatibleCodecs(t *testing.T) {
	relay := newTestRelay(t, testGrace)

	_, err := relay.Ingest(context.Background(), "B1", testToken, buildOffer(offerVP9))
	requireErrorKind(t, err, ErrorKindUnexpected)
	require.True(t, errors.Is(err, ortc.ErrNoCompatibleCodecs))

	routers := relay.engine.Routers()
	require.Len(t, routers, 1)
	require.True(t, routers[0].Closed())

	_, ok := relay.Sessions().Get("B1")
	require.False(t, ok)
}

func TestIngestEngineFailure(t *testing.T) {
	relay := newTestRelay(t, testGrace)
	relay.engine.CreateTransportErr = errors.New("no ports left")

	_, err := relay.Ingest(context.Background(), "B1", testToken, testOffer)
	requireErrorKind(t, err, ErrorKindUnexpected)

	routers := relay.engine.Routers()
	require.Len(t, routers, 1)
	require.True(t, routers[0].Closed())
}

func TestCapabilitiesWithoutLiveBroadcast(t *testing.T) {
	relay := newTestRelay(t, testGrace)

	_, err := relay.Capabilities("C1")
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	_, err = relay.CreateViewerTransport(context.Background(), "C1")
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	_, err = relay.StreamingStatus("C1")
	requireErrorKind(t, err, ErrorKindResourceNotFound)
}

func TestViewerHandshake(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, testGrace)
	relay.ingest(t)

	capabilities, err := relay.Capabilities("C1")
	require.NoError(t, err)
	require.Len(t, capabilities.Codecs, 5)

	parameters, err := relay.CreateViewerTransport(ctx, "C1")
	require.NoError(t, err)
	require.NotEmpty(t, parameters.ID)
	require.NotEmpty(t, parameters.ICEParameters.UsernameFragment)
	require.Len(t, parameters.ICECandidates, 1)
	require.NotEmpty(t, parameters.DTLSParameters.Fingerprints)

	session, _ := relay.Sessions().Get("B1")
	viewerSession, ok := session.Viewer(parameters.ID)
	require.True(t, ok)
	require.Equal(t, viewer.StateParamsIssued, viewerSession.State())

	require.NoError(t, relay.ConnectViewer(ctx, "C1", parameters.ID, viewerRemote))
	require.NoError(t, relay.ConnectViewer(ctx, "C1", parameters.ID, viewerRemote))
	require.Equal(t, viewer.StateConnected, viewerSession.State())

	consumers, err := relay.CreateConsumers(ctx, "C1", parameters.ID, capabilities)
	require.NoError(t, err)
	require.Len(t, consumers, 2)
	require.Equal(t, ortc.MediaKindAudio, consumers[0].Kind)
	require.Equal(t, ortc.MediaKindVideo, consumers[1].Kind)
	for _, consumer := range viewerSession.Consumers() {
		require.True(t, consumer.Paused())
	}

	require.NoError(t, relay.ResumeConsumers(ctx, "C1", parameters.ID))
	require.NoError(t, relay.ResumeConsumers(ctx, "C1", parameters.ID))
	require.Equal(t, viewer.StateFlowing, viewerSession.State())
	for _, consumer := range viewerSession.Consumers() {
		require.False(t, consumer.Paused())
	}

	status, err := relay.StreamingStatus("C1")
	require.NoError(t, err)
	require.Equal(t, StreamingStatus{StreamingCount: 1, IsBroadcasting: true}, status)
}

func TestViewerStepsOnUnknownTransport(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, testGrace)
	relay.ingest(t)

	err := relay.ConnectViewer(ctx, "C1", "missing", viewerRemote)
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	_, err = relay.CreateConsumers(ctx, "C1", "missing", ortc.RTPCapabilities{})
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	err = relay.ResumeConsumers(ctx, "C1", "missing")
	requireErrorKind(t, err, ErrorKindResourceNotFound)
}

func TestSwitchChannel(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, testGrace)
	relay.ingest(t)
	transportID := relay.joinViewer(t, "C1")

	session, _ := relay.Sessions().Get("B1")
	viewerSession, _ := session.Viewer(transportID)
	consumers := viewerSession.Consumers()

	result, err := relay.SwitchChannel(ctx, "B1", "C2")
	require.NoError(t, err)
	require.Equal(t, SwitchApplied, result)
	require.Equal(t, "C2", session.ActiveChannelID())

	// the media path of existing viewers is untouched
	require.Equal(t, consumers, viewerSession.Consumers())
	for _, consumer := range consumers {
		require.False(t, consumer.Closed())
		require.False(t, consumer.Paused())
	}

	status, err := relay.StreamingStatus("C2")
	require.NoError(t, err)
	require.Equal(t, StreamingStatus{StreamingCount: 1, IsBroadcasting: true}, status)

	_, err = relay.Capabilities("C1")
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	// viewer steps are scoped to the channel the broadcast serves now
	err = relay.ResumeConsumers(ctx, "C1", transportID)
	requireErrorKind(t, err, ErrorKindResourceNotFound)
	require.NoError(t, relay.ResumeConsumers(ctx, "C2", transportID))

	details, err := relay.store.GetBroadcast(ctx, "B1")
	require.NoError(t, err)
	require.Equal(t, "C2", details.CurrentChannelID)
}

func TestSwitchChannelErrors(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, testGrace)

	_, err := relay.SwitchChannel(ctx, "missing", "C1")
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	_, err = relay.SwitchChannel(ctx, "B1", "C3")
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	result, err := relay.SwitchChannel(ctx, "B1", "C2")
	require.NoError(t, err)
	require.Equal(t, SwitchNotLive, result)

	// the next ingest serves the stored channel
	relay.ingest(t)
	session, _ := relay.Sessions().Get("B1")
	require.Equal(t, "C2", session.ActiveChannelID())
}

func TestViewerICEDisconnectRemovesViewer(t *testing.T) {
	relay := newTestRelay(t, testGrace)
	relay.ingest(t)
	transportID := relay.joinViewer(t, "C1")

	session, _ := relay.Sessions().Get("B1")
	viewerSession, _ := session.Viewer(transportID)
	consumers := viewerSession.Consumers()

	transport, ok := relay.engine.Transport(transportID)
	require.True(t, ok)
	transport.SetICEState(sfu.ICEStateConnected)
	transport.SetICEState(sfu.ICEStateDisconnected)

	require.Eventually(t, func() bool {
		return session.ViewerCount() == 0
	}, time.Second, 5*time.Millisecond)

	require.True(t, transport.Closed())
	for _, consumer := range consumers {
		require.True(t, consumer.Closed())
	}

	err := relay.ResumeConsumers(context.Background(), "C1", transportID)
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	// the broadcast itself stays live
	_, ok = relay.Sessions().Get("B1")
	require.True(t, ok)
}

func TestReofferReplacesSession(t *testing.T) {
	relay := newTestRelay(t, testGrace)
	relay.ingest(t)

	first, _ := relay.Sessions().Get("B1")
	transportID := relay.joinViewer(t, "C1")
	firstViewer, _ := first.Viewer(transportID)

	relay.ingest(t)

	second, ok := relay.Sessions().Get("B1")
	require.True(t, ok)
	require.NotSame(t, first, second)
	require.True(t, first.IsClosed())
	require.True(t, first.Router.Closed())
	require.Equal(t, viewer.StateClosed, firstViewer.State())
	require.False(t, second.IsClosed())

	found, ok := relay.Sessions().FindByActiveChannel("C1")
	require.True(t, ok)
	require.Same(t, second, found)
}

func TestPublisherTransportClosedEndsBroadcast(t *testing.T) {
	relay := newTestRelay(t, testGrace)
	relay.ingest(t)
	session, _ := relay.Sessions().Get("B1")

	relay.publisherTransport(t).SetICEState(sfu.ICEStateClosed)

	require.Eventually(t, func() bool {
		_, ok := relay.Sessions().Get("B1")
		return !ok && session.IsClosed()
	}, time.Second, 5*time.Millisecond)
	require.True(t, session.Router.Closed())
}

func TestPublisherDisconnectGrace(t *testing.T) {
	relay := newTestRelay(t, testGrace)
	relay.ingest(t)
	session, _ := relay.Sessions().Get("B1")

	relay.publisherTransport(t).SetICEState(sfu.ICEStateDisconnected)

	_, ok := relay.Sessions().Get("B1")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := relay.Sessions().Get("B1")
		return !ok && session.IsClosed()
	}, time.Second, 5*time.Millisecond)

	_, err := relay.Capabilities("C1")
	requireErrorKind(t, err, ErrorKindResourceNotFound)
}

func TestPublisherReconnectsWithinGrace(t *testing.T) {
	relay := newTestRelay(t, 100*time.Millisecond)
	relay.ingest(t)

	transport := relay.publisherTransport(t)
	transport.SetICEState(sfu.ICEStateDisconnected)
	transport.SetICEState(sfu.ICEStateConnected)

	require.Never(t, func() bool {
		_, ok := relay.Sessions().Get("B1")
		return !ok
	}, 300*time.Millisecond, 10*time.Millisecond)
}

func TestTeardown(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, testGrace)

	requireErrorKind(t, relay.Teardown(ctx, "B1"), ErrorKindResourceNotFound)

	relay.ingest(t)
	session, _ := relay.Sessions().Get("B1")
	transportID := relay.joinViewer(t, "C1")
	viewerSession, _ := session.Viewer(transportID)

	require.NoError(t, relay.Teardown(ctx, "B1"))
	require.True(t, session.IsClosed())
	require.Equal(t, viewer.StateClosed, viewerSession.State())

	_, err := relay.StreamingStatus("C1")
	requireErrorKind(t, err, ErrorKindResourceNotFound)
	requireErrorKind(t, relay.Teardown(ctx, "B1"), ErrorKindResourceNotFound)
}

func TestBroadcastingStatus(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, testGrace)

	_, err := relay.BroadcastingStatus(ctx, "missing")
	requireErrorKind(t, err, ErrorKindResourceNotFound)

	status, err := relay.BroadcastingStatus(ctx, "B2")
	require.NoError(t, err)
	require.True(t, status.Pending)

	status, err = relay.BroadcastingStatus(ctx, "B1")
	require.NoError(t, err)
	require.Equal(t, BroadcastingStatus{}, status)

	relay.ingest(t)
	relay.joinViewer(t, "C1")

	status, err = relay.BroadcastingStatus(ctx, "B1")
	require.NoError(t, err)
	require.False(t, status.Pending)
	require.True(t, status.IsBroadcasting)
	require.Equal(t, 1, status.StreamingCount)
	require.Len(t, status.Producers, 2)
}

func TestSessionStates(t *testing.T) {
	relay := newTestRelay(t, testGrace)
	require.Empty(t, relay.SessionStates())

	relay.ingest(t)
	transportID := relay.joinViewer(t, "C1")

	states := relay.SessionStates()
	require.Len(t, states, 1)
	require.Equal(t, "B1", states[0].BroadcastID)
	require.Equal(t, "C1", states[0].ActiveChannelID)
	require.Len(t, states[0].Producers, 2)
	require.Len(t, states[0].Viewers, 1)
	require.Equal(t, transportID, states[0].Viewers[0].ID)
	require.Equal(t, viewer.StateFlowing, states[0].Viewers[0].State)
}

func TestConnectViewerRejectsIncompleteParameters(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, testGrace)
	relay.ingest(t)

	parameters, err := relay.CreateViewerTransport(ctx, "C1")
	require.NoError(t, err)

	err = relay.ConnectViewer(ctx, "C1", parameters.ID, sfu.RemoteParameters{})
	requireErrorKind(t, err, ErrorKindInvalidRequest)
	require.ErrorIs(t, err, sfu.ErrInvalidDTLSParameters)

	for _, transport := range relay.engine.Routers()[0].Transports() {
		if transport.ID() == parameters.ID {
			transport.ConnectErr = sfu.ErrMissingICEParameters
		}
	}

	err = relay.ConnectViewer(ctx, "C1", parameters.ID, viewerRemote)
	requireErrorKind(t, err, ErrorKindInvalidRequest)
	require.Equal(t, 400, AsError(err).StatusCode())
}

func TestErrorStatusCodes(t *testing.T) {
	require.Equal(t, 404, notFound("x").StatusCode())
	require.Equal(t, 403, notAvailable("x").StatusCode())
	require.Equal(t, 400, invalidRequest(errors.New("boom"), "x").StatusCode())
	require.Equal(t, 500, unexpected(errors.New("boom"), "x").StatusCode())

	wrapped := AsError(errors.New("boom"))
	require.Equal(t, ErrorKindUnexpected, wrapped.Kind)

	original := notFound("broadcast %s", "B1")
	require.Same(t, original, AsError(original))
	require.Equal(t, "ResourceNotFound: broadcast B1", original.Error())
}

func TestAnswerDTLSRoles(t *testing.T) {
	local, remote := answerDTLSRoles(ortc.DTLSRoleAuto)
	require.Equal(t, ortc.DTLSRoleClient, local)
	require.Equal(t, ortc.DTLSRoleServer, remote)

	local, remote = answerDTLSRoles(ortc.DTLSRoleClient)
	require.Equal(t, ortc.DTLSRoleServer, local)
	require.Equal(t, ortc.DTLSRoleClient, remote)
}
