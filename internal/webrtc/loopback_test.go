package webrtc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/videmus/relay/internal/webrtc/codecs"
	"github.com/videmus/relay/internal/webrtc/ortc"
	"github.com/videmus/relay/internal/webrtc/sfu"
)

const loopbackH264Fmtp = "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"

func loopbackSettingEngine() webrtc.SettingEngine {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)
	settingEngine.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	settingEngine.SetIPFilter(func(ip net.IP) bool { return ip.IsLoopback() })
	settingEngine.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)

	return settingEngine
}

func newLoopbackRelay(t *testing.T) *Relay {
	t.Helper()

	capabilities, err := codecs.RouterCapabilities()
	require.NoError(t, err)

	memoryStore := newTestStore()
	engine := sfu.NewPionEngine(loopbackSettingEngine(), nil, capabilities)

	relay := NewRelay(engine, memoryStore, memoryStore, Options{PublicURL: testPublicURL, PublisherICEGrace: time.Second})
	t.Cleanup(func() {
		_ = relay.Teardown(context.Background(), "B1")
	})

	return relay
}

// publishLoopback sends H264 through a PeerConnection that offers H264 and VP8
// for its video section, the way browsers list several codecs.
func publishLoopback(t *testing.T, relay *Relay) *IngestResult {
	t.Helper()

	mediaEngine := &webrtc.MediaEngine{}
	for _, codec := range []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: loopbackH264Fmtp},
			PayloadType:        106,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeRTX, ClockRate: 90000, SDPFmtpLine: "apt=106"},
			PayloadType:        107,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        96,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeRTX, ClockRate: 90000, SDPFmtpLine: "apt=96"},
			PayloadType:        97,
		},
	} {
		require.NoError(t, mediaEngine.RegisterCodec(codec, webrtc.RTPCodecTypeVideo))
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(loopbackSettingEngine()))
	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = peerConnection.Close() })

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: loopbackH264Fmtp},
		"video",
		"publisher",
	)
	require.NoError(t, err)

	_, err = peerConnection.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly})
	require.NoError(t, err)

	offer, err := peerConnection.CreateOffer(nil)
	require.NoError(t, err)

	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	require.NoError(t, peerConnection.SetLocalDescription(offer))
	<-gatherComplete

	result, err := relay.Ingest(context.Background(), "B1", testToken, peerConnection.LocalDescription().SDP)
	require.NoError(t, err)

	require.NoError(t, peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  result.Answer,
	}))

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

		for sequence := uint16(0); ; sequence++ {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			_ = track.WriteRTP(&rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         true,
					SequenceNumber: sequence,
					Timestamp:      uint32(sequence) * 3000,
				},
				// IDR slice
				Payload: []byte{0x65, 0x88, 0x84, 0x00, 0x21},
			})
		}
	}()

	return result
}

// loopbackViewer is an ORTC endpoint playing the part of the browser device
type loopbackViewer struct {
	api      *webrtc.API
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
}

func newLoopbackViewer(t *testing.T, capabilities ortc.RTPCapabilities) *loopbackViewer {
	t.Helper()

	mediaEngine := &webrtc.MediaEngine{}
	require.NoError(t, codecs.RegisterCapabilities(mediaEngine, capabilities))
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(loopbackSettingEngine()))

	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{})
	require.NoError(t, err)

	gathered := make(chan struct{})
	var gatheredOnce sync.Once
	gatherer.OnLocalCandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			gatheredOnce.Do(func() { close(gathered) })
		}
	})
	require.NoError(t, gatherer.Gather())
	<-gathered

	iceTransport := api.NewICETransport(gatherer)
	dtlsTransport, err := api.NewDTLSTransport(iceTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = dtlsTransport.Stop()
		_ = iceTransport.Stop()
		_ = gatherer.Close()
	})

	return &loopbackViewer{api: api, gatherer: gatherer, ice: iceTransport, dtls: dtlsTransport}
}

func (v *loopbackViewer) remoteParameters(t *testing.T) sfu.RemoteParameters {
	t.Helper()

	iceParameters, err := v.gatherer.GetLocalParameters()
	require.NoError(t, err)

	candidates, err := v.gatherer.GetLocalCandidates()
	require.NoError(t, err)

	dtlsParameters, err := v.dtls.GetLocalParameters()
	require.NoError(t, err)

	remote := sfu.RemoteParameters{
		DTLSParameters: ortc.DTLSParameters{Role: ortc.DTLSRoleServer},
		ICEParameters: &ortc.ICEParameters{
			UsernameFragment: iceParameters.UsernameFragment,
			Password:         iceParameters.Password,
		},
	}
	for _, fingerprint := range dtlsParameters.Fingerprints {
		remote.DTLSParameters.Fingerprints = append(remote.DTLSParameters.Fingerprints, ortc.DTLSFingerprint{
			Algorithm: fingerprint.Algorithm,
			Value:     fingerprint.Value,
		})
	}
	for _, candidate := range candidates {
		remote.ICECandidates = append(remote.ICECandidates, ortc.ICECandidate{
			Foundation: candidate.Foundation,
			Priority:   candidate.Priority,
			IP:         candidate.Address,
			Address:    candidate.Address,
			Protocol:   candidate.Protocol.String(),
			Port:       candidate.Port,
			Type:       candidate.Typ.String(),
		})
	}

	return remote
}

// start runs ICE as the controlling agent and DTLS as the server, blocking until
// the handshake with the relay completed
func (v *loopbackViewer) start(t *testing.T, parameters *TransportParameters) {
	t.Helper()

	candidates := []webrtc.ICECandidate{}
	for _, candidate := range parameters.ICECandidates {
		protocol, err := webrtc.NewICEProtocol(candidate.Protocol)
		require.NoError(t, err)
		candidateType, err := webrtc.NewICECandidateType(candidate.Type)
		require.NoError(t, err)

		candidates = append(candidates, webrtc.ICECandidate{
			Foundation: candidate.Foundation,
			Priority:   candidate.Priority,
			Address:    candidate.Address,
			Protocol:   protocol,
			Port:       candidate.Port,
			Typ:        candidateType,
			Component:  1,
		})
	}
	require.NoError(t, v.ice.SetRemoteCandidates(candidates))

	role := webrtc.ICERoleControlling
	require.NoError(t, v.ice.Start(v.gatherer, webrtc.ICEParameters{
		UsernameFragment: parameters.ICEParameters.UsernameFragment,
		Password:         parameters.ICEParameters.Password,
	}, &role))

	fingerprints := []webrtc.DTLSFingerprint{}
	for _, fingerprint := range parameters.DTLSParameters.Fingerprints {
		fingerprints = append(fingerprints, webrtc.DTLSFingerprint{Algorithm: fingerprint.Algorithm, Value: fingerprint.Value})
	}
	require.NoError(t, v.dtls.Start(webrtc.DTLSParameters{Role: webrtc.DTLSRoleAuto, Fingerprints: fingerprints}))
}

type receivedPackets struct {
	lock        sync.Mutex
	count       int
	payloadType uint8
	mimeType    string
	firstByte   byte
}

func (r *receivedPackets) record(packet *rtp.Packet, mimeType string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.count++
	r.payloadType = packet.PayloadType
	r.mimeType = mimeType
	if len(packet.Payload) != 0 {
		r.firstByte = packet.Payload[0]
	}
}

func (r *receivedPackets) snapshot() (int, uint8, string, byte) {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.count, r.payloadType, r.mimeType, r.firstByte
}

func (v *loopbackViewer) receive(t *testing.T, consumer ortc.RTPParameters) *receivedPackets {
	t.Helper()

	receiver, err := v.api.NewRTPReceiver(webrtc.RTPCodecTypeVideo, v.dtls)
	require.NoError(t, err)
	t.Cleanup(func() { _ = receiver.Stop() })

	require.NoError(t, receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(consumer.Encodings[0].SSRC),
				PayloadType: webrtc.PayloadType(consumer.Codecs[0].PayloadType),
			},
		}},
	}))

	packets := &receivedPackets{}
	track := receiver.Track()
	go func() {
		for {
			packet, _, err := track.ReadRTP()
			if err != nil {
				return
			}
			packets.record(packet, track.Codec().MimeType)
		}
	}()

	return packets
}

func TestLoopbackPublisherToViewer(t *testing.T) {
	ctx := context.Background()
	relay := newLoopbackRelay(t)
	result := publishLoopback(t, relay)

	// the answer pins the first offered codec so the publisher cannot send another one
	answer := &sdp.SessionDescription{}
	require.NoError(t, answer.Unmarshal([]byte(result.Answer)))
	require.Len(t, answer.MediaDescriptions, 1)
	require.Equal(t, []string{"106", "107"}, answer.MediaDescriptions[0].MediaName.Formats)

	session, ok := relay.Sessions().Get("B1")
	require.True(t, ok)
	producers := session.Producers()
	require.Len(t, producers, 1)
	require.Len(t, producers[0].RTPParameters().Codecs, 2)
	require.Equal(t, webrtc.MimeTypeH264, producers[0].RTPParameters().Codecs[0].MimeType)

	require.Eventually(t, func() bool {
		return producers[0].Stats().PacketsReceived > 0
	}, 5*time.Second, 10*time.Millisecond)

	capabilities, err := relay.Capabilities("C1")
	require.NoError(t, err)

	transport, err := relay.CreateViewerTransport(ctx, "C1")
	require.NoError(t, err)

	viewer := newLoopbackViewer(t, capabilities)

	dtlsOnly := viewer.remoteParameters(t)
	dtlsOnly.ICEParameters = nil
	requireErrorKind(t, relay.ConnectViewer(ctx, "C1", transport.ID, dtlsOnly), ErrorKindInvalidRequest)

	require.NoError(t, relay.ConnectViewer(ctx, "C1", transport.ID, viewer.remoteParameters(t)))
	viewer.start(t, transport)

	consumers, err := relay.CreateConsumers(ctx, "C1", transport.ID, capabilities)
	require.NoError(t, err)
	require.Len(t, consumers, 1)
	require.Equal(t, webrtc.MimeTypeH264, consumers[0].RTPParameters.Codecs[0].MimeType)
	require.EqualValues(t, 107, consumers[0].RTPParameters.Codecs[0].PayloadType)

	packets := viewer.receive(t, consumers[0].RTPParameters)

	// paused consumers forward nothing while the publisher keeps sending
	require.Never(t, func() bool {
		count, _, _, _ := packets.snapshot()
		return count > 0
	}, 300*time.Millisecond, 20*time.Millisecond)

	require.NoError(t, relay.ResumeConsumers(ctx, "C1", transport.ID))

	require.Eventually(t, func() bool {
		count, _, _, _ := packets.snapshot()
		return count > 0
	}, 5*time.Second, 10*time.Millisecond)

	_, payloadType, mimeType, firstByte := packets.snapshot()
	require.EqualValues(t, 107, payloadType)
	require.Equal(t, webrtc.MimeTypeH264, mimeType)
	require.EqualValues(t, 0x65, firstByte)
	require.False(t, producers[0].Stats().LastKeyframe.IsZero())
}
