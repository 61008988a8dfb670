package codecs

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type TrackPacket struct {
	Packet     *rtp.Packet
	Codec      TrackCodecType
	IsKeyframe bool
}

// ConsumerTrack is a local track that forwards packets of one producer, rewritten
// to the payload type negotiated with the consuming endpoint.
type ConsumerTrack struct {
	id          string
	streamID    string
	kind        webrtc.RTPCodecType
	payloadType uint8
	errorCount  atomic.Int64

	lock        sync.RWMutex
	ssrc        webrtc.SSRC
	writeStream webrtc.TrackLocalWriter
}

func (t *ConsumerTrack) ID() string                { return t.id }
func (t *ConsumerTrack) RID() string               { return "" }
func (t *ConsumerTrack) StreamID() string          { return t.streamID }
func (t *ConsumerTrack) Kind() webrtc.RTPCodecType { return t.kind }

func CreateConsumerTrack(id string, streamID string, kind webrtc.RTPCodecType, payloadType uint8) *ConsumerTrack {
	return &ConsumerTrack{
		id:          id,
		streamID:    streamID,
		kind:        kind,
		payloadType: payloadType,
	}
}

func (t *ConsumerTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	for _, codec := range ctx.CodecParameters() {
		if uint8(codec.PayloadType) != t.payloadType {
			continue
		}

		log.Debug().Str("trackId", t.id).Uint8("payloadType", t.payloadType).Str("mimeType", codec.MimeType).Msg("ConsumerTrack.Bind")

		t.lock.Lock()
		t.ssrc = ctx.SSRC()
		t.writeStream = ctx.WriteStream()
		t.lock.Unlock()

		return codec, nil
	}

	return webrtc.RTPCodecParameters{}, webrtc.ErrUnsupportedCodec
}

func (t *ConsumerTrack) Unbind(webrtc.TrackLocalContext) error {
	t.lock.Lock()
	t.writeStream = nil
	t.lock.Unlock()

	return nil
}

// WriteRTP forwards the packet without modifying it; the same packet is handed to
// every consumer of a producer. Header extensions are dropped since their ids were
// negotiated with the publisher, not with this endpoint.
func (t *ConsumerTrack) WriteRTP(packet *rtp.Packet) error {
	t.lock.RLock()
	writeStream, ssrc := t.writeStream, t.ssrc
	t.lock.RUnlock()

	if writeStream == nil {
		return nil
	}

	header := packet.Header
	header.SSRC = uint32(ssrc)
	header.PayloadType = t.payloadType
	header.Extension = false
	header.Extensions = nil

	if _, err := writeStream.WriteRTP(&header, packet.Payload); err != nil {
		errorCount := t.errorCount.Add(1)

		if errorCount%50 == 0 {
			log.Warn().Err(err).Int64("errors", errorCount).Str("trackId", t.id).Msg("ConsumerTrack.WriteRTP.Error")
			return err
		}
	}

	return nil
}
