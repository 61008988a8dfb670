package sfu

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/codecs"
	"github.com/videmus/relay/internal/webrtc/ortc"
)

type pionProducer struct {
	id            string
	kind          ortc.MediaKind
	transport     *pionTransport
	rtpParameters ortc.RTPParameters
	consumable    ortc.RTPParameters
	payloadType   uint8
	codec         codecs.TrackCodecType
	receiver      *webrtc.RTPReceiver

	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
	bitrate         atomic.Uint64
	lastKeyframe    atomic.Value

	// Copy on write list read by the forwarding loop without locking
	consumersLock     sync.Mutex
	consumers         map[string]*pionConsumer
	consumersSnapshot atomic.Pointer[[]*pionConsumer]

	closeOnce sync.Once
	closed    atomic.Bool
}

func newPionProducer(transport *pionTransport, options ProducerOptions, consumable ortc.RTPParameters, receiver *webrtc.RTPReceiver) *pionProducer {
	media := ortc.ReduceCodecs(options.RTPParameters.Codecs)[0]

	producer := &pionProducer{
		id:            uuid.NewString(),
		kind:          options.Kind,
		transport:     transport,
		rtpParameters: options.RTPParameters,
		consumable:    consumable,
		payloadType:   media.PayloadType,
		codec:         codecs.GetTrackCodec(media.MimeType),
		receiver:      receiver,
		consumers:     map[string]*pionConsumer{},
	}
	producer.lastKeyframe.Store(time.Time{})
	producer.consumersSnapshot.Store(&[]*pionConsumer{})

	return producer
}

func (p *pionProducer) ID() string                        { return p.id }
func (p *pionProducer) Kind() ortc.MediaKind              { return p.kind }
func (p *pionProducer) RTPParameters() ortc.RTPParameters { return p.rtpParameters }
func (p *pionProducer) Closed() bool                      { return p.closed.Load() }

func (p *pionProducer) Stats() ProducerStats {
	stats := ProducerStats{
		PacketsReceived: p.packetsReceived.Load(),
		BytesReceived:   p.bytesReceived.Load(),
		Bitrate:         p.bitrate.Load(),
	}
	if value, ok := p.lastKeyframe.Load().(time.Time); ok {
		stats.LastKeyframe = value
	}

	return stats
}

// receive starts the RTP receiver and the forwarding loop. It runs once the
// transport's DTLS handshake completed.
func (p *pionProducer) receive() {
	if p.Closed() {
		return
	}

	encodings := make([]webrtc.RTPDecodingParameters, 0, len(p.rtpParameters.Encodings))
	for _, encoding := range p.rtpParameters.Encodings {
		coding := webrtc.RTPCodingParameters{
			RID:         encoding.RID,
			SSRC:        webrtc.SSRC(encoding.SSRC),
			PayloadType: webrtc.PayloadType(p.payloadType),
		}
		if encoding.RTX != nil {
			coding.RTX = webrtc.RTPRtxParameters{SSRC: webrtc.SSRC(encoding.RTX.SSRC)}
		}

		encodings = append(encodings, webrtc.RTPDecodingParameters{RTPCodingParameters: coding})
	}

	if err := p.receiver.Receive(webrtc.RTPReceiveParameters{Encodings: encodings}); err != nil {
		log.Warn().Err(err).Str("producerId", p.id).Msg("SFU.Producer.Receive")
		return
	}

	for _, track := range p.receiver.Tracks() {
		go p.forward(track)
	}
}

// forward reads one track of the publisher and fans its packets out to the consumers
func (p *pionProducer) forward(track *webrtc.TrackRemote) {
	depacketizer := codecs.NewDepacketizer(p.codec)

	bitrateWindowStart := time.Now()
	bitrateWindowBytes := uint64(0)

	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) || p.Closed() {
				log.Debug().Str("producerId", p.id).Msg("SFU.Producer.EndOfStream")
				return
			}

			log.Debug().Err(err).Str("producerId", p.id).Msg("SFU.Producer.ReadRTP")
			continue
		}

		// Consumers are labelled with the producer codec, other payload types cannot be relabelled
		if packet.PayloadType != p.payloadType {
			log.Trace().Str("producerId", p.id).Uint8("payloadType", packet.PayloadType).Msg("SFU.Producer.UnexpectedPayloadType")
			continue
		}

		size := uint64(packet.MarshalSize())
		p.packetsReceived.Add(1)
		p.bytesReceived.Add(size)
		bitrateWindowBytes += size

		isKeyframe := false
		if p.kind == ortc.MediaKindVideo {
			if isKeyframe = codecs.IsKeyframe(packet, p.codec, depacketizer); isKeyframe {
				p.lastKeyframe.Store(time.Now())
			}
		}

		now := time.Now()
		if elapsed := now.Sub(bitrateWindowStart); elapsed >= time.Second {
			p.bitrate.Store(uint64(float64(bitrateWindowBytes) / elapsed.Seconds()))
			bitrateWindowStart = now
			bitrateWindowBytes = 0
		}

		trackPacket := codecs.TrackPacket{Packet: packet, Codec: p.codec, IsKeyframe: isKeyframe}
		for _, consumer := range *p.consumersSnapshot.Load() {
			consumer.writeRTP(trackPacket)
		}
	}
}

// requestKeyFrame asks the publisher for a new keyframe
func (p *pionProducer) requestKeyFrame() {
	if p.kind != ortc.MediaKindVideo || p.Closed() {
		return
	}

	packets := []rtcp.Packet{}
	for _, encoding := range p.rtpParameters.Encodings {
		if encoding.SSRC != 0 {
			packets = append(packets, &rtcp.PictureLossIndication{MediaSSRC: encoding.SSRC})
		}
	}
	if len(packets) == 0 {
		return
	}

	if _, err := p.transport.dtls.WriteRTCP(packets); err != nil {
		log.Debug().Err(err).Str("producerId", p.id).Msg("SFU.Producer.SendPLI")
	}
}

func (p *pionProducer) addConsumer(consumer *pionConsumer) {
	p.consumersLock.Lock()
	p.consumers[consumer.id] = consumer
	p.updateConsumersSnapshot()
	p.consumersLock.Unlock()
}

func (p *pionProducer) removeConsumer(consumerID string) {
	p.consumersLock.Lock()
	delete(p.consumers, consumerID)
	p.updateConsumersSnapshot()
	p.consumersLock.Unlock()
}

// Caller holds consumersLock
func (p *pionProducer) updateConsumersSnapshot() {
	snapshot := make([]*pionConsumer, 0, len(p.consumers))
	for _, consumer := range p.consumers {
		snapshot = append(snapshot, consumer)
	}
	p.consumersSnapshot.Store(&snapshot)
}

func (p *pionProducer) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		p.consumersLock.Lock()
		consumers := *p.consumersSnapshot.Load()
		p.consumers = map[string]*pionConsumer{}
		p.updateConsumersSnapshot()
		p.consumersLock.Unlock()

		for _, consumer := range consumers {
			consumer.Close()
		}

		if err := p.receiver.Stop(); err != nil {
			log.Debug().Err(err).Str("producerId", p.id).Msg("SFU.Producer.Close")
		}

		p.transport.removeProducer(p.id)
		p.transport.router.removeProducer(p.id)
		log.Debug().Str("producerId", p.id).Msg("SFU.Producer.Closed")
	})
}
