package sfu

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/codecs"
	"github.com/videmus/relay/internal/webrtc/ortc"
)

type pionConsumer struct {
	id            string
	producer      *pionProducer
	transport     *pionTransport
	rtpParameters ortc.RTPParameters
	track         *codecs.ConsumerTrack
	sender        *webrtc.RTPSender

	paused    atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

func newPionConsumer(transport *pionTransport, producer *pionProducer, rtpParameters ortc.RTPParameters, paused bool) (*pionConsumer, error) {
	id := uuid.NewString()
	track := codecs.CreateConsumerTrack(id, producer.id, codecs.KindOf(rtpParameters.Codecs[0].MimeType), rtpParameters.Codecs[0].PayloadType)

	sender, err := transport.api.NewRTPSender(track, transport.dtls)
	if err != nil {
		return nil, err
	}

	if err = sender.Send(sender.GetParameters()); err != nil {
		_ = sender.Stop()
		return nil, err
	}

	// The SSRCs are picked by the sender, announce those instead of the drafted ones
	sent := sender.GetParameters()
	if len(sent.Encodings) != 0 {
		encoding := ortc.RTPEncodingParameters{SSRC: uint32(sent.Encodings[0].SSRC)}
		if rtx := sent.Encodings[0].RTX.SSRC; rtx != 0 {
			encoding.RTX = &ortc.RTXParameters{SSRC: uint32(rtx)}
		}
		rtpParameters.Encodings = []ortc.RTPEncodingParameters{encoding}
	}

	if rtpParameters.Encodings[0].RTX == nil {
		rtpParameters.Codecs = slices.DeleteFunc(rtpParameters.Codecs, func(codec ortc.RTPCodecParameters) bool {
			return ortc.IsRTXMimeType(codec.MimeType)
		})
	}

	// Forwarded packets carry no header extensions
	rtpParameters.HeaderExtensions = []ortc.RTPHeaderExtensionParameters{}

	consumer := &pionConsumer{
		id:            id,
		producer:      producer,
		transport:     transport,
		rtpParameters: rtpParameters,
		track:         track,
		sender:        sender,
	}
	consumer.paused.Store(paused)

	go consumer.readRTCP()

	return consumer, nil
}

func (c *pionConsumer) ID() string                        { return c.id }
func (c *pionConsumer) ProducerID() string                { return c.producer.id }
func (c *pionConsumer) Kind() ortc.MediaKind              { return c.producer.kind }
func (c *pionConsumer) RTPParameters() ortc.RTPParameters { return c.rtpParameters }
func (c *pionConsumer) Paused() bool                      { return c.paused.Load() }
func (c *pionConsumer) Closed() bool                      { return c.closed.Load() }

// Resume starts forwarding. Resuming a running consumer does nothing.
func (c *pionConsumer) Resume() error {
	if c.Closed() {
		return ErrTransportClosed
	}

	if c.paused.CompareAndSwap(true, false) {
		c.producer.requestKeyFrame()
	}

	return nil
}

func (c *pionConsumer) writeRTP(packet codecs.TrackPacket) {
	if c.paused.Load() || c.closed.Load() {
		return
	}

	if err := c.track.WriteRTP(packet.Packet); err != nil {
		log.Debug().Err(err).Str("consumerId", c.id).Msg("SFU.Consumer.WriteRTP")
	}
}

// Keyframe requests from the viewer are relayed to the publisher
func (c *pionConsumer) readRTCP() {
	for {
		packets, _, err := c.sender.ReadRTCP()
		if err != nil {
			return
		}

		for _, packet := range packets {
			switch packet.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if !c.paused.Load() {
					c.producer.requestKeyFrame()
				}
			}
		}
	}
}

func (c *pionConsumer) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		if err := c.sender.Stop(); err != nil {
			log.Debug().Err(err).Str("consumerId", c.id).Msg("SFU.Consumer.Close")
		}

		c.producer.removeConsumer(c.id)
		c.transport.removeConsumer(c.id)
		log.Debug().Str("consumerId", c.id).Msg("SFU.Consumer.Closed")
	})
}
