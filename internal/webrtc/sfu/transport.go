package sfu

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/codecs"
	"github.com/videmus/relay/internal/webrtc/ortc"
)

type pionTransport struct {
	id     string
	router *pionRouter

	api         *webrtc.API
	mediaEngine *webrtc.MediaEngine
	gatherer    *webrtc.ICEGatherer
	ice         *webrtc.ICETransport
	dtls        *webrtc.DTLSTransport

	iceParameters  ortc.ICEParameters
	iceCandidates  []ortc.ICECandidate
	dtlsParameters ortc.DTLSParameters

	routerCodecsOnce sync.Once
	routerCodecsErr  error

	lock       sync.Mutex
	connecting bool
	connected  bool
	closed     bool
	pending    []func()
	onICEState func(ICEState)
	producers  map[string]*pionProducer
	consumers  map[string]*pionConsumer
}

func newPionTransport(ctx context.Context, router *pionRouter) (*pionTransport, error) {
	api, mediaEngine, err := router.engine.newAPI()
	if err != nil {
		return nil, err
	}

	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: router.engine.iceServers})
	if err != nil {
		return nil, fmt.Errorf("create ice gatherer: %w", err)
	}

	gatherFinished := make(chan struct{})
	var gatherOnce sync.Once
	gatherer.OnLocalCandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			gatherOnce.Do(func() { close(gatherFinished) })
		}
	})

	if err = gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("gather candidates: %w", err)
	}

	select {
	case <-gatherFinished:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	localICE, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}

	localCandidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local ice candidates: %w", err)
	}

	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = ice.Stop()
		_ = gatherer.Close()
		return nil, fmt.Errorf("create dtls transport: %w", err)
	}

	localDTLS, err := dtls.GetLocalParameters()
	if err != nil {
		_ = dtls.Stop()
		_ = ice.Stop()
		_ = gatherer.Close()
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}

	transport := &pionTransport{
		id:             uuid.NewString(),
		router:         router,
		api:            api,
		mediaEngine:    mediaEngine,
		gatherer:       gatherer,
		ice:            ice,
		dtls:           dtls,
		iceParameters:  fromPionICEParameters(localICE),
		iceCandidates:  fromPionCandidates(localCandidates),
		dtlsParameters: fromPionDTLSParameters(localDTLS),
		producers:      map[string]*pionProducer{},
		consumers:      map[string]*pionConsumer{},
	}

	ice.OnConnectionStateChange(transport.handleICEStateChange)

	log.Debug().
		Str("transportId", transport.id).
		Str("routerId", router.id).
		Int("candidates", len(transport.iceCandidates)).
		Msg("SFU.Transport.Created")

	return transport, nil
}

func (t *pionTransport) ID() string                          { return t.id }
func (t *pionTransport) ICEParameters() ortc.ICEParameters   { return t.iceParameters }
func (t *pionTransport) ICECandidates() []ortc.ICECandidate  { return slices.Clone(t.iceCandidates) }
func (t *pionTransport) DTLSParameters() ortc.DTLSParameters { return t.dtlsParameters }

func (t *pionTransport) OnICEStateChange(handler func(ICEState)) {
	t.lock.Lock()
	t.onICEState = handler
	t.lock.Unlock()
}

func (t *pionTransport) handleICEStateChange(state webrtc.ICETransportState) {
	log.Debug().Str("transportId", t.id).Str("state", state.String()).Msg("SFU.Transport.ICEStateChange")

	t.lock.Lock()
	handler, closed := t.onICEState, t.closed
	t.lock.Unlock()

	if handler == nil || closed {
		return
	}

	switch state {
	case webrtc.ICETransportStateConnected, webrtc.ICETransportStateCompleted:
		handler(ICEStateConnected)
	case webrtc.ICETransportStateDisconnected, webrtc.ICETransportStateFailed:
		handler(ICEStateDisconnected)
	case webrtc.ICETransportStateClosed:
		handler(ICEStateClosed)
	}
}

func (t *pionTransport) Connect(ctx context.Context, remote RemoteParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if remote.ICEParameters == nil || remote.ICEParameters.UsernameFragment == "" {
		return ErrMissingICEParameters
	}

	if len(remote.DTLSParameters.Fingerprints) == 0 {
		return ErrInvalidDTLSParameters
	}

	t.lock.Lock()
	switch {
	case t.closed:
		t.lock.Unlock()
		return ErrTransportClosed
	case t.connecting:
		t.lock.Unlock()
		return ErrAlreadyConnected
	}
	t.connecting = true
	t.lock.Unlock()

	if len(remote.ICECandidates) != 0 {
		if err := t.ice.SetRemoteCandidates(toPionCandidates(remote.ICECandidates)); err != nil {
			log.Warn().Err(err).Str("transportId", t.id).Msg("SFU.Transport.SetRemoteCandidates")
		}
	}

	iceParameters := toPionICEParameters(*remote.ICEParameters)
	dtlsParameters := toPionDTLSParameters(remote.DTLSParameters)

	go func() {
		role := webrtc.ICERoleControlled
		if err := t.ice.Start(t.gatherer, iceParameters, &role); err != nil {
			log.Warn().Err(err).Str("transportId", t.id).Msg("SFU.Transport.ICE.Start")
			t.Close()
			return
		}

		if err := t.dtls.Start(dtlsParameters); err != nil {
			log.Warn().Err(err).Str("transportId", t.id).Msg("SFU.Transport.DTLS.Start")
			t.Close()
			return
		}

		t.lock.Lock()
		if t.closed {
			t.lock.Unlock()
			return
		}
		t.connected = true
		pending := t.pending
		t.pending = nil
		t.lock.Unlock()

		log.Debug().Str("transportId", t.id).Msg("SFU.Transport.Connected")

		for _, start := range pending {
			start()
		}
	}()

	return nil
}

// whenConnected runs start once DTLS is up, immediately when it already is
func (t *pionTransport) whenConnected(start func()) {
	t.lock.Lock()
	if !t.connected {
		t.pending = append(t.pending, start)
		t.lock.Unlock()
		return
	}
	t.lock.Unlock()

	start()
}

func (t *pionTransport) Produce(ctx context.Context, options ProducerOptions) (Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if options.Kind != ortc.MediaKindAudio && options.Kind != ortc.MediaKindVideo {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaKind, options.Kind)
	}

	if len(ortc.ReduceCodecs(options.RTPParameters.Codecs)) == 0 || len(options.RTPParameters.Encodings) == 0 {
		return nil, ErrMissingRTPParameters
	}

	if t.Closed() {
		return nil, ErrTransportClosed
	}

	consumable, err := ortc.GetConsumableRTPParameters(options.Kind, options.RTPParameters, t.router.capabilities)
	if err != nil {
		return nil, err
	}

	if err = codecs.RegisterCodecs(t.mediaEngine, options.RTPParameters.Codecs); err != nil {
		return nil, fmt.Errorf("register producer codecs: %w", err)
	}

	receiver, err := t.api.NewRTPReceiver(codecs.KindOf(options.RTPParameters.Codecs[0].MimeType), t.dtls)
	if err != nil {
		return nil, fmt.Errorf("create rtp receiver: %w", err)
	}

	producer := newPionProducer(t, options, consumable, receiver)

	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		_ = receiver.Stop()
		return nil, ErrTransportClosed
	}
	t.producers[producer.id] = producer
	t.lock.Unlock()

	t.router.addProducer(producer)
	t.whenConnected(producer.receive)

	log.Debug().
		Str("transportId", t.id).
		Str("producerId", producer.id).
		Str("kind", string(producer.kind)).
		Msg("SFU.Producer.Created")

	return producer, nil
}

func (t *pionTransport) Consume(ctx context.Context, options ConsumerOptions) (Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if t.Closed() {
		return nil, ErrTransportClosed
	}

	producer, ok := t.router.producer(options.ProducerID)
	if !ok || producer.Closed() {
		return nil, fmt.Errorf("%w: %s", ErrProducerNotFound, options.ProducerID)
	}

	if !ortc.CanConsume(producer.consumable, options.RTPCapabilities) {
		return nil, fmt.Errorf("%w: %s", ErrCannotConsume, options.ProducerID)
	}

	rtpParameters, err := ortc.GetConsumerRTPParameters(producer.consumable, options.RTPCapabilities)
	if err != nil {
		return nil, err
	}

	t.routerCodecsOnce.Do(func() {
		t.routerCodecsErr = codecs.RegisterCapabilities(t.mediaEngine, t.router.capabilities)
	})
	if t.routerCodecsErr != nil {
		return nil, fmt.Errorf("register router codecs: %w", t.routerCodecsErr)
	}

	consumer, err := newPionConsumer(t, producer, rtpParameters, options.Paused)
	if err != nil {
		return nil, err
	}

	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		consumer.Close()
		return nil, ErrTransportClosed
	}
	t.consumers[consumer.id] = consumer
	t.lock.Unlock()

	producer.addConsumer(consumer)

	log.Debug().
		Str("transportId", t.id).
		Str("consumerId", consumer.id).
		Str("producerId", producer.id).
		Bool("paused", options.Paused).
		Msg("SFU.Consumer.Created")

	return consumer, nil
}

func (t *pionTransport) Close() {
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return
	}
	t.closed = true
	t.pending = nil
	producers := slices.Collect(maps.Values(t.producers))
	consumers := slices.Collect(maps.Values(t.consumers))
	t.producers = map[string]*pionProducer{}
	t.consumers = map[string]*pionConsumer{}
	t.lock.Unlock()

	for _, consumer := range consumers {
		consumer.Close()
	}
	for _, producer := range producers {
		producer.Close()
	}

	errs := []error{}
	if err := t.dtls.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := t.ice.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := t.gatherer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		log.Debug().Err(err).Str("transportId", t.id).Msg("SFU.Transport.Close")
	}

	t.router.removeTransport(t.id)
	log.Debug().Str("transportId", t.id).Msg("SFU.Transport.Closed")
}

func (t *pionTransport) Closed() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.closed
}

func (t *pionTransport) removeConsumer(consumerID string) {
	t.lock.Lock()
	delete(t.consumers, consumerID)
	t.lock.Unlock()
}

func (t *pionTransport) removeProducer(producerID string) {
	t.lock.Lock()
	delete(t.producers, producerID)
	t.lock.Unlock()
}
