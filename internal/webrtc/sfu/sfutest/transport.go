package sfutest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/videmus/relay/internal/webrtc/ortc"
	"github.com/videmus/relay/internal/webrtc/sfu"
)

type Transport struct {
	id     string
	router *Router

	iceParameters  ortc.ICEParameters
	iceCandidates  []ortc.ICECandidate
	dtlsParameters ortc.DTLSParameters

	lock       sync.Mutex
	closed     bool
	remote     *sfu.RemoteParameters
	onICEState func(sfu.ICEState)
	producers  map[string]*Producer
	consumers  map[string]*Consumer

	// ConnectErr makes Connect fail when set
	ConnectErr error
}

func (t *Transport) ID() string                          { return t.id }
func (t *Transport) ICEParameters() ortc.ICEParameters   { return t.iceParameters }
func (t *Transport) ICECandidates() []ortc.ICECandidate  { return slices.Clone(t.iceCandidates) }
func (t *Transport) DTLSParameters() ortc.DTLSParameters { return t.dtlsParameters }

func (t *Transport) Connect(ctx context.Context, remote sfu.RemoteParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	switch {
	case t.ConnectErr != nil:
		return t.ConnectErr
	case t.closed:
		return sfu.ErrTransportClosed
	case t.remote != nil:
		return sfu.ErrAlreadyConnected
	case len(remote.DTLSParameters.Fingerprints) == 0:
		return sfu.ErrInvalidDTLSParameters
	}

	t.remote = &remote
	return nil
}

// Remote returns the parameters Connect was called with
func (t *Transport) Remote() (sfu.RemoteParameters, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.remote == nil {
		return sfu.RemoteParameters{}, false
	}

	return *t.remote, true
}

func (t *Transport) Produce(ctx context.Context, options sfu.ProducerOptions) (sfu.Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if options.Kind != ortc.MediaKindAudio && options.Kind != ortc.MediaKindVideo {
		return nil, fmt.Errorf("%w: %s", sfu.ErrUnsupportedMediaKind, options.Kind)
	}

	if len(ortc.ReduceCodecs(options.RTPParameters.Codecs)) == 0 || len(options.RTPParameters.Encodings) == 0 {
		return nil, sfu.ErrMissingRTPParameters
	}

	consumable, err := ortc.GetConsumableRTPParameters(options.Kind, options.RTPParameters, t.router.RTPCapabilities())
	if err != nil {
		return nil, err
	}

	producer := &Producer{
		id:            t.router.engine.nextID("producer"),
		kind:          options.Kind,
		transport:     t,
		rtpParameters: options.RTPParameters,
		consumable:    consumable,
		consumers:     map[string]*Consumer{},
	}

	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return nil, sfu.ErrTransportClosed
	}
	t.producers[producer.id] = producer
	t.lock.Unlock()

	t.router.lock.Lock()
	t.router.producers[producer.id] = producer
	t.router.lock.Unlock()

	return producer, nil
}

func (t *Transport) Consume(ctx context.Context, options sfu.ConsumerOptions) (sfu.Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.router.lock.Lock()
	producer, ok := t.router.producers[options.ProducerID]
	t.router.lock.Unlock()
	if !ok || producer.Closed() {
		return nil, fmt.Errorf("%w: %s", sfu.ErrProducerNotFound, options.ProducerID)
	}

	if !ortc.CanConsume(producer.consumable, options.RTPCapabilities) {
		return nil, fmt.Errorf("%w: %s", sfu.ErrCannotConsume, options.ProducerID)
	}

	rtpParameters, err := ortc.GetConsumerRTPParameters(producer.consumable, options.RTPCapabilities)
	if err != nil {
		return nil, err
	}

	consumer := &Consumer{
		id:            t.router.engine.nextID("consumer"),
		producer:      producer,
		transport:     t,
		rtpParameters: rtpParameters,
	}
	consumer.paused.Store(options.Paused)

	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return nil, sfu.ErrTransportClosed
	}
	t.consumers[consumer.id] = consumer
	t.lock.Unlock()

	producer.lock.Lock()
	producer.consumers[consumer.id] = consumer
	producer.lock.Unlock()

	return consumer, nil
}

func (t *Transport) OnICEStateChange(handler func(sfu.ICEState)) {
	t.lock.Lock()
	t.onICEState = handler
	t.lock.Unlock()
}

// SetICEState fires the registered observer the way the engine would on an
// ICE transition. Nothing fires once the transport is closed.
func (t *Transport) SetICEState(state sfu.ICEState) {
	t.lock.Lock()
	handler, closed := t.onICEState, t.closed
	t.lock.Unlock()

	if handler != nil && !closed {
		handler(state)
	}
}

// Consumers returns the consumers that are still open
func (t *Transport) Consumers() []*Consumer {
	t.lock.Lock()
	defer t.lock.Unlock()

	consumers := []*Consumer{}
	for _, consumer := range t.consumers {
		consumers = append(consumers, consumer)
	}

	return consumers
}

// Producers returns the producers that are still open
func (t *Transport) Producers() []*Producer {
	t.lock.Lock()
	defer t.lock.Unlock()

	producers := []*Producer{}
	for _, producer := range t.producers {
		producers = append(producers, producer)
	}

	return producers
}

func (t *Transport) Close() {
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return
	}
	t.closed = true
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, consumer := range t.consumers {
		consumers = append(consumers, consumer)
	}
	producers := make([]*Producer, 0, len(t.producers))
	for _, producer := range t.producers {
		producers = append(producers, producer)
	}
	t.lock.Unlock()

	for _, consumer := range consumers {
		consumer.Close()
	}
	for _, producer := range producers {
		producer.Close()
	}

	t.router.lock.Lock()
	delete(t.router.transports, t.id)
	t.router.lock.Unlock()
}

func (t *Transport) Closed() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.closed
}

type Producer struct {
	id            string
	kind          ortc.MediaKind
	transport     *Transport
	rtpParameters ortc.RTPParameters
	consumable    ortc.RTPParameters

	lock      sync.Mutex
	closed    bool
	consumers map[string]*Consumer
}

func (p *Producer) ID() string                        { return p.id }
func (p *Producer) Kind() ortc.MediaKind              { return p.kind }
func (p *Producer) RTPParameters() ortc.RTPParameters { return p.rtpParameters }
func (p *Producer) Stats() sfu.ProducerStats          { return sfu.ProducerStats{} }

// ConsumableRTPParameters exposes the router mapped parameters consumers derive from
func (p *Producer) ConsumableRTPParameters() ortc.RTPParameters { return p.consumable }

func (p *Producer) Close() {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return
	}
	p.closed = true
	consumers := make([]*Consumer, 0, len(p.consumers))
	for _, consumer := range p.consumers {
		consumers = append(consumers, consumer)
	}
	p.consumers = map[string]*Consumer{}
	p.lock.Unlock()

	for _, consumer := range consumers {
		consumer.Close()
	}

	p.transport.lock.Lock()
	delete(p.transport.producers, p.id)
	p.transport.lock.Unlock()

	p.transport.router.lock.Lock()
	delete(p.transport.router.producers, p.id)
	p.transport.router.lock.Unlock()
}

func (p *Producer) Closed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.closed
}

type Consumer struct {
	id            string
	producer      *Producer
	transport     *Transport
	rtpParameters ortc.RTPParameters

	paused  atomic.Bool
	closed  atomic.Bool
	resumes atomic.Int64
}

func (c *Consumer) ID() string                        { return c.id }
func (c *Consumer) ProducerID() string                { return c.producer.id }
func (c *Consumer) Kind() ortc.MediaKind              { return c.producer.kind }
func (c *Consumer) RTPParameters() ortc.RTPParameters { return c.rtpParameters }
func (c *Consumer) Paused() bool                      { return c.paused.Load() }
func (c *Consumer) Closed() bool                      { return c.closed.Load() }

// Resumes counts the pause to running transitions
func (c *Consumer) Resumes() int64 { return c.resumes.Load() }

func (c *Consumer) Resume() error {
	if c.closed.Load() {
		return sfu.ErrTransportClosed
	}

	if c.paused.CompareAndSwap(true, false) {
		c.resumes.Add(1)
	}

	return nil
}

func (c *Consumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.producer.lock.Lock()
	delete(c.producer.consumers, c.id)
	c.producer.lock.Unlock()

	c.transport.lock.Lock()
	delete(c.transport.consumers, c.id)
	c.transport.lock.Unlock()
}
