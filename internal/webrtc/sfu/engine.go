package sfu

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/ortc"
)

// PionEngine implements the engine with the ORTC objects of pion/webrtc. Every
// transport gets its own media engine so publisher payload types never collide
// with the router payload types used towards viewers.
type PionEngine struct {
	settingEngine webrtc.SettingEngine
	iceServers    []webrtc.ICEServer
	capabilities  ortc.RTPCapabilities
}

func NewPionEngine(settingEngine webrtc.SettingEngine, iceServers []webrtc.ICEServer, capabilities ortc.RTPCapabilities) *PionEngine {
	return &PionEngine{
		settingEngine: settingEngine,
		iceServers:    iceServers,
		capabilities:  capabilities,
	}
}

func (e *PionEngine) CreateRouter(ctx context.Context) (Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	router := &pionRouter{
		id:           uuid.NewString(),
		engine:       e,
		capabilities: e.capabilities,
		producers:    map[string]*pionProducer{},
		transports:   map[string]*pionTransport{},
	}

	log.Debug().Str("routerId", router.id).Msg("SFU.Router.Created")
	return router, nil
}

func (e *PionEngine) newAPI() (*webrtc.API, *webrtc.MediaEngine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	registry := &interceptor.Registry{}

	if err := webrtc.ConfigureNack(mediaEngine, registry); err != nil {
		return nil, nil, fmt.Errorf("configure nack: %w", err)
	}
	if err := webrtc.ConfigureRTCPReports(registry); err != nil {
		return nil, nil, fmt.Errorf("configure rtcp reports: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(e.settingEngine),
	)

	return api, mediaEngine, nil
}

type pionRouter struct {
	id           string
	engine       *PionEngine
	capabilities ortc.RTPCapabilities

	lock       sync.RWMutex
	closed     bool
	producers  map[string]*pionProducer
	transports map[string]*pionTransport
}

func (r *pionRouter) ID() string                            { return r.id }
func (r *pionRouter) RTPCapabilities() ortc.RTPCapabilities { return r.capabilities }

func (r *pionRouter) CreateWebRTCTransport(ctx context.Context) (Transport, error) {
	if r.Closed() {
		return nil, ErrRouterClosed
	}

	transport, err := newPionTransport(ctx, r)
	if err != nil {
		return nil, err
	}

	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		transport.Close()
		return nil, ErrRouterClosed
	}
	r.transports[transport.id] = transport
	r.lock.Unlock()

	return transport, nil
}

func (r *pionRouter) CanConsume(producerID string, capabilities ortc.RTPCapabilities) bool {
	producer, ok := r.producer(producerID)
	if !ok {
		return false
	}

	return ortc.CanConsume(producer.consumable, capabilities)
}

func (r *pionRouter) Close() {
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return
	}
	r.closed = true
	transports := slices.Collect(maps.Values(r.transports))
	r.transports = map[string]*pionTransport{}
	r.lock.Unlock()

	for _, transport := range transports {
		transport.Close()
	}

	log.Debug().Str("routerId", r.id).Msg("SFU.Router.Closed")
}

func (r *pionRouter) Closed() bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.closed
}

func (r *pionRouter) producer(producerID string) (*pionProducer, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	producer, ok := r.producers[producerID]
	return producer, ok
}

func (r *pionRouter) addProducer(producer *pionProducer) {
	r.lock.Lock()
	r.producers[producer.id] = producer
	r.lock.Unlock()
}

func (r *pionRouter) removeProducer(producerID string) {
	r.lock.Lock()
	delete(r.producers, producerID)
	r.lock.Unlock()
}

func (r *pionRouter) removeTransport(transportID string) {
	r.lock.Lock()
	delete(r.transports, transportID)
	r.lock.Unlock()
}
