// Package sfutest provides an in-memory media engine. It negotiates with the
// real ortc functions but never opens a socket, and lets tests drive ICE state
// transitions by hand.
package sfutest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/videmus/relay/internal/webrtc/ortc"
	"github.com/videmus/relay/internal/webrtc/sfu"
)

type Engine struct {
	capabilities ortc.RTPCapabilities
	sequence     atomic.Uint64

	lock    sync.Mutex
	routers []*Router

	// CreateRouterErr and CreateTransportErr make the next calls fail when set
	CreateRouterErr    error
	CreateTransportErr error
}

func NewEngine(capabilities ortc.RTPCapabilities) *Engine {
	return &Engine{capabilities: capabilities}
}

func (e *Engine) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, e.sequence.Add(1))
}

func (e *Engine) CreateRouter(ctx context.Context) (sfu.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	if e.CreateRouterErr != nil {
		return nil, e.CreateRouterErr
	}

	router := &Router{
		id:         e.nextID("router"),
		engine:     e,
		producers:  map[string]*Producer{},
		transports: map[string]*Transport{},
	}
	e.routers = append(e.routers, router)

	return router, nil
}

// Routers returns every router created so far, closed ones included
func (e *Engine) Routers() []*Router {
	e.lock.Lock()
	defer e.lock.Unlock()

	return append([]*Router(nil), e.routers...)
}

// Transport finds a transport by id across all routers
func (e *Engine) Transport(transportID string) (*Transport, bool) {
	for _, router := range e.Routers() {
		router.lock.Lock()
		transport, ok := router.transports[transportID]
		router.lock.Unlock()
		if ok {
			return transport, true
		}
	}

	return nil, false
}

type Router struct {
	id     string
	engine *Engine

	lock       sync.Mutex
	closed     bool
	producers  map[string]*Producer
	transports map[string]*Transport
}

func (r *Router) ID() string                            { return r.id }
func (r *Router) RTPCapabilities() ortc.RTPCapabilities { return r.engine.capabilities }

func (r *Router) CreateWebRTCTransport(ctx context.Context) (sfu.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.engine.lock.Lock()
	createErr := r.engine.CreateTransportErr
	r.engine.lock.Unlock()
	if createErr != nil {
		return nil, createErr
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return nil, sfu.ErrRouterClosed
	}

	id := r.engine.nextID("transport")
	transport := &Transport{
		id:     id,
		router: r,
		iceParameters: ortc.ICEParameters{
			UsernameFragment: "ufrag-" + id,
			Password:         "password-" + id,
			ICELite:          true,
		},
		iceCandidates: []ortc.ICECandidate{{
			Foundation: "udpcandidate",
			Priority:   1076302079,
			IP:         "127.0.0.1",
			Address:    "127.0.0.1",
			Protocol:   "udp",
			Port:       40000,
			Type:       "host",
		}},
		dtlsParameters: ortc.DTLSParameters{
			Role: ortc.DTLSRoleAuto,
			Fingerprints: []ortc.DTLSFingerprint{{
				Algorithm: "sha-256",
				Value:     "AF:6E:74:9A:11:4C:58:EB:C7:45:32:D5:E0:48:3C:9F:1E:66:C0:A1:52:2E:9A:94:3E:73:6C:D2:FB:2A:7D:01",
			}},
		},
		producers: map[string]*Producer{},
		consumers: map[string]*Consumer{},
	}
	r.transports[id] = transport

	return transport, nil
}

func (r *Router) CanConsume(producerID string, capabilities ortc.RTPCapabilities) bool {
	r.lock.Lock()
	producer, ok := r.producers[producerID]
	r.lock.Unlock()

	return ok && ortc.CanConsume(producer.consumable, capabilities)
}

func (r *Router) Close() {
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, transport := range r.transports {
		transports = append(transports, transport)
	}
	r.lock.Unlock()

	for _, transport := range transports {
		transport.Close()
	}
}

func (r *Router) Closed() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.closed
}

// Transports returns the transports that are still open
func (r *Router) Transports() []*Transport {
	r.lock.Lock()
	defer r.lock.Unlock()

	transports := []*Transport{}
	for _, transport := range r.transports {
		if !transport.Closed() {
			transports = append(transports, transport)
		}
	}

	return transports
}
