// Package viewer holds the per viewer side of a broadcast: one receive transport,
// the consumers created on it and the handshake step it reached.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/ortc"
	"github.com/videmus/relay/internal/webrtc/sfu"
)

var ErrClosed = errors.New("viewer session is closed")

type State string

const (
	StateUninitialized   State = "uninitialized"
	StateParamsIssued    State = "params-issued"
	StateConnected       State = "connected"
	StateConsumersIssued State = "consumers-issued"
	StateFlowing         State = "flowing"
	StateClosed          State = "closed"
)

type (
	Session struct {
		BroadcastID string
		ChannelID   string
		Transport   sfu.Transport
		CreatedAt   time.Time

		lock      sync.RWMutex
		state     State
		consumers []sfu.Consumer
		onClose   func(*Session)
		closeOnce sync.Once
	}

	ConsumerParameters struct {
		ID            string             `json:"id"`
		ProducerID    string             `json:"producerId"`
		Kind          ortc.MediaKind     `json:"kind"`
		RTPParameters ortc.RTPParameters `json:"rtpParameters"`
	}

	SessionState struct {
		ID        string    `json:"id"`
		ChannelID string    `json:"channelId"`
		State     State     `json:"state"`
		Consumers int       `json:"consumers"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

func New(broadcastID string, channelID string, transport sfu.Transport) *Session {
	return &Session{
		BroadcastID: broadcastID,
		ChannelID:   channelID,
		Transport:   transport,
		CreatedAt:   time.Now(),
		state:       StateUninitialized,
		consumers:   []sfu.Consumer{},
	}
}

// ID is the id of the viewer's transport, which is what clients address it by
func (s *Session) ID() string {
	return s.Transport.ID()
}

func (s *Session) State() State {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.state
}

// SetOnClose registers the callback that detaches the viewer from its broadcast.
// It runs after every consumer of the viewer was closed.
func (s *Session) SetOnClose(onClose func(*Session)) {
	s.lock.Lock()
	s.onClose = onClose
	s.lock.Unlock()
}

// ParamsIssued records that the transport parameters were handed to the client
func (s *Session) ParamsIssued() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state == StateClosed {
		return ErrClosed
	}
	if s.state == StateUninitialized {
		s.state = StateParamsIssued
	}

	return nil
}

func (s *Session) Connect(ctx context.Context, remote sfu.RemoteParameters) error {
	if s.State() == StateClosed {
		return ErrClosed
	}

	if err := s.Transport.Connect(ctx, remote); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateFlowing:
	default:
		s.state = StateConnected
	}

	log.Debug().Str("broadcastId", s.BroadcastID).Str("transportId", s.ID()).Msg("Viewer.Connected")
	return nil
}

// Consume creates one paused consumer per producer the capabilities can receive.
// Producers the viewer cannot decode are skipped.
func (s *Session) Consume(ctx context.Context, router sfu.Router, producers []sfu.Producer, capabilities ortc.RTPCapabilities) ([]ConsumerParameters, error) {
	if s.State() == StateClosed {
		return nil, ErrClosed
	}

	created := []sfu.Consumer{}
	for _, producer := range producers {
		if !router.CanConsume(producer.ID(), capabilities) {
			log.Warn().
				Str("broadcastId", s.BroadcastID).
				Str("transportId", s.ID()).
				Str("producerId", producer.ID()).
				Str("kind", string(producer.Kind())).
				Msg("Viewer.Consume.Incompatible")
			continue
		}

		consumer, err := s.Transport.Consume(ctx, sfu.ConsumerOptions{
			ProducerID:      producer.ID(),
			RTPCapabilities: capabilities,
			Paused:          true,
		})
		if err != nil {
			for _, consumer := range created {
				consumer.Close()
			}
			return nil, fmt.Errorf("consume producer %s: %w", producer.ID(), err)
		}

		created = append(created, consumer)
	}

	s.lock.Lock()
	if s.state == StateClosed {
		s.lock.Unlock()
		for _, consumer := range created {
			consumer.Close()
		}
		return nil, ErrClosed
	}
	s.consumers = append(s.consumers, created...)
	s.state = StateConsumersIssued
	s.lock.Unlock()

	parameters := make([]ConsumerParameters, 0, len(created))
	for _, consumer := range created {
		parameters = append(parameters, ConsumerParameters{
			ID:            consumer.ID(),
			ProducerID:    consumer.ProducerID(),
			Kind:          consumer.Kind(),
			RTPParameters: consumer.RTPParameters(),
		})
	}

	log.Debug().
		Str("broadcastId", s.BroadcastID).
		Str("transportId", s.ID()).
		Int("consumers", len(created)).
		Msg("Viewer.Consumers.Created")

	return parameters, nil
}

// Resume starts every consumer of the viewer. Consumers already running are left as is.
func (s *Session) Resume() error {
	s.lock.Lock()
	if s.state == StateClosed {
		s.lock.Unlock()
		return ErrClosed
	}
	consumers := append([]sfu.Consumer(nil), s.consumers...)
	s.lock.Unlock()

	errs := []error{}
	for _, consumer := range consumers {
		if err := consumer.Resume(); err != nil {
			errs = append(errs, fmt.Errorf("resume consumer %s: %w", consumer.ID(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state == StateClosed {
		return ErrClosed
	}
	if len(consumers) != 0 {
		s.state = StateFlowing
	}

	return nil
}

func (s *Session) Consumers() []sfu.Consumer {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return append([]sfu.Consumer(nil), s.consumers...)
}

// Close closes the consumers first, then the transport, then detaches the viewer
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.lock.Lock()
		s.state = StateClosed
		consumers := s.consumers
		s.consumers = []sfu.Consumer{}
		onClose := s.onClose
		s.lock.Unlock()

		for _, consumer := range consumers {
			consumer.Close()
		}
		s.Transport.Close()

		if onClose != nil {
			onClose(s)
		}

		log.Info().
			Str("broadcastId", s.BroadcastID).
			Str("transportId", s.ID()).
			Int("consumers", len(consumers)).
			Msg("Viewer.Closed")
	})
}

// HandleICEStateChange is the transport observer: losing connectivity ends the viewer
func (s *Session) HandleICEStateChange(state sfu.ICEState) {
	log.Debug().Str("transportId", s.ID()).Str("state", string(state)).Msg("Viewer.ICEStateChange")

	switch state {
	case sfu.ICEStateDisconnected, sfu.ICEStateClosed:
		s.Close()
	}
}

func (s *Session) GetSessionState() SessionState {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return SessionState{
		ID:        s.ID(),
		ChannelID: s.ChannelID,
		State:     s.state,
		Consumers: len(s.consumers),
		CreatedAt: s.CreatedAt,
	}
}
