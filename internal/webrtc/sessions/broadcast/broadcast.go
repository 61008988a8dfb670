// Package broadcast holds everything one live publisher owns: the router, the
// publisher's transport and producers and the viewers attached to them.
package broadcast

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/sessions/viewer"
	"github.com/videmus/relay/internal/webrtc/sfu"
)

var ErrClosed = errors.New("broadcast session is closed")

type (
	Session struct {
		BroadcastID string
		Router      sfu.Router
		StreamStart time.Time

		lock            sync.RWMutex
		closed          bool
		activeChannelID string
		transport       sfu.Transport
		producers       []sfu.Producer
		viewers         []*viewer.Session
		closeOnce       sync.Once
	}

	ProducerState struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
		sfu.ProducerStats
	}
)

// New assembles a session for a publisher whose transport and producers already
// exist. It is published to the registry only once complete.
func New(broadcastID string, channelID string, router sfu.Router, transport sfu.Transport, producers []sfu.Producer) *Session {
	return &Session{
		BroadcastID:     broadcastID,
		Router:          router,
		StreamStart:     time.Now(),
		activeChannelID: channelID,
		transport:       transport,
		producers:       slices.Clone(producers),
		viewers:         []*viewer.Session{},
	}
}

func (s *Session) ActiveChannelID() string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.activeChannelID
}

// SetActiveChannelID is only called by the registry so its channel index stays in step
func (s *Session) SetActiveChannelID(channelID string) {
	s.lock.Lock()
	s.activeChannelID = channelID
	s.lock.Unlock()
}

func (s *Session) Transport() sfu.Transport {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.transport
}

// Producers returns the publisher's producers in offer order
func (s *Session) Producers() []sfu.Producer {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return slices.Clone(s.producers)
}

func (s *Session) IsClosed() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.closed
}

// AddViewer appends the viewer and arranges for it to detach itself once closed
func (s *Session) AddViewer(viewerSession *viewer.Session) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return ErrClosed
	}
	s.viewers = append(s.viewers, viewerSession)
	s.lock.Unlock()

	viewerSession.SetOnClose(func(closed *viewer.Session) {
		s.removeViewer(closed)
	})

	log.Debug().
		Str("broadcastId", s.BroadcastID).
		Str("transportId", viewerSession.ID()).
		Int("viewers", s.ViewerCount()).
		Msg("Broadcast.Viewer.Added")

	return nil
}

func (s *Session) removeViewer(viewerSession *viewer.Session) {
	s.lock.Lock()
	s.viewers = slices.DeleteFunc(s.viewers, func(candidate *viewer.Session) bool {
		return candidate == viewerSession
	})
	remaining := len(s.viewers)
	s.lock.Unlock()

	log.Debug().
		Str("broadcastId", s.BroadcastID).
		Str("transportId", viewerSession.ID()).
		Int("viewers", remaining).
		Msg("Broadcast.Viewer.Removed")
}

// Viewer finds the viewer whose transport has the given id
func (s *Session) Viewer(transportID string) (*viewer.Session, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	index := slices.IndexFunc(s.viewers, func(candidate *viewer.Session) bool {
		return candidate.ID() == transportID
	})
	if index == -1 {
		return nil, false
	}

	return s.viewers[index], true
}

func (s *Session) Viewers() []*viewer.Session {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return slices.Clone(s.viewers)
}

func (s *Session) ViewerCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.viewers)
}

func (s *Session) ProducerStates() []ProducerState {
	states := []ProducerState{}
	for _, producer := range s.Producers() {
		if producer.Closed() {
			continue
		}

		states = append(states, ProducerState{
			ID:            producer.ID(),
			Kind:          string(producer.Kind()),
			ProducerStats: producer.Stats(),
		})
	}

	return states
}

// Close ends the broadcast. Viewers go first so none of them outlives its entry,
// then the publisher transport with its producers, then the router.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.lock.Lock()
		s.closed = true
		viewers := slices.Clone(s.viewers)
		transport := s.transport
		s.lock.Unlock()

		for _, viewerSession := range viewers {
			viewerSession.Close()
		}

		if transport != nil {
			transport.Close()
		}

		s.lock.Lock()
		producers := s.producers
		s.producers = []sfu.Producer{}
		s.transport = nil
		s.lock.Unlock()

		for _, producer := range producers {
			producer.Close()
		}

		s.Router.Close()

		log.Info().
			Str("broadcastId", s.BroadcastID).
			Int("viewers", len(viewers)).
			Int("producers", len(producers)).
			Msg("Broadcast.Closed")
	})
}
