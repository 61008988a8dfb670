package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MemoryStore keeps broadcasts and tokens in process. It backs the file store and tests.
type MemoryStore struct {
	lock       sync.RWMutex
	broadcasts map[string]*Broadcast
	tokens     map[string]*Token

	// onChange runs under the write lock after every mutation
	onChange func() error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		broadcasts: map[string]*Broadcast{},
		tokens:     map[string]*Token{},
	}
}

func (s *MemoryStore) AddBroadcast(broadcast Broadcast) {
	s.lock.Lock()
	defer s.lock.Unlock()

	broadcast.Channels = slices.Clone(broadcast.Channels)
	s.broadcasts[broadcast.ID] = &broadcast
}

func (s *MemoryStore) AddToken(token string, broadcastID string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.tokens[token] = &Token{Token: token, BroadcastID: broadcastID}
}

func (s *MemoryStore) ValidateToken(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if token == "" {
		return "", ErrInvalidToken
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	record.LastUsedAt = time.Now()

	return record.BroadcastID, nil
}

func (s *MemoryStore) GetBroadcast(ctx context.Context, broadcastID string) (Broadcast, error) {
	if err := ctx.Err(); err != nil {
		return Broadcast{}, err
	}

	s.lock.RLock()
	broadcast, ok := s.broadcasts[broadcastID]
	if ok && broadcast.CurrentChannelID != "" {
		result := cloneBroadcast(broadcast)
		s.lock.RUnlock()
		return result, nil
	}
	s.lock.RUnlock()

	if !ok {
		return Broadcast{}, ErrNotFound
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	broadcast, ok = s.broadcasts[broadcastID]
	if !ok {
		return Broadcast{}, ErrNotFound
	}

	if broadcast.CurrentChannelID == "" {
		if err := s.assignCurrentChannel(broadcast); err != nil {
			return Broadcast{}, err
		}
	}

	return cloneBroadcast(broadcast), nil
}

// A broadcast without a current channel gets its oldest channel, or a fresh one
// when it has none. Caller holds the write lock.
func (s *MemoryStore) assignCurrentChannel(broadcast *Broadcast) error {
	if len(broadcast.Channels) == 0 {
		broadcast.Channels = append(broadcast.Channels, Channel{ID: uuid.NewString(), CreatedAt: time.Now()})
	}

	oldest := slices.MinFunc(broadcast.Channels, func(a, b Channel) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
	broadcast.CurrentChannelID = oldest.ID

	log.Info().
		Str("broadcastId", broadcast.ID).
		Str("channelId", broadcast.CurrentChannelID).
		Msg("Store.CurrentChannel.Assigned")

	return s.changed()
}

func (s *MemoryStore) SetCurrentChannel(ctx context.Context, broadcastID string, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	broadcast, ok := s.broadcasts[broadcastID]
	if !ok {
		return ErrNotFound
	}

	if !broadcast.HasChannel(channelID) {
		return ErrChannelNotOwned
	}

	previous := broadcast.CurrentChannelID
	broadcast.CurrentChannelID = channelID
	if err := s.changed(); err != nil {
		broadcast.CurrentChannelID = previous
		return err
	}

	return nil
}

func (s *MemoryStore) changed() error {
	if s.onChange == nil {
		return nil
	}

	return s.onChange()
}

func cloneBroadcast(broadcast *Broadcast) Broadcast {
	result := *broadcast
	result.Channels = slices.Clone(broadcast.Channels)
	return result
}
