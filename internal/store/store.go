// Package store is the durable side of the relay: which broadcasts exist, who may
// publish to them and which channel each one currently serves.
package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	ErrNotFound        = errors.New("broadcast not found")
	ErrInvalidToken    = errors.New("broadcast token is invalid")
	ErrChannelNotOwned = errors.New("channel does not belong to broadcast")
)

type (
	Channel struct {
		ID          string    `json:"id" yaml:"id"`
		Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
		Description string    `json:"description,omitempty" yaml:"description,omitempty"`
		CreatedAt   time.Time `json:"createdAt" yaml:"createdAt,omitempty"`
	}

	Owner struct {
		ID       string `json:"id" yaml:"id,omitempty"`
		Approved bool   `json:"approved" yaml:"approved"`
		Admin    bool   `json:"admin" yaml:"admin"`
	}

	Broadcast struct {
		ID               string    `json:"id" yaml:"id"`
		IsAvailable      bool      `json:"isAvailable" yaml:"isAvailable"`
		Owner            Owner     `json:"owner" yaml:"owner"`
		CurrentChannelID string    `json:"currentChannelId" yaml:"currentChannelId,omitempty"`
		Channels         []Channel `json:"channels" yaml:"channels"`
	}

	Token struct {
		Token       string    `yaml:"token"`
		BroadcastID string    `yaml:"broadcastId"`
		Name        string    `yaml:"name,omitempty"`
		LastUsedAt  time.Time `yaml:"lastUsedAt,omitempty"`
	}
)

// TokenValidator resolves a publisher's bearer token to the broadcast it may publish to
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (broadcastID string, err error)
}

type BroadcastStore interface {
	// GetBroadcast returns ErrNotFound for unknown ids. A broadcast is always
	// returned with a current channel.
	GetBroadcast(ctx context.Context, broadcastID string) (Broadcast, error)

	// SetCurrentChannel persists the channel viewers are served on. It returns
	// ErrChannelNotOwned when the channel belongs to another broadcast.
	SetCurrentChannel(ctx context.Context, broadcastID string, channelID string) error
}

// Approved reports whether the owner may go live
func (b Broadcast) Approved() bool {
	return b.Owner.Approved || b.Owner.Admin
}

func (b Broadcast) HasChannel(channelID string) bool {
	return slices.ContainsFunc(b.Channels, func(channel Channel) bool {
		return channel.ID == channelID
	})
}
