// Package manager is the registry of live broadcasts, reachable by broadcast id
// and by the channel each broadcast currently serves.
package manager

import (
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/webrtc/sessions/broadcast"
)

// SessionManager keeps the primary map and the channel index under one lock so a
// reader never sees one updated without the other. Sessions are complete when
// they are put; nothing here calls into the media engine.
type SessionManager struct {
	sessionsLock sync.RWMutex
	sessions     map[string]*broadcast.Session
	channels     map[string]string
}

func New() *SessionManager {
	return &SessionManager{
		sessions: map[string]*broadcast.Session{},
		channels: map[string]string{},
	}
}

// Put registers the session under the broadcast id and returns the session it replaced, if any
func (manager *SessionManager) Put(broadcastID string, session *broadcast.Session) (previous *broadcast.Session, replaced bool) {
	manager.sessionsLock.Lock()
	defer manager.sessionsLock.Unlock()

	previous, replaced = manager.sessions[broadcastID]
	if replaced {
		manager.unindex(broadcastID, previous.ActiveChannelID())
	}

	manager.sessions[broadcastID] = session
	manager.channels[session.ActiveChannelID()] = broadcastID

	log.Debug().
		Str("broadcastId", broadcastID).
		Str("channelId", session.ActiveChannelID()).
		Bool("replaced", replaced).
		Msg("SessionManager.Put")

	return previous, replaced
}

func (manager *SessionManager) Get(broadcastID string) (*broadcast.Session, bool) {
	manager.sessionsLock.RLock()
	defer manager.sessionsLock.RUnlock()

	session, ok := manager.sessions[broadcastID]
	return session, ok
}

// FindByActiveChannel resolves the live session currently serving the channel
func (manager *SessionManager) FindByActiveChannel(channelID string) (*broadcast.Session, bool) {
	manager.sessionsLock.RLock()
	defer manager.sessionsLock.RUnlock()

	broadcastID, ok := manager.channels[channelID]
	if !ok {
		return nil, false
	}

	session, ok := manager.sessions[broadcastID]
	return session, ok
}

func (manager *SessionManager) Remove(broadcastID string) (*broadcast.Session, bool) {
	manager.sessionsLock.Lock()
	defer manager.sessionsLock.Unlock()

	session, ok := manager.sessions[broadcastID]
	if !ok {
		return nil, false
	}

	delete(manager.sessions, broadcastID)
	manager.unindex(broadcastID, session.ActiveChannelID())

	log.Debug().Str("broadcastId", broadcastID).Msg("SessionManager.Remove")
	return session, true
}

// RemoveIf removes the entry only while it still is the given session. A late
// cleanup of a replaced session leaves its successor alone.
func (manager *SessionManager) RemoveIf(broadcastID string, session *broadcast.Session) bool {
	manager.sessionsLock.Lock()
	defer manager.sessionsLock.Unlock()

	if current, ok := manager.sessions[broadcastID]; !ok || current != session {
		return false
	}

	delete(manager.sessions, broadcastID)
	manager.unindex(broadcastID, session.ActiveChannelID())

	log.Debug().Str("broadcastId", broadcastID).Msg("SessionManager.RemoveIf")
	return true
}

// SwitchChannel points the live session at another channel. It reports false when
// the broadcast is not live.
func (manager *SessionManager) SwitchChannel(broadcastID string, channelID string) bool {
	manager.sessionsLock.Lock()
	defer manager.sessionsLock.Unlock()

	session, ok := manager.sessions[broadcastID]
	if !ok {
		return false
	}

	manager.unindex(broadcastID, session.ActiveChannelID())
	session.SetActiveChannelID(channelID)
	manager.channels[channelID] = broadcastID

	log.Debug().Str("broadcastId", broadcastID).Str("channelId", channelID).Msg("SessionManager.SwitchChannel")
	return true
}

// Sessions returns the live sessions ordered by broadcast id
func (manager *SessionManager) Sessions() []*broadcast.Session {
	manager.sessionsLock.RLock()
	copiedSessions := maps.Clone(manager.sessions)
	manager.sessionsLock.RUnlock()

	sessions := make([]*broadcast.Session, 0, len(copiedSessions))
	for _, broadcastID := range slices.Sorted(maps.Keys(copiedSessions)) {
		sessions = append(sessions, copiedSessions[broadcastID])
	}

	return sessions
}

// Caller holds sessionsLock
func (manager *SessionManager) unindex(broadcastID string, channelID string) {
	if manager.channels[channelID] == broadcastID {
		delete(manager.channels, channelID)
	}
}
