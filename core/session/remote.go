package session

import (
	"sync"

	"VibeLock/core/player"
	"VibeLock/logger"
)

// RemoteAudio forwards audio commands to the session's player-role client,
// which drives the real <audio> element and reports back with audio_event.
type RemoteAudio struct {
	hub       *Hub
	sessionID string
}

// NewRemoteAudio binds an Audio to one session.
func NewRemoteAudio(hub *Hub, sessionID string) *RemoteAudio {
	return &RemoteAudio{hub: hub, sessionID: sessionID}
}

func (a *RemoteAudio) Load(src player.Source) {
	a.send(MsgTypeLoad, src)
}

func (a *RemoteAudio) Play() {
	a.send(MsgTypeAudioPlay, nil)
}

func (a *RemoteAudio) Pause() {
	a.send(MsgTypeAudioPause, nil)
}

func (a *RemoteAudio) Seek(seconds float64) {
	a.send(MsgTypeAudioSeek, SeekData{Position: &seconds})
}

func (a *RemoteAudio) send(t MessageType, payload interface{}) {
	msg, err := newMessage(t, a.sessionID, payload)
	if err != nil {
		logger.Error("encode audio command failed", logger.String("type", string(t)), logger.ErrorField(err))
		return
	}
	n, err := a.hub.SendToRole(a.sessionID, RolePlayer, msg)
	if err != nil {
		logger.Error("send audio command failed", logger.String("type", string(t)), logger.ErrorField(err))
		return
	}
	if n == 0 {
		// 播放端未连接，重连时由 Manager.Attach 补发
		logger.Debug("no player connected",
			logger.String("session", a.sessionID),
			logger.String("type", string(t)))
	}
}

// RemoteMediaSession pushes now-playing metadata to every client of the
// session and routes their media_action messages to the controller.
type RemoteMediaSession struct {
	hub       *Hub
	sessionID string

	mu       sync.RWMutex
	handlers player.ActionHandlers
	last     player.NowPlaying
}

// NewRemoteMediaSession binds a MediaSession to one session.
func NewRemoteMediaSession(hub *Hub, sessionID string) *RemoteMediaSession {
	return &RemoteMediaSession{hub: hub, sessionID: sessionID}
}

func (m *RemoteMediaSession) Update(np player.NowPlaying) {
	m.mu.Lock()
	m.last = np
	m.mu.Unlock()

	msg, err := newMessage(MsgTypeNowPlaying, m.sessionID, np)
	if err != nil {
		return
	}
	if err := m.hub.Broadcast(m.sessionID, msg, ""); err != nil {
		logger.Warn("broadcast now playing failed", logger.ErrorField(err))
	}
}

func (m *RemoteMediaSession) SetActionHandlers(h player.ActionHandlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()
}

// NowPlaying 最近一次推送的元数据
func (m *RemoteMediaSession) NowPlaying() player.NowPlaying {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Dispatch runs the handler registered for action. Unknown actions and
// missing handlers are ignored; the return value reports whether one ran.
func (m *RemoteMediaSession) Dispatch(action string) bool {
	m.mu.RLock()
	h := m.handlers
	m.mu.RUnlock()

	var fn func()
	switch action {
	case ActionPlay:
		fn = h.Play
	case ActionPause:
		fn = h.Pause
	case ActionNextTrack:
		fn = h.NextTrack
	case ActionPreviousTrack:
		fn = h.PreviousTrack
	}
	if fn == nil {
		return false
	}
	fn()
	return true
}
