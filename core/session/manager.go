package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"VibeLock/catalog"
	"VibeLock/core/player"
	"VibeLock/logger"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTrackNotFound   = errors.New("track not found")
	ErrForbidden       = errors.New("session belongs to another wallet")
	ErrUnknownOp       = errors.New("unknown operation")
	ErrBadPayload      = errors.New("bad payload")
)

// SnapshotStore 快照镜像，实现见 cache.SessionCache
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, sessionID string, snap player.Snapshot) error
	RemoveSession(ctx context.Context, sessionID, wallet string) error
}

// Prefetcher warms the lock predicate for a whole playlist.
type Prefetcher interface {
	Prefetch(ctx context.Context, wallet string, trackIDs []string) (map[string]bool, error)
}

// Session 一个浏览器播放器对应的播放会话
type Session struct {
	ID         string
	Wallet     string
	CreatedAt  time.Time
	Controller *player.Controller

	media       *RemoteMediaSession
	unsubscribe func()
}

// Config 会话管理器依赖
type Config struct {
	Locks      player.LockChecker
	Catalog    *catalog.Service // 可为 nil
	Signer     player.URLSigner // 可为 nil
	Store      SnapshotStore    // 可为 nil
	Prefetcher Prefetcher       // 可为 nil
	Rand       player.Rand      // 测试用，nil 时使用默认随机源
}

// Manager 会话业务管理器
type Manager struct {
	hub *Hub
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager and closes sessions whose last client left.
func NewManager(hub *Hub, cfg Config) *Manager {
	m := &Manager{
		hub:      hub,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
	hub.OnEmpty(func(id string) { m.Close(context.Background(), id) })
	return m
}

// GetHub 获取 Hub 实例
func (m *Manager) GetHub() *Hub {
	return m.hub
}

// Open returns the session with id, creating it when it does not exist.
// An empty id allocates a new one.
func (m *Manager) Open(ctx context.Context, id, wallet string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if s, ok := m.sessions[id]; ok {
			if s.Wallet != wallet {
				return nil, ErrForbidden
			}
			return s, nil
		}
	} else {
		id = uuid.NewString()
	}

	media := NewRemoteMediaSession(m.hub, id)
	opts := []player.Option{
		player.WithMediaSession(media),
		player.WithWallet(wallet),
	}
	if m.cfg.Catalog != nil {
		opts = append(opts, player.WithCatalog(m.cfg.Catalog))
	}
	if m.cfg.Signer != nil {
		opts = append(opts, player.WithSigner(m.cfg.Signer))
	}
	if m.cfg.Rand != nil {
		opts = append(opts, player.WithRand(m.cfg.Rand))
	}

	s := &Session{
		ID:         id,
		Wallet:     wallet,
		CreatedAt:  time.Now(),
		Controller: player.NewController(NewRemoteAudio(m.hub, id), m.cfg.Locks, opts...),
		media:      media,
	}
	s.unsubscribe = s.Controller.Subscribe(func(snap player.Snapshot) {
		m.publish(s, snap)
	})
	m.sessions[id] = s

	logger.Info("session opened",
		logger.String("session", id),
		logger.String("wallet", wallet))
	return s, nil
}

// Get 获取会话
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Authorize 获取会话并校验归属
func (m *Manager) Authorize(id, wallet string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Wallet != wallet {
		return nil, ErrForbidden
	}
	return s, nil
}

// Close drops a session that has no connected clients left.
func (m *Manager) Close(ctx context.Context, id string) {
	if m.hub.ClientCount(id) > 0 {
		return
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.unsubscribe()
	if m.cfg.Store != nil {
		if err := m.cfg.Store.RemoveSession(ctx, id, s.Wallet); err != nil {
			logger.Warn("remove session snapshot failed",
				logger.String("session", id),
				logger.ErrorField(err))
		}
	}
	logger.Info("session closed", logger.String("session", id))
}

// Count 当前会话数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// OnBalanceChanged re-resolves the stream of every session owned by wallet
// so a purchase or sale swaps preview and premium audio in place.
func (m *Manager) OnBalanceChanged(wallet string) {
	m.mu.RLock()
	var affected []*Session
	for _, s := range m.sessions {
		if s.Wallet == wallet {
			affected = append(affected, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range affected {
		s.Controller.RefreshStream(context.Background())
	}
}

// Attach 客户端连上后下发会话信息与当前状态；播放端重连时补发当前流
func (m *Manager) Attach(client *Client) {
	s, err := m.Get(client.SessionID)
	if err != nil {
		return
	}

	if msg, err := newMessage(MsgTypeWelcome, s.ID, WelcomeData{SessionID: s.ID, Wallet: s.Wallet, Role: client.Role}); err == nil {
		client.SendMessage(msg)
	}

	snap := s.Controller.Snapshot()
	if msg, err := newMessage(MsgTypeState, s.ID, snap); err == nil {
		client.SendMessage(msg)
	}

	if client.Role == RolePlayer && snap.CurrentTrack != nil && snap.StreamURL != "" {
		src := player.Source{Seq: snap.Seq, TrackID: snap.CurrentTrack.ID, URL: snap.StreamURL}
		if msg, err := newMessage(MsgTypeLoad, s.ID, src); err == nil {
			client.SendMessage(msg)
		}
		if snap.IsPlaying {
			if msg, err := newMessage(MsgTypeAudioPlay, s.ID, nil); err == nil {
				client.SendMessage(msg)
			}
		}
	}
}

// publish 快照广播给会话内所有客户端并镜像到 Redis
func (m *Manager) publish(s *Session, snap player.Snapshot) {
	msg, err := newMessage(MsgTypeState, s.ID, snap)
	if err != nil {
		logger.Error("encode snapshot failed", logger.ErrorField(err))
		return
	}
	if err := m.hub.Broadcast(s.ID, msg, ""); err != nil {
		logger.Warn("broadcast snapshot failed", logger.ErrorField(err))
	}

	if m.cfg.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.cfg.Store.SaveSnapshot(ctx, s.ID, snap); err != nil {
			logger.Warn("save snapshot failed",
				logger.String("session", s.ID),
				logger.ErrorField(err))
		}
	}
}

// ========== 指令处理 ==========

// HandleMessage 处理 WebSocket 消息
func (m *Manager) HandleMessage(ctx context.Context, client *Client, msg *WSMessage) {
	s, err := m.Get(client.SessionID)
	if err != nil {
		m.replyError(client, err)
		return
	}

	switch msg.Type {
	case MsgTypeAudioEvent:
		if client.Role != RolePlayer {
			logger.Debug("audio event from non-player client ignored",
				logger.String("session", s.ID))
			return
		}
		var ev player.AudioEvent
		if err := decodeData(msg.Data, &ev); err != nil {
			m.replyError(client, fmt.Errorf("%w: %v", ErrBadPayload, err))
			return
		}
		s.Controller.HandleAudioEvent(ctx, ev)

	case MsgTypeMediaAction:
		var data MediaActionData
		if err := decodeData(msg.Data, &data); err != nil {
			m.replyError(client, fmt.Errorf("%w: %v", ErrBadPayload, err))
			return
		}
		if !s.media.Dispatch(data.Action) {
			logger.Debug("unhandled media action", logger.String("action", data.Action))
		}

	default:
		if err := m.Apply(ctx, s, string(msg.Type), msg.Data); err != nil {
			m.replyError(client, err)
		}
	}
}

// Apply runs one control operation against a session. It backs both the
// WebSocket protocol and the REST endpoints.
func (m *Manager) Apply(ctx context.Context, s *Session, op string, data []byte) error {
	c := s.Controller

	switch MessageType(op) {
	case MsgTypePlay:
		var d PlayData
		if err := decodeData(data, &d); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		track, list, err := m.resolvePlay(ctx, s, d)
		if err != nil {
			return err
		}
		m.prefetch(s, track, list)
		c.Play(ctx, track, list)

	case MsgTypeToggle:
		c.TogglePlayPause()
	case MsgTypePause:
		c.Pause()
	case MsgTypeResume:
		c.Resume()
	case MsgTypeShuffle:
		c.ShuffleToggle()
	case MsgTypeRepeat:
		c.RepeatCycle()
	case MsgTypeNext:
		c.Next(ctx)
	case MsgTypePrev:
		c.Previous(ctx)

	case MsgTypeSeek:
		var d SeekData
		if err := decodeData(data, &d); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if d.Position == nil {
			return fmt.Errorf("%w: position required", ErrBadPayload)
		}
		c.Seek(*d.Position)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
	return nil
}

// resolvePlay 解析要播放的曲目与播放列表；列表为 nil 表示交给控制器取默认列表
func (m *Manager) resolvePlay(ctx context.Context, s *Session, d PlayData) (player.Track, []player.Track, error) {
	list, err := m.resolveList(ctx, s, d)
	if err != nil {
		return player.Track{}, nil, err
	}

	if d.Track != nil {
		return *d.Track, list, nil
	}
	if d.TrackID == "" {
		return player.Track{}, nil, fmt.Errorf("%w: trackId or track required", ErrBadPayload)
	}

	candidates := list
	if candidates == nil {
		candidates = s.Controller.Snapshot().Playlist
		if m.cfg.Catalog != nil {
			if feed, err := m.cfg.Catalog.DefaultTracks(ctx); err == nil {
				candidates = append(feed, candidates...)
			}
		}
	}
	for _, t := range candidates {
		if t.ID == d.TrackID {
			return t, list, nil
		}
	}
	return player.Track{}, nil, fmt.Errorf("%w: %s", ErrTrackNotFound, d.TrackID)
}

func (m *Manager) resolveList(ctx context.Context, s *Session, d PlayData) ([]player.Track, error) {
	if d.Source == "" {
		if len(d.Tracks) == 0 {
			return nil, nil
		}
		return d.Tracks, nil
	}
	if d.Source == SourceQueue {
		return s.Controller.Snapshot().Playlist, nil
	}

	svc := m.cfg.Catalog
	if svc == nil {
		return nil, fmt.Errorf("%w: catalog unavailable", ErrBadPayload)
	}
	switch d.Source {
	case SourceFeed:
		return svc.Feed(ctx)
	case SourceDiscover:
		return svc.Discover(ctx, d.Query)
	case SourceArtist:
		return svc.Artist(ctx, d.ArtistID)
	case SourceDashboard:
		holdings, err := svc.Dashboard(ctx, s.Wallet)
		if err != nil {
			return nil, err
		}
		return catalog.Tracks(holdings), nil
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrBadPayload, d.Source)
	}
}

// prefetch 后台预热整张歌单的解锁状态，下一首切换时命中缓存
func (m *Manager) prefetch(s *Session, track player.Track, list []player.Track) {
	if m.cfg.Prefetcher == nil || s.Wallet == "" || len(list) == 0 {
		return
	}
	ids := make([]string, 0, len(list)+1)
	ids = append(ids, track.ID)
	for _, t := range list {
		if t.ID != track.ID {
			ids = append(ids, t.ID)
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := m.cfg.Prefetcher.Prefetch(ctx, s.Wallet, ids); err != nil {
			logger.Warn("unlock prefetch failed",
				logger.String("session", s.ID),
				logger.ErrorField(err))
		}
	}()
}

func (m *Manager) replyError(client *Client, err error) {
	msg, encErr := newMessage(MsgTypeError, client.SessionID, ErrorData{Message: err.Error()})
	if encErr != nil {
		return
	}
	client.SendMessage(msg)
}
