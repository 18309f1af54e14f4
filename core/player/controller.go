package player

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"VibeLock/logger"
)

// Snapshot is an immutable view of a controller's state handed to observers.
type Snapshot struct {
	Session
	Wallet    string  `json:"wallet,omitempty"`
	Version   uint64  `json:"version"`
	Seq       uint64  `json:"seq"`
	IsLoading bool    `json:"isLoading"`
	LoadError string  `json:"loadError,omitempty"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	StreamURL string  `json:"streamUrl,omitempty"`
	Unlocked  bool    `json:"unlocked"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithCatalog sets the collaborator that supplies the default track list.
func WithCatalog(catalog Catalog) Option {
	return func(c *Controller) { c.catalog = catalog }
}

// WithMediaSession sets the OS now-playing sink.
func WithMediaSession(media MediaSession) Option {
	return func(c *Controller) { c.media = media }
}

// WithSigner sets the locator signer applied to every resolved stream.
func WithSigner(signer URLSigner) Option {
	return func(c *Controller) { c.signer = signer }
}

// WithRand replaces the shuffle randomness source.
func WithRand(rng Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// WithWallet sets the initial wallet identity.
func WithWallet(wallet string) Option {
	return func(c *Controller) { c.wallet = wallet }
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Controller owns one playback session: which track plays, in what order
// under shuffle and repeat, and which stream the audio element loads.
//
// All mutations are serialised by mu. Audio commands are issued while mu is
// held so the audio element sees them in state order; collaborator I/O and
// observer callbacks run without it. Every emitted snapshot carries a
// version, and observers never receive a version older than one already
// delivered.
type Controller struct {
	mu sync.Mutex

	state  Session
	wallet string

	// seq identifies the current load; events and resolutions carrying an
	// older seq belong to a superseded track.
	seq         uint64
	loading     bool
	loadErr     string
	position    float64
	duration    float64
	pendingSeek float64
	streamURL   string
	unlocked    bool

	audio   Audio
	locks   LockChecker
	catalog Catalog
	media   MediaSession
	signer  URLSigner
	rng     Rand

	subs    []subscriber
	nextSub int

	version   uint64     // 每次发布快照递增
	notifyMu  sync.Mutex // 串行化快照投递
	delivered uint64     // 已投递的最新版本，notifyMu 保护
	shown     NowPlaying // 最近一次推给媒体会话的内容，notifyMu 保护
}

// NewController creates a controller in the neutral state.
func NewController(audio Audio, locks LockChecker, opts ...Option) *Controller {
	c := &Controller{
		state: NewSession(),
		audio: audio,
		locks: locks,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.media != nil {
		c.media.SetActionHandlers(ActionHandlers{
			Play:          c.Resume,
			Pause:         c.Pause,
			NextTrack:     func() { c.Next(context.Background()) },
			PreviousTrack: func() { c.Previous(context.Background()) },
		})
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive state changes in order. A snapshot
// superseded before its delivery is skipped, so the last one fn receives is
// always the current state. fn must not mutate the controller. The returned
// function removes the subscription.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// ========== 播放控制 ==========

// Play selects track. When trackList is nil the catalog's default list is
// used, falling back to the current playlist if the catalog is unavailable.
// Selecting the current track again pauses or resumes it.
func (c *Controller) Play(ctx context.Context, track Track, trackList []Track) {
	if trackList == nil && c.catalog != nil {
		tracks, err := c.catalog.DefaultTracks(ctx)
		if err != nil {
			logger.Warn("获取默认曲目列表失败，沿用当前播放列表",
				logger.String("trackId", track.ID),
				logger.ErrorField(err))
		} else {
			trackList = tracks
		}
	}

	c.transition(ctx, func(s Session) (Session, bool) {
		return s.Play(track, trackList, c.rng)
	})
}

// TogglePlayPause pauses or resumes the current track.
func (c *Controller) TogglePlayPause() {
	c.transition(context.Background(), func(s Session) (Session, bool) {
		return s.Toggle(), false
	})
}

// Pause stops playback of the current track, keeping its position.
func (c *Controller) Pause() {
	c.setPlaying(false)
}

// Resume continues the current track.
func (c *Controller) Resume() {
	c.setPlaying(true)
}

func (c *Controller) setPlaying(playing bool) {
	c.transition(context.Background(), func(s Session) (Session, bool) {
		if s.IsPlaying == playing {
			return s, false
		}
		return s.Toggle(), false
	})
}

// ShuffleToggle engages or releases shuffle without interrupting the
// current track.
func (c *Controller) ShuffleToggle() {
	c.transition(context.Background(), func(s Session) (Session, bool) {
		return s.ShuffleToggle(c.rng), false
	})
}

// RepeatCycle advances the repeat mode none → all → one → none.
func (c *Controller) RepeatCycle() {
	c.transition(context.Background(), func(s Session) (Session, bool) {
		return s.RepeatCycle(), false
	})
}

// Next advances to the following track of the active sequence.
func (c *Controller) Next(ctx context.Context) {
	c.transition(ctx, Session.Next)
}

// Previous steps back, wrapping to the last track.
func (c *Controller) Previous(ctx context.Context) {
	c.transition(ctx, Session.Previous)
}

// OnTrackEnded applies the natural end of the current stream.
func (c *Controller) OnTrackEnded(ctx context.Context) {
	c.transition(ctx, Session.Ended)
}

// endedFor applies an ended event only while its load is still current.
// transition runs the check under mu, so a skip landing between the event
// and this call wins.
func (c *Controller) endedFor(seq uint64, trackID string) func(Session) (Session, bool) {
	return func(s Session) (Session, bool) {
		if seq != c.seq || trackID != s.CurrentID() {
			return s, false
		}
		return s.Ended()
	}
}

// Seek moves the playback position of the current track.
func (c *Controller) Seek(seconds float64) {
	c.mu.Lock()
	if c.state.CurrentTrack == nil {
		c.mu.Unlock()
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if c.duration > 0 && seconds > c.duration {
		seconds = c.duration
	}
	c.position = seconds
	c.audio.Seek(seconds)
	snap, subs := c.emitLocked()
	c.mu.Unlock()

	c.notify(snap, subs)
}

// SetWallet switches the active wallet and re-resolves the current stream.
func (c *Controller) SetWallet(ctx context.Context, wallet string) {
	c.mu.Lock()
	if c.wallet == wallet {
		c.mu.Unlock()
		return
	}
	c.wallet = wallet
	c.mu.Unlock()

	c.RefreshStream(ctx)
}

// RefreshStream re-evaluates the lock predicate for the current track and,
// if the resolved stream changed, swaps it in at the current position.
func (c *Controller) RefreshStream(ctx context.Context) {
	c.mu.Lock()
	if c.state.CurrentTrack == nil {
		c.mu.Unlock()
		return
	}
	track, wallet, seq := *c.state.CurrentTrack, c.wallet, c.seq
	c.mu.Unlock()

	url, unlocked := c.resolve(ctx, track, wallet)

	c.mu.Lock()
	if seq != c.seq || c.state.CurrentID() != track.ID {
		c.mu.Unlock()
		return
	}
	if url == c.streamURL && unlocked == c.unlocked {
		c.mu.Unlock()
		return
	}
	c.unlocked = unlocked
	if url != c.streamURL {
		c.seq++
		c.streamURL = url
		c.loading = true
		c.loadErr = ""
		c.pendingSeek = c.position
		c.audio.Load(Source{Seq: c.seq, TrackID: track.ID, URL: url})
		if c.state.IsPlaying {
			c.audio.Play()
		}
		logger.Info("切换音频流",
			logger.String("trackId", track.ID),
			logger.Bool("unlocked", unlocked),
			logger.Float64("resumeAt", c.pendingSeek))
	}
	snap, subs := c.emitLocked()
	c.mu.Unlock()

	c.notify(snap, subs)
}

// ========== 音频事件 ==========

// HandleAudioEvent applies an event reported by the audio element. Events
// for a superseded load are discarded.
func (c *Controller) HandleAudioEvent(ctx context.Context, ev AudioEvent) {
	c.mu.Lock()
	if ev.Seq != c.seq || ev.TrackID != c.state.CurrentID() {
		current := c.state.CurrentID()
		c.mu.Unlock()
		logger.Debug("discarding stale audio event",
			logger.String("type", string(ev.Type)),
			logger.String("eventTrack", ev.TrackID),
			logger.String("currentTrack", current))
		return
	}

	switch ev.Type {
	case EventLoadStart:
		c.loading = true
		c.loadErr = ""
	case EventLoadedMetadata:
		if ev.Duration > 0 {
			c.duration = ev.Duration
		}
	case EventCanPlay:
		c.loading = false
		if c.pendingSeek > 0 {
			c.audio.Seek(c.pendingSeek)
			c.position = c.pendingSeek
			c.pendingSeek = 0
		}
	case EventTimeUpdate:
		changed := int(ev.CurrentTime) != int(c.position)
		c.position = ev.CurrentTime
		if !changed {
			c.mu.Unlock()
			return
		}
	case EventError:
		c.loading = false
		c.loadErr = ev.Message
		if c.loadErr == "" {
			c.loadErr = "stream failed to load"
		}
		logger.Warn("音频流加载失败",
			logger.String("trackId", ev.TrackID),
			logger.String("url", c.streamURL),
			logger.String("message", ev.Message))
	case EventEnded:
		c.mu.Unlock()
		c.transition(ctx, c.endedFor(ev.Seq, ev.TrackID))
		return
	default:
		c.mu.Unlock()
		logger.Debug("unknown audio event", logger.String("type", string(ev.Type)))
		return
	}
	snap, subs := c.emitLocked()
	c.mu.Unlock()

	c.notify(snap, subs)
}

// ========== 内部方法 ==========

type loadRequest struct {
	seq    uint64
	track  Track
	wallet string
}

// transition applies fn to the session and issues the resulting audio
// commands. started asks for the current track to play from the beginning.
func (c *Controller) transition(ctx context.Context, fn func(Session) (Session, bool)) {
	c.mu.Lock()
	prev := c.state
	next, started := fn(prev)
	c.state = next

	var load *loadRequest
	switch {
	case started && next.CurrentID() == prev.CurrentID() && c.streamURL != "":
		// 同一首歌重新开始（单曲循环或单曲列表回绕）
		c.position = 0
		c.pendingSeek = 0
		c.audio.Seek(0)
		c.audio.Play()
	case started && next.CurrentTrack != nil:
		c.seq++
		c.loading = true
		c.loadErr = ""
		c.position = 0
		c.duration = 0
		c.pendingSeek = 0
		c.streamURL = ""
		c.unlocked = false
		load = &loadRequest{seq: c.seq, track: *next.CurrentTrack, wallet: c.wallet}
	case prev.IsPlaying != next.IsPlaying && next.CurrentTrack != nil:
		if next.IsPlaying {
			c.audio.Play()
		} else {
			c.audio.Pause()
		}
	}
	snap, subs := c.emitLocked()
	c.mu.Unlock()

	c.notify(snap, subs)
	if load != nil {
		c.startLoad(ctx, load)
	}
}

// startLoad resolves the stream for req and hands it to the audio element
// unless a newer load has superseded it meanwhile.
func (c *Controller) startLoad(ctx context.Context, req *loadRequest) {
	url, unlocked := c.resolve(ctx, req.track, req.wallet)

	c.mu.Lock()
	if req.seq != c.seq {
		c.mu.Unlock()
		logger.Debug("dropping superseded stream load",
			logger.String("trackId", req.track.ID))
		return
	}
	c.streamURL = url
	c.unlocked = unlocked
	c.audio.Load(Source{Seq: req.seq, TrackID: req.track.ID, URL: url})
	if c.state.IsPlaying {
		c.audio.Play()
	}
	snap, subs := c.emitLocked()
	c.mu.Unlock()

	logger.Debug("stream load issued",
		logger.String("trackId", req.track.ID),
		logger.Bool("unlocked", unlocked))
	c.notify(snap, subs)
}

// resolve applies the stream URL policy for track and wallet.
func (c *Controller) resolve(ctx context.Context, track Track, wallet string) (string, bool) {
	unlocked := false
	if wallet != "" && c.locks != nil {
		ok, err := c.locks.IsUnlocked(ctx, wallet, track.ID)
		if err != nil {
			logger.Warn("解锁状态查询失败，按未解锁处理",
				logger.String("trackId", track.ID),
				logger.String("wallet", wallet),
				logger.ErrorField(err))
		}
		unlocked = err == nil && ok
	}

	locator := StreamLocator(track, unlocked)
	if c.signer == nil || locator == "" {
		return locator, unlocked
	}
	url, err := c.signer.Sign(ctx, locator)
	if err != nil {
		logger.Warn("stream locator signing failed",
			logger.String("trackId", track.ID),
			logger.ErrorField(err))
		return locator, unlocked
	}
	return url, unlocked
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Session:   c.state,
		Wallet:    c.wallet,
		Version:   c.version,
		Seq:       c.seq,
		IsLoading: c.loading,
		LoadError: c.loadErr,
		Position:  c.position,
		Duration:  c.duration,
		StreamURL: c.streamURL,
		Unlocked:  c.unlocked,
	}
}

// emitLocked stamps a new version and captures what notify delivers.
func (c *Controller) emitLocked() (Snapshot, []subscriber) {
	c.version++
	return c.snapshotLocked(), c.subscribersLocked()
}

func (c *Controller) subscribersLocked() []subscriber {
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	return subs
}

func (c *Controller) notify(snap Snapshot, subs []subscriber) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if snap.Version <= c.delivered {
		logger.Debug("skipping superseded snapshot",
			logger.Uint64("version", snap.Version),
			logger.Uint64("delivered", c.delivered))
		return
	}
	c.delivered = snap.Version

	if c.media != nil {
		if np := NowPlayingOf(snap.Session); np != c.shown {
			c.shown = np
			c.media.Update(np)
		}
	}
	for _, s := range subs {
		s.fn(snap)
	}
}

// NowPlayingOf builds the media-session metadata for s.
func NowPlayingOf(s Session) NowPlaying {
	if s.CurrentTrack == nil {
		return NowPlaying{PlaybackState: PlaybackNone}
	}
	state := PlaybackPaused
	if s.IsPlaying {
		state = PlaybackPlaying
	}
	return NowPlaying{
		Title:         s.CurrentTrack.Title,
		Artist:        s.CurrentTrack.Artist,
		Artwork:       s.CurrentTrack.ArtworkURL,
		PlaybackState: state,
	}
}
