package player

import "context"

// Track 曲库中的一首歌（song coin），对播放器只读
type Track struct {
	ID           string `json:"id"` // coin address
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	MediaURL     string `json:"mediaUrl"`               // 预览流
	PremiumAudio string `json:"premiumAudio,omitempty"` // 完整音质流，未上传时为空
	ArtworkURL   string `json:"artworkUrl,omitempty"`

	ArtistID      string         `json:"artistId,omitempty"`
	CoinSymbol    string         `json:"coinSymbol,omitempty"`
	Duration      float64        `json:"duration,omitempty"` // 秒
	Collaborators []Collaborator `json:"collaborators,omitempty"`
}

// Collaborator 参与分成的合作者
type Collaborator struct {
	Wallet string  `json:"wallet"`
	Name   string  `json:"name,omitempty"`
	Role   string  `json:"role,omitempty"` // producer, vocalist, ...
	Share  float64 `json:"share"`          // 收益分成百分比
}

// RepeatMode defines the repeat behavior.
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatAll  RepeatMode = "all"
	RepeatOne  RepeatMode = "one"
)

// Next returns the mode that follows m in the none → all → one cycle.
// Unknown modes reset to none.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}

// Valid reports whether m is one of the known modes.
func (m RepeatMode) Valid() bool {
	return m == RepeatNone || m == RepeatAll || m == RepeatOne
}

// Source 下发给音频元素的加载指令
type Source struct {
	Seq     uint64 `json:"seq"` // 加载序号，事件回传时用于丢弃过期事件
	TrackID string `json:"trackId"`
	URL     string `json:"url"`
}

// AudioEventType 音频元素上报的事件类型
type AudioEventType string

const (
	EventLoadStart      AudioEventType = "loadstart"
	EventCanPlay        AudioEventType = "canplay"
	EventLoadedMetadata AudioEventType = "loadedmetadata"
	EventTimeUpdate     AudioEventType = "timeupdate"
	EventError          AudioEventType = "error"
	EventEnded          AudioEventType = "ended"
)

// AudioEvent is a discrete event fired by the audio primitive for the load
// identified by Seq and TrackID.
type AudioEvent struct {
	Type        AudioEventType `json:"type"`
	Seq         uint64         `json:"seq"`
	TrackID     string         `json:"trackId"`
	CurrentTime float64        `json:"currentTime,omitempty"`
	Duration    float64        `json:"duration,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// Audio is the play/pause/seek primitive. Commands are fire-and-forget;
// results come back through Controller.HandleAudioEvent.
type Audio interface {
	Load(src Source)
	Play()
	Pause()
	Seek(seconds float64)
}

// LockChecker reports whether wallet currently owns (has unlocked) the track.
type LockChecker interface {
	IsUnlocked(ctx context.Context, wallet, trackID string) (bool, error)
}

// Catalog supplies the default track list used when play is called
// without an explicit list.
type Catalog interface {
	DefaultTracks(ctx context.Context) ([]Track, error)
}

// URLSigner turns a storage locator into a URL the audio element can fetch.
type URLSigner interface {
	Sign(ctx context.Context, locator string) (string, error)
}

// PlaybackState 系统媒体会话的播放状态
type PlaybackState string

const (
	PlaybackNone    PlaybackState = "none"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
)

// NowPlaying 推送给操作系统“正在播放”界面的元数据
type NowPlaying struct {
	Title         string        `json:"title"`
	Artist        string        `json:"artist"`
	Artwork       string        `json:"artwork,omitempty"`
	PlaybackState PlaybackState `json:"playbackState"`
}

// ActionHandlers are the media-session actions the controller answers to.
type ActionHandlers struct {
	Play          func()
	Pause         func()
	NextTrack     func()
	PreviousTrack func()
}

// MediaSession is a one-way notification sink for the OS now-playing UI.
type MediaSession interface {
	Update(np NowPlaying)
	SetActionHandlers(h ActionHandlers)
}
