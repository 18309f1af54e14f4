package session

import (
	"encoding/json"

	"VibeLock/core/player"
)

// MessageType 消息类型
type MessageType string

const (
	// 系统消息
	MsgTypeWelcome MessageType = "session" // 连接建立后下发会话信息
	MsgTypeError   MessageType = "error"
	MsgTypePing    MessageType = "ping"
	MsgTypePong    MessageType = "pong"

	// 客户端 -> 服务端：播放控制
	MsgTypePlay    MessageType = "play"
	MsgTypeToggle  MessageType = "toggle"
	MsgTypePause   MessageType = "pause"
	MsgTypeResume  MessageType = "resume"
	MsgTypeShuffle MessageType = "shuffle"
	MsgTypeRepeat  MessageType = "repeat"
	MsgTypeNext    MessageType = "next"
	MsgTypePrev    MessageType = "prev"
	MsgTypeSeek    MessageType = "seek"

	// 播放端 -> 服务端
	MsgTypeAudioEvent  MessageType = "audio_event"  // <audio> 元素事件
	MsgTypeMediaAction MessageType = "media_action" // 系统媒体键

	// 服务端 -> 播放端：音频指令
	MsgTypeLoad       MessageType = "load"
	MsgTypeAudioPlay  MessageType = "audio_play"
	MsgTypeAudioPause MessageType = "audio_pause"
	MsgTypeAudioSeek  MessageType = "audio_seek"

	// 服务端 -> 所有客户端
	MsgTypeState      MessageType = "state"
	MsgTypeNowPlaying MessageType = "now_playing"
)

// 客户端角色
const (
	RolePlayer = "player" // 持有 <audio> 元素的页面
	RoleRemote = "remote" // 只发控制指令、展示状态
)

// 播放来源
const (
	SourceQueue     = "queue"
	SourceFeed      = "feed"
	SourceDiscover  = "discover"
	SourceArtist    = "artist"
	SourceDashboard = "dashboard"
)

// 媒体键动作
const (
	ActionPlay          = "play"
	ActionPause         = "pause"
	ActionNextTrack     = "nexttrack"
	ActionPreviousTrack = "previoustrack"
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// PlayData selects a track. The list comes from Tracks, or from a catalog
// page named by Source; with neither the catalog's default list is used.
type PlayData struct {
	TrackID  string         `json:"trackId,omitempty"`
	Track    *player.Track  `json:"track,omitempty"`
	Tracks   []player.Track `json:"tracks,omitempty"`
	Source   string         `json:"source,omitempty"`
	Query    string         `json:"query,omitempty"`
	ArtistID string         `json:"artistId,omitempty"`
}

// SeekData 跳转，position 必填
type SeekData struct {
	Position *float64 `json:"position"`
}

// MediaActionData 媒体键
type MediaActionData struct {
	Action string `json:"action"`
}

// WelcomeData 连接建立时下发
type WelcomeData struct {
	SessionID string `json:"sessionId"`
	Wallet    string `json:"wallet,omitempty"`
	Role      string `json:"role"`
}

// ErrorData 错误消息
type ErrorData struct {
	Message string `json:"message"`
}

// newMessage 构造消息，payload 为 nil 时不带 data
func newMessage(t MessageType, sessionID string, payload interface{}) (*WSMessage, error) {
	msg := &WSMessage{Type: t, SessionID: sessionID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return msg, nil
}

// decodeData 兼容前端把 data 双重序列化成字符串的情况
func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) > 0 && raw[0] == '"' {
		var decoded string
		if err := json.Unmarshal(raw, &decoded); err == nil {
			raw = json.RawMessage(decoded)
		}
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	return json.Unmarshal(raw, v)
}
