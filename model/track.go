package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"VibeLock/core/player"
)

// CollaboratorList 合作者列表，以 JSON 列存储
type CollaboratorList []player.Collaborator

// Scan 实现 sql.Scanner 接口
func (c *CollaboratorList) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*c = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*c = nil
		return nil
	}
	return json.Unmarshal(bytes, c)
}

// Value 实现 driver.Valuer 接口
func (c CollaboratorList) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Track 曲库中的 song coin
type Track struct {
	ID            string           `json:"id" gorm:"primaryKey;size:64"` // coin address
	Title         string           `json:"title" gorm:"size:200;not null"`
	Artist        string           `json:"artist" gorm:"size:100;not null"`
	ArtistID      string           `json:"artistId" gorm:"size:64;index"`
	CoinSymbol    string           `json:"coinSymbol" gorm:"size:20"`
	MediaURL      string           `json:"mediaUrl" gorm:"size:512;not null"`
	PremiumAudio  string           `json:"premiumAudio,omitempty" gorm:"size:512"`
	ArtworkURL    string           `json:"artworkUrl,omitempty" gorm:"size:512"`
	Duration      float64          `json:"duration"`
	Collaborators CollaboratorList `json:"collaborators,omitempty" gorm:"type:json"`
	State         int8             `json:"state" gorm:"default:1;index"` // 0=下架, 1=正常
	CreatedAt     time.Time        `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// ToPlayer converts the row into the value the playback controller works with.
func (t Track) ToPlayer() player.Track {
	return player.Track{
		ID:            t.ID,
		Title:         t.Title,
		Artist:        t.Artist,
		MediaURL:      t.MediaURL,
		PremiumAudio:  t.PremiumAudio,
		ArtworkURL:    t.ArtworkURL,
		ArtistID:      t.ArtistID,
		CoinSymbol:    t.CoinSymbol,
		Duration:      t.Duration,
		Collaborators: []player.Collaborator(t.Collaborators),
	}
}

// TrackFromPlayer 反向转换，用于导入曲库
func TrackFromPlayer(p player.Track) Track {
	return Track{
		ID:            p.ID,
		Title:         p.Title,
		Artist:        p.Artist,
		ArtistID:      p.ArtistID,
		CoinSymbol:    p.CoinSymbol,
		MediaURL:      p.MediaURL,
		PremiumAudio:  p.PremiumAudio,
		ArtworkURL:    p.ArtworkURL,
		Duration:      p.Duration,
		Collaborators: CollaboratorList(p.Collaborators),
		State:         TrackStateNormal,
	}
}

const (
	TrackStateRemoved int8 = 0
	TrackStateNormal  int8 = 1
)
