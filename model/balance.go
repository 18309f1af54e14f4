package model

import "time"

// CoinBalance 钱包持有某个 song coin 的数量，balance > 0 即视为已解锁
type CoinBalance struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Wallet    string    `json:"wallet" gorm:"size:64;not null;uniqueIndex:uk_wallet_track"`
	TrackID   string    `json:"trackId" gorm:"size:64;not null;uniqueIndex:uk_wallet_track;index"`
	Balance   float64   `json:"balance" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (CoinBalance) TableName() string {
	return "coin_balances"
}
