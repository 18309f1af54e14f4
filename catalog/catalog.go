package catalog

import (
	"context"
	"errors"
	"fmt"

	"VibeLock/core/player"
	"VibeLock/model"
)

var ErrArtistNotFound = errors.New("artist not found")

// Source 曲目来源：MySQL 曲库或本地 YAML 文件
type Source interface {
	Feed(ctx context.Context, limit int) ([]player.Track, error)
	Search(ctx context.Context, query string, limit int) ([]player.Track, error)
	ByArtist(ctx context.Context, artistID string) ([]player.Track, error)
	ByIDs(ctx context.Context, ids []string) ([]player.Track, error)
}

// Holdings 钱包持仓查询
type Holdings interface {
	Holdings(ctx context.Context, wallet string) ([]*model.CoinBalance, error)
}

// Holding is a dashboard row: a track the wallet holds and how much of it.
type Holding struct {
	Track   player.Track `json:"track"`
	Balance float64      `json:"balance"`
}

// Service answers the four catalog pages (feed, discover, artist and
// dashboard) and supplies the controller's default track list.
type Service struct {
	source    Source
	holdings  Holdings
	feedLimit int
}

// NewService creates a catalog service. holdings may be nil, in which case
// the dashboard is always empty.
func NewService(source Source, holdings Holdings, feedLimit int) *Service {
	if feedLimit <= 0 {
		feedLimit = 50
	}
	return &Service{source: source, holdings: holdings, feedLimit: feedLimit}
}

// DefaultTracks implements player.Catalog: the home feed.
func (s *Service) DefaultTracks(ctx context.Context) ([]player.Track, error) {
	return s.Feed(ctx)
}

// Feed 首页
func (s *Service) Feed(ctx context.Context) ([]player.Track, error) {
	tracks, err := s.source.Feed(ctx, s.feedLimit)
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	return tracks, nil
}

// Discover 搜索页，空查询返回首页
func (s *Service) Discover(ctx context.Context, query string) ([]player.Track, error) {
	tracks, err := s.source.Search(ctx, query, s.feedLimit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return tracks, nil
}

// Artist 艺人主页
func (s *Service) Artist(ctx context.Context, artistID string) ([]player.Track, error) {
	tracks, err := s.source.ByArtist(ctx, artistID)
	if err != nil {
		return nil, fmt.Errorf("load artist %s: %w", artistID, err)
	}
	if len(tracks) == 0 {
		return nil, ErrArtistNotFound
	}
	return tracks, nil
}

// Dashboard 钱包持有的曲目，按持仓更新时间排序
func (s *Service) Dashboard(ctx context.Context, wallet string) ([]Holding, error) {
	if s.holdings == nil || wallet == "" {
		return []Holding{}, nil
	}

	rows, err := s.holdings.Holdings(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}

	ids := make([]string, 0, len(rows))
	balances := make(map[string]float64, len(rows))
	for _, r := range rows {
		ids = append(ids, r.TrackID)
		balances[r.TrackID] = r.Balance
	}

	tracks, err := s.source.ByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load held tracks: %w", err)
	}

	out := make([]Holding, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, Holding{Track: t, Balance: balances[t.ID]})
	}
	return out, nil
}

// Tracks 取出 Holding 里的曲目，作为播放列表
func Tracks(holdings []Holding) []player.Track {
	out := make([]player.Track, len(holdings))
	for i, h := range holdings {
		out[i] = h.Track
	}
	return out
}
