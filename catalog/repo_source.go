package catalog

import (
	"context"

	"VibeLock/core/player"
	"VibeLock/model"
	"VibeLock/repository"
)

// RepoSource 基于 MySQL 曲库
type RepoSource struct {
	repo repository.TrackRepository
}

// NewRepoSource wraps a track repository as a catalog source.
func NewRepoSource(repo repository.TrackRepository) *RepoSource {
	return &RepoSource{repo: repo}
}

func (s *RepoSource) Feed(ctx context.Context, limit int) ([]player.Track, error) {
	rows, err := s.repo.Feed(ctx, limit)
	return toPlayer(rows), err
}

func (s *RepoSource) Search(ctx context.Context, query string, limit int) ([]player.Track, error) {
	rows, err := s.repo.Search(ctx, query, limit)
	return toPlayer(rows), err
}

func (s *RepoSource) ByArtist(ctx context.Context, artistID string) ([]player.Track, error) {
	rows, err := s.repo.ByArtist(ctx, artistID)
	return toPlayer(rows), err
}

func (s *RepoSource) ByIDs(ctx context.Context, ids []string) ([]player.Track, error) {
	rows, err := s.repo.ByIDs(ctx, ids)
	return toPlayer(rows), err
}

// Import 把曲目写入曲库，返回写入条数
func (s *RepoSource) Import(ctx context.Context, tracks []player.Track) (int, error) {
	for i, t := range tracks {
		row := model.TrackFromPlayer(t)
		if err := s.repo.Upsert(ctx, &row); err != nil {
			return i, err
		}
	}
	return len(tracks), nil
}

func toPlayer(rows []*model.Track) []player.Track {
	if rows == nil {
		return nil
	}
	out := make([]player.Track, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToPlayer())
	}
	return out
}
