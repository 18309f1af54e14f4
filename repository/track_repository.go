package repository

import (
	"context"
	"strings"

	"VibeLock/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackRepository 曲库数据访问接口
type TrackRepository interface {
	Upsert(ctx context.Context, track *model.Track) error
	GetByID(ctx context.Context, id string) (*model.Track, error)
	Feed(ctx context.Context, limit int) ([]*model.Track, error)
	Search(ctx context.Context, query string, limit int) ([]*model.Track, error)
	ByArtist(ctx context.Context, artistID string) ([]*model.Track, error)
	ByIDs(ctx context.Context, ids []string) ([]*model.Track, error)
	Remove(ctx context.Context, id string) error
}

// gormTrackRepository GORM 实现
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建 GORM 曲库仓库
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

func (r *gormTrackRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Where("state = ?", model.TrackStateNormal)
}

// Upsert 按 coin address 插入或更新曲目
func (r *gormTrackRepository) Upsert(ctx context.Context, track *model.Track) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(track).Error
}

// GetByID 根据 coin address 获取曲目，不存在返回 nil
func (r *gormTrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.active(ctx).Where("id = ?", id).First(&track).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// Feed 首页推荐，按上架时间倒序
func (r *gormTrackRepository) Feed(ctx context.Context, limit int) ([]*model.Track, error) {
	var tracks []*model.Track
	q := r.active(ctx).Order("created_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&tracks).Error
	return tracks, err
}

// Search 按标题或艺人模糊搜索
func (r *gormTrackRepository) Search(ctx context.Context, query string, limit int) ([]*model.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return r.Feed(ctx, limit)
	}

	pattern := "%" + EscapeLike(query) + "%"
	var tracks []*model.Track
	q := r.active(ctx).
		Where("title LIKE ? OR artist LIKE ? OR coin_symbol LIKE ?", pattern, pattern, pattern).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&tracks).Error
	return tracks, err
}

// ByArtist 艺人主页曲目
func (r *gormTrackRepository) ByArtist(ctx context.Context, artistID string) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.active(ctx).
		Where("artist_id = ?", artistID).
		Order("created_at DESC").
		Find(&tracks).Error
	return tracks, err
}

// ByIDs 按给定顺序返回曲目，缺失的 id 被跳过
func (r *gormTrackRepository) ByIDs(ctx context.Context, ids []string) ([]*model.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []*model.Track
	if err := r.active(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]*model.Track, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	tracks := make([]*model.Track, 0, len(found))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

// Remove 软删除（下架）
func (r *gormTrackRepository) Remove(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Track{}).
		Where("id = ?", id).
		Update("state", model.TrackStateRemoved).Error
}

// EscapeLike 转义 LIKE 通配符
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
