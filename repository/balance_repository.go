package repository

import (
	"context"
	"errors"
	"strings"

	"VibeLock/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// mysqlDuplicateEntry MySQL 唯一键冲突错误码
const mysqlDuplicateEntry = 1062

// BalanceRepository 钱包持仓数据访问接口
type BalanceRepository interface {
	// Balance 返回持仓数量，没有记录时为 0
	Balance(ctx context.Context, wallet, trackID string) (float64, error)
	SetBalance(ctx context.Context, wallet, trackID string, balance float64) error
	Holdings(ctx context.Context, wallet string) ([]*model.CoinBalance, error)
}

type gormBalanceRepository struct {
	db *gorm.DB
}

// NewGormBalanceRepository 创建 GORM 持仓仓库
func NewGormBalanceRepository(db *gorm.DB) BalanceRepository {
	return &gormBalanceRepository{db: db}
}

// WalletKey 钱包地址的存储形式：去空白并小写，不做格式校验。
// 对外输入先经 auth.NormalizeWallet 校验
func WalletKey(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

func (r *gormBalanceRepository) Balance(ctx context.Context, wallet, trackID string) (float64, error) {
	var row model.CoinBalance
	err := r.db.WithContext(ctx).
		Where("wallet = ? AND track_id = ?", WalletKey(wallet), trackID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Balance, nil
}

// SetBalance 写入持仓；记录已存在时（唯一键冲突）改为更新
func (r *gormBalanceRepository) SetBalance(ctx context.Context, wallet, trackID string, balance float64) error {
	row := &model.CoinBalance{
		Wallet:  WalletKey(wallet),
		TrackID: trackID,
		Balance: balance,
	}

	err := r.db.WithContext(ctx).Create(row).Error
	if err == nil || !IsDuplicateKey(err) {
		return err
	}

	return r.db.WithContext(ctx).Model(&model.CoinBalance{}).
		Where("wallet = ? AND track_id = ?", row.Wallet, trackID).
		Update("balance", balance).Error
}

// Holdings 钱包的全部正持仓
func (r *gormBalanceRepository) Holdings(ctx context.Context, wallet string) ([]*model.CoinBalance, error) {
	var rows []*model.CoinBalance
	err := r.db.WithContext(ctx).
		Where("wallet = ? AND balance > 0", WalletKey(wallet)).
		Order("updated_at DESC").
		Find(&rows).Error
	return rows, err
}

// IsDuplicateKey reports whether err is a MySQL unique-key violation.
func IsDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
