package unlock

import (
	"context"
	"fmt"
	"sync"

	"VibeLock/logger"
	"VibeLock/repository"

	"golang.org/x/sync/errgroup"
)

// Balances 持仓查询
type Balances interface {
	Balance(ctx context.Context, wallet, trackID string) (float64, error)
}

// Cache 解锁结果缓存，实现见 cache.UnlockCache
type Cache interface {
	Get(ctx context.Context, wallet, trackID string) (unlocked, found bool, err error)
	Set(ctx context.Context, wallet, trackID string, unlocked bool) error
	InvalidateWallet(ctx context.Context, wallet string) error
}

// Checker decides whether a wallet has unlocked a track: holding any
// positive balance of the track's coin unlocks its premium stream.
type Checker struct {
	balances    Balances
	cache       Cache
	concurrency int

	mu        sync.RWMutex
	listeners []func(wallet string)
}

// NewChecker creates a checker. cache may be nil.
func NewChecker(balances Balances, cache Cache, concurrency int) *Checker {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Checker{
		balances:    balances,
		cache:       cache,
		concurrency: concurrency,
	}
}

// IsUnlocked implements player.LockChecker.
func (c *Checker) IsUnlocked(ctx context.Context, wallet, trackID string) (bool, error) {
	wallet = repository.WalletKey(wallet)
	if wallet == "" || trackID == "" {
		return false, nil
	}

	if c.cache != nil {
		unlocked, found, err := c.cache.Get(ctx, wallet, trackID)
		if err != nil {
			logger.Warn("unlock cache read failed",
				logger.String("wallet", wallet),
				logger.String("track", trackID),
				logger.ErrorField(err))
		} else if found {
			return unlocked, nil
		}
	}

	balance, err := c.balances.Balance(ctx, wallet, trackID)
	if err != nil {
		return false, fmt.Errorf("balance lookup for %s/%s: %w", wallet, trackID, err)
	}
	unlocked := balance > 0

	if c.cache != nil {
		if err := c.cache.Set(ctx, wallet, trackID, unlocked); err != nil {
			logger.Warn("unlock cache write failed",
				logger.String("wallet", wallet),
				logger.String("track", trackID),
				logger.ErrorField(err))
		}
	}
	return unlocked, nil
}

// Prefetch 并发查询整张歌单的解锁状态并预热缓存
func (c *Checker) Prefetch(ctx context.Context, wallet string, trackIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(trackIDs))
	if repository.WalletKey(wallet) == "" {
		for _, id := range trackIDs {
			result[id] = false
		}
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, id := range trackIDs {
		id := id
		g.Go(func() error {
			unlocked, err := c.IsUnlocked(gctx, wallet, id)
			if err != nil {
				return err
			}
			mu.Lock()
			result[id] = unlocked
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// Refresh drops the wallet's cached results and notifies listeners that
// its holdings changed.
func (c *Checker) Refresh(ctx context.Context, wallet string) error {
	wallet = repository.WalletKey(wallet)
	if wallet == "" {
		return nil
	}

	var err error
	if c.cache != nil {
		if err = c.cache.InvalidateWallet(ctx, wallet); err != nil {
			err = fmt.Errorf("invalidate unlock cache: %w", err)
		}
	}

	c.mu.RLock()
	listeners := make([]func(string), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(wallet)
	}

	logger.Debug("unlock state refreshed", logger.String("wallet", wallet))
	return err
}

// OnChange registers fn to run after every Refresh.
func (c *Checker) OnChange(fn func(wallet string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}
