package unlock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBalances struct {
	mu      sync.Mutex
	holding map[string]float64 // wallet|track
	calls   int
	err     error
}

func (f *fakeBalances) Balance(_ context.Context, wallet, trackID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.holding[wallet+"|"+trackID], nil
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]bool
	getErr      error
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]bool{}}
}

func (f *fakeCache) Get(_ context.Context, wallet, trackID string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return false, false, f.getErr
	}
	v, ok := f.entries[wallet+"|"+trackID]
	return v, ok, nil
}

func (f *fakeCache) Set(_ context.Context, wallet, trackID string, unlocked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[wallet+"|"+trackID] = unlocked
	return nil
}

func (f *fakeCache) InvalidateWallet(_ context.Context, wallet string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, wallet)
	for k := range f.entries {
		if len(k) > len(wallet) && k[:len(wallet)+1] == wallet+"|" {
			delete(f.entries, k)
		}
	}
	return nil
}

func TestIsUnlocked(t *testing.T) {
	balances := &fakeBalances{holding: map[string]float64{
		"0xabc|0xa1": 12.5,
		"0xabc|0xb2": 0,
	}}
	c := NewChecker(balances, nil, 0)
	ctx := context.Background()

	tests := []struct {
		name   string
		wallet string
		track  string
		want   bool
	}{
		{"holder", "0xabc", "0xa1", true},
		{"mixed case wallet", "0xABC", "0xa1", true},
		{"zero balance", "0xabc", "0xb2", false},
		{"no record", "0xabc", "0xc3", false},
		{"empty wallet", "", "0xa1", false},
		{"empty track", "0xabc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.IsUnlocked(ctx, tt.wallet, tt.track)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsUnlockedUsesCache(t *testing.T) {
	balances := &fakeBalances{holding: map[string]float64{"0xabc|0xa1": 1}}
	cache := newFakeCache()
	c := NewChecker(balances, cache, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.IsUnlocked(ctx, "0xabc", "0xa1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, balances.calls)

	// 缓存读取失败时直接查库
	cache.getErr = errors.New("redis down")
	ok, err := c.IsUnlocked(ctx, "0xabc", "0xa1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, balances.calls)
}

func TestIsUnlockedBalanceError(t *testing.T) {
	c := NewChecker(&fakeBalances{err: errors.New("db gone")}, nil, 0)

	ok, err := c.IsUnlocked(context.Background(), "0xabc", "0xa1")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestPrefetch(t *testing.T) {
	balances := &fakeBalances{holding: map[string]float64{
		"0xabc|0xa1": 1,
		"0xabc|0xc3": 3,
	}}
	cache := newFakeCache()
	c := NewChecker(balances, cache, 2)

	got, err := c.Prefetch(context.Background(), "0xabc", []string{"0xa1", "0xb2", "0xc3", "0xd4"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"0xa1": true, "0xb2": false, "0xc3": true, "0xd4": false}, got)
	assert.Len(t, cache.entries, 4)
}

func TestPrefetchEmptyWallet(t *testing.T) {
	balances := &fakeBalances{}
	c := NewChecker(balances, nil, 0)

	got, err := c.Prefetch(context.Background(), "", []string{"0xa1", "0xb2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"0xa1": false, "0xb2": false}, got)
	assert.Zero(t, balances.calls)
}

func TestPrefetchError(t *testing.T) {
	c := NewChecker(&fakeBalances{err: errors.New("db gone")}, nil, 1)

	_, err := c.Prefetch(context.Background(), "0xabc", []string{"0xa1", "0xb2"})
	assert.Error(t, err)
}

func TestRefreshInvalidatesAndNotifies(t *testing.T) {
	balances := &fakeBalances{holding: map[string]float64{}}
	cache := newFakeCache()
	c := NewChecker(balances, cache, 0)
	ctx := context.Background()

	ok, err := c.IsUnlocked(ctx, "0xabc", "0xa1")
	require.NoError(t, err)
	assert.False(t, ok)

	var notified []string
	c.OnChange(func(wallet string) { notified = append(notified, wallet) })

	// 买入后刷新
	balances.holding["0xabc|0xa1"] = 5
	require.NoError(t, c.Refresh(ctx, "0xABC"))

	assert.Equal(t, []string{"0xabc"}, cache.invalidated)
	assert.Equal(t, []string{"0xabc"}, notified)

	ok, err = c.IsUnlocked(ctx, "0xabc", "0xa1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefreshEmptyWalletIsNoop(t *testing.T) {
	c := NewChecker(&fakeBalances{}, newFakeCache(), 0)
	called := false
	c.OnChange(func(string) { called = true })

	require.NoError(t, c.Refresh(context.Background(), " "))
	assert.False(t, called)
}
