package player

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAudio records the commands issued to the audio element.
type fakeAudio struct {
	mu       sync.Mutex
	commands []string
	loads    []Source
}

func (a *fakeAudio) record(cmd string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands = append(a.commands, cmd)
}

func (a *fakeAudio) Load(src Source) {
	a.mu.Lock()
	a.loads = append(a.loads, src)
	a.mu.Unlock()
	a.record("load:" + src.URL)
}

func (a *fakeAudio) Play()  { a.record("play") }
func (a *fakeAudio) Pause() { a.record("pause") }
func (a *fakeAudio) Seek(seconds float64) {
	a.record(fmt.Sprintf("seek:%g", seconds))
}

func (a *fakeAudio) lastLoad() Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.loads) == 0 {
		return Source{}
	}
	return a.loads[len(a.loads)-1]
}

func (a *fakeAudio) last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.commands) == 0 {
		return ""
	}
	return a.commands[len(a.commands)-1]
}

// fakeLocks answers from a wallet:track set.
type fakeLocks struct {
	mu       sync.Mutex
	unlocked map[string]bool
	err      error
	calls    int
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{unlocked: make(map[string]bool)}
}

func (l *fakeLocks) set(wallet, trackID string, v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked[wallet+":"+trackID] = v
}

func (l *fakeLocks) IsUnlocked(_ context.Context, wallet, trackID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.unlocked[wallet+":"+trackID], nil
}

type fakeCatalog struct {
	tracks []Track
	err    error
}

func (c *fakeCatalog) DefaultTracks(context.Context) ([]Track, error) {
	return c.tracks, c.err
}

type fakeMedia struct {
	mu       sync.Mutex
	updates  []NowPlaying
	handlers ActionHandlers
}

func (m *fakeMedia) Update(np NowPlaying) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, np)
}

func (m *fakeMedia) SetActionHandlers(h ActionHandlers) {
	m.handlers = h
}

func (m *fakeMedia) last() NowPlaying {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates[len(m.updates)-1]
}

type prefixSigner struct{ err error }

func (s prefixSigner) Sign(_ context.Context, locator string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://signed.example/?src=" + locator, nil
}

func premiumTracks(n int) []Track {
	tracks := testTracks(n)
	for i := range tracks {
		tracks[i].PremiumAudio = "https://cdn.example/full/" + tracks[i].ID + ".flac"
	}
	return tracks
}

func newTestController(opts ...Option) (*Controller, *fakeAudio, *fakeLocks) {
	audio := &fakeAudio{}
	locks := newFakeLocks()
	opts = append([]Option{WithRand(rand.New(rand.NewSource(1)))}, opts...)
	return NewController(audio, locks, opts...), audio, locks
}

func TestControllerStartsNeutral(t *testing.T) {
	c, _, _ := newTestController()
	snap := c.Snapshot()

	assert.Nil(t, snap.CurrentTrack)
	assert.False(t, snap.IsPlaying)
	assert.False(t, snap.IsShuffled)
	assert.Equal(t, RepeatNone, snap.Repeat)
}

func TestControllerPlayLoadsPreviewWhenLocked(t *testing.T) {
	tracks := premiumTracks(3)
	c, audio, _ := newTestController(WithWallet("0xwallet"))

	c.Play(context.Background(), tracks[1], tracks)

	snap := c.Snapshot()
	assert.Equal(t, tracks[1].MediaURL, snap.StreamURL)
	assert.False(t, snap.Unlocked)
	assert.True(t, snap.IsLoading)
	assert.Equal(t, Source{Seq: snap.Seq, TrackID: "0xb2", URL: tracks[1].MediaURL}, audio.lastLoad())
	assert.Equal(t, "play", audio.last())
}

func TestControllerPlayLoadsPremiumWhenUnlocked(t *testing.T) {
	tracks := premiumTracks(3)
	c, audio, locks := newTestController(WithWallet("0xwallet"))
	locks.set("0xwallet", "0xb2", true)

	c.Play(context.Background(), tracks[1], tracks)

	snap := c.Snapshot()
	assert.True(t, snap.Unlocked)
	assert.Equal(t, tracks[1].PremiumAudio, snap.StreamURL)
	assert.Equal(t, tracks[1].PremiumAudio, audio.lastLoad().URL)
}

func TestControllerUnlockedWithoutPremiumFallsBack(t *testing.T) {
	tracks := testTracks(2)
	c, audio, locks := newTestController(WithWallet("0xwallet"))
	locks.set("0xwallet", "0xa1", true)

	c.Play(context.Background(), tracks[0], tracks)

	assert.Equal(t, tracks[0].MediaURL, audio.lastLoad().URL)
	assert.True(t, c.Snapshot().Unlocked)
}

func TestControllerLockErrorPlaysPreview(t *testing.T) {
	tracks := premiumTracks(2)
	c, audio, locks := newTestController(WithWallet("0xwallet"))
	locks.err = errors.New("balance service down")

	c.Play(context.Background(), tracks[0], tracks)

	assert.Equal(t, tracks[0].MediaURL, audio.lastLoad().URL)
	assert.False(t, c.Snapshot().Unlocked)
}

func TestControllerWithoutWalletSkipsLockCheck(t *testing.T) {
	tracks := premiumTracks(2)
	c, _, locks := newTestController()

	c.Play(context.Background(), tracks[0], tracks)

	assert.Equal(t, 0, locks.calls)
	assert.Equal(t, tracks[0].MediaURL, c.Snapshot().StreamURL)
}

func TestControllerSignsLocator(t *testing.T) {
	tracks := testTracks(1)
	c, audio, _ := newTestController(WithSigner(prefixSigner{}))

	c.Play(context.Background(), tracks[0], tracks)
	assert.Equal(t, "https://signed.example/?src="+tracks[0].MediaURL, audio.lastLoad().URL)
}

func TestControllerSignerFailureUsesRawLocator(t *testing.T) {
	tracks := testTracks(1)
	c, audio, _ := newTestController(WithSigner(prefixSigner{err: errors.New("no creds")}))

	c.Play(context.Background(), tracks[0], tracks)
	assert.Equal(t, tracks[0].MediaURL, audio.lastLoad().URL)
}

func TestControllerPlayTogglesSameTrack(t *testing.T) {
	tracks := testTracks(3)
	c, audio, _ := newTestController()
	ctx := context.Background()

	c.Play(ctx, tracks[0], tracks)
	loads := len(audio.loads)

	c.Play(ctx, tracks[0], tracks)
	assert.False(t, c.Snapshot().IsPlaying)
	assert.Equal(t, "pause", audio.last())

	c.Play(ctx, tracks[0], tracks)
	snap := c.Snapshot()
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, "0xa1", snap.CurrentID())
	assert.Equal(t, "play", audio.last())
	assert.Len(t, audio.loads, loads, "toggling never reloads the stream")
}

func TestControllerPlayUsesCatalogByDefault(t *testing.T) {
	catalogTracks := testTracks(4)
	c, _, _ := newTestController(WithCatalog(&fakeCatalog{tracks: catalogTracks}))

	c.Play(context.Background(), catalogTracks[2], nil)

	snap := c.Snapshot()
	assert.Equal(t, ids(catalogTracks), ids(snap.Playlist))
	assert.Equal(t, 2, snap.CurrentIndex)
}

func TestControllerPlayCatalogFailureKeepsPlaylist(t *testing.T) {
	tracks := testTracks(3)
	catalog := &fakeCatalog{tracks: tracks}
	c, _, _ := newTestController(WithCatalog(catalog))
	ctx := context.Background()

	c.Play(ctx, tracks[0], nil)
	catalog.err = errors.New("catalog offline")
	c.Play(ctx, tracks[2], nil)

	snap := c.Snapshot()
	assert.Equal(t, ids(tracks), ids(snap.Playlist))
	assert.Equal(t, "0xc3", snap.CurrentID())
}

func TestControllerToggleWithoutTrackIsNoop(t *testing.T) {
	c, audio, _ := newTestController()
	c.TogglePlayPause()

	assert.False(t, c.Snapshot().IsPlaying)
	assert.Empty(t, audio.commands)
}

func TestControllerPauseResume(t *testing.T) {
	tracks := testTracks(2)
	c, audio, _ := newTestController()
	c.Play(context.Background(), tracks[0], tracks)

	c.Pause()
	assert.False(t, c.Snapshot().IsPlaying)
	assert.Equal(t, "pause", audio.last())

	c.Pause()
	assert.False(t, c.Snapshot().IsPlaying)

	c.Resume()
	assert.True(t, c.Snapshot().IsPlaying)
	assert.Equal(t, "play", audio.last())
}

func TestControllerNextAtEndWithRepeatNoneStops(t *testing.T) {
	tracks := testTracks(3)
	c, audio, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[2], tracks)
	loads := len(audio.loads)

	c.Next(ctx)

	snap := c.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.Equal(t, "0xc3", snap.CurrentID())
	assert.Equal(t, "pause", audio.last())
	assert.Len(t, audio.loads, loads)
}

func TestControllerNextAtEndWithRepeatAllWraps(t *testing.T) {
	tracks := testTracks(3)
	c, audio, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[2], tracks)
	c.RepeatCycle()
	require.Equal(t, RepeatAll, c.Snapshot().Repeat)

	c.Next(ctx)

	snap := c.Snapshot()
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, tracks[0].ID, snap.CurrentID())
	assert.Equal(t, tracks[0].MediaURL, audio.lastLoad().URL)
}

func TestControllerRepeatOneRestartsOnEnd(t *testing.T) {
	tracks := testTracks(3)
	c, audio, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[1], tracks)
	c.RepeatCycle()
	c.RepeatCycle()
	require.Equal(t, RepeatOne, c.Snapshot().Repeat)
	loads := len(audio.loads)
	seq := c.Snapshot().Seq

	c.HandleAudioEvent(ctx, AudioEvent{Type: EventTimeUpdate, Seq: seq, TrackID: "0xb2", CurrentTime: 180})
	c.OnTrackEnded(ctx)

	snap := c.Snapshot()
	assert.Equal(t, "0xb2", snap.CurrentID())
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 0.0, snap.Position)
	assert.Len(t, audio.loads, loads, "restart reuses the loaded stream")
	assert.Equal(t, []string{"seek:0", "play"}, audio.commands[len(audio.commands)-2:])
}

func TestControllerSingleTrackRepeatAllRestarts(t *testing.T) {
	tracks := testTracks(1)
	c, audio, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[0], tracks)
	c.RepeatCycle()

	c.OnTrackEnded(ctx)

	assert.True(t, c.Snapshot().IsPlaying)
	assert.Equal(t, []string{"seek:0", "play"}, audio.commands[len(audio.commands)-2:])
}

func TestControllerEndedAtLastStops(t *testing.T) {
	tracks := testTracks(2)
	c, _, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[1], tracks)
	seq := c.Snapshot().Seq

	c.HandleAudioEvent(ctx, AudioEvent{Type: EventEnded, Seq: seq, TrackID: "0xb2"})

	snap := c.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, "0xb2", snap.CurrentID())
}

func TestControllerPreviousWraps(t *testing.T) {
	tracks := testTracks(4)
	c, _, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[0], tracks)

	c.Previous(ctx)

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.CurrentIndex)
	assert.Equal(t, "0xd4", snap.CurrentID())
	assert.True(t, snap.IsPlaying)
}

func TestControllerEmptyPlaylistTransitionsAreNoops(t *testing.T) {
	c, audio, _ := newTestController()
	ctx := context.Background()

	c.Next(ctx)
	c.Previous(ctx)
	c.OnTrackEnded(ctx)
	c.Seek(30)

	assert.Equal(t, NewSession(), c.Snapshot().Session)
	assert.Empty(t, audio.commands)
}

func TestControllerShuffleDoesNotInterruptPlayback(t *testing.T) {
	tracks := testTracks(6)
	c, audio, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[3], tracks)
	loads := len(audio.loads)

	c.ShuffleToggle()

	snap := c.Snapshot()
	assert.True(t, snap.IsShuffled)
	assert.Equal(t, "0xd4", snap.ShuffledPlaylist[0].ID)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.True(t, snap.IsPlaying)
	assert.Len(t, audio.loads, loads)

	c.ShuffleToggle()
	snap = c.Snapshot()
	assert.False(t, snap.IsShuffled)
	assert.Equal(t, 3, snap.CurrentIndex)
}

func TestControllerStaleLoadEventsAreIgnored(t *testing.T) {
	tracks := testTracks(3)
	c, _, _ := newTestController()
	ctx := context.Background()

	c.Play(ctx, tracks[0], tracks)
	seqA := c.Snapshot().Seq
	c.Play(ctx, tracks[1], tracks)
	before := c.Snapshot()

	c.HandleAudioEvent(ctx, AudioEvent{Type: EventLoadedMetadata, Seq: seqA, TrackID: "0xa1", Duration: 200})
	c.HandleAudioEvent(ctx, AudioEvent{Type: EventCanPlay, Seq: seqA, TrackID: "0xa1"})
	c.HandleAudioEvent(ctx, AudioEvent{Type: EventEnded, Seq: seqA, TrackID: "0xa1"})

	after := c.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, "0xb2", after.CurrentID())
	assert.True(t, after.IsPlaying)
	assert.True(t, after.IsLoading)
}

func TestControllerLoadLifecycle(t *testing.T) {
	tracks := testTracks(2)
	c, _, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[0], tracks)
	seq := c.Snapshot().Seq

	c.HandleAudioEvent(ctx, AudioEvent{Type: EventLoadStart, Seq: seq, TrackID: "0xa1"})
	assert.True(t, c.Snapshot().IsLoading)

	c.HandleAudioEvent(ctx, AudioEvent{Type: EventLoadedMetadata, Seq: seq, TrackID: "0xa1", Duration: 212.5})
	c.HandleAudioEvent(ctx, AudioEvent{Type: EventCanPlay, Seq: seq, TrackID: "0xa1"})
	c.HandleAudioEvent(ctx, AudioEvent{Type: EventTimeUpdate, Seq: seq, TrackID: "0xa1", CurrentTime: 12.25})

	snap := c.Snapshot()
	assert.False(t, snap.IsLoading)
	assert.Equal(t, 212.5, snap.Duration)
	assert.Equal(t, 12.25, snap.Position)
}

func TestControllerLoadErrorKeepsIntent(t *testing.T) {
	tracks := testTracks(2)
	c, audio, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[0], tracks)
	seq := c.Snapshot().Seq
	loads := len(audio.loads)

	c.HandleAudioEvent(ctx, AudioEvent{Type: EventError, Seq: seq, TrackID: "0xa1", Message: "MEDIA_ERR_NETWORK"})

	snap := c.Snapshot()
	assert.False(t, snap.IsLoading)
	assert.Equal(t, "MEDIA_ERR_NETWORK", snap.LoadError)
	assert.True(t, snap.IsPlaying)
	assert.Len(t, audio.loads, loads, "no automatic retry")

	// Re-selecting another track clears the error.
	c.Play(ctx, tracks[1], tracks)
	assert.Empty(t, c.Snapshot().LoadError)
}

func TestControllerSeekClampsToDuration(t *testing.T) {
	tracks := testTracks(1)
	c, audio, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[0], tracks)
	seq := c.Snapshot().Seq
	c.HandleAudioEvent(ctx, AudioEvent{Type: EventLoadedMetadata, Seq: seq, TrackID: "0xa1", Duration: 100})

	c.Seek(250)
	assert.Equal(t, 100.0, c.Snapshot().Position)
	assert.Equal(t, "seek:100", audio.last())

	c.Seek(-5)
	assert.Equal(t, 0.0, c.Snapshot().Position)
}

func TestControllerRefreshStreamUpgradesCurrentTrack(t *testing.T) {
	tracks := premiumTracks(2)
	c, audio, locks := newTestController(WithWallet("0xwallet"))
	ctx := context.Background()
	c.Play(ctx, tracks[0], tracks)
	seq := c.Snapshot().Seq
	c.HandleAudioEvent(ctx, AudioEvent{Type: EventCanPlay, Seq: seq, TrackID: "0xa1"})
	c.HandleAudioEvent(ctx, AudioEvent{Type: EventTimeUpdate, Seq: seq, TrackID: "0xa1", CurrentTime: 42})

	locks.set("0xwallet", "0xa1", true)
	c.RefreshStream(ctx)

	snap := c.Snapshot()
	assert.True(t, snap.Unlocked)
	assert.Equal(t, tracks[0].PremiumAudio, snap.StreamURL)
	assert.Greater(t, snap.Seq, seq)
	assert.Equal(t, tracks[0].PremiumAudio, audio.lastLoad().URL)

	// The new stream resumes where the preview left off once it can play.
	c.HandleAudioEvent(ctx, AudioEvent{Type: EventCanPlay, Seq: snap.Seq, TrackID: "0xa1"})
	assert.Equal(t, "seek:42", audio.last())
	assert.Equal(t, 42.0, c.Snapshot().Position)
}

func TestControllerRefreshStreamWithoutChangeIsQuiet(t *testing.T) {
	tracks := premiumTracks(1)
	c, audio, _ := newTestController(WithWallet("0xwallet"))
	ctx := context.Background()
	c.Play(ctx, tracks[0], tracks)
	loads := len(audio.loads)

	c.RefreshStream(ctx)
	assert.Len(t, audio.loads, loads)
}

func TestControllerSetWalletReResolves(t *testing.T) {
	tracks := premiumTracks(1)
	c, audio, locks := newTestController()
	ctx := context.Background()
	locks.set("0xholder", "0xa1", true)
	c.Play(ctx, tracks[0], tracks)
	require.Equal(t, tracks[0].MediaURL, audio.lastLoad().URL)

	c.SetWallet(ctx, "0xholder")

	assert.Equal(t, "0xholder", c.Snapshot().Wallet)
	assert.Equal(t, tracks[0].PremiumAudio, audio.lastLoad().URL)
}

func TestControllerSubscribe(t *testing.T) {
	tracks := testTracks(2)
	c, _, _ := newTestController()
	ctx := context.Background()

	var got []Snapshot
	unsubscribe := c.Subscribe(func(s Snapshot) { got = append(got, s) })

	c.Play(ctx, tracks[0], tracks)
	require.NotEmpty(t, got)
	assert.Equal(t, "0xa1", got[len(got)-1].CurrentID())

	n := len(got)
	unsubscribe()
	c.Next(ctx)
	assert.Len(t, got, n)
}

func TestControllerSubscriberEndsOnLatestState(t *testing.T) {
	tracks := testTracks(3)
	c, _, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[0], tracks)

	var (
		mu       sync.Mutex
		versions []uint64
		last     Snapshot
		once     sync.Once
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	c.Subscribe(func(s Snapshot) {
		// 暂停的快照投递时卡住观察者，让切歌在此期间完成
		if !s.IsPlaying && s.CurrentID() == "0xa1" {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		mu.Lock()
		versions = append(versions, s.Version)
		last = s
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.TogglePlayPause()
	}()
	<-entered
	go func() {
		defer wg.Done()
		c.Next(ctx)
	}()
	require.Eventually(t, func() bool { return c.Snapshot().CurrentID() == "0xb2" }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	want := c.Snapshot()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want.Version, last.Version)
	assert.Equal(t, "0xb2", last.CurrentID())
	assert.True(t, last.IsPlaying)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
}

func TestControllerEndedAfterSkipIsIgnored(t *testing.T) {
	tracks := testTracks(3)
	c, _, _ := newTestController()
	ctx := context.Background()
	c.Play(ctx, tracks[0], tracks)
	seq := c.Snapshot().Seq

	// ended 已通过入口检查，但切歌先拿到锁
	ended := c.endedFor(seq, "0xa1")
	c.Next(ctx)
	require.Equal(t, "0xb2", c.Snapshot().CurrentID())

	c.transition(ctx, ended)
	snap := c.Snapshot()
	assert.Equal(t, "0xb2", snap.CurrentID())
	assert.Equal(t, 1, snap.CurrentIndex)

	c.HandleAudioEvent(ctx, AudioEvent{Type: EventEnded, Seq: snap.Seq, TrackID: "0xb2"})
	assert.Equal(t, "0xc3", c.Snapshot().CurrentID())
}

func TestControllerMediaSession(t *testing.T) {
	tracks := testTracks(3)
	tracks[0].ArtworkURL = "https://cdn.example/art.png"
	media := &fakeMedia{}
	c, _, _ := newTestController(WithMediaSession(media))
	ctx := context.Background()

	c.Play(ctx, tracks[0], tracks)
	assert.Equal(t, NowPlaying{
		Title:         tracks[0].Title,
		Artist:        tracks[0].Artist,
		Artwork:       "https://cdn.example/art.png",
		PlaybackState: PlaybackPlaying,
	}, media.last())

	media.handlers.Pause()
	assert.Equal(t, PlaybackPaused, media.last().PlaybackState)

	media.handlers.Play()
	media.handlers.NextTrack()
	assert.Equal(t, "0xb2", c.Snapshot().CurrentID())

	media.handlers.PreviousTrack()
	assert.Equal(t, "0xa1", c.Snapshot().CurrentID())
}

func TestNowPlayingWithoutTrack(t *testing.T) {
	assert.Equal(t, NowPlaying{PlaybackState: PlaybackNone}, NowPlayingOf(NewSession()))
}
