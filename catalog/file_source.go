package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"VibeLock/core/player"
	"VibeLock/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileCatalog is the on-disk layout:
//
//	tracks:
//	  - id: "0xa1..."
//	    title: Night Drive
//	    artist: Kora
//	    mediaUrl: https://cdn.example/a1-preview.mp3
//	    premiumAudio: s3://premium/a1.flac
type fileCatalog struct {
	Tracks []fileTrack `yaml:"tracks"`
}

type fileTrack struct {
	ID            string             `yaml:"id"`
	Title         string             `yaml:"title"`
	Artist        string             `yaml:"artist"`
	ArtistID      string             `yaml:"artistId"`
	CoinSymbol    string             `yaml:"coinSymbol"`
	MediaURL      string             `yaml:"mediaUrl"`
	PremiumAudio  string             `yaml:"premiumAudio"`
	ArtworkURL    string             `yaml:"artworkUrl"`
	Duration      float64            `yaml:"duration"`
	Collaborators []fileCollaborator `yaml:"collaborators"`
}

type fileCollaborator struct {
	Wallet string  `yaml:"wallet"`
	Name   string  `yaml:"name"`
	Role   string  `yaml:"role"`
	Share  float64 `yaml:"share"`
}

func (t fileTrack) toPlayer() player.Track {
	p := player.Track{
		ID:           t.ID,
		Title:        t.Title,
		Artist:       t.Artist,
		MediaURL:     t.MediaURL,
		PremiumAudio: t.PremiumAudio,
		ArtworkURL:   t.ArtworkURL,
		ArtistID:     t.ArtistID,
		CoinSymbol:   t.CoinSymbol,
		Duration:     t.Duration,
	}
	for _, c := range t.Collaborators {
		p.Collaborators = append(p.Collaborators, player.Collaborator(c))
	}
	return p
}

// FileSource serves the catalog from a YAML file and reloads it when the
// file changes on disk.
type FileSource struct {
	path string

	mu     sync.RWMutex
	tracks []player.Track
}

// NewFileSource loads path once; call Watch to keep it fresh.
func NewFileSource(path string) (*FileSource, error) {
	s := &FileSource{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile 解析 YAML 曲库文件
func LoadFile(path string) ([]player.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(fc.Tracks))
	tracks := make([]player.Track, 0, len(fc.Tracks))
	for i, ft := range fc.Tracks {
		if ft.ID == "" || ft.MediaURL == "" {
			return nil, fmt.Errorf("catalog file %s: track %d needs id and mediaUrl", path, i)
		}
		if seen[ft.ID] {
			return nil, fmt.Errorf("catalog file %s: duplicate track id %s", path, ft.ID)
		}
		seen[ft.ID] = true
		tracks = append(tracks, ft.toPlayer())
	}
	return tracks, nil
}

// Reload 重新读取文件；解析失败时保留旧内容
func (s *FileSource) Reload() error {
	tracks, err := LoadFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tracks = tracks
	s.mu.Unlock()

	logger.Info("catalog file loaded",
		logger.String("path", s.path),
		logger.Int("tracks", len(tracks)))
	return nil
}

// Watch reloads the file on every write until ctx is cancelled. The parent
// directory is watched so editors that replace the file by rename are seen.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.path, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					logger.Warn("catalog reload failed, keeping previous tracks",
						logger.String("path", s.path),
						logger.ErrorField(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("catalog watcher error", logger.ErrorField(err))
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *FileSource) snapshot() []player.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracks
}

func (s *FileSource) Feed(_ context.Context, limit int) ([]player.Track, error) {
	return head(s.snapshot(), limit), nil
}

func (s *FileSource) Search(ctx context.Context, query string, limit int) ([]player.Track, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return s.Feed(ctx, limit)
	}

	var out []player.Track
	for _, t := range s.snapshot() {
		if strings.Contains(strings.ToLower(t.Title), query) ||
			strings.Contains(strings.ToLower(t.Artist), query) ||
			strings.Contains(strings.ToLower(t.CoinSymbol), query) {
			out = append(out, t)
		}
	}
	return head(out, limit), nil
}

func (s *FileSource) ByArtist(_ context.Context, artistID string) ([]player.Track, error) {
	var out []player.Track
	for _, t := range s.snapshot() {
		if t.ArtistID == artistID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *FileSource) ByIDs(_ context.Context, ids []string) ([]player.Track, error) {
	byID := make(map[string]player.Track)
	for _, t := range s.snapshot() {
		byID[t.ID] = t
	}
	out := make([]player.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// head returns a copy of at most limit tracks.
func head(tracks []player.Track, limit int) []player.Track {
	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	out := make([]player.Track, len(tracks))
	copy(out, tracks)
	return out
}
