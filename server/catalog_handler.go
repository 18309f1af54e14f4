package server

import (
	"errors"
	"net/http"

	"VibeLock/catalog"
	"VibeLock/core/player"
	"VibeLock/logger"

	"github.com/gorilla/mux"
)

// TrackListResponse 曲目列表
type TrackListResponse struct {
	Tracks []player.Track `json:"tracks"`
}

// DashboardResponse 钱包持仓
type DashboardResponse struct {
	Wallet   string            `json:"wallet"`
	Holdings []catalog.Holding `json:"holdings"`
}

// FeedHandler 首页曲目
func (h *APIHandler) FeedHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.catalog.Feed(r.Context())
	if err != nil {
		logger.Error("[Catalog] 获取首页失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	writeJSON(w, http.StatusOK, TrackListResponse{Tracks: nonNil(tracks)})
}

// DiscoverHandler 搜索
func (h *APIHandler) DiscoverHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	tracks, err := h.catalog.Discover(r.Context(), q)
	if err != nil {
		logger.Error("[Catalog] 搜索失败", logger.String("q", q), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to search tracks")
		return
	}
	writeJSON(w, http.StatusOK, TrackListResponse{Tracks: nonNil(tracks)})
}

// ArtistTracksHandler 艺人曲目
func (h *APIHandler) ArtistTracksHandler(w http.ResponseWriter, r *http.Request) {
	artistID := mux.Vars(r)["id"]
	tracks, err := h.catalog.Artist(r.Context(), artistID)
	if err != nil {
		if errors.Is(err, catalog.ErrArtistNotFound) {
			writeError(w, http.StatusNotFound, "artist not found")
			return
		}
		logger.Error("[Catalog] 获取艺人曲目失败", logger.String("artist", artistID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to load artist")
		return
	}
	writeJSON(w, http.StatusOK, TrackListResponse{Tracks: tracks})
}

// DashboardHandler lists the tracks the caller's wallet holds.
func (h *APIHandler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := WalletFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	holdings, err := h.catalog.Dashboard(r.Context(), wallet)
	if err != nil {
		logger.Error("[Catalog] 获取持仓失败", logger.String("wallet", wallet), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	if holdings == nil {
		holdings = []catalog.Holding{}
	}
	writeJSON(w, http.StatusOK, DashboardResponse{Wallet: wallet, Holdings: holdings})
}

func nonNil(tracks []player.Track) []player.Track {
	if tracks == nil {
		return []player.Track{}
	}
	return tracks
}
