package server

import (
	"context"
	"net/http"
	"time"

	"VibeLock/logger"

	"github.com/gorilla/mux"
)

// NewRouter wires every endpoint onto a gorilla/mux router. CORS wraps
// the router itself so preflight requests answer even though no route
// registers OPTIONS.
func NewRouter(api *APIHandler) http.Handler {
	router := mux.NewRouter()

	// 钱包认证
	router.HandleFunc("/api/auth/wallet", api.WalletLoginHandler).Methods(http.MethodPost)

	// 曲库
	router.HandleFunc("/api/tracks/feed", api.FeedHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/discover", api.DiscoverHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/artists/{id}/tracks", api.ArtistTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/dashboard", api.AuthMiddleware(api.DashboardHandler)).Methods(http.MethodGet)

	// 持仓：写入只对链上索引服务开放，用户只能触发刷新
	router.HandleFunc("/api/indexer/balances", api.IndexerMiddleware(api.SetBalanceHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/balances/refresh", api.AuthMiddleware(api.RefreshBalancesHandler)).Methods(http.MethodPost)

	// 播放会话
	sessions := NewSessionHandler(api)
	router.HandleFunc("/api/sessions/{id}/state", api.AuthMiddleware(sessions.GetStateHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/{op}", api.AuthMiddleware(sessions.ControlHandler)).Methods(http.MethodPost)
	router.HandleFunc("/ws/player", sessions.WebSocketHandler)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"sessions": api.manager.Count(),
		})
	}).Methods(http.MethodGet)

	return corsMiddleware(router)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Indexer-Token")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	// 设置服务器超时
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	// 5 秒内未完成的请求直接断开
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
