package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"VibeLock/core/auth"
	"VibeLock/logger"
)

type ctxKey string

const walletKey ctxKey = "wallet"

// WalletLoginRequest 钱包登录请求
type WalletLoginRequest struct {
	Wallet string `json:"wallet"`
}

// WalletLoginResponse 登录成功返回的 token
type WalletLoginResponse struct {
	Token     string    `json:"token"`
	Wallet    string    `json:"wallet"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// WalletLoginHandler issues a token for a wallet address. Ownership of the
// address is proven upstream by the wallet-connect handshake in front of
// this service; the handler only validates the address format.
func (h *APIHandler) WalletLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req WalletLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("[Auth] 解析请求体失败", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := h.issuer.GenerateToken(req.Wallet)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidWallet) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("[Auth] 生成 token 失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	wallet, _ := auth.NormalizeWallet(req.Wallet)
	logger.Info("[Auth] 钱包登录", logger.String("wallet", wallet))
	writeJSON(w, http.StatusOK, WalletLoginResponse{Token: token, Wallet: wallet, ExpiresAt: expiresAt})
}

// AuthMiddleware checks the bearer token and puts the wallet on the context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		wallet, err := h.issuer.ParseToken(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithWallet(r.Context(), wallet)))
	}
}

// WithWallet 把钱包地址放入上下文
func WithWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, walletKey, wallet)
}

// WalletFromContext extracts the authenticated wallet.
func WalletFromContext(ctx context.Context) (string, bool) {
	wallet, ok := ctx.Value(walletKey).(string)
	return wallet, ok && wallet != ""
}
