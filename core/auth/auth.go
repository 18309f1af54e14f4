package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidWallet = errors.New("invalid wallet address")
	ErrNoSecret      = errors.New("jwt secret not configured")
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// Claims 令牌中携带的钱包身份
type Claims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// Issuer 签发与校验钱包令牌
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an HS256 token issuer.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// NormalizeWallet 校验并规范化 EVM 地址。大小写混写的地址必须通过
// EIP-55 校验和，全小写或全大写的地址不校验。
func NormalizeWallet(wallet string) (string, error) {
	w := strings.TrimSpace(wallet)
	lower := strings.ToLower(w)
	if !walletPattern.MatchString(lower) {
		return "", ErrInvalidWallet
	}

	digits := w[2:]
	if digits != strings.ToLower(digits) && digits != strings.ToUpper(digits) && !validChecksum(digits) {
		return "", ErrInvalidWallet
	}
	return lower, nil
}

// validChecksum: a letter is upper case iff the matching nibble of
// keccak256(lowercase hex) is >= 8.
func validChecksum(digits string) bool {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.ToLower(digits)))
	sum := h.Sum(nil)

	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c >= '0' && c <= '9' {
			continue
		}
		nibble := sum[i/2] >> 4
		if i%2 == 1 {
			nibble = sum[i/2] & 0x0f
		}
		if (c >= 'A' && c <= 'F') != (nibble >= 8) {
			return false
		}
	}
	return true
}

// GenerateToken 为钱包签发令牌
func (i *Issuer) GenerateToken(wallet string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return "", time.Time{}, err
	}

	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		Wallet: w,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   w,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    "vibelock",
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken 校验令牌并返回钱包地址
func (i *Issuer) ParseToken(tokenString string) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrNoSecret
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Wallet == "" {
		return "", ErrInvalidToken
	}
	return claims.Wallet, nil
}
