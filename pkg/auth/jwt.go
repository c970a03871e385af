// Package auth 提供信令对端的 JWT 认证
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "linkkit-signaling"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrMissingToken = errors.New("missing token")
)

// Claims JWT claims
type Claims struct {
	PeerID string `json:"peer_id"`
	jwt.RegisteredClaims
}

// JWTValidator JWT 签发与验证（HMAC）
type JWTValidator struct {
	secretKey []byte
}

// NewJWTValidator 创建 JWT 验证器
func NewJWTValidator(secretKey string) *JWTValidator {
	return &JWTValidator{
		secretKey: []byte(secretKey),
	}
}

// Validate 验证 JWT token
func (v *JWTValidator) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secretKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PeerID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateToken 为 peer 签发 token
func (v *JWTValidator) GenerateToken(peerID string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		PeerID: peerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   peerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}

// ValidateOrMock 验证或 Mock（开发环境）
// 如果 token 为空或以 "dev_" 开头，直接返回 mock claims
func (v *JWTValidator) ValidateOrMock(tokenString string, mockPeerID string) (*Claims, error) {
	if tokenString == "" || strings.HasPrefix(tokenString, "dev_") {
		if mockPeerID == "" {
			return nil, ErrInvalidToken
		}
		return &Claims{PeerID: mockPeerID}, nil
	}

	return v.Validate(tokenString)
}

// TokenFromRequest 从 Authorization: Bearer 头或 token 查询参数读取 token
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return r.URL.Query().Get("token")
}
