package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// facilityClaims 会话令牌载荷：登录机构 + 标准过期字段
type facilityClaims struct {
	FacilityID int64  `json:"facility_id"`
	Code       string `json:"code"`
	jwt.RegisteredClaims
}

// TokenManager 签发/校验机构会话令牌（HS256）
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager 创建 TokenManager
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue 为登录机构签发令牌
func (m *TokenManager) Issue(facilityID int64, code string, now time.Time) (string, error) {
	claims := facilityClaims{
		FacilityID: facilityID,
		Code:       code,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify 校验令牌并返回机构 ID
func (m *TokenManager) Verify(tokenString string) (int64, error) {
	claims := &facilityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}
	return claims.FacilityID, nil
}

// FacilityFromRequest 从 Authorization: Bearer 头解出机构 ID
// 失败时已写好 401 响应，调用方直接 return
func (m *TokenManager) FacilityFromRequest(w http.ResponseWriter, r *http.Request) (int64, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, Result[any]{
			Code: ResultTokenExpired, Type: "error", Message: "login required", Result: nil,
		})
		return 0, false
	}
	facilityID, err := m.Verify(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, Result[any]{
			Code: ResultTokenExpired, Type: "error", Message: "session expired, please log in again", Result: nil,
		})
		return 0, false
	}
	return facilityID, true
}
