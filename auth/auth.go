package auth

import (
	"fmt"
	"time"

	"rpsserver/models"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

// TokenLifetime はトークンの有効期限
const TokenLifetime = 72 * time.Hour

// RefreshWindow 以内に期限切れになるトークンは更新される
const RefreshWindow = time.Hour

// JwtKey は起動時に設定ファイルの jwt_secret から設定します
var JwtKey []byte

func SetKey(secret string) {
	JwtKey = []byte(secret)
}

// NewAddress は匿名アカウントのアドレスを生成する
func NewAddress() string {
	return "rps:" + uuid.New().String()
}

// GenerateToken はアドレスを内包したJWTトークンを生成します
func GenerateToken(address string, now time.Time) (string, error) {
	if len(JwtKey) == 0 {
		return "", fmt.Errorf("jwt key is not set")
	}
	claims := &models.MyClaims{
		Address: address,
		StandardClaims: jwt.StandardClaims{
			Subject:   address,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(TokenLifetime).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JwtKey)
}

// ParseToken はトークンを検証し、クレームを返します
func ParseToken(tokenString string) (*models.MyClaims, error) {
	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return JwtKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Address == "" {
		return nil, fmt.Errorf("Invalid token")
	}
	return claims, nil
}

// NeedsRefresh はトークンの有効期限が RefreshWindow 未満かどうかを返す
func NeedsRefresh(claims *models.MyClaims, now time.Time) bool {
	return time.Unix(claims.ExpiresAt, 0).Sub(now) < RefreshWindow
}
