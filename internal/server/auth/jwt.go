package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims: структура утверждений, которая включает стандартные утверждения и
// идентификатор аккаунта, файлы которого синхронизируются
type Claims struct {
	jwt.RegisteredClaims
	AccountID string
}

// GenerateToken issues a token for accountID. Every token gets its own id.
func GenerateToken(accountID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	id, err := common.MakeRandHexString(16)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		AccountID: accountID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetAccountIDFromToken validates an HS256 token and returns its account.
func GetAccountIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", common.ErrTokenExpired
	}
	if err != nil {
		return "", err
	}

	if !token.Valid || claims.AccountID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.AccountID, nil
}
