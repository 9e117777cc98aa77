// Package auth issues and validates the HS256 bearer tokens that identify
// file owners.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkarpov/filevault/internal/common"
)

// Claims includes the registered claims plus the numeric owner id the
// gateway scopes every operation by.
type Claims struct {
	jwt.RegisteredClaims
	OwnerID int64 `json:"owner_id"`
}

// GenerateToken signs a token for the owner, valid for validityDuration.
func GenerateToken(ownerID int64, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		OwnerID: ownerID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetOwnerIDFromToken validates the token and returns the owner id it
// carries. Only HS256 is accepted.
func GetOwnerIDFromToken(tokenString string, secretKey []byte) (int64, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, common.ErrTokenExpired
		}
		return 0, common.ErrInvalidToken
	}

	if !token.Valid || claims.OwnerID <= 0 {
		return 0, common.ErrInvalidToken
	}

	return claims.OwnerID, nil
}
