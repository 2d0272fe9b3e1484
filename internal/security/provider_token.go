package security

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ProviderClaims is the subset of the hosted identity platform's access
// token this service relies on. The platform signs with HS256 using the
// project secret.
type ProviderClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func ParseProviderToken(tokenStr string, secret string) (*ProviderClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ProviderClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*ProviderClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
