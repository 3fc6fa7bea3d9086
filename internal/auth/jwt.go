package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is a signed access token and its expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Claims represents JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an access token for the actor.
func Issue(actor Actor, issuer, key string, ttl time.Duration) (Token, error) {
	if actor.ID == "" {
		return Token{}, errors.New("actor id required")
	}
	if actor.Role == RoleUnknown {
		return Token{}, ErrUnknownRole
	}
	now := time.Now()
	exp := now.Add(ttl)

	claims := Claims{
		Role: actor.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns the actor it identifies.
func Parse(tokenStr, key, issuer string) (Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(key), nil
	}, opts...)
	if err != nil {
		return Actor{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Actor{}, errors.New("token has no subject")
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: claims.Subject, Role: role}, nil
}
