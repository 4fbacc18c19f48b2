// Package auth resolves bearer tokens to platform users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// Resolver validates HS256 tokens carrying a user_id claim
type Resolver struct {
	users  interfaces.UserStore
	secret []byte
	ttl    time.Duration
}

func NewResolver(users interfaces.UserStore, secret string, ttl time.Duration) *Resolver {
	return &Resolver{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// IssueToken signs a token for user, valid for the configured TTL
func (r *Resolver) IssueToken(user *types.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"exp":      now.Add(r.ttl).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature and expiry and returns the claims
func (r *Resolver) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Resolve implements interfaces.IdentityResolver
func (r *Resolver) Resolve(ctx context.Context, credential string) (*types.User, error) {
	if credential == "" {
		return nil, ErrMissingToken
	}

	claims, err := r.ValidateToken(credential)
	if err != nil {
		return nil, err
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || !types.IsValidID(int64(userIDFloat)) {
		return nil, fmt.Errorf("%w: invalid user ID in token", ErrInvalidToken)
	}

	user, err := r.users.GetUser(ctx, int64(userIDFloat))
	if errors.Is(err, interfaces.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// ExtractToken reads the credential from the token query parameter or an
// Authorization: Bearer header, in that order
func ExtractToken(req *http.Request) string {
	if token := req.URL.Query().Get("token"); token != "" {
		return token
	}
	header := req.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
