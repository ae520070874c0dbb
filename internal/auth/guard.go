package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PstasDev/biliard-backend/pkg/models"
)

// Token lifetimes
const (
	AccessTokenTTL  = 60 * time.Minute
	RefreshTokenTTL = 24 * time.Hour
)

// Guard failure taxonomy
var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNotReferee   = errors.New("biro permission required")
)

// ProfileLookup loads the profile bound to an account. Returns (nil, nil)
// when the user has no profile.
type ProfileLookup interface {
	ProfileByUserID(ctx context.Context, userID int64) (*models.Profile, error)
}

// Claims is the payload of an access token.
type Claims struct {
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Guard issues and verifies access tokens and decides writer capability.
// The match id is accepted for the capability check but unused today: a
// referee may administer any match.
type Guard struct {
	secret   []byte
	profiles ProfileLookup
	now      func() time.Time
}

// NewGuard creates a guard signing with the given HMAC secret.
func NewGuard(secret string, profiles ProfileLookup) *Guard {
	return &Guard{secret: []byte(secret), profiles: profiles, now: time.Now}
}

// IssueTokens returns a signed (access, refresh) pair for a user.
func (g *Guard) IssueTokens(userID int64) (access string, refresh string, err error) {
	access, err = g.sign(userID, "access", AccessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = g.sign(userID, "refresh", RefreshTokenTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (g *Guard) sign(userID int64, tokenType string, ttl time.Duration) (string, error) {
	now := g.now()
	claims := &Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "biliard-backend",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks signature and expiry and returns the claims.
func (g *Guard) VerifyToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithTimeFunc(g.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate resolves a token to its profile, without requiring the
// referee flag.
func (g *Guard) Authenticate(ctx context.Context, tokenString string) (*models.Profile, error) {
	claims, err := g.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	profile, err := g.profiles.ProfileByUserID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, ErrInvalidToken
	}
	return profile, nil
}

// AuthorizeWriter grants writer capability for a match: a valid token whose
// profile carries the referee flag. The token is otherwise opaque to callers.
func (g *Guard) AuthorizeWriter(ctx context.Context, tokenString string, matchID int64) error {
	if tokenString == "" {
		return ErrMissingToken
	}
	profile, err := g.Authenticate(ctx, tokenString)
	if err != nil {
		return err
	}
	if !profile.IsBiro {
		return ErrNotReferee
	}
	return nil
}
