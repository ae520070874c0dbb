package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PstasDev/biliard-backend/pkg/models"
)

type fakeProfiles struct {
	byUser map[int64]*models.Profile
}

func (f *fakeProfiles) ProfileByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	return f.byUser[userID], nil
}

func newTestGuard() (*Guard, *fakeProfiles) {
	profiles := &fakeProfiles{byUser: map[int64]*models.Profile{
		1: {ID: 10, IsBiro: true},
		2: {ID: 20, IsBiro: false},
	}}
	return NewGuard("test-secret", profiles), profiles
}

func TestIssueAndVerify(t *testing.T) {
	g, _ := newTestGuard()

	access, refresh, err := g.IssueTokens(1)
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}
	if access == "" || refresh == "" || access == refresh {
		t.Fatal("expected distinct non-empty tokens")
	}

	claims, err := g.VerifyToken(access)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.UserID != 1 {
		t.Errorf("user id = %d, want 1", claims.UserID)
	}
	if claims.TokenType != "access" {
		t.Errorf("token type = %q, want access", claims.TokenType)
	}
}

func TestVerifyRejections(t *testing.T) {
	g, _ := newTestGuard()
	other := NewGuard("other-secret", nil)

	foreign, _, err := other.IssueTokens(1)
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty token", "", ErrMissingToken},
		{"garbage token", "not.a.jwt", ErrInvalidToken},
		{"wrong signing key", foreign, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.VerifyToken(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	g, _ := newTestGuard()

	token, _, err := g.IssueTokens(1)
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}

	// Move the guard's clock past the access TTL.
	g.now = func() time.Time { return time.Now().Add(AccessTokenTTL + time.Minute) }

	if _, err := g.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestAuthorizeWriter(t *testing.T) {
	g, profiles := newTestGuard()
	ctx := context.Background()

	refereeToken, _, err := g.IssueTokens(1)
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}
	playerToken, _, err := g.IssueTokens(2)
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}
	strangerToken, _, err := g.IssueTokens(99)
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}

	if err := g.AuthorizeWriter(ctx, refereeToken, 7); err != nil {
		t.Errorf("referee refused: %v", err)
	}
	if err := g.AuthorizeWriter(ctx, playerToken, 7); !errors.Is(err, ErrNotReferee) {
		t.Errorf("err = %v, want ErrNotReferee", err)
	}
	if err := g.AuthorizeWriter(ctx, strangerToken, 7); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken for unknown profile", err)
	}
	if err := g.AuthorizeWriter(ctx, "", 7); !errors.Is(err, ErrMissingToken) {
		t.Errorf("err = %v, want ErrMissingToken", err)
	}

	// Revoking the referee flag revokes the capability on the next check.
	profiles.byUser[1].IsBiro = false
	if err := g.AuthorizeWriter(ctx, refereeToken, 7); !errors.Is(err, ErrNotReferee) {
		t.Errorf("err = %v, want ErrNotReferee after revocation", err)
	}
}

func TestPasswordRoundtrip(t *testing.T) {
	hash, err := HashPassword("nine-ball-rack")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	ok, err := ComparePassword("nine-ball-rack", hash)
	if err != nil || !ok {
		t.Fatalf("ComparePassword = (%v, %v), want match", ok, err)
	}

	ok, err = ComparePassword("wrong", hash)
	if err != nil {
		t.Fatalf("ComparePassword errored: %v", err)
	}
	if ok {
		t.Error("wrong password accepted")
	}

	if _, err := ComparePassword("x", "not-a-hash"); err == nil {
		t.Error("malformed hash should be rejected")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of one password should differ by salt")
	}
}
