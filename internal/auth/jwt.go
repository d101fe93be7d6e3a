package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

type Claims struct {
	UserID    uint64 `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RefreshStore keeps server-side refresh sessions so a refresh token works once.
type RefreshStore interface {
	SaveRefresh(ctx context.Context, jti string, userID uint64, ttl time.Duration) error
	// ConsumeRefresh deletes the session and reports whether it existed.
	ConsumeRefresh(ctx context.Context, jti string) (userID uint64, ok bool, err error)
	RevokeUser(ctx context.Context, userID uint64) error
}

// SignJWT signs an HS256 token carrying user_id and token_type. It returns the jti.
func SignJWT(userID uint64, tokenType, secret string, ttl time.Duration) (string, string, error) {
	now := time.Now()
	jti := uuid.NewString()
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

// ParseJWT verifies signature, expiry and token_type.
func ParseJWT(tokenStr, secret, wantType string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, errors.New("token has no user_id")
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("expected %s token, got %q", wantType, claims.TokenType)
	}
	return &claims, nil
}

type Issuer struct {
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshStore
}

// NewIssuer builds the token issuer. store may be nil, in which case refresh
// tokens are only checked for signature and expiry.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, store RefreshStore) *Issuer {
	return &Issuer{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL, store: store}
}

func (i *Issuer) IssuePair(ctx context.Context, userID uint64) (TokenPair, error) {
	access, _, err := SignJWT(userID, TokenAccess, i.secret, i.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access: %w", err)
	}
	refresh, jti, err := SignJWT(userID, TokenRefresh, i.secret, i.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh: %w", err)
	}
	if i.store != nil {
		if err := i.store.SaveRefresh(ctx, jti, userID, i.refreshTTL); err != nil {
			return TokenPair{}, fmt.Errorf("save refresh session: %w", err)
		}
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// ParseAccess turns a bearer token into a claim-trusted Identity.
func (i *Issuer) ParseAccess(token string) (Identity, error) {
	claims, err := ParseJWT(token, i.secret, TokenAccess)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.KindUnauthorized, "invalid or expired token", err)
	}
	return Identity{UserID: claims.UserID, Trust: TrustClaim}, nil
}

// Refresh rotates a refresh token into a new pair. With a store, each refresh
// token is accepted once.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := ParseJWT(refreshToken, i.secret, TokenRefresh)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.KindUnauthorized, "invalid or expired refresh token", err)
	}
	if i.store != nil {
		uid, ok, err := i.store.ConsumeRefresh(ctx, claims.ID)
		if err != nil {
			return TokenPair{}, fmt.Errorf("consume refresh session: %w", err)
		}
		if !ok || uid != claims.UserID {
			return TokenPair{}, apperr.Unauthorized("refresh token already used or revoked")
		}
	}
	return i.IssuePair(ctx, claims.UserID)
}

// RevokeUser drops every stored refresh session of userID.
func (i *Issuer) RevokeUser(ctx context.Context, userID uint64) error {
	if i.store == nil {
		return nil
	}
	return i.store.RevokeUser(ctx, userID)
}
