package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/auth"
	"github.com/suPer8Hu/canvas-platform/internal/store/redisstore"
)

func TestPasswordHash(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !auth.CheckPassword(hash, "hunter2") {
		t.Fatalf("correct password rejected")
	}
	if auth.CheckPassword(hash, "hunter3") {
		t.Fatalf("wrong password accepted")
	}
}

func TestParseAccess(t *testing.T) {
	iss := auth.NewIssuer("s3cret", time.Minute, time.Hour, nil)
	pair, err := iss.IssuePair(context.Background(), 5)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, err := iss.ParseAccess(pair.Access)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.UserID != 5 || id.Trust != auth.TrustClaim {
		t.Fatalf("unexpected identity %+v", id)
	}

	// a refresh token is not an access token
	if _, err := iss.ParseAccess(pair.Refresh); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}

	other := auth.NewIssuer("different", time.Minute, time.Hour, nil)
	if _, err := other.ParseAccess(pair.Access); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("token with foreign signature accepted: %v", err)
	}
}

func TestParseAccess_Expired(t *testing.T) {
	token, _, err := auth.SignJWT(3, auth.TokenAccess, "s3cret", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	iss := auth.NewIssuer("s3cret", time.Minute, time.Hour, nil)
	if _, err := iss.ParseAccess(token); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestRefresh_RotatesOnceWithStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	iss := auth.NewIssuer("s3cret", time.Minute, time.Hour, redisstore.NewStoreFromClient(rdb))
	ctx := context.Background()

	pair, err := iss.IssuePair(ctx, 11)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	next, err := iss.Refresh(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Refresh == pair.Refresh {
		t.Fatalf("refresh token was not rotated")
	}
	if _, err := iss.Refresh(ctx, pair.Refresh); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("reused refresh token accepted: %v", err)
	}

	if err := iss.RevokeUser(ctx, 11); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := iss.Refresh(ctx, next.Refresh); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("revoked refresh token accepted: %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: 8, Trust: auth.TrustClaim})
	id, ok := auth.IdentityFrom(ctx)
	if !ok || id.UserID != 8 {
		t.Fatalf("identity lost: %+v ok=%v", id, ok)
	}
	if _, ok := auth.IdentityFrom(context.Background()); ok {
		t.Fatalf("empty context should carry no identity")
	}
}
