package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "canvas:"

// Store holds refresh-token sessions. A session is a key per jti plus a set
// per user so all of a user's sessions can be revoked at once.
type Store struct {
	rdb *redis.Client
}

func NewStore(addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func NewStoreFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func refreshKey(jti string) string { return keyPrefix + "refresh:" + jti }

func userSessionsKey(userID uint64) string {
	return keyPrefix + "refresh_user:" + strconv.FormatUint(userID, 10)
}

func (s *Store) SaveRefresh(ctx context.Context, jti string, userID uint64, ttl time.Duration) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, refreshKey(jti), strconv.FormatUint(userID, 10), ttl)
	pipe.SAdd(ctx, userSessionsKey(userID), jti)
	pipe.Expire(ctx, userSessionsKey(userID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) ConsumeRefresh(ctx context.Context, jti string) (uint64, bool, error) {
	v, err := s.rdb.GetDel(ctx, refreshKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	uid, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt refresh session %s: %w", jti, err)
	}
	_ = s.rdb.SRem(ctx, userSessionsKey(uid), jti).Err()
	return uid, true, nil
}

func (s *Store) RevokeUser(ctx context.Context, userID uint64) error {
	setKey := userSessionsKey(userID)
	jtis, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(jtis)+1)
	for _, jti := range jtis {
		keys = append(keys, refreshKey(jti))
	}
	keys = append(keys, setKey)
	return s.rdb.Del(ctx, keys...).Err()
}
