package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix = "user:"

	maxUpsertRetries = 10
)

// RedisStore はユーザー情報を Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore は RedisStore を作成します。ttl が 0 の場合は期限なしで保存します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

// Get はユーザー情報を取得します。
func (s *RedisStore) Get(ctx context.Context, subject string) (*User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	data, err := s.rdb.Get(ctx, userKey(subject)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Upsert はユーザー情報を保存します（存在しない場合は作成）。
// 同じ subject への同時ログインは WATCH で検出して再試行します。
func (s *RedisStore) Upsert(ctx context.Context, profile Profile) (*User, error) {
	profile, err := normalize(profile)
	if err != nil {
		return nil, err
	}
	key := userKey(profile.Subject)

	for attempt := 0; attempt < maxUpsertRetries; attempt++ {
		var saved *User
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var existing *User
			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				var record User
				if err := json.Unmarshal(data, &record); err != nil {
					return err
				}
				existing = &record
			}

			user := apply(existing, profile, s.now().UTC())
			payload, err := json.Marshal(user)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			saved = user
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return saved, nil
	}
	return nil, fmt.Errorf("upsert user %s: too much contention", profile.Subject)
}

func userKey(subject string) string {
	return userKeyPrefix + subject
}
