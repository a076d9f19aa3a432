package users

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore はプロセス内にユーザーを保持します。ローカル開発とテスト用です。
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User
	now   func() time.Time
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]User),
		now:   time.Now,
	}
}

// Upsert はユーザーを作成または更新します。
func (s *MemoryStore) Upsert(ctx context.Context, profile Profile) (*User, error) {
	profile, err := normalize(profile)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *User
	if u, ok := s.users[profile.Subject]; ok {
		existing = &u
	}
	user := apply(existing, profile, s.now().UTC())
	s.users[profile.Subject] = *user

	out := *user
	return &out, nil
}

// Get はユーザーを取得します。
func (s *MemoryStore) Get(ctx context.Context, subject string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[strings.TrimSpace(subject)]
	if !ok {
		return nil, nil
	}
	return &u, nil
}
