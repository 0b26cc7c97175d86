package store

import (
	"context"
	"time"

	"github.com/smallbiznis/partnerpay/internal/cache"
	"github.com/smallbiznis/partnerpay/internal/embedtoken/domain"
)

const keyPrefix = "embed:token:"

type TokenStore struct {
	backend cache.Store
}

func New(backend cache.Store) domain.Store {
	return &TokenStore{backend: backend}
}

func Key(token string) string {
	return keyPrefix + token
}

func (s *TokenStore) Save(ctx context.Context, token string, session domain.Session, ttl time.Duration) error {
	return s.backend.Set(ctx, Key(token), session, ttl)
}

func (s *TokenStore) Load(ctx context.Context, token string) (*domain.Session, error) {
	var session domain.Session
	ok, err := s.backend.Get(ctx, Key(token), &session)
	if err != nil || !ok {
		return nil, err
	}
	return &session, nil
}
