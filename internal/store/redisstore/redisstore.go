// Package redisstore caches the merged card index in Redis so busy chats do
// not re-scan card storage on every turn. Imports invalidate the cached
// index, so menus stay fresh; any cache failure degrades to a storage scan.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/krizar/koboldbot/internal/card"
	"github.com/krizar/koboldbot/internal/logging"
)

const (
	indexKey = "koboldbot:cards:index"
	indexTTL = 30 * time.Second
)

type Store struct {
	rdb *redis.Client
	log logging.Logger
}

func New(addr, password string, db int, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb, log: log}
}

func (s *Store) Get(ctx context.Context) (map[string]card.Card, bool) {
	raw, err := s.rdb.Get(ctx, indexKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn(ctx, "card cache read failed", "error", err)
		}
		return nil, false
	}
	index, err := card.UnmarshalIndex(raw)
	if err != nil {
		s.log.Warn(ctx, "card cache corrupt, dropping", "error", err)
		s.Invalidate(ctx)
		return nil, false
	}
	return index, true
}

func (s *Store) Set(ctx context.Context, index map[string]card.Card) {
	raw, err := card.MarshalIndex(index)
	if err != nil {
		s.log.Warn(ctx, "card cache encode failed", "error", err)
		return
	}
	if err := s.rdb.Set(ctx, indexKey, raw, indexTTL).Err(); err != nil {
		s.log.Warn(ctx, "card cache write failed", "error", err)
	}
}

func (s *Store) Invalidate(ctx context.Context) {
	if err := s.rdb.Del(ctx, indexKey).Err(); err != nil {
		s.log.Warn(ctx, "card cache invalidate failed", "error", err)
	}
}

func (s *Store) Close() error { return s.rdb.Close() }
