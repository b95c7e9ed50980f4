package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/trivia-lobby/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore keeps one string key per lobby with a native expiry.
// CompareAndSwap uses WATCH/MULTI so that a write only lands if nobody else
// wrote the key between our read and our EXEC.
type RedisStore struct {
	rdb *redis.Client
	log logrus.FieldLogger
}

// NewRedisStore wraps a connected client.
func NewRedisStore(rdb *redis.Client, logger logrus.FieldLogger) *RedisStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisStore{rdb: rdb, log: logger}
}

func (s *RedisStore) Get(ctx context.Context, code string) (*models.Lobby, error) {
	data, err := s.rdb.Get(ctx, LobbyKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", LobbyKey(code), err)
	}
	return decodeLobby(data)
}

func (s *RedisStore) Put(ctx context.Context, lobby *models.Lobby, ttl time.Duration) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return fmt.Errorf("marshal lobby %s: %w", lobby.Code, err)
	}
	if err := s.rdb.Set(ctx, LobbyKey(lobby.Code), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", LobbyKey(lobby.Code), err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, lobby *models.Lobby, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(lobby)
	if err != nil {
		return false, fmt.Errorf("marshal lobby %s: %w", lobby.Code, err)
	}
	ok, err := s.rdb.SetNX(ctx, LobbyKey(lobby.Code), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX %s: %w", LobbyKey(lobby.Code), err)
	}
	return ok, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, lobby *models.Lobby, expected int64, ttl time.Duration) error {
	key := LobbyKey(lobby.Code)
	data, err := json.Marshal(lobby)
	if err != nil {
		return fmt.Errorf("marshal lobby %s: %w", lobby.Code, err)
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", models.ErrNotFound, lobby.Code)
		}
		if err != nil {
			return err
		}
		var cur struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("unmarshal stored lobby %s: %w", lobby.Code, err)
		}
		if cur.Version != expected {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}

	err = s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		s.log.WithField("code", lobby.Code).Debug("RedisStore: watched key changed before EXEC")
		return ErrVersionConflict
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, LobbyKey(code)).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", LobbyKey(code), err)
	}
	return nil
}
