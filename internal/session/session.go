// Package session tracks question/answer sessions in Redis.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Exchange is one question/answer pair cached for a session.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// recentLimit caps how many exchanges a session keeps in Redis.
const recentLimit = 20

// Store issues session ids and keeps each session's recent exchanges with a
// sliding TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(addr, password string, db int, ttl time.Duration) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: rdb, ttl: ttl}
}

func metaKey(id string) string    { return fmt.Sprintf("session:%s:meta", id) }
func historyKey(id string) string { return fmt.Sprintf("session:%s:history", id) }

// EnsureSession returns id if that session is still alive, refreshing its TTL,
// or creates a fresh session otherwise. An empty id always creates one.
func (s *Store) EnsureSession(ctx context.Context, id string) (string, error) {
	if id != "" {
		exists, err := s.client.Exists(ctx, metaKey(id)).Result()
		if err == nil && exists == 1 {
			_ = s.client.Expire(ctx, metaKey(id), s.ttl).Err()
			return id, nil
		}
	}
	newID := uuid.NewString()
	if err := s.client.Set(ctx, metaKey(newID), "{}", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return newID, nil
}

// AppendExchange records one exchange, keeping only the most recent ones.
func (s *Store) AppendExchange(ctx context.Context, id string, ex Exchange) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	key := historyKey(id)
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	_ = s.client.LTrim(ctx, key, -recentLimit, -1).Err()
	return s.client.Expire(ctx, key, s.ttl).Err()
}

// RecentExchanges returns the session's cached exchanges, oldest first.
func (s *Store) RecentExchanges(ctx context.Context, id string) ([]Exchange, error) {
	vals, err := s.client.LRange(ctx, historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent exchanges: %w", err)
	}
	exchanges := make([]Exchange, 0, len(vals))
	for _, v := range vals {
		var ex Exchange
		if err := json.Unmarshal([]byte(v), &ex); err != nil {
			continue
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
