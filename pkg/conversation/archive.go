package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Archive mirrors committed turns to durable storage so operators can read
// transcripts out of band. It is write-behind and best-effort: archive
// failures never fail a turn.
type Archive interface {
	// AppendTurn records one completed exchange for a session.
	AppendTurn(ctx context.Context, sessionKey string, user, assistant Message) error

	// Transcript returns all archived entries for a session in order.
	Transcript(ctx context.Context, sessionKey string) ([]Message, error)

	// Close releases resources held by the archive.
	Close() error
}

// NopArchive discards everything. Used when no archive backend is configured.
type NopArchive struct{}

func (NopArchive) AppendTurn(ctx context.Context, sessionKey string, user, assistant Message) error {
	return nil
}

func (NopArchive) Transcript(ctx context.Context, sessionKey string) ([]Message, error) {
	return nil, nil
}

func (NopArchive) Close() error { return nil }

// RedisArchive stores transcripts as Redis lists, one per session key.
type RedisArchive struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration for the archive.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for transcript lists (default "rpg:transcript:").
	Prefix string
	// TTL is the transcript expiry duration (0 = never expire).
	TTL time.Duration
}

// NewRedisArchive creates a Redis-backed archive and verifies connectivity.
func NewRedisArchive(cfg RedisConfig) (*RedisArchive, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisArchiveFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisArchiveFromClient creates an archive from an existing client.
// Useful for testing with miniredis.
func NewRedisArchiveFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisArchive {
	if prefix == "" {
		prefix = "rpg:transcript:"
	}
	return &RedisArchive{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (a *RedisArchive) key(sessionKey string) string {
	return a.prefix + normalizeKey(sessionKey)
}

// AppendTurn implements Archive.
func (a *RedisArchive) AppendTurn(ctx context.Context, sessionKey string, user, assistant Message) error {
	userData, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user entry: %w", err)
	}
	assistantData, err := json.Marshal(assistant)
	if err != nil {
		return fmt.Errorf("marshal assistant entry: %w", err)
	}

	pipe := a.client.Pipeline()
	pipe.RPush(ctx, a.key(sessionKey), userData, assistantData)
	if a.ttl > 0 {
		pipe.Expire(ctx, a.key(sessionKey), a.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Transcript implements Archive.
func (a *RedisArchive) Transcript(ctx context.Context, sessionKey string) ([]Message, error) {
	data, err := a.client.LRange(ctx, a.key(sessionKey), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	msgs := make([]Message, 0, len(data))
	for _, d := range data {
		var msg Message
		if err := json.Unmarshal([]byte(d), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Ping reports whether the Redis backend is reachable. Health checks use it.
func (a *RedisArchive) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

// Close implements Archive.
func (a *RedisArchive) Close() error {
	return a.client.Close()
}
