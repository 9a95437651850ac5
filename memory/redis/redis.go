// Package redis provides a Redis Streams backed core.MemorySink. Each agent
// owns one stream; rows are appended with XADD and read back with XRANGE, so
// the durable transcript is append-only by construction.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/redis/go-redis/v9"
)

// ErrConnectionFailed is returned when the server cannot be reached.
var ErrConnectionFailed = errors.New("redis connection failed")

// Config configures the Redis connection.
type Config struct {
	Address     string
	Password    string
	DB          int
	DialTimeout time.Duration
	KeyPrefix   string
	// MaxLen caps each stream approximately; 0 keeps everything.
	MaxLen int64
}

// DefaultConfig returns a configuration for a local server.
func DefaultConfig() Config {
	return Config{
		Address:     "localhost:6379",
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "statemesh:",
	}
}

// Sink appends memory rows to per-agent streams.
type Sink struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
}

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	return &Sink{client: client, keyPrefix: cfg.KeyPrefix, maxLen: cfg.MaxLen}, nil
}

// NewFromClient creates a sink from an existing client.
func NewFromClient(client *redis.Client, keyPrefix string) *Sink {
	return &Sink{client: client, keyPrefix: keyPrefix}
}

// Close closes the client.
func (s *Sink) Close() error { return s.client.Close() }

func (s *Sink) streamKey(agentID string) string {
	return s.keyPrefix + "memory:" + agentID
}

func (s *Sink) agentsKey() string {
	return s.keyPrefix + "memory:agents"
}

// Append adds row to the agent's stream.
func (s *Sink) Append(ctx context.Context, row core.MemoryRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode memory row: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.streamKey(row.AgentID),
		Values: map[string]any{"row": string(data)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	pipe := s.client.TxPipeline()
	pipe.XAdd(ctx, args)
	pipe.SAdd(ctx, s.agentsKey(), row.AgentID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd memory row: %w", err)
	}

	return nil
}

// List reads the agent's stream from the beginning.
func (s *Sink) List(ctx context.Context, agentID string) ([]core.MemoryRow, error) {
	msgs, err := s.client.XRange(ctx, s.streamKey(agentID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange memory rows: %w", err)
	}

	rows := make([]core.MemoryRow, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["row"].(string)
		if !ok {
			continue
		}

		var r core.MemoryRow
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode memory row %s: %w", msg.ID, err)
		}

		rows = append(rows, r)
	}

	return rows, nil
}

// Agents returns the ids of agents that have written rows.
func (s *Sink) Agents(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.agentsKey()).Result()
}
