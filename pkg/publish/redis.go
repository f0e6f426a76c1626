// Package publish fans run summaries out over Redis pub/sub and keeps the
// latest one under a well-known key.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hed1ad/accessguard/pkg/logger"
	"github.com/hed1ad/accessguard/pkg/risk"
)

// DefaultChannel carries run summaries.
const DefaultChannel = "accessguard:reports"

// Message is the published view of one run.
type Message struct {
	RunID          string             `json:"run_id"`
	GeneratedAt    time.Time          `json:"generated_at"`
	TotalEntities  int                `json:"total_entities"`
	LevelCounts    map[risk.Level]int `json:"risk_level_counts"`
	HighRisk       []string           `json:"high_risk"`
	TopN           []risk.Record      `json:"top_n"`
	MethodsSkipped []risk.Skipped     `json:"methods_skipped"`
}

// NewMessage summarizes a report.
func NewMessage(r *risk.Report) Message {
	return Message{
		RunID:          r.RunID,
		GeneratedAt:    r.GeneratedAt,
		TotalEntities:  r.Summary.TotalEntities,
		LevelCounts:    r.Summary.LevelCounts,
		HighRisk:       r.Summary.HighRisk,
		TopN:           r.Summary.TopN,
		MethodsSkipped: r.Summary.MethodsSkipped,
	}
}

// redisClient is the subset of *redis.Client the publisher needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Publisher sends messages to one channel.
type Publisher struct {
	client  redisClient
	channel string
	log     *zap.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(addr, password string, db int, channel string, log *zap.Logger) (*Publisher, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newPublisher(client, channel, log), nil
}

func newPublisher(client redisClient, channel string, log *zap.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel, log: logger.OrNop(log)}
}

// LatestKey holds the most recent message.
func (p *Publisher) LatestKey() string {
	return p.channel + ":latest"
}

// Publish stores the summary under LatestKey and announces it on the channel.
func (p *Publisher) Publish(ctx context.Context, r *risk.Report) error {
	payload, err := json.Marshal(NewMessage(r))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if err := p.client.Set(ctx, p.LatestKey(), payload, 0).Err(); err != nil {
		return fmt.Errorf("store latest: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.log.Debug("summary published",
		zap.String("run_id", r.RunID),
		zap.String("channel", p.channel),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// Latest returns the most recently published message, or nil if none.
func (p *Publisher) Latest(ctx context.Context) (*Message, error) {
	raw, err := p.client.Get(ctx, p.LatestKey()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
