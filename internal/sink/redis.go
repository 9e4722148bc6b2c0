package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "dialogue:entries"

// RedisConfig configures a RedisMirror.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen caps the stream length (approximate trimming). 0 keeps everything.
	MaxLen int64
}

// RedisMirror publishes entries to a Redis stream for live consumers. It
// is a secondary sink; the JSONL file stays authoritative.
type RedisMirror struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewRedisMirror connects and pings the server.
func NewRedisMirror(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisMirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, &PersistenceError{Op: "redis connect", Path: cfg.Addr, Err: err}
	}

	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisMirror{
		client: client,
		stream: stream,
		maxLen: cfg.MaxLen,
		logger: logger.With(zap.String("component", "redis_mirror"), zap.String("stream", stream)),
	}, nil
}

func (m *RedisMirror) Stream() string { return m.stream }

// Publish appends entry to the stream and returns the assigned message ID.
func (m *RedisMirror) Publish(ctx context.Context, entry simulation.LogEntry) (string, error) {
	line, err := Encode(entry)
	if err != nil {
		return "", err
	}
	args := &redis.XAddArgs{
		Stream: m.stream,
		Values: map[string]any{
			"experiment_id": entry.ExperimentID,
			"turn_id":       entry.TurnID,
			"entry":         string(line[:len(line)-1]),
		},
	}
	if m.maxLen > 0 {
		args.MaxLen = m.maxLen
		args.Approx = true
	}
	id, err := m.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", &PersistenceError{Op: "xadd", Path: m.stream, Err: err}
	}
	m.logger.Debug("entry mirrored",
		zap.String("id", id),
		zap.String("experiment_id", entry.ExperimentID),
		zap.Int("turn_id", entry.TurnID),
	)
	return id, nil
}

// Close releases the connection pool.
func (m *RedisMirror) Close() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("sink: closing redis: %w", err)
	}
	return nil
}
