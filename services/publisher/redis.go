package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"sjsage522/srpauditor/logger"
	apperrors "sjsage522/srpauditor/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher implements Publisher using Redis streams, one stream per
// report type
type RedisPublisher struct {
	client          *redis.Client
	streamPrefix    string
	streamMaxLength int
	log             *logger.Logger
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(addr string, db int, streamPrefix string, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisPublisher{
		client:          client,
		streamPrefix:    streamPrefix,
		streamMaxLength: streamMaxLength,
		log:             logger.ForPublisher().WithField("prefix", streamPrefix),
	}
}

// Stream returns the stream name for a report type
func (p *RedisPublisher) Stream(report string) string {
	return p.streamPrefix + ":" + strings.ToLower(report)
}

// Ping checks the connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish publishes an envelope to a Redis stream.
// The JSON payload is base64 encoded before publishing.
func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return apperrors.NewPublisher("failed to encode report row", err)
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Stream(env.Report),
		Values: map[string]interface{}{
			"site":        env.Site,
			"run":         env.RunID,
			"b64_payload": encoded,
		},
	}).Err()
	if err != nil {
		return apperrors.NewPublisher("failed to publish to "+p.Stream(env.Report), err)
	}
	return nil
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	// Get all streams with the prefix
	pattern := p.streamPrefix + ":*"
	streams, err := p.client.Keys(ctx, pattern).Result()
	if err != nil {
		return apperrors.NewPublisher("failed to list streams", err)
	}

	for _, stream := range streams {
		if err := p.client.XTrimMaxLen(ctx, stream, int64(p.streamMaxLength)).Err(); err != nil {
			return apperrors.NewPublisher("failed to trim "+stream, err)
		}
	}
	p.log.Debug().Int("streams", len(streams)).Int("max_length", p.streamMaxLength).Msg("Trimmed report streams")

	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// DecodePayload reverses the stream encoding of an envelope
func DecodePayload(encoded string) (Envelope, error) {
	var env Envelope
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return env, err
	}
	err = json.Unmarshal(raw, &env)
	return env, err
}
