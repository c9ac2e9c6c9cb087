package fanout

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher hands a live event to whatever carries it to the file's viewers.
// Callers treat errors as log-only.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisPublisher publishes events on the Redis channel comments:<fileId>, so
// every instance's Relay can forward them to its local Hub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a Publisher backed by Redis pub/sub.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish runs PUBLISH comments:<fileId> <payload>.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	startTime := time.Now()
	topic := Topic(event.FileID)

	payload, err := event.Encode()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: topic=%s comment=%s err=%v", topic, event.Comment.ID, err)
		return fmt.Errorf("serialize event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, topic, payload).Result()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: topic=%s comment=%s err=%v", topic, event.Comment.ID, err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	log.Printf("[Publisher] Publish OK: topic=%s comment=%s receivers=%d duration=%v",
		topic, event.Comment.ID, receivers, time.Since(startTime))
	return nil
}
