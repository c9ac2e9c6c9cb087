package fanout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Relay forwards every comments:* message from Redis into the local Hub.
type Relay struct {
	client *redis.Client
	hub    *Hub

	ready     chan struct{}
	readyOnce sync.Once
}

// NewRelay creates a relay feeding hub.
func NewRelay(client *redis.Client, hub *Hub) *Relay {
	return &Relay{
		client: client,
		hub:    hub,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the pattern subscription is confirmed by Redis.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to comments:* and blocks until ctx is cancelled.
// Malformed messages are logged and skipped.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, TopicPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("[Relay] PSubscribe FAILED: pattern=%s err=%v", TopicPattern, err)
		return fmt.Errorf("psubscribe %s: %w", TopicPattern, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	log.Printf("[Relay] Listening on pattern=%s", TopicPattern)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Relay] Shutting down")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("relay: subscription channel closed")
			}
			ev, err := ParseEvent(msg.Channel, msg.Payload)
			if err != nil {
				log.Printf("[Relay] Skipping malformed message: channel=%s err=%v", msg.Channel, err)
				continue
			}
			n := r.hub.Broadcast(ev)
			log.Printf("[Relay] Delivered: topic=%s comment=%s subscribers=%d", msg.Channel, ev.Comment.ID, n)
		}
	}
}
