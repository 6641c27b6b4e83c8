// Package realtime carries like-count-changed events from the sync bridge to
// live clients. Events travel over a Redis pub/sub channel between processes
// and fan out to browser tabs through a websocket hub. Delivery is
// best-effort: a dropped event only delays a count until the next page read.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Event is one like-count change.
type Event struct {
	PostID    string `json:"post_id"`
	LikeCount int64  `json:"like_count"`
}

// DefaultChannel is the pub/sub channel name used when none is configured.
const DefaultChannel = "suplatzigram:likes"

// Channel publishes and subscribes to engagement events over Redis pub/sub.
type Channel struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

// NewChannel wraps an existing Redis connection. An empty name selects
// DefaultChannel.
func NewChannel(client *redis.Client, name string, log *slog.Logger) *Channel {
	if name == "" {
		name = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &Channel{client: client, channel: name, log: log}
}

// PublishLikeCount broadcasts a count change. Implements syncbridge.Publisher.
func (c *Channel) PublishLikeCount(ctx context.Context, postID string, count int64) error {
	payload, err := json.Marshal(Event{PostID: postID, LikeCount: count})
	if err != nil {
		return fmt.Errorf("realtime: marshal event: %w", err)
	}
	if err := c.client.Publish(ctx, c.channel, payload).Err(); err != nil {
		return fmt.Errorf("realtime: publish: %w", err)
	}
	return nil
}

// Subscribe delivers incoming events to handler until ctx is cancelled.
// Malformed payloads are logged and skipped.
func (c *Channel) Subscribe(ctx context.Context, handler func(Event)) error {
	sub := c.client.Subscribe(ctx, c.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.log.Warn("realtime: dropping malformed event", "error", err)
				continue
			}
			handler(event)
		}
	}
}
