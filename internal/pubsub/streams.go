package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStreamLength caps each channel's replay log.
const DefaultStreamLength = 1000

// StreamEvent represents an event stored in Redis Streams
type StreamEvent struct {
	Channel   string
	ID        string
	Event     map[string]interface{}
	Timestamp time.Time
}

// Streams keeps a bounded per-channel log so reconnecting dashboards can
// catch up on events they missed.
type Streams struct {
	rdb    *redis.Client
	log    *zap.Logger
	maxLen int64
}

// NewStreams creates a new Streams manager
func NewStreams(rdb *redis.Client, log *zap.Logger) *Streams {
	return &Streams{
		rdb:    rdb,
		log:    log,
		maxLen: DefaultStreamLength,
	}
}

func streamKey(channel string) string {
	return "stream:" + channel
}

// Append adds event to the channel's stream and returns its stream ID
func (s *Streams) Append(ctx context.Context, channel string, event map[string]interface{}) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(channel),
		MaxLen: s.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add to stream: %w", err)
	}
	return id, nil
}

// Replay returns up to limit events recorded after afterID. An empty afterID
// replays from the start of the stream.
func (s *Streams) Replay(ctx context.Context, channel, afterID string, limit int64) ([]StreamEvent, error) {
	start := "-"
	if afterID != "" {
		start = "(" + afterID
	}

	msgs, err := s.rdb.XRangeN(ctx, streamKey(channel), start, "+", limit).Result()
	if err == redis.Nil {
		return []StreamEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	events := make([]StreamEvent, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var event map[string]interface{}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			s.log.Warn("Failed to unmarshal event", zap.String("stream_id", msg.ID), zap.Error(err))
			continue
		}
		events = append(events, StreamEvent{
			Channel:   channel,
			ID:        msg.ID,
			Event:     event,
			Timestamp: streamTime(msg.ID),
		})
	}
	return events, nil
}

// streamTime extracts the millisecond timestamp of a "<ms>-<seq>" stream ID.
func streamTime(id string) time.Time {
	ms, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}
