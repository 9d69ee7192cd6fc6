package pubsub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"orgmedia/internal/model"
	"orgmedia/internal/upload"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel prefixes carried by the bus
const (
	AlbumPrefix  = "album:"
	AdvertPrefix = "advert:"
	UploadPrefix = "upload:"
)

// AllowedChannel reports whether clients may subscribe to channel.
func AllowedChannel(channel string) bool {
	for _, p := range []string{AlbumPrefix, AdvertPrefix, UploadPrefix} {
		if strings.HasPrefix(channel, p) && len(channel) > len(p) {
			return true
		}
	}
	return false
}

type Bus struct {
	rdb     *redis.Client
	log     *zap.Logger
	ctx     context.Context
	wsHub   WSHub
	streams *Streams
}

type WSHub interface {
	Publish(channel string, message map[string]interface{})
}

func New(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{
		rdb:     rdb,
		log:     log,
		ctx:     context.Background(),
		streams: NewStreams(rdb, log),
	}
}

// SetWSHub sets the WebSocket hub for event broadcasting
func (b *Bus) SetWSHub(hub WSHub) {
	b.wsHub = hub
}

// Streams returns the replay log
func (b *Bus) Streams() *Streams {
	return b.streams
}

// PublishAlbum publishes an event to an album's channel
func (b *Bus) PublishAlbum(albumID string, event map[string]interface{}) error {
	return b.Publish(AlbumPrefix+albumID, event)
}

// PublishAdvert publishes an event to an advert's channel
func (b *Bus) PublishAdvert(advertID string, event map[string]interface{}) error {
	return b.Publish(AdvertPrefix+advertID, event)
}

// Publish publishes an event to a channel
func (b *Bus) Publish(channel string, event map[string]interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Publish to Redis pub/sub
	err = b.rdb.Publish(b.ctx, channel, data).Err()
	if err != nil {
		b.log.Error("Failed to publish event", zap.String("channel", channel), zap.Error(err))
		return err
	}

	// Also append to the stream for replay
	id, err := b.streams.Append(b.ctx, channel, event)
	if err != nil {
		b.log.Warn("Failed to append to stream", zap.String("channel", channel), zap.Error(err))
	}

	if b.wsHub != nil {
		b.wsHub.Publish(channel, withStreamID(event, id))
	}

	b.log.Debug("Published event", zap.String("channel", channel), zap.String("stream_id", id), zap.String("event", string(data)))
	return nil
}

// Relay forwards events that other processes publish on the given patterns
// to the hub. It blocks until ctx is done.
func (b *Bus) Relay(ctx context.Context, patterns ...string) error {
	sub := b.rdb.PSubscribe(ctx, patterns...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.log.Info("Relaying events", zap.Strings("patterns", patterns))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.Warn("Dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if b.wsHub != nil {
				b.wsHub.Publish(msg.Channel, event)
			}
		}
	}
}

// progressBuffer bounds the notifications waiting for Redis. Once full,
// further ones are dropped.
const progressBuffer = 256

// ProgressReporter publishes upload progress for one target to
// "upload:<targetID>". Report only queues; a background goroutine does the
// PUBLISH, so a slow or broken Redis never holds up the upload. Failures are
// logged and otherwise ignored. Close flushes the queue.
type ProgressReporter struct {
	bus     *Bus
	target  string
	publish func(ctx context.Context, channel string, data []byte) error
	queue   chan model.UploadProgress
	feed    *upload.ChanReporter
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (b *Bus) ProgressReporter(targetID string) *ProgressReporter {
	return newProgressReporter(b, targetID, func(ctx context.Context, channel string, data []byte) error {
		return b.rdb.Publish(ctx, channel, data).Err()
	})
}

func newProgressReporter(b *Bus, targetID string, publish func(ctx context.Context, channel string, data []byte) error) *ProgressReporter {
	queue := make(chan model.UploadProgress, progressBuffer)
	r := &ProgressReporter{
		bus:     b,
		target:  targetID,
		publish: publish,
		queue:   queue,
		feed:    upload.NewChanReporter(queue),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *ProgressReporter) Report(p model.UploadProgress) {
	r.feed.Report(p)
}

// Close publishes what is still queued and stops the reporter. Reports made
// after Close are dropped.
func (r *ProgressReporter) Close() {
	r.once.Do(func() { close(r.stop) })
	<-r.done
	if n := r.feed.Dropped(); n > 0 {
		r.bus.log.Debug("Progress notifications dropped", zap.String("target_id", r.target), zap.Int64("dropped", n))
	}
}

func (r *ProgressReporter) run() {
	defer close(r.done)
	for {
		select {
		case p := <-r.queue:
			r.send(p)
		case <-r.bus.ctx.Done():
			return
		case <-r.stop:
			for {
				select {
				case p := <-r.queue:
					r.send(p)
				default:
					return
				}
			}
		}
	}
}

func (r *ProgressReporter) send(p model.UploadProgress) {
	data, err := json.Marshal(ProgressEvent(p))
	if err != nil {
		return
	}
	if err := r.publish(r.bus.ctx, UploadPrefix+r.target, data); err != nil {
		r.bus.log.Debug("Failed to publish progress", zap.String("target_id", r.target), zap.Error(err))
	}
}

// ProgressEvent renders a progress snapshot as a bus event.
func ProgressEvent(p model.UploadProgress) map[string]interface{} {
	event := map[string]interface{}{
		"type":       "upload.progress",
		"status":     string(p.Status),
		"loaded":     p.Loaded,
		"total":      p.Total,
		"percentage": p.Percentage,
	}
	if p.CurrentFile != "" {
		event["currentFile"] = p.CurrentFile
	}
	if p.TotalFiles > 0 {
		event["fileIndex"] = p.FileIndex
		event["totalFiles"] = p.TotalFiles
	}
	if p.Error != "" {
		event["error"] = p.Error
	}
	return event
}

func withStreamID(event map[string]interface{}, id string) map[string]interface{} {
	out := make(map[string]interface{}, len(event)+1)
	for k, v := range event {
		out[k] = v
	}
	if id != "" {
		out["streamId"] = id
	}
	return out
}
