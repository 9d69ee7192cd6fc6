package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"orgmedia/internal/db"
	"orgmedia/internal/metrics"
	"orgmedia/internal/model"
	"orgmedia/internal/storage"
	"orgmedia/internal/thumbnail"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Task types
const (
	TypeChecksum  = "media:checksum"
	TypeThumbnail = "media:thumbnail"
)

// MediaPayload identifies a stored media item and its storage key
type MediaPayload struct {
	ItemID int64  `json:"itemId"`
	Key    string `json:"key"`
}

// ItemStore is the part of the database the workers touch
type ItemStore interface {
	GetMediaItem(ctx context.Context, id int64) (db.MediaItem, error)
	UpdateMediaItemChecksum(ctx context.Context, id int64, sha256 string) error
	UpdateMediaItemThumb(ctx context.Context, id int64, thumbURL string) error
}

// EventPublisher announces finished post-processing
type EventPublisher interface {
	PublishAlbum(albumID string, event map[string]interface{}) error
}

// AlbumInvalidator drops cached album listings after a job changes a row
type AlbumInvalidator interface {
	InvalidateAlbum(albumID string)
}

type JobServer struct {
	server      *asynq.Server
	client      *asynq.Client
	items       ItemStore
	store       storage.Storage
	bus         EventPublisher
	invalidator AlbumInvalidator
	log         *zap.Logger
	thumbMax    int
}

func NewJobServer(redisOpt asynq.RedisClientOpt, items ItemStore, store storage.Storage, bus EventPublisher, log *zap.Logger) (*JobServer, *asynq.Client) {
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"default": 3,
				"low":     1,
			},
			Logger: log.Sugar(),
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server:   server,
		client:   client,
		items:    items,
		store:    store,
		bus:      bus,
		log:      log,
		thumbMax: thumbnail.DefaultMaxDimension,
	}, client
}

// SetInvalidator registers the cache to refresh when a thumbnail lands
func (js *JobServer) SetInvalidator(inv AlbumInvalidator) {
	js.invalidator = inv
}

func (js *JobServer) Start() error {
	return js.server.Start(js.mux())
}

func (js *JobServer) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeChecksum, js.handleChecksum)
	mux.HandleFunc(TypeThumbnail, js.handleThumbnail)
	return mux
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

// Job handlers

func (js *JobServer) handleChecksum(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		metrics.RecordJob(TypeChecksum, "invalid")
		return err
	}

	rc, err := js.store.Get(ctx, p.Key)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted before the worker got to it
		js.log.Info("Stored file gone, skipping checksum", zap.Int64("item_id", p.ItemID), zap.String("key", p.Key))
		metrics.RecordJob(TypeChecksum, "skipped")
		return nil
	}
	if err != nil {
		metrics.RecordJob(TypeChecksum, "failed")
		return fmt.Errorf("failed to open %s: %w", p.Key, err)
	}
	defer rc.Close()

	sum, err := storage.CalculateSHA256(rc)
	if err != nil {
		metrics.RecordJob(TypeChecksum, "failed")
		return fmt.Errorf("failed to hash %s: %w", p.Key, err)
	}

	if err := js.items.UpdateMediaItemChecksum(ctx, p.ItemID, sum); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			metrics.RecordJob(TypeChecksum, "skipped")
			return nil
		}
		metrics.RecordJob(TypeChecksum, "failed")
		return fmt.Errorf("failed to store checksum: %w", err)
	}

	metrics.RecordJob(TypeChecksum, "success")
	js.log.Info("Checksum stored", zap.Int64("item_id", p.ItemID), zap.String("sha256", sum))
	return nil
}

func (js *JobServer) handleThumbnail(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		metrics.RecordJob(TypeThumbnail, "invalid")
		return err
	}

	item, err := js.items.GetMediaItem(ctx, p.ItemID)
	if errors.Is(err, db.ErrNotFound) {
		metrics.RecordJob(TypeThumbnail, "skipped")
		return nil
	}
	if err != nil {
		metrics.RecordJob(TypeThumbnail, "failed")
		return fmt.Errorf("failed to get media item: %w", err)
	}

	// Only images get a rendered thumbnail
	if item.Kind != string(model.MediaKindImage) {
		metrics.RecordJob(TypeThumbnail, "skipped")
		return nil
	}

	rc, err := js.store.Get(ctx, p.Key)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.RecordJob(TypeThumbnail, "skipped")
		return nil
	}
	if err != nil {
		metrics.RecordJob(TypeThumbnail, "failed")
		return fmt.Errorf("failed to open %s: %w", p.Key, err)
	}
	data, err := thumbnail.Generate(rc, js.thumbMax)
	rc.Close()
	if err != nil {
		// Undecodable input will not get better on retry
		metrics.RecordJob(TypeThumbnail, "failed")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	key := ThumbKey(p.Key)
	if err := js.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), thumbnail.ContentType); err != nil {
		metrics.RecordJob(TypeThumbnail, "failed")
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}

	thumbURL := js.store.PublicURL(key)
	if err := js.items.UpdateMediaItemThumb(ctx, item.ID, thumbURL); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			_ = js.store.Delete(ctx, key)
			metrics.RecordJob(TypeThumbnail, "skipped")
			return nil
		}
		metrics.RecordJob(TypeThumbnail, "failed")
		return fmt.Errorf("failed to store thumbnail url: %w", err)
	}

	albumID := strconv.FormatInt(item.AlbumID, 10)
	if js.invalidator != nil {
		js.invalidator.InvalidateAlbum(albumID)
	}
	_ = js.bus.PublishAlbum(albumID, map[string]interface{}{
		"type":         "media.updated",
		"itemId":       strconv.FormatInt(item.ID, 10),
		"thumbnailUrl": thumbURL,
	})

	metrics.RecordJob(TypeThumbnail, "success")
	js.log.Info("Thumbnail stored", zap.Int64("item_id", item.ID), zap.String("key", key))
	return nil
}

func decodePayload(t *asynq.Task) (MediaPayload, error) {
	var p MediaPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.ItemID <= 0 || p.Key == "" {
		return p, fmt.Errorf("invalid %s payload: missing item or key: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}

// ThumbKey maps a stored file key to the key of its thumbnail.
func ThumbKey(key string) string {
	base := path.Base(key)
	return path.Join("thumbs", strings.TrimSuffix(base, path.Ext(base))+".jpg")
}

// Schedule jobs

func newTask(typ string, itemID int64, key string) (*asynq.Task, error) {
	payload, err := json.Marshal(MediaPayload{ItemID: itemID, Key: key})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, payload), nil
}

func EnqueueChecksum(client *asynq.Client, itemID int64, key string) error {
	task, err := newTask(TypeChecksum, itemID, key)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.Queue("default"), asynq.MaxRetry(5))
	return err
}

func EnqueueThumbnail(client *asynq.Client, itemID int64, key string) error {
	task, err := newTask(TypeThumbnail, itemID, key)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.Queue("low"), asynq.MaxRetry(3))
	return err
}
