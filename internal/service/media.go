package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"orgmedia/internal/db"
	"orgmedia/internal/media"
	"orgmedia/internal/metrics"
	"orgmedia/internal/model"
	"orgmedia/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Storage subfolders
const (
	AlbumFolder  = "media2"
	AdvertFolder = "media"
)

// ErrNotFound is returned for unknown albums, items and adverts
var ErrNotFound = errors.New("not found")

// Repository is the subset of db.Queries the service depends on
type Repository interface {
	CreateAlbum(ctx context.Context, p db.CreateAlbumParams) (db.Album, error)
	GetAlbum(ctx context.Context, id int64) (db.Album, error)
	GetAlbumBySlug(ctx context.Context, slug string) (db.Album, error)
	SlugExists(ctx context.Context, slug string) (bool, error)

	CreateMediaItem(ctx context.Context, p db.CreateMediaItemParams) (db.MediaItem, error)
	ListMediaItems(ctx context.Context, albumID int64) ([]db.MediaItem, error)
	DeleteMediaItem(ctx context.Context, albumID, id int64) (db.MediaItem, error)

	CreateAdvert(ctx context.Context, p db.CreateAdvertParams) (db.Advert, error)
	GetAdvert(ctx context.Context, id int64) (db.Advert, error)
	ListAdverts(ctx context.Context, activeOnly bool) ([]db.Advert, error)
	SetAdvertMedia(ctx context.Context, id int64, kind, url string) (db.Advert, error)
}

type EventBus interface {
	PublishAlbum(albumID string, event map[string]interface{}) error
	PublishAdvert(advertID string, event map[string]interface{}) error
}

// FileError describes a file the backend refused
type FileError struct {
	Name    string
	Message string
}

func (e *FileError) Error() string {
	return e.Message
}

// StoreResult lists what an album upload produced. Rejected files do not
// fail the request as long as one file was stored.
type StoreResult struct {
	Items    []model.MediaItem
	Warnings []string
}

type MediaService struct {
	repo      Repository
	store     storage.Storage
	policy    *storage.Policy
	bus       EventBus
	jobClient JobClient
	cache     *media.Cache
	log       *zap.Logger
	now       func() time.Time
}

func NewMediaService(repo Repository, store storage.Storage, policy *storage.Policy, bus EventBus, log *zap.Logger) *MediaService {
	if policy == nil {
		policy = storage.DefaultPolicy()
	}
	return &MediaService{
		repo:   repo,
		store:  store,
		policy: policy,
		bus:    bus,
		cache:  media.NewCache(256, 5*time.Minute),
		log:    log,
		now:    time.Now,
	}
}

// SetJobClient sets the job client for post-processing stored files
func (s *MediaService) SetJobClient(client JobClient) {
	s.jobClient = client
}

func cacheKey(albumID string) string {
	return "album:" + albumID
}

// InvalidateAlbum drops the cached listing of an album. Background jobs call
// it after changing an item's row.
func (s *MediaService) InvalidateAlbum(albumID string) {
	s.cache.Invalidate(cacheKey(albumID))
}

func notFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// AlbumInput carries the fields of a new album
type AlbumInput struct {
	Title       string `json:"title"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	EventID     string `json:"eventId,omitempty"`
	Published   bool   `json:"published"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *MediaService) CreateAlbum(ctx context.Context, input AlbumInput) (model.Album, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return model.Album{}, errors.New("title is required")
	}

	base := Slugify(input.Slug)
	if base == "" {
		base = Slugify(title)
	}
	if base == "" {
		base = "album"
	}
	slug, err := s.uniqueSlug(ctx, base)
	if err != nil {
		return model.Album{}, err
	}

	row, err := s.repo.CreateAlbum(ctx, db.CreateAlbumParams{
		Title:       title,
		Slug:        slug,
		Description: optional(input.Description),
		EventID:     optional(input.EventID),
		Published:   input.Published,
	})
	if err != nil {
		return model.Album{}, fmt.Errorf("failed to create album: %w", err)
	}

	s.log.Info("Album created", zap.Int64("album_id", row.ID), zap.String("slug", slug))
	return media.NormalizeAlbum(albumRecord(row)), nil
}

func (s *MediaService) uniqueSlug(ctx context.Context, base string) (string, error) {
	slug := base
	for n := 2; n <= 100; n++ {
		exists, err := s.repo.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
	return base + "-" + strings.ToLower(ulid.Make().String()[20:]), nil
}

// GetPublishedAlbum resolves a public album by slug. Unpublished albums
// are reported as not found.
func (s *MediaService) GetPublishedAlbum(ctx context.Context, slug string) (model.Album, error) {
	row, err := s.repo.GetAlbumBySlug(ctx, slug)
	if err != nil {
		return model.Album{}, notFound(err)
	}
	if !row.Published {
		return model.Album{}, ErrNotFound
	}
	return media.NormalizeAlbum(albumRecord(row)), nil
}

// ListAlbumItems returns the album's items in canonical form.
func (s *MediaService) ListAlbumItems(ctx context.Context, albumID string) ([]model.MediaItem, error) {
	if items, ok := s.cache.Get(cacheKey(albumID)); ok {
		if items == nil {
			items = []model.MediaItem{}
		}
		return items, nil
	}

	id, err := parseID(albumID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetAlbum(ctx, id); err != nil {
		return nil, notFound(err)
	}

	rows, err := s.repo.ListMediaItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	records := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		records[i] = itemRecord(row)
	}
	items := media.NormalizeAll(records)
	s.cache.Put(cacheKey(albumID), items)
	return items, nil
}

// StoreAlbumItems validates and stores files under the album, one row per
// accepted file.
func (s *MediaService) StoreAlbumItems(ctx context.Context, albumID string, files []model.UploadCandidate) (res StoreResult, err error) {
	res = StoreResult{Items: []model.MediaItem{}, Warnings: []string{}}

	id, err := parseID(albumID)
	if err != nil {
		return res, err
	}
	if _, err := s.repo.GetAlbum(ctx, id); err != nil {
		return res, notFound(err)
	}

	// Rows stored before a failing file stay; the cached listing must not
	// hide them.
	defer func() {
		if err != nil && len(res.Items) > 0 {
			s.InvalidateAlbum(albumID)
		}
	}()

	for _, f := range files {
		stored, kind, key, err := s.storeFile(ctx, AlbumFolder, f, "")
		if err != nil {
			var ferr *FileError
			if !errors.As(err, &ferr) {
				return res, err
			}
			res.Warnings = append(res.Warnings, ferr.Message)
			continue
		}

		row, err := s.repo.CreateMediaItem(ctx, db.CreateMediaItemParams{
			AlbumID:      id,
			Kind:         string(kind),
			URL:          stored.URL,
			FileName:     stored.FileName,
			OriginalName: stored.OriginalName,
			ContentType:  stored.ContentType,
			SizeBytes:    stored.Size,
		})
		if err != nil {
			_ = s.store.Delete(ctx, key)
			return res, fmt.Errorf("failed to save media item: %w", err)
		}

		s.enqueue(row.ID, key, kind)
		item := media.Normalize(itemRecord(row))
		res.Items = append(res.Items, item)

		_ = s.bus.PublishAlbum(albumID, map[string]interface{}{
			"type":   "media.created",
			"itemId": item.ID,
			"kind":   string(item.Kind),
			"url":    item.URL,
		})
	}

	if len(res.Items) > 0 {
		s.cache.Append(cacheKey(albumID), res.Items)
	}

	s.log.Info("Album upload processed",
		zap.String("album_id", albumID),
		zap.Int("files", len(files)),
		zap.Int("stored", len(res.Items)),
		zap.Int("rejected", len(res.Warnings)))
	return res, nil
}

// DeleteAlbumItem removes the row and its stored files.
func (s *MediaService) DeleteAlbumItem(ctx context.Context, albumID, itemID string) error {
	aid, err := parseID(albumID)
	if err != nil {
		return err
	}
	iid, err := parseID(itemID)
	if err != nil {
		return err
	}

	row, err := s.repo.DeleteMediaItem(ctx, aid, iid)
	if err != nil {
		return notFound(err)
	}
	s.InvalidateAlbum(albumID)

	urls := []string{row.URL}
	if row.ThumbURL != nil {
		urls = append(urls, *row.ThumbURL)
	}
	for _, u := range urls {
		key, ok := s.keyOf(u)
		if !ok {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("Failed to delete stored file", zap.String("key", key), zap.Error(err))
		}
	}

	_ = s.bus.PublishAlbum(albumID, map[string]interface{}{
		"type":   "media.deleted",
		"itemId": itemID,
	})
	return nil
}

// keyOf maps a stored URL, possibly a legacy dump, back to its storage key.
func (s *MediaService) keyOf(rawURL string) (string, bool) {
	u := media.ResolvePath(media.Clean(rawURL))
	if u == "" {
		return "", false
	}
	return storage.KeyFromURL(strings.TrimSuffix(s.store.PublicURL("x"), "x"), u)
}

// storeFile validates f and writes it under folder. want restricts the
// accepted kind when set.
func (s *MediaService) storeFile(ctx context.Context, folder string, f model.UploadCandidate, want model.MediaKind) (storage.StoredFile, model.MediaKind, string, error) {
	contentType, err := s.contentType(f)
	if err != nil {
		return storage.StoredFile{}, "", "", &FileError{Name: f.Name, Message: fmt.Sprintf("%s: could not be read", f.Name)}
	}
	f.ContentType = contentType

	check := s.policy.Validate([]model.UploadCandidate{f})
	if !check.Valid {
		metrics.RecordStoredFile("unknown", "rejected", 0)
		return storage.StoredFile{}, "", "", &FileError{Name: f.Name, Message: strings.Join(check.Errors, "; ")}
	}
	kind, _ := s.policy.Classify(f.Name, contentType)
	if want != "" && kind != want {
		metrics.RecordStoredFile(string(kind), "rejected", 0)
		return storage.StoredFile{}, "", "", &FileError{Name: f.Name,
			Message: fmt.Sprintf("%s: expected %s file", f.Name, strings.ToLower(string(want)))}
	}

	name := storage.StoredFileName(f.Name, s.now(), ulid.Make().String())
	key := path.Join(folder, name)

	rc, err := f.Open()
	if err != nil {
		return storage.StoredFile{}, "", "", &FileError{Name: f.Name, Message: fmt.Sprintf("%s: could not be read", f.Name)}
	}
	defer rc.Close()

	if err := s.store.Put(ctx, key, rc, f.Size, contentType); err != nil {
		metrics.RecordStoredFile(string(kind), "failed", 0)
		return storage.StoredFile{}, "", "", fmt.Errorf("failed to store %s: %w", f.Name, err)
	}
	metrics.RecordStoredFile(string(kind), "stored", f.Size)

	stored := storage.StoredFile{
		FileName:     name,
		URL:          s.store.PublicURL(key),
		Size:         f.Size,
		ContentType:  contentType,
		OriginalName: f.Name,
	}
	if err := storage.ValidateStoredFile(stored); err != nil {
		return storage.StoredFile{}, "", "", err
	}
	s.log.Debug("Stored file", zap.Stringer("file", stored))
	return stored, kind, key, nil
}

// contentType returns the declared type, sniffing the content when the
// client sent none or a generic one.
func (s *MediaService) contentType(f model.UploadCandidate) (string, error) {
	declared := strings.TrimSpace(f.ContentType)
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	mt, err := mimetype.DetectReader(io.LimitReader(rc, 3072))
	if err != nil {
		return "", err
	}
	if mt.Is("application/octet-stream") || mt.Is("text/plain") {
		return declared, nil
	}
	return mt.String(), nil
}

func (s *MediaService) enqueue(itemID int64, key string, kind model.MediaKind) {
	if s.jobClient == nil {
		return
	}
	if err := s.jobClient.EnqueueChecksum(itemID, key); err != nil {
		s.log.Warn("Failed to enqueue checksum", zap.Int64("item_id", itemID), zap.Error(err))
	}
	if kind == model.MediaKindImage {
		if err := s.jobClient.EnqueueThumbnail(itemID, key); err != nil {
			s.log.Warn("Failed to enqueue thumbnail", zap.Int64("item_id", itemID), zap.Error(err))
		}
	}
}

func albumRecord(a db.Album) map[string]interface{} {
	rec := map[string]interface{}{
		"id":        a.ID,
		"title":     a.Title,
		"slug":      a.Slug,
		"published": a.Published,
		"createdAt": a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.Description != nil {
		rec["description"] = *a.Description
	}
	if a.EventID != nil {
		rec["eventId"] = *a.EventID
	}
	return rec
}

func itemRecord(m db.MediaItem) map[string]interface{} {
	rec := map[string]interface{}{
		"id":          m.ID,
		"kind":        m.Kind,
		"url":         m.URL,
		"fileName":    m.FileName,
		"contentType": m.ContentType,
		"size":        m.SizeBytes,
		"createdAt":   m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.ThumbURL != nil {
		rec["thumbnailUrl"] = *m.ThumbURL
	}
	if m.Title != nil {
		rec["title"] = *m.Title
	}
	return rec
}
