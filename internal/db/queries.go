package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// Queries wraps database queries
type Queries struct {
	*pgxpool.Pool
}

// NewQueries creates a new Queries instance
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{Pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Album represents an album row
type Album struct {
	ID          int64
	Title       string
	Slug        string
	Description *string
	EventID     *string
	Published   bool
	CreatedAt   time.Time
}

type CreateAlbumParams struct {
	Title       string
	Slug        string
	Description *string
	EventID     *string
	Published   bool
}

const albumColumns = "id, title, slug, description, event_id, published, created_at"

func scanAlbum(row pgx.Row) (Album, error) {
	var a Album
	err := row.Scan(&a.ID, &a.Title, &a.Slug, &a.Description, &a.EventID, &a.Published, &a.CreatedAt)
	return a, notFound(err)
}

// Album queries
func (q *Queries) CreateAlbum(ctx context.Context, p CreateAlbumParams) (Album, error) {
	return scanAlbum(q.Pool.QueryRow(ctx,
		"INSERT INTO albums (title, slug, description, event_id, published) VALUES ($1, $2, $3, $4, $5) RETURNING "+albumColumns,
		p.Title, p.Slug, p.Description, p.EventID, p.Published,
	))
}

func (q *Queries) GetAlbum(ctx context.Context, id int64) (Album, error) {
	return scanAlbum(q.Pool.QueryRow(ctx, "SELECT "+albumColumns+" FROM albums WHERE id = $1", id))
}

func (q *Queries) GetAlbumBySlug(ctx context.Context, slug string) (Album, error) {
	return scanAlbum(q.Pool.QueryRow(ctx, "SELECT "+albumColumns+" FROM albums WHERE slug = $1", slug))
}

func (q *Queries) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := q.Pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM albums WHERE slug = $1)", slug).Scan(&exists)
	return exists, err
}

// MediaItem represents a media_items row
type MediaItem struct {
	ID           int64
	AlbumID      int64
	Kind         string
	URL          string
	ThumbURL     *string
	FileName     string
	OriginalName string
	ContentType  string
	SizeBytes    int64
	SHA256       *string
	Title        *string
	CreatedAt    time.Time
}

type CreateMediaItemParams struct {
	AlbumID      int64
	Kind         string
	URL          string
	FileName     string
	OriginalName string
	ContentType  string
	SizeBytes    int64
	Title        *string
}

const mediaItemColumns = "id, album_id, kind, url, thumb_url, file_name, original_name, content_type, size_bytes, sha256, title, created_at"

func scanMediaItem(row pgx.Row) (MediaItem, error) {
	var m MediaItem
	err := row.Scan(&m.ID, &m.AlbumID, &m.Kind, &m.URL, &m.ThumbURL, &m.FileName, &m.OriginalName,
		&m.ContentType, &m.SizeBytes, &m.SHA256, &m.Title, &m.CreatedAt)
	return m, notFound(err)
}

// Media item queries
func (q *Queries) CreateMediaItem(ctx context.Context, p CreateMediaItemParams) (MediaItem, error) {
	return scanMediaItem(q.Pool.QueryRow(ctx,
		`INSERT INTO media_items (album_id, kind, url, file_name, original_name, content_type, size_bytes, title)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+mediaItemColumns,
		p.AlbumID, p.Kind, p.URL, p.FileName, p.OriginalName, p.ContentType, p.SizeBytes, p.Title,
	))
}

func (q *Queries) GetMediaItem(ctx context.Context, id int64) (MediaItem, error) {
	return scanMediaItem(q.Pool.QueryRow(ctx, "SELECT "+mediaItemColumns+" FROM media_items WHERE id = $1", id))
}

func (q *Queries) ListMediaItems(ctx context.Context, albumID int64) ([]MediaItem, error) {
	rows, err := q.Pool.Query(ctx,
		"SELECT "+mediaItemColumns+" FROM media_items WHERE album_id = $1 ORDER BY created_at, id", albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []MediaItem{}
	for rows.Next() {
		m, err := scanMediaItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// DeleteMediaItem removes the item and returns the deleted row.
func (q *Queries) DeleteMediaItem(ctx context.Context, albumID, id int64) (MediaItem, error) {
	return scanMediaItem(q.Pool.QueryRow(ctx,
		"DELETE FROM media_items WHERE album_id = $1 AND id = $2 RETURNING "+mediaItemColumns, albumID, id))
}

func (q *Queries) UpdateMediaItemThumb(ctx context.Context, id int64, thumbURL string) error {
	return q.exec(ctx, "UPDATE media_items SET thumb_url = $2 WHERE id = $1", id, thumbURL)
}

func (q *Queries) UpdateMediaItemChecksum(ctx context.Context, id int64, sha256 string) error {
	return q.exec(ctx, "UPDATE media_items SET sha256 = $2 WHERE id = $1", id, sha256)
}

// Advert represents an adverts row
type Advert struct {
	ID          int64
	Title       string
	Description *string
	LinkURL     *string
	Active      bool
	MediaKind   *string
	ImageURL    *string
	VideoURL    *string
	CreatedAt   time.Time
}

type CreateAdvertParams struct {
	Title       string
	Description *string
	LinkURL     *string
	Active      bool
}

const advertColumns = "id, title, description, link_url, active, media_kind, image_url, video_url, created_at"

func scanAdvert(row pgx.Row) (Advert, error) {
	var a Advert
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.LinkURL, &a.Active, &a.MediaKind, &a.ImageURL, &a.VideoURL, &a.CreatedAt)
	return a, notFound(err)
}

// Advert queries
func (q *Queries) CreateAdvert(ctx context.Context, p CreateAdvertParams) (Advert, error) {
	return scanAdvert(q.Pool.QueryRow(ctx,
		"INSERT INTO adverts (title, description, link_url, active) VALUES ($1, $2, $3, $4) RETURNING "+advertColumns,
		p.Title, p.Description, p.LinkURL, p.Active,
	))
}

func (q *Queries) GetAdvert(ctx context.Context, id int64) (Advert, error) {
	return scanAdvert(q.Pool.QueryRow(ctx, "SELECT "+advertColumns+" FROM adverts WHERE id = $1", id))
}

func (q *Queries) ListAdverts(ctx context.Context, activeOnly bool) ([]Advert, error) {
	rows, err := q.Pool.Query(ctx,
		"SELECT "+advertColumns+" FROM adverts WHERE active OR NOT $1 ORDER BY created_at DESC, id DESC", activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adverts := []Advert{}
	for rows.Next() {
		a, err := scanAdvert(rows)
		if err != nil {
			return nil, err
		}
		adverts = append(adverts, a)
	}
	return adverts, rows.Err()
}

// SetAdvertMedia stores url as the advert's image or video and makes that
// role the advert's media kind.
func (q *Queries) SetAdvertMedia(ctx context.Context, id int64, kind, url string) (Advert, error) {
	column := "image_url"
	switch kind {
	case "IMAGE":
	case "VIDEO":
		column = "video_url"
	default:
		return Advert{}, fmt.Errorf("unknown media kind %q", kind)
	}
	return scanAdvert(q.Pool.QueryRow(ctx,
		"UPDATE adverts SET "+column+" = $2, media_kind = $3 WHERE id = $1 RETURNING "+advertColumns,
		id, url, kind))
}

func (q *Queries) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := q.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
