package media

import (
	"strings"
	"testing"
	"time"

	"orgmedia/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Publish(t *testing.T) {
	p := NewPublisher("https://media.example.org/")

	assert.Equal(t, "https://media.example.org/uploads/a.png", p.Publish("/uploads/a.png"))
	assert.Equal(t, "https://media.example.org/uploads/a.png", p.Publish("uploads/a.png"))
	assert.Equal(t, "https://cdn.example.com/a.png", p.Publish("https://cdn.example.com/a.png"))
	assert.Equal(t, "", p.Publish(""))

	assert.Equal(t, "/uploads/a.png", Publisher{}.Publish("/uploads/a.png"))
}

func TestPublisher_PickImageSrc(t *testing.T) {
	p := NewPublisher("http://localhost:8080")

	withThumb := model.MediaItem{URL: "/uploads/media2/v.mp4", ThumbnailURL: "/uploads/thumbs/v.jpg"}
	assert.Equal(t, "http://localhost:8080/uploads/thumbs/v.jpg", p.PickImageSrc(withThumb))
	assert.Equal(t, "http://localhost:8080/uploads/media2/a.png", p.PickImageSrc(model.MediaItem{URL: "/uploads/media2/a.png"}))

	published := p.PublishItem(withThumb)
	assert.Equal(t, "http://localhost:8080/uploads/media2/v.mp4", published.URL)
	assert.Equal(t, "/uploads/media2/v.mp4", withThumb.URL)
}

func TestUnwrapRecords(t *testing.T) {
	rec := map[string]interface{}{"url": "/a.png"}

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"array", []interface{}{rec, "junk", rec}, 2},
		{"typed array", []map[string]interface{}{rec}, 1},
		{"page content", map[string]interface{}{"content": []interface{}{rec}, "totalElements": 1}, 1},
		{"embedded", map[string]interface{}{"_embedded": map[string]interface{}{"items": []interface{}{rec, rec}}}, 2},
		{"embedded other key", map[string]interface{}{"_embedded": map[string]interface{}{"albums": []interface{}{rec}}}, 0},
		{"single object", rec, 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnwrapRecords(tt.body, "items")
			assert.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestDecodeBody(t *testing.T) {
	body, err := DecodeBody(strings.NewReader(`[{"id": 12345678901234567890, "url": "/a.png"}]`))
	require.NoError(t, err)

	items := NormalizeAll(UnwrapRecords(body, "items"))
	require.Len(t, items, 1)
	assert.Equal(t, "12345678901234567890", items[0].ID)

	body, err = DecodeBody(strings.NewReader("  "))
	require.NoError(t, err)
	assert.Nil(t, body)

	_, err = DecodeBody(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestNormalizeAdvert(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]interface{}
		kind     model.MediaKind
		mediaURL string
	}{
		{"explicit video", map[string]interface{}{"id": float64(3), "mediaKind": "VIDEO", "mediaUrl": "promo.mp4"}, model.MediaKindVideo, "/uploads/media/promo.mp4"},
		{"content type", map[string]interface{}{"id": "4", "contentType": "image/png", "url": "/files/banner"}, model.MediaKindImage, "/files/banner"},
		{"extension", map[string]interface{}{"id": "5", "path": "/uploads/media/clip.webm"}, model.MediaKindVideo, "/uploads/media/clip.webm"},
		{"video field", map[string]interface{}{"id": "6", "imageUrl": "poster.jpg", "videoUrl": "Stored[url=/uploads/media/v.mov]"}, model.MediaKindVideo, "/uploads/media/v.mov"},
		{"fallback endpoint", map[string]interface{}{"id": "7", "media_type": "video"}, model.MediaKindVideo, "/api/adverts/7/video"},
		{"image fallback", map[string]interface{}{"id": "8"}, model.MediaKindImage, "/api/adverts/8/image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad := NormalizeAdvert(tt.raw)
			assert.Equal(t, tt.kind, ad.Kind)
			assert.Equal(t, tt.mediaURL, ad.MediaURL)
		})
	}
}

func TestCoerceAdvertPath(t *testing.T) {
	assert.Equal(t, "/uploads/media/a.png", CoerceAdvertPath("/a.png"))
	assert.Equal(t, "/api/adverts/1/image", CoerceAdvertPath("/api/adverts/1/image"))
	assert.Equal(t, "/static/a.png", CoerceAdvertPath("static/a.png"))
	assert.Equal(t, "https://x.org/a.png", CoerceAdvertPath("https://x.org/a.png"))
	assert.Equal(t, "", CoerceAdvertPath("undefined"))
}

func TestNormalizeAlbum(t *testing.T) {
	album := NormalizeAlbum(map[string]interface{}{
		"id":          float64(9),
		"name":        "Summer Fest",
		"slug":        "summer-fest",
		"isPublished": true,
		"event":       map[string]interface{}{"id": float64(2)},
		"coverUrl":    `uploads\media2\cover.jpg`,
		"createdAt":   "2024-06-01T10:00:00Z",
	})

	assert.Equal(t, "9", album.ID)
	assert.Equal(t, "Summer Fest", album.Title)
	assert.Equal(t, "summer-fest", album.Slug)
	assert.True(t, album.Published)
	assert.Equal(t, "2", album.EventID)
	assert.Equal(t, "/uploads/media2/cover.jpg", album.CoverURL)
	require.NotNil(t, album.CreatedAt)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), *album.CreatedAt)
}

func TestCache(t *testing.T) {
	c := NewCache(2, time.Minute)

	assert.False(t, c.Append("album:1", []model.MediaItem{{URL: "/b.png"}}))
	_, ok := c.Get("album:1")
	assert.False(t, ok)

	c.Put("album:1", []model.MediaItem{{URL: "/a.png"}})
	assert.True(t, c.Append("album:1", []model.MediaItem{{URL: "/b.png"}}))

	items, ok := c.Get("album:1")
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "/b.png", items[1].URL)

	items[0].URL = "mutated"
	again, _ := c.Get("album:1")
	assert.Equal(t, "/a.png", again[0].URL)

	c.Put("album:2", nil)
	c.Put("album:3", nil)
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("album:1")
	assert.False(t, ok)

	c.Invalidate("album:3")
	assert.Equal(t, 1, c.Len())
}
