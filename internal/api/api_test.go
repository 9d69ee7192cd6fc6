package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orgmedia/internal/auth"
	"orgmedia/internal/model"
	"orgmedia/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMedia struct {
	albums  map[string]model.Album // by slug
	items   map[string][]model.MediaItem
	adverts map[string]model.Advert
	created []service.AlbumInput
	deleted []string
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		albums: map[string]model.Album{
			"summer": {ID: "1", Title: "Summer", Slug: "summer", Published: true},
			"draft":  {ID: "2", Title: "Draft", Slug: "draft"},
		},
		items: map[string][]model.MediaItem{
			"1": {{ID: "10", Kind: model.MediaKindImage, URL: "/uploads/media2/a.jpg", ThumbnailURL: "/uploads/thumbs/a.jpg"}},
		},
		adverts: map[string]model.Advert{
			"5": {ID: "5", Title: "Sponsor", Active: true, ImageURL: "/uploads/media/banner.jpg"},
		},
	}
}

func (f *fakeMedia) CreateAlbum(ctx context.Context, input service.AlbumInput) (model.Album, error) {
	f.created = append(f.created, input)
	return model.Album{ID: "3", Title: input.Title, Slug: "new-album", EventID: input.EventID, Published: input.Published}, nil
}

func (f *fakeMedia) GetPublishedAlbum(ctx context.Context, slug string) (model.Album, error) {
	a, ok := f.albums[slug]
	if !ok || !a.Published {
		return model.Album{}, service.ErrNotFound
	}
	return a, nil
}

func (f *fakeMedia) ListAlbumItems(ctx context.Context, albumID string) ([]model.MediaItem, error) {
	items, ok := f.items[albumID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return items, nil
}

// StoreAlbumItems refuses .txt files and keeps everything else.
func (f *fakeMedia) StoreAlbumItems(ctx context.Context, albumID string, files []model.UploadCandidate) (service.StoreResult, error) {
	if _, ok := f.items[albumID]; !ok {
		return service.StoreResult{}, service.ErrNotFound
	}
	var res service.StoreResult
	for _, file := range files {
		rc, err := file.Open()
		if err != nil {
			return res, err
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if strings.HasSuffix(file.Name, ".txt") {
			res.Warnings = append(res.Warnings, file.Name+": unsupported file type")
			continue
		}
		size := int64(len(data))
		res.Items = append(res.Items, model.MediaItem{
			ID:          "99",
			Kind:        model.MediaKindImage,
			URL:         "/uploads/media2/" + file.Name,
			ContentType: file.ContentType,
			SizeBytes:   &size,
		})
	}
	return res, nil
}

func (f *fakeMedia) DeleteAlbumItem(ctx context.Context, albumID, itemID string) error {
	if albumID != "1" || itemID != "10" {
		return service.ErrNotFound
	}
	f.deleted = append(f.deleted, itemID)
	return nil
}

func (f *fakeMedia) CreateAdvert(ctx context.Context, input service.AdvertInput) (model.Advert, error) {
	return model.Advert{ID: "6", Title: input.Title, LinkURL: input.LinkURL, Active: input.Active == nil || *input.Active}, nil
}

func (f *fakeMedia) GetAdvert(ctx context.Context, advertID string) (model.Advert, error) {
	a, ok := f.adverts[advertID]
	if !ok {
		return model.Advert{}, service.ErrNotFound
	}
	return a, nil
}

func (f *fakeMedia) ListAdverts(ctx context.Context, activeOnly bool) ([]model.Advert, error) {
	return []model.Advert{f.adverts["5"]}, nil
}

func (f *fakeMedia) StoreAdvertAsset(ctx context.Context, advertID string, role model.AssetRole, file model.UploadCandidate) (model.Advert, error) {
	a, ok := f.adverts[advertID]
	if !ok {
		return model.Advert{}, service.ErrNotFound
	}
	if role == model.AssetRoleVideo && !strings.HasSuffix(file.Name, ".mp4") {
		return model.Advert{}, &service.FileError{Name: file.Name, Message: file.Name + ": expected video file"}
	}
	a.VideoURL = "/uploads/media/" + file.Name
	a.Kind = model.MediaKindVideo
	return a, nil
}

type testServer struct {
	handler http.Handler
	media   *fakeMedia
	token   string
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	jwtConfig := auth.NewJWTConfig("test-secret")
	token, err := jwtConfig.IssueToken("admin", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	m := newFakeMedia()
	return &testServer{
		handler: Routes(Dependencies{
			Media:          m,
			Auth:           jwtConfig,
			Log:            zap.NewNop(),
			MaxUploadBytes: maxUpload,
		}),
		media: m,
		token: token,
	}
}

func (s *testServer) do(method, path string, body io.Reader, contentType string, admin bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestPublicAlbum(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(http.MethodGet, "/api/albums/summer", nil, "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Slug     string                   `json:"slug"`
		CoverURL string                   `json:"coverUrl"`
		Items    []map[string]interface{} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "summer", body.Slug)
	assert.Equal(t, "/uploads/thumbs/a.jpg", body.CoverURL)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "/uploads/media2/a.jpg", body.Items[0]["url"])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/albums/draft", nil, "", false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/albums/missing/items", nil, "", false).Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(http.MethodGet, "/api/admin/albums/1/items", nil, "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/admin/albums/1/items", nil, "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAlbum(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(http.MethodPost, "/api/admin/albums",
		strings.NewReader(`{"title":"Summer 2024","eventId":42,"published":true}`), "application/json", true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, s.media.created, 1)
	assert.Equal(t, "Summer 2024", s.media.created[0].Title)
	assert.Equal(t, "42", s.media.created[0].EventID)
	assert.True(t, s.media.created[0].Published)

	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{"slug":"x"}`},
		{"unknown field", `{"title":"a","colour":"red"}`},
		{"not an object", `[1,2]`},
		{"broken json", `{"title":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/admin/albums", strings.NewReader(tt.body), "application/json", true)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestUploadAlbumItems_PartialSuccess(t *testing.T) {
	s := newTestServer(t, 0)
	body, ct := multipartBody(t, "files", map[string]string{
		"beach.jpg": "jpegdata",
		"notes.txt": "hello",
	})

	rec := s.do(http.MethodPost, "/api/admin/albums/1/items", body, ct, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "notes.txt: unsupported file type", rec.Header().Get("X-Upload-Warnings"))

	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "/uploads/media2/beach.jpg", items[0]["url"])
}

func TestUploadAlbumItems_AllRejected(t *testing.T) {
	s := newTestServer(t, 0)
	body, ct := multipartBody(t, "file", map[string]string{"notes.txt": "hello"})

	rec := s.do(http.MethodPost, "/api/admin/albums/1/items", body, ct, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp UploadErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Upload failed", resp.Message)
	assert.Equal(t, "notes.txt: unsupported file type", resp.Detail)
}

func TestUploadAlbumItems_Errors(t *testing.T) {
	s := newTestServer(t, 1024)

	body, ct := multipartBody(t, "files", map[string]string{"big.jpg": strings.Repeat("x", 4096)})
	rec := s.do(http.MethodPost, "/api/admin/albums/1/items", body, ct, true)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var resp UploadErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "File too large", resp.Message)

	body, ct = multipartBody(t, "other", map[string]string{"a.jpg": "x"})
	rec = s.do(http.MethodPost, "/api/admin/albums/1/items", body, ct, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/admin/albums/1/items", strings.NewReader("{}"), "application/json", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartBody(t, "files", map[string]string{"a.jpg": "x"})
	rec = s.do(http.MethodPost, "/api/admin/albums/404/items", body, ct, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAlbumItem(t *testing.T) {
	s := newTestServer(t, 0)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/admin/albums/1/items/10", nil, "", true).Code)
	assert.Equal(t, []string{"10"}, s.media.deleted)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/admin/albums/1/items/11", nil, "", true).Code)
}

func TestAdvertMediaRedirect(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(http.MethodGet, "/api/adverts/5/image", nil, "", false)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/uploads/media/banner.jpg", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/adverts/5/video", nil, "", false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/adverts/5/audio", nil, "", false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/adverts/9/image", nil, "", false).Code)
}

func TestCreateAdvert(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(http.MethodPost, "/api/admin/adverts",
		strings.NewReader(`{"title":"Sponsor","linkUrl":"https://example.com","active":false}`), "application/json", true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var advert model.Advert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &advert))
	assert.Equal(t, "https://example.com", advert.LinkURL)
	assert.False(t, advert.Active)

	rec = s.do(http.MethodPost, "/api/admin/adverts",
		strings.NewReader(`{"title":"Sponsor","linkUrl":"not a url"}`), "application/json", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAdvertAsset(t *testing.T) {
	s := newTestServer(t, 0)

	body, ct := multipartBody(t, "file", map[string]string{"promo.mp4": "video"})
	rec := s.do(http.MethodPost, "/api/admin/adverts/5/video", body, ct, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var advert model.Advert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &advert))
	assert.Equal(t, "/uploads/media/promo.mp4", advert.VideoURL)

	body, ct = multipartBody(t, "file", map[string]string{"banner.jpg": "image"})
	rec = s.do(http.MethodPost, "/api/admin/adverts/5/video", body, ct, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp UploadErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "banner.jpg: expected video file", resp.Detail)

	body, ct = multipartBody(t, "file", map[string]string{"a.mp4": "video", "b.mp4": "video"})
	rec = s.do(http.MethodPost, "/api/admin/adverts/5/video", body, ct, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
