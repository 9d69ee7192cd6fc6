package api

import (
	"context"
	"net/http"
	"strings"

	"orgmedia/internal/auth"
	"orgmedia/internal/model"
	"orgmedia/internal/schema"
	"orgmedia/internal/service"
	"orgmedia/internal/ws"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes caps one multipart request.
const DefaultMaxUploadBytes = 2048 << 20

// MediaService is what the handlers need from the service layer
type MediaService interface {
	CreateAlbum(ctx context.Context, input service.AlbumInput) (model.Album, error)
	GetPublishedAlbum(ctx context.Context, slug string) (model.Album, error)
	ListAlbumItems(ctx context.Context, albumID string) ([]model.MediaItem, error)
	StoreAlbumItems(ctx context.Context, albumID string, files []model.UploadCandidate) (service.StoreResult, error)
	DeleteAlbumItem(ctx context.Context, albumID, itemID string) error

	CreateAdvert(ctx context.Context, input service.AdvertInput) (model.Advert, error)
	GetAdvert(ctx context.Context, advertID string) (model.Advert, error)
	ListAdverts(ctx context.Context, activeOnly bool) ([]model.Advert, error)
	StoreAdvertAsset(ctx context.Context, advertID string, role model.AssetRole, f model.UploadCandidate) (model.Advert, error)
}

type Dependencies struct {
	Media          MediaService
	Schemas        *schema.Compiler
	Hub            *ws.Hub
	Auth           *auth.JWTConfig
	Log            *zap.Logger
	UploadsDir     string // served under PublicPath when set
	PublicPath     string
	MaxUploadBytes int64
}

func Routes(d Dependencies) http.Handler {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if d.Schemas == nil {
		d.Schemas = schema.NewCompilerWithCache(16)
	}

	r := chi.NewRouter()

	// Add request logging middleware
	r.Use(RequestLogger(d.Log))

	// Optional authentication; admin routes require it below
	r.Use(d.Auth.Middleware)

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Get("/albums/{slug}", d.getPublicAlbum)
		r.Get("/albums/{slug}/items", d.listPublicItems)
		r.Get("/adverts", d.listActiveAdverts)
		r.Get("/adverts/{id}/{role}", d.advertMedia)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Post("/albums", d.createAlbum)
			r.Get("/albums/{id}/items", d.listAlbumItems)
			r.Post("/albums/{id}/items", d.uploadAlbumItems)
			r.Delete("/albums/{id}/items/{itemId}", d.deleteAlbumItem)

			r.Get("/adverts", d.listAllAdverts)
			r.Post("/adverts", d.createAdvert)
			r.Post("/adverts/{id}/{role}", d.uploadAdvertAsset)

			// WebSocket endpoint
			r.Get("/ws", d.wsHandler)
		})
	})

	if d.UploadsDir != "" {
		prefix := strings.TrimSuffix(d.PublicPath, "/")
		if prefix == "" {
			prefix = "/uploads"
		}
		files := http.StripPrefix(prefix, http.FileServer(http.Dir(d.UploadsDir)))
		r.Handle(prefix+"/*", noDirListing(files))
	}

	return r
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
