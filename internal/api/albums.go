package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"orgmedia/internal/media"
	"orgmedia/internal/model"
	"orgmedia/internal/schema"
	"orgmedia/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

// decodeBody reads a JSON object and validates it against s. It writes the
// error response itself.
func (d Dependencies) decodeBody(w http.ResponseWriter, r *http.Request, s map[string]interface{}) ([]byte, map[string]interface{}, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large", d.Log)
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil || body == nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object", d.Log)
		return nil, nil, false
	}

	if err := d.Schemas.Validate(r.Context(), s, body); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			WriteError(w, http.StatusBadRequest, "invalid_request", strings.Join(ve.Problems, "; "), d.Log)
			return nil, nil, false
		}
		WriteError(w, http.StatusInternalServerError, "schema_error", "Could not validate request", d.Log)
		return nil, nil, false
	}
	return data, body, true
}

func itemRecords(items []model.MediaItem) []map[string]interface{} {
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		out[i] = media.ToRecord(item)
	}
	return out
}

func (d Dependencies) createAlbum(w http.ResponseWriter, r *http.Request) {
	_, body, ok := d.decodeBody(w, r, schema.AlbumCreate)
	if !ok {
		return
	}

	// The album normalizer accepts numeric or string event ids
	parsed := media.NormalizeAlbum(body)
	album, err := d.Media.CreateAlbum(r.Context(), service.AlbumInput{
		Title:       parsed.Title,
		Slug:        parsed.Slug,
		Description: parsed.Description,
		EventID:     parsed.EventID,
		Published:   parsed.Published,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "create_failed", "Failed to create album", d.Log)
		return
	}

	writeJSON(w, http.StatusCreated, album)
}

func (d Dependencies) listAlbumItems(w http.ResponseWriter, r *http.Request) {
	items, err := d.Media.ListAlbumItems(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Album not found", d.Log)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_failed", "Failed to list items", d.Log)
		return
	}
	writeJSON(w, http.StatusOK, itemRecords(items))
}

// uploadAlbumItems stores the "files" parts (or a single "file" part).
// Rejected files are reported in X-Upload-Warnings as long as one file was
// stored; otherwise the whole request fails.
func (d Dependencies) uploadAlbumItems(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "id")

	headers, ok := d.parseFiles(w, r, "files", "file")
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	res, err := d.Media.StoreAlbumItems(r.Context(), albumID, candidates(headers))
	if errors.Is(err, service.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Album not found", d.Log)
		return
	}
	if err != nil {
		d.Log.Error("Album upload failed", zap.String("album_id", albumID), zap.Error(err))
		writeUploadError(w, http.StatusInternalServerError, "Upload failed", "Could not store files", d.Log)
		return
	}
	if len(res.Items) == 0 {
		writeUploadError(w, http.StatusBadRequest, "Upload failed", strings.Join(res.Warnings, "; "), d.Log)
		return
	}

	if len(res.Warnings) > 0 {
		w.Header().Set("X-Upload-Warnings", headerSafe(strings.Join(res.Warnings, " | ")))
	}
	writeJSON(w, http.StatusCreated, itemRecords(res.Items))
}

func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}

func (d Dependencies) deleteAlbumItem(w http.ResponseWriter, r *http.Request) {
	err := d.Media.DeleteAlbumItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if errors.Is(err, service.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Item not found", d.Log)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "delete_failed", "Failed to delete item", d.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d Dependencies) getPublicAlbum(w http.ResponseWriter, r *http.Request) {
	album, err := d.Media.GetPublishedAlbum(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, service.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Album not found", d.Log)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "get_failed", "Failed to load album", d.Log)
		return
	}

	items, err := d.Media.ListAlbumItems(r.Context(), album.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_failed", "Failed to list items", d.Log)
		return
	}
	if album.CoverURL == "" && len(items) > 0 {
		album.CoverURL = items[0].ThumbnailURL
	}

	writeJSON(w, http.StatusOK, struct {
		model.Album
		Items []map[string]interface{} `json:"items"`
	}{album, itemRecords(items)})
}

func (d Dependencies) listPublicItems(w http.ResponseWriter, r *http.Request) {
	album, err := d.Media.GetPublishedAlbum(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, service.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Album not found", d.Log)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "get_failed", "Failed to load album", d.Log)
		return
	}
	items, err := d.Media.ListAlbumItems(r.Context(), album.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_failed", "Failed to list items", d.Log)
		return
	}
	writeJSON(w, http.StatusOK, itemRecords(items))
}
