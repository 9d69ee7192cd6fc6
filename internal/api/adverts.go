package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"orgmedia/internal/model"
	"orgmedia/internal/schema"
	"orgmedia/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func assetRole(r *http.Request) (model.AssetRole, bool) {
	role := model.AssetRole(chi.URLParam(r, "role"))
	return role, role == model.AssetRoleImage || role == model.AssetRoleVideo
}

func (d Dependencies) createAdvert(w http.ResponseWriter, r *http.Request) {
	data, _, ok := d.decodeBody(w, r, schema.AdvertCreate)
	if !ok {
		return
	}
	var input service.AdvertInput
	if err := json.Unmarshal(data, &input); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid advert", d.Log)
		return
	}

	advert, err := d.Media.CreateAdvert(r.Context(), input)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "create_failed", "Failed to create advert", d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, advert)
}

func (d Dependencies) listActiveAdverts(w http.ResponseWriter, r *http.Request) {
	d.listAdverts(w, r, true)
}

func (d Dependencies) listAllAdverts(w http.ResponseWriter, r *http.Request) {
	d.listAdverts(w, r, false)
}

func (d Dependencies) listAdverts(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	adverts, err := d.Media.ListAdverts(r.Context(), activeOnly)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_failed", "Failed to list adverts", d.Log)
		return
	}
	writeJSON(w, http.StatusOK, adverts)
}

// advertMedia redirects to the stored file for the advert's role.
func (d Dependencies) advertMedia(w http.ResponseWriter, r *http.Request) {
	role, ok := assetRole(r)
	if !ok {
		WriteError(w, http.StatusNotFound, "not_found", "Unknown media role", d.Log)
		return
	}
	advert, err := d.Media.GetAdvert(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Advert not found", d.Log)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "get_failed", "Failed to load advert", d.Log)
		return
	}

	target := advert.ImageURL
	if role == model.AssetRoleVideo {
		target = advert.VideoURL
	}
	if target == "" {
		WriteError(w, http.StatusNotFound, "not_found", "Advert has no "+string(role), d.Log)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (d Dependencies) uploadAdvertAsset(w http.ResponseWriter, r *http.Request) {
	role, ok := assetRole(r)
	if !ok {
		WriteError(w, http.StatusNotFound, "not_found", "Unknown media role", d.Log)
		return
	}
	advertID := chi.URLParam(r, "id")

	headers, ok := d.parseFiles(w, r, "file", "files")
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()
	if len(headers) != 1 {
		writeUploadError(w, http.StatusBadRequest, "Upload failed", "Send exactly one file", d.Log)
		return
	}

	advert, err := d.Media.StoreAdvertAsset(r.Context(), advertID, role, candidates(headers)[0])
	var ferr *service.FileError
	switch {
	case err == nil:
	case errors.As(err, &ferr):
		writeUploadError(w, http.StatusBadRequest, "Upload failed", ferr.Message, d.Log)
		return
	case errors.Is(err, service.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "Advert not found", d.Log)
		return
	default:
		d.Log.Error("Advert upload failed", zap.String("advert_id", advertID), zap.Error(err))
		writeUploadError(w, http.StatusInternalServerError, "Upload failed", "Could not store file", d.Log)
		return
	}
	writeJSON(w, http.StatusOK, advert)
}
