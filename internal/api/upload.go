package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"orgmedia/internal/model"
)

// multipartMemory is held in memory per request; larger parts spill to disk
const multipartMemory = 32 << 20

// parseFiles reads the multipart body and returns the parts under the
// first of fields that carries any. It writes the error response itself.
func (d Dependencies) parseFiles(w http.ResponseWriter, r *http.Request, fields ...string) ([]*multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, d.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeUploadError(w, http.StatusRequestEntityTooLarge, "File too large",
				fmt.Sprintf("Maximum upload size is %d MB per request", d.MaxUploadBytes>>20), d.Log)
			return nil, false
		}
		writeUploadError(w, http.StatusBadRequest, "Upload failed", "Expected multipart/form-data", d.Log)
		return nil, false
	}

	for _, field := range fields {
		if headers := r.MultipartForm.File[field]; len(headers) > 0 {
			return headers, true
		}
	}
	r.MultipartForm.RemoveAll()
	writeUploadError(w, http.StatusBadRequest, "Upload failed", "No files provided", d.Log)
	return nil, false
}

func candidates(headers []*multipart.FileHeader) []model.UploadCandidate {
	out := make([]model.UploadCandidate, len(headers))
	for i, fh := range headers {
		fh := fh
		out[i] = model.UploadCandidate{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		}
	}
	return out
}
