package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"orgmedia/internal/model"
)

const octetStream = "application/octet-stream"

// LoadCandidate describes a file on disk. The content type is sniffed from
// the file header; undetectable types are left empty so validation falls
// back to the extension.
func LoadCandidate(path string) (model.UploadCandidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.UploadCandidate{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return model.UploadCandidate{}, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return model.UploadCandidate{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	contentType := mt.String()
	if mt.Is(octetStream) {
		contentType = ""
	}

	return model.UploadCandidate{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// LoadCandidates loads every path in order.
func LoadCandidates(paths []string) ([]model.UploadCandidate, error) {
	out := make([]model.UploadCandidate, 0, len(paths))
	for _, p := range paths {
		c, err := LoadCandidate(p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// BytesCandidate wraps an in-memory payload.
func BytesCandidate(name, contentType string, data []byte) model.UploadCandidate {
	return model.UploadCandidate{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
