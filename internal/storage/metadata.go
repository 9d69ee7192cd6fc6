package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// StoredFile describes a file written by the backend
type StoredFile struct {
	FileName     string `json:"fileName"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	ContentType  string `json:"contentType"`
	OriginalName string `json:"originalName"`
	SHA256       string `json:"sha256,omitempty"`
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// StoredFileName builds "<safe base>_<yyyyMMddHHmmss>_<suffix><ext>" from the
// client-supplied name. suffix is truncated to 8 characters.
func StoredFileName(original string, now time.Time, suffix string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Trim(unsafeNameChars.ReplaceAllString(base, "_"), "_")
	if base == "" {
		base = "file"
	}
	if len(base) > 64 {
		base = base[:64]
	}
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return fmt.Sprintf("%s_%s_%s%s", base, now.UTC().Format("20060102150405"), strings.ToLower(suffix), ext)
}

// ValidateStoredFile validates that a stored file has required fields
func ValidateStoredFile(f StoredFile) error {
	if f.FileName == "" {
		return fmt.Errorf("file name is required")
	}
	if f.URL == "" {
		return fmt.Errorf("file URL is required")
	}
	if f.Size < 0 {
		return fmt.Errorf("file size must be non-negative")
	}
	return nil
}

// ToMap converts StoredFile to a raw record
func (f StoredFile) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"fileName":     f.FileName,
		"url":          f.URL,
		"size":         f.Size,
		"contentType":  f.ContentType,
		"originalName": f.OriginalName,
	}
	if f.SHA256 != "" {
		result["sha256"] = f.SHA256
	}
	return result
}

// String renders the record dump form some legacy rows still carry in their
// url column, e.g. StoredFile[fileName=a.png, url=/uploads/media2/a.png, ...].
func (f StoredFile) String() string {
	return fmt.Sprintf("StoredFile[fileName=%s, url=%s, size=%d, contentType=%s, originalName=%s]",
		f.FileName, f.URL, f.Size, f.ContentType, f.OriginalName)
}
