package model

import (
	"io"
	"time"
)

// MediaKind represents the category of a media asset
type MediaKind string

const (
	MediaKindImage MediaKind = "IMAGE"
	MediaKindVideo MediaKind = "VIDEO"
)

// Status represents the lifecycle state of one upload (a file or a batch)
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusUploading  Status = "UPLOADING"
	StatusProcessing Status = "PROCESSING"
	StatusComplete   Status = "COMPLETE"
	StatusError      Status = "ERROR"
)

// Terminal reports whether no further progress follows s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Strategy selects how candidates are sent to the server
type Strategy string

const (
	StrategyBatch      Strategy = "batch"
	StrategySequential Strategy = "sequential"
)

// ParseStrategy maps a flag or form value onto a Strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategyBatch, StrategySequential:
		return Strategy(s), true
	}
	return "", false
}

// AssetRole distinguishes the single-file advert endpoints
type AssetRole string

const (
	AssetRoleImage AssetRole = "image"
	AssetRoleVideo AssetRole = "video"
)

// Kind returns the media kind accepted by the role.
func (r AssetRole) Kind() MediaKind {
	if r == AssetRoleVideo {
		return MediaKindVideo
	}
	return MediaKindImage
}

// UploadCandidate is a file selected for upload. Open is called once per
// request that carries the file.
type UploadCandidate struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// ValidationResult is the verdict of a policy check.
// Valid is true iff Errors is empty.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// UploadProgress is one notification emitted while uploading
type UploadProgress struct {
	Loaded      int64  `json:"loaded"`
	Total       int64  `json:"total"`
	Percentage  int    `json:"percentage"`
	Status      Status `json:"status"`
	CurrentFile string `json:"currentFile,omitempty"`
	Error       string `json:"error,omitempty"`
	FileIndex   int    `json:"fileIndex"`
	TotalFiles  int    `json:"totalFiles"`
}

// MediaItem is the canonical media record returned to callers
type MediaItem struct {
	ID           string     `json:"id,omitempty"`
	Kind         MediaKind  `json:"kind"`
	URL          string     `json:"url"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	Title        string     `json:"title,omitempty"`
	ContentType  string     `json:"contentType,omitempty"`
	SizeBytes    *int64     `json:"sizeBytes,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
}

// Album groups media items under a public slug
type Album struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	EventID     string     `json:"eventId,omitempty"`
	Published   bool       `json:"published"`
	CoverURL    string     `json:"coverUrl,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// Advert is an advertisement carrying at most one image and one video
type Advert struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	LinkURL     string     `json:"linkUrl,omitempty"`
	Active      bool       `json:"active"`
	Kind        MediaKind  `json:"kind"`
	MediaURL    string     `json:"mediaUrl,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	VideoURL    string     `json:"videoUrl,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}
