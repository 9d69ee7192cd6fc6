// Package media turns heterogeneous backend media records into canonical
// model.MediaItem values and publishes them for presentation.
package media

import (
	"path"
	"regexp"
	"strings"
	"time"

	"orgmedia/internal/model"
)

const (
	// UploadMarker identifies the public upload tree inside a leaked path.
	UploadMarker = "/uploads/"
	// AlbumUploadDir is where bare album item file names live.
	AlbumUploadDir = "/uploads/media2/"
	// AdvertUploadDir is where bare advert file names live.
	AdvertUploadDir = "/uploads/media/"
)

var (
	dumpPattern   = regexp.MustCompile(`^[A-Za-z_][\w.$]*\[\s*\w+=.*\]$`)
	dumpURLToken  = regexp.MustCompile(`url=([^,\]]+)`)
	schemePattern = regexp.MustCompile(`(?i)^https?://`)
)

// VideoExtensions are the URL extensions treated as video.
var VideoExtensions = []string{"mp4", "webm", "ogg", "mkv", "mov", "avi", "3gp", "3g2"}

type source struct {
	name    string
	extract func(raw map[string]interface{}) (string, bool)
}

func field(key string) source {
	return source{name: key, extract: func(raw map[string]interface{}) (string, bool) {
		return presentString(raw[key])
	}}
}

// urlSources is the raw URL precedence chain. The first source whose value
// survives Clean wins.
var urlSources = []source{
	field("url"),
	field("mediaUrl"),
	field("imageUrl"),
	field("videoUrl"),
	{name: "fileName", extract: func(raw map[string]interface{}) (string, bool) {
		name, ok := presentString(raw["fileName"])
		if !ok {
			return "", false
		}
		return AlbumUploadDir + strings.TrimLeft(name, "/\\"), true
	}},
	field("path"),
}

var thumbnailSources = []source{
	field("thumbnailUrl"),
	field("thumbUrl"),
	field("thumbnail"),
}

type kindSource struct {
	name   string
	decide func(raw map[string]interface{}, url string) (model.MediaKind, bool)
}

// kindSources is the kind precedence chain; IMAGE applies when none decides.
var kindSources = []kindSource{
	{name: "explicit", decide: func(raw map[string]interface{}, _ string) (model.MediaKind, bool) {
		return explicitKind(raw, "kind", "mediaType", "mediaKind", "media_kind", "media_type")
	}},
	{name: "contentType", decide: func(raw map[string]interface{}, _ string) (model.MediaKind, bool) {
		ct, ok := firstString(raw, "contentType", "content_type")
		if !ok {
			return "", false
		}
		return kindFromContentType(ct)
	}},
	{name: "extension", decide: func(_ map[string]interface{}, url string) (model.MediaKind, bool) {
		if IsVideoURL(url) {
			return model.MediaKindVideo, true
		}
		return "", false
	}},
	{name: "videoUrl", decide: func(raw map[string]interface{}, _ string) (model.MediaKind, bool) {
		if _, ok := presentString(raw["videoUrl"]); ok {
			return model.MediaKindVideo, true
		}
		return "", false
	}},
}

// Normalize maps one raw backend record onto a MediaItem. It never fails:
// malformed input yields an empty URL and kind IMAGE.
func Normalize(raw map[string]interface{}) model.MediaItem {
	if raw == nil {
		return model.MediaItem{Kind: model.MediaKindImage}
	}

	item := model.MediaItem{URL: resolveFirst(raw, urlSources)}
	item.Kind = resolveKind(raw, item.URL, kindSources)

	item.ThumbnailURL = resolveFirst(raw, thumbnailSources)
	if item.ThumbnailURL == "" {
		item.ThumbnailURL = item.URL
	}

	if id, ok := firstID(raw, "id", "itemId"); ok {
		item.ID = id
	}
	if title, ok := firstString(raw, "title", "caption"); ok {
		item.Title = title
	}
	if ct, ok := firstString(raw, "contentType", "content_type"); ok {
		item.ContentType = ct
	}
	for _, key := range []string{"sizeBytes", "size"} {
		if n, ok := int64Value(raw[key]); ok && n >= 0 {
			item.SizeBytes = &n
			break
		}
	}
	for _, key := range []string{"createdAt", "created_at", "uploadedAt"} {
		if t, ok := timeValue(raw[key]); ok {
			item.CreatedAt = &t
			break
		}
	}
	return item
}

// NormalizeAll normalizes a list of raw records in order.
func NormalizeAll(records []map[string]interface{}) []model.MediaItem {
	items := make([]model.MediaItem, 0, len(records))
	for _, r := range records {
		items = append(items, Normalize(r))
	}
	return items
}

func resolveFirst(raw map[string]interface{}, sources []source) string {
	for _, src := range sources {
		v, ok := src.extract(raw)
		if !ok {
			continue
		}
		if resolved := ResolvePath(Clean(v)); resolved != "" {
			return resolved
		}
	}
	return ""
}

func resolveKind(raw map[string]interface{}, url string, sources []kindSource) model.MediaKind {
	for _, src := range sources {
		if kind, ok := src.decide(raw, url); ok {
			return kind
		}
	}
	return model.MediaKindImage
}

// Clean strips legacy encodings from a raw URL value: record dumps such as
// StoredFile[fileName=a.png, url=/uploads/a.png] collapse to their url
// entry, back-slashes become slashes, and anything before the upload marker
// of a leaked filesystem path is dropped. Absent values clean to "".
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if dumpPattern.MatchString(s) || (strings.Contains(s, "[") && dumpURLToken.MatchString(s)) {
		m := dumpURLToken.FindStringSubmatch(s)
		if m == nil {
			return ""
		}
		s = strings.TrimSpace(m[1])
	}

	s = strings.ReplaceAll(s, "\\", "/")
	if !schemePattern.MatchString(s) {
		if i := strings.Index(s, UploadMarker); i > 0 {
			s = s[i:]
		}
	}

	s = strings.TrimSpace(s)
	if absentLiteral(s) {
		return ""
	}
	return s
}

// ResolvePath returns s unchanged when it carries an http(s) scheme or is
// protocol-relative; otherwise it ensures a leading slash.
func ResolvePath(s string) string {
	if s == "" {
		return ""
	}
	if schemePattern.MatchString(s) || strings.HasPrefix(s, "//") {
		return s
	}
	if !strings.HasPrefix(s, "/") {
		return "/" + s
	}
	return s
}

// IsVideoURL reports whether the path of s ends in a video extension.
func IsVideoURL(s string) bool {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(s)), ".")
	if ext == "" {
		return false
	}
	for _, v := range VideoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

func explicitKind(raw map[string]interface{}, keys ...string) (model.MediaKind, bool) {
	for _, key := range keys {
		s, ok := presentString(raw[key])
		if !ok {
			continue
		}
		switch strings.ToUpper(s) {
		case "VIDEO":
			return model.MediaKindVideo, true
		case "IMAGE", "PHOTO":
			return model.MediaKindImage, true
		}
		if kind, ok := kindFromContentType(s); ok {
			return kind, true
		}
	}
	return "", false
}

func kindFromContentType(ct string) (model.MediaKind, bool) {
	ct = strings.ToLower(strings.TrimSpace(ct))
	switch {
	case strings.HasPrefix(ct, "video/"):
		return model.MediaKindVideo, true
	case strings.HasPrefix(ct, "image/"):
		return model.MediaKindImage, true
	}
	return "", false
}

// ToRecord renders item in the canonical record shape the API serves.
// Normalize(ToRecord(item)) reproduces item.
func ToRecord(item model.MediaItem) map[string]interface{} {
	rec := map[string]interface{}{
		"kind": string(item.Kind),
		"url":  item.URL,
	}
	if item.ID != "" {
		rec["id"] = item.ID
	}
	if item.ThumbnailURL != "" {
		rec["thumbnailUrl"] = item.ThumbnailURL
	}
	if item.Title != "" {
		rec["title"] = item.Title
	}
	if item.ContentType != "" {
		rec["contentType"] = item.ContentType
	}
	if item.SizeBytes != nil {
		rec["sizeBytes"] = *item.SizeBytes
	}
	if item.CreatedAt != nil {
		rec["createdAt"] = item.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return rec
}
