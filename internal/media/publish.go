package media

import (
	"strings"

	"orgmedia/internal/model"
)

// Publisher joins canonical paths with a public origin at presentation time.
type Publisher struct {
	Origin string
}

// NewPublisher creates a Publisher for origin, e.g. "https://media.example.org".
func NewPublisher(origin string) Publisher {
	return Publisher{Origin: strings.TrimRight(strings.TrimSpace(origin), "/")}
}

// Publish returns a browsable URL for a canonical path. Absolute URLs are
// returned unchanged, as are all paths when no origin is configured.
func (p Publisher) Publish(canonical string) string {
	if canonical == "" {
		return ""
	}
	if schemePattern.MatchString(canonical) || strings.HasPrefix(canonical, "//") {
		return canonical
	}
	origin := strings.TrimRight(p.Origin, "/")
	return origin + ResolvePath(canonical)
}

// PublishItem returns a copy of item with both URLs published.
func (p Publisher) PublishItem(item model.MediaItem) model.MediaItem {
	item.URL = p.Publish(item.URL)
	item.ThumbnailURL = p.Publish(item.ThumbnailURL)
	return item
}

// PickImageSrc returns the URL to render in an <img>: the thumbnail when
// present, otherwise the main URL.
func (p Publisher) PickImageSrc(item model.MediaItem) string {
	if item.ThumbnailURL != "" {
		return p.Publish(item.ThumbnailURL)
	}
	return p.Publish(item.URL)
}
