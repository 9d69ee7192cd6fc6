package media

import (
	"strings"

	"orgmedia/internal/model"
)

var servedPrefixes = []string{"/uploads/", "/files/", "/api/"}

// NormalizeAdvert maps a raw advert record onto model.Advert. The media URL
// follows the advert's kind; adverts with no stored path fall back to the
// API's per-advert media endpoint.
func NormalizeAdvert(raw map[string]interface{}) model.Advert {
	ad := model.Advert{Kind: model.MediaKindImage}
	if raw == nil {
		return ad
	}

	ad.ID, _ = firstID(raw, "id", "advertId")
	ad.Title, _ = firstString(raw, "title", "name")
	ad.Description, _ = firstString(raw, "description")
	ad.LinkURL, _ = firstString(raw, "linkUrl", "targetUrl", "link")
	if active, ok := boolValue(raw["active"]); ok {
		ad.Active = active
	} else if active, ok := boolValue(raw["isActive"]); ok {
		ad.Active = active
	}
	if t, ok := timeValue(raw["createdAt"]); ok {
		ad.CreatedAt = &t
	}

	ad.ImageURL = advertPath(raw, "imageUrl", "imagePath")
	ad.VideoURL = advertPath(raw, "videoUrl", "videoPath")
	generic := advertPath(raw, "mediaUrl", "url", "path", "fileName")

	ad.Kind = inferAdvertKind(raw, firstNonEmpty(generic, ad.VideoURL, ad.ImageURL))

	if ad.Kind == model.MediaKindVideo {
		ad.MediaURL = firstNonEmpty(ad.VideoURL, generic)
	} else {
		ad.MediaURL = firstNonEmpty(ad.ImageURL, generic)
	}
	if ad.MediaURL == "" && ad.ID != "" {
		ad.MediaURL = "/api/adverts/" + ad.ID + "/" + strings.ToLower(string(ad.Kind))
	}
	return ad
}

func inferAdvertKind(raw map[string]interface{}, url string) model.MediaKind {
	if kind, ok := explicitKind(raw, "mediaKind", "mediaType", "media_kind", "media_type", "kind"); ok {
		return kind
	}
	if ct, ok := firstString(raw, "contentType", "content_type", "mimeType"); ok {
		if kind, ok := kindFromContentType(ct); ok {
			return kind
		}
	}
	if IsVideoURL(url) {
		return model.MediaKindVideo
	}
	if _, ok := presentString(raw["videoUrl"]); ok {
		return model.MediaKindVideo
	}
	return model.MediaKindImage
}

func advertPath(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		s, ok := presentString(raw[key])
		if !ok {
			continue
		}
		if p := CoerceAdvertPath(s); p != "" {
			return p
		}
	}
	return ""
}

// CoerceAdvertPath cleans s and places bare file names under the advert
// upload directory. Paths already under a served prefix are kept.
func CoerceAdvertPath(s string) string {
	s = Clean(s)
	if s == "" || schemePattern.MatchString(s) || strings.HasPrefix(s, "//") {
		return s
	}
	for _, prefix := range servedPrefixes {
		if strings.HasPrefix(s, prefix) {
			return s
		}
	}
	bare := strings.TrimPrefix(s, "/")
	if !strings.Contains(bare, "/") {
		return AdvertUploadDir + bare
	}
	return ResolvePath(s)
}

// NormalizeAlbum maps a raw album record onto model.Album.
func NormalizeAlbum(raw map[string]interface{}) model.Album {
	var album model.Album
	if raw == nil {
		return album
	}
	album.ID, _ = firstID(raw, "id", "albumId")
	album.Title, _ = firstString(raw, "title", "name")
	album.Slug, _ = firstString(raw, "slug")
	album.Description, _ = firstString(raw, "description")
	if id, ok := firstID(raw, "eventId"); ok {
		album.EventID = id
	} else if event, ok := raw["event"].(map[string]interface{}); ok {
		album.EventID, _ = firstID(event, "id")
	}
	if published, ok := boolValue(raw["published"]); ok {
		album.Published = published
	} else if published, ok := boolValue(raw["isPublished"]); ok {
		album.Published = published
	}
	album.CoverURL = resolveFirst(raw, []source{field("coverUrl"), field("coverImageUrl"), field("coverImage")})
	if t, ok := timeValue(raw["createdAt"]); ok {
		album.CreatedAt = &t
	}
	return album
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
