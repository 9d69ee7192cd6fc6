package storage

import (
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"orgmedia/internal/model"
)

// MB is the unit used for every size limit and message.
const MB = 1024 * 1024

// Policy represents the upload constraints for album and advert media
type Policy struct {
	MaxImageBytes       int64    `json:"maxImageBytes"`
	MaxVideoBytes       int64    `json:"maxVideoBytes"`
	MaxBatchBytes       int64    `json:"maxBatchBytes"`
	SoftSequentialBytes int64    `json:"softSequentialBytes"`
	NearLimitRatio      float64  `json:"nearLimitRatio"`
	ImageTypes          []string `json:"imageTypes"`
	VideoTypes          []string `json:"videoTypes"`
	ImageExtensions     []string `json:"imageExtensions"`
	VideoExtensions     []string `json:"videoExtensions"`
}

// DefaultPolicy returns the production limits.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxImageBytes:       50 * MB,
		MaxVideoBytes:       500 * MB,
		MaxBatchBytes:       2048 * MB,
		SoftSequentialBytes: 100 * MB,
		NearLimitRatio:      0.8,
		ImageTypes: []string{
			"image/jpeg", "image/jpg", "image/png", "image/gif",
			"image/webp", "image/heic", "image/heif",
		},
		VideoTypes: []string{
			"video/mp4", "video/webm", "video/ogg", "video/quicktime",
			"video/x-msvideo", "video/x-matroska", "video/3gpp", "video/3gpp2",
		},
		ImageExtensions: []string{"jpg", "jpeg", "png", "gif", "webp", "heic", "heif"},
		VideoExtensions: []string{"mp4", "webm", "ogg", "mov", "avi", "mkv", "3gp", "3g2"},
	}
}

// ParseFilePolicy applies overrides from a decoded JSON document on top of
// DefaultPolicy. Sizes are given in MB.
func ParseFilePolicy(overrides map[string]interface{}) (*Policy, error) {
	p := DefaultPolicy()
	if overrides == nil {
		return p, nil
	}

	sizes := map[string]*int64{
		"maxImageMB":       &p.MaxImageBytes,
		"maxVideoMB":       &p.MaxVideoBytes,
		"maxTotalMB":       &p.MaxBatchBytes,
		"softSequentialMB": &p.SoftSequentialBytes,
	}
	for key, dst := range sizes {
		raw, ok := overrides[key]
		if !ok {
			continue
		}
		val, ok := raw.(float64)
		if !ok || val <= 0 {
			return nil, fmt.Errorf("%s must be a positive number", key)
		}
		*dst = int64(val * MB)
	}

	if val, ok := overrides["nearLimitRatio"].(float64); ok {
		if val <= 0 || val > 1 {
			return nil, fmt.Errorf("nearLimitRatio must be in (0, 1]")
		}
		p.NearLimitRatio = val
	}

	lists := map[string]*[]string{
		"imageMime":       &p.ImageTypes,
		"videoMime":       &p.VideoTypes,
		"imageExtensions": &p.ImageExtensions,
		"videoExtensions": &p.VideoExtensions,
	}
	for key, dst := range lists {
		raw, ok := overrides[key].([]interface{})
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s must contain strings", key)
			}
			s = strings.ToLower(strings.TrimSpace(s))
			if strings.HasSuffix(key, "Extensions") {
				s = strings.TrimPrefix(s, ".")
			}
			out = append(out, s)
		}
		*dst = out
	}

	return p, nil
}

// Validate checks candidates against the policy. Messages follow input order;
// the aggregate check is appended last.
func (p *Policy) Validate(candidates []model.UploadCandidate) model.ValidationResult {
	res := model.ValidationResult{Errors: []string{}, Warnings: []string{}}

	var total int64
	for _, c := range candidates {
		total += c.Size
		errs, warns := p.checkFile(c)
		res.Errors = append(res.Errors, errs...)
		res.Warnings = append(res.Warnings, warns...)
	}

	if p.MaxBatchBytes > 0 && total > p.MaxBatchBytes {
		res.Errors = append(res.Errors, fmt.Sprintf(
			"Total upload size (%.1f MB) exceeds the maximum of %s MB per upload. Upload fewer files at a time.",
			toMB(total), formatMB(p.MaxBatchBytes)))
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func (p *Policy) checkFile(c model.UploadCandidate) (errs, warns []string) {
	kind, byMime := p.classifyMime(c.ContentType)
	if !byMime {
		var byExt bool
		kind, byExt = p.classifyExtension(c.Name)
		if !byExt {
			return []string{fmt.Sprintf("%s: unsupported file type. Supported formats: %s", c.Name, p.supportedFormats())}, nil
		}
		if strings.TrimSpace(c.ContentType) == "" {
			warns = append(warns, fmt.Sprintf("%s: no content type provided, detected %s from extension",
				c.Name, strings.ToLower(string(kind))))
		} else {
			warns = append(warns, fmt.Sprintf("%s: content type %q not recognized, detected %s from extension",
				c.Name, c.ContentType, strings.ToLower(string(kind))))
		}
	}

	if c.Size < 0 {
		return append(errs, fmt.Sprintf("%s has an invalid size", c.Name)), warns
	}

	ceiling := p.ceiling(kind)
	label := "images"
	if kind == model.MediaKindVideo {
		label = "videos"
	}
	switch {
	case ceiling <= 0:
	case c.Size > ceiling:
		errs = append(errs, fmt.Sprintf("%s is too large (%.1f MB). Maximum size for %s is %s MB.",
			c.Name, toMB(c.Size), label, formatMB(ceiling)))
	case p.NearLimitRatio > 0 && float64(c.Size) >= p.NearLimitRatio*float64(ceiling):
		warns = append(warns, fmt.Sprintf("%s is %.1f MB, close to the %s MB limit for %s. Upload may take a while.",
			c.Name, toMB(c.Size), formatMB(ceiling), label))
	}
	return errs, warns
}

// Classify returns the media kind of a file by content type, falling back to
// its extension. ok is false when neither is recognized.
func (p *Policy) Classify(fileName, contentType string) (model.MediaKind, bool) {
	if kind, ok := p.classifyMime(contentType); ok {
		return kind, true
	}
	return p.classifyExtension(fileName)
}

// MaxBytes returns the per-file ceiling for kind.
func (p *Policy) MaxBytes(kind model.MediaKind) int64 {
	return p.ceiling(kind)
}

// RecommendSequential reports whether any candidate exceeds the soft
// threshold above which one request per file is advisable.
func (p *Policy) RecommendSequential(candidates []model.UploadCandidate) bool {
	if p.SoftSequentialBytes <= 0 {
		return false
	}
	for _, c := range candidates {
		if c.Size > p.SoftSequentialBytes {
			return true
		}
	}
	return false
}

func (p *Policy) ceiling(kind model.MediaKind) int64 {
	if kind == model.MediaKindVideo {
		return p.MaxVideoBytes
	}
	return p.MaxImageBytes
}

func (p *Policy) classifyMime(contentType string) (model.MediaKind, bool) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return "", false
	}
	// Parse the content type (handle parameters like "image/png; name=x")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}
	if matchesMimeType(mediaType, p.ImageTypes) {
		return model.MediaKindImage, true
	}
	if matchesMimeType(mediaType, p.VideoTypes) {
		return model.MediaKindVideo, true
	}
	return "", false
}

func (p *Policy) classifyExtension(fileName string) (model.MediaKind, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "" {
		return "", false
	}
	if contains(p.ImageExtensions, ext) {
		return model.MediaKindImage, true
	}
	if contains(p.VideoExtensions, ext) {
		return model.MediaKindVideo, true
	}
	return "", false
}

func (p *Policy) supportedFormats() string {
	return fmt.Sprintf("%s (images) and %s (videos)",
		strings.ToUpper(strings.Join(p.ImageExtensions, ", ")),
		strings.ToUpper(strings.Join(p.VideoExtensions, ", ")))
}

// matchesMimeType checks mediaType against allowed patterns, including
// wildcards like "image/*"
func matchesMimeType(mediaType string, allowed []string) bool {
	for _, a := range allowed {
		a = strings.ToLower(a)
		if strings.HasSuffix(a, "/*") {
			if strings.HasPrefix(mediaType, strings.TrimSuffix(a, "*")) {
				return true
			}
		} else if mediaType == a {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func toMB(n int64) float64 {
	return float64(n) / MB
}

func formatMB(n int64) string {
	return strconv.FormatFloat(toMB(n), 'f', -1, 64)
}
