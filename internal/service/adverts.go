package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"orgmedia/internal/db"
	"orgmedia/internal/media"
	"orgmedia/internal/model"

	"go.uber.org/zap"
)

// AdvertInput carries the fields of a new advert
type AdvertInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	LinkURL     string `json:"linkUrl,omitempty"`
	Active      *bool  `json:"active,omitempty"`
}

func (s *MediaService) CreateAdvert(ctx context.Context, input AdvertInput) (model.Advert, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return model.Advert{}, errors.New("title is required")
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}

	row, err := s.repo.CreateAdvert(ctx, db.CreateAdvertParams{
		Title:       title,
		Description: optional(input.Description),
		LinkURL:     optional(input.LinkURL),
		Active:      active,
	})
	if err != nil {
		return model.Advert{}, fmt.Errorf("failed to create advert: %w", err)
	}
	return media.NormalizeAdvert(AdvertRecord(row)), nil
}

func (s *MediaService) GetAdvert(ctx context.Context, advertID string) (model.Advert, error) {
	id, err := parseID(advertID)
	if err != nil {
		return model.Advert{}, err
	}
	row, err := s.repo.GetAdvert(ctx, id)
	if err != nil {
		return model.Advert{}, notFound(err)
	}
	return media.NormalizeAdvert(AdvertRecord(row)), nil
}

func (s *MediaService) ListAdverts(ctx context.Context, activeOnly bool) ([]model.Advert, error) {
	rows, err := s.repo.ListAdverts(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list adverts: %w", err)
	}
	adverts := make([]model.Advert, len(rows))
	for i, row := range rows {
		adverts[i] = media.NormalizeAdvert(AdvertRecord(row))
	}
	return adverts, nil
}

// StoreAdvertAsset replaces the advert's image or video with f. The previous
// file for that role is removed once the row points at the new one.
func (s *MediaService) StoreAdvertAsset(ctx context.Context, advertID string, role model.AssetRole, f model.UploadCandidate) (model.Advert, error) {
	if role != model.AssetRoleImage && role != model.AssetRoleVideo {
		return model.Advert{}, fmt.Errorf("unknown asset role %q", role)
	}
	id, err := parseID(advertID)
	if err != nil {
		return model.Advert{}, err
	}
	before, err := s.repo.GetAdvert(ctx, id)
	if err != nil {
		return model.Advert{}, notFound(err)
	}

	stored, kind, key, err := s.storeFile(ctx, AdvertFolder, f, role.Kind())
	if err != nil {
		return model.Advert{}, err
	}

	row, err := s.repo.SetAdvertMedia(ctx, id, string(kind), stored.URL)
	if err != nil {
		_ = s.store.Delete(ctx, key)
		return model.Advert{}, notFound(err)
	}

	previous := before.ImageURL
	if role == model.AssetRoleVideo {
		previous = before.VideoURL
	}
	if previous != nil {
		if oldKey, ok := s.keyOf(*previous); ok && oldKey != key {
			if err := s.store.Delete(ctx, oldKey); err != nil {
				s.log.Debug("Previous advert file not removed", zap.String("key", oldKey), zap.Error(err))
			}
		}
	}

	advert := media.NormalizeAdvert(AdvertRecord(row))
	_ = s.bus.PublishAdvert(advertID, map[string]interface{}{
		"type":     "advert.media",
		"advertId": advertID,
		"role":     string(role),
		"url":      stored.URL,
	})
	s.log.Info("Advert media stored",
		zap.String("advert_id", advertID),
		zap.String("role", string(role)),
		zap.String("url", stored.URL))
	return advert, nil
}

// AdvertRecord renders an advert row in the raw shape the normalizer reads.
func AdvertRecord(a db.Advert) map[string]interface{} {
	rec := map[string]interface{}{
		"id":        strconv.FormatInt(a.ID, 10),
		"title":     a.Title,
		"active":    a.Active,
		"createdAt": a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.Description != nil {
		rec["description"] = *a.Description
	}
	if a.LinkURL != nil {
		rec["linkUrl"] = *a.LinkURL
	}
	if a.MediaKind != nil {
		rec["mediaKind"] = *a.MediaKind
	}
	if a.ImageURL != nil {
		rec["imageUrl"] = *a.ImageURL
	}
	if a.VideoURL != nil {
		rec["videoUrl"] = *a.VideoURL
	}
	return rec
}
