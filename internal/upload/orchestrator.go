// Package upload validates candidate files and sends them to the media
// backend, reporting progress and mapping failures to user-facing text.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"orgmedia/internal/media"
	"orgmedia/internal/metrics"
	"orgmedia/internal/model"
	"orgmedia/internal/storage"
)

// DefaultTimeout bounds a single upload request.
const DefaultTimeout = 10 * time.Minute

// StrategyAdvisor decides the strategy actually used, given whether the
// policy recommends sequential mode and what the caller asked for.
type StrategyAdvisor func(recommendSequential bool, requested model.Strategy) model.Strategy

// AdviseOnly keeps the caller's strategy.
func AdviseOnly(_ bool, requested model.Strategy) model.Strategy {
	return requested
}

// AutoSequential switches to sequential mode whenever it is recommended.
func AutoSequential(recommendSequential bool, requested model.Strategy) model.Strategy {
	if recommendSequential {
		return model.StrategySequential
	}
	return requested
}

// Orchestrator uploads album items and advert assets. Calls on one
// Orchestrator for the same target must not overlap.
type Orchestrator struct {
	transport Transport
	policy    *storage.Policy
	log       *zap.Logger
	timeout   time.Duration
	advisor   StrategyAdvisor
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithAdvisor installs a strategy policy. The default is AdviseOnly.
func WithAdvisor(a StrategyAdvisor) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.advisor = a
		}
	}
}

// NewOrchestrator creates an orchestrator. A nil policy means DefaultPolicy.
func NewOrchestrator(transport Transport, policy *storage.Policy, log *zap.Logger, opts ...Option) *Orchestrator {
	if policy == nil {
		policy = storage.DefaultPolicy()
	}
	o := &Orchestrator{
		transport: transport,
		policy:    policy,
		log:       log,
		timeout:   DefaultTimeout,
		advisor:   AdviseOnly,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the validation policy in use.
func (o *Orchestrator) Policy() *storage.Policy {
	return o.policy
}

// AlbumItemsPath is the collection endpoint for album media.
func AlbumItemsPath(albumID string) string {
	return "/api/admin/albums/" + url.PathEscape(albumID) + "/items"
}

// AdvertAssetPath is the single-file endpoint for an advert's role.
func AdvertAssetPath(advertID string, role model.AssetRole) string {
	return "/api/admin/adverts/" + url.PathEscape(advertID) + "/" + string(role)
}

// Upload sends candidates to the album targetID.
//
// In batch mode all candidates travel in one request and any failure fails
// the whole call. In sequential mode each candidate is validated and sent on
// its own; failures are reported as ERROR progress carrying the file's index
// and skipped, so the returned items may be fewer than the candidates.
func (o *Orchestrator) Upload(ctx context.Context, targetID string, candidates []model.UploadCandidate, strategy model.Strategy, reporter Reporter) ([]model.MediaItem, error) {
	if reporter == nil {
		reporter = Discard
	}
	if len(candidates) == 0 {
		err := &ValidationError{Messages: []string{"No files selected"}}
		newTracker(reporter, "", 0, 0, 0).fail(err.Error())
		return nil, err
	}

	recommended := o.policy.RecommendSequential(candidates)
	chosen := o.advisor(recommended, strategy)
	if recommended && chosen != model.StrategySequential {
		o.log.Info("Sequential upload recommended for large files",
			zap.String("target_id", targetID),
			zap.String("strategy", string(chosen)))
	}
	if chosen != strategy {
		o.log.Info("Upload strategy changed by policy",
			zap.String("requested", string(strategy)),
			zap.String("chosen", string(chosen)))
	}

	switch chosen {
	case model.StrategySequential:
		return o.uploadSequential(ctx, targetID, candidates, reporter), nil
	case model.StrategyBatch, "":
		return o.uploadBatch(ctx, targetID, candidates, 0, len(candidates), model.StrategyBatch, reporter)
	}
	return nil, fmt.Errorf("unknown upload strategy %q", chosen)
}

func (o *Orchestrator) uploadSequential(ctx context.Context, targetID string, candidates []model.UploadCandidate, reporter Reporter) []model.MediaItem {
	items := make([]model.MediaItem, 0, len(candidates))
	for i, c := range candidates {
		got, err := o.uploadBatch(ctx, targetID, []model.UploadCandidate{c}, i, len(candidates), model.StrategySequential, reporter)
		if err != nil {
			o.log.Warn("Skipping file after failed upload",
				zap.String("target_id", targetID),
				zap.String("file", c.Name),
				zap.Int("file_index", i),
				zap.Error(err))
			continue
		}
		items = append(items, got...)
	}
	return items
}

func (o *Orchestrator) uploadBatch(ctx context.Context, targetID string, files []model.UploadCandidate, fileIndex, totalFiles int, strategy model.Strategy, reporter Reporter) ([]model.MediaItem, error) {
	req := Request{Path: AlbumItemsPath(targetID), Field: "files", Files: files}
	return o.send(ctx, req, fileIndex, totalFiles, string(strategy), nil, reporter, func(body interface{}) ([]model.MediaItem, error) {
		return media.NormalizeAll(media.UnwrapRecords(body, "items")), nil
	})
}

// UploadAsset sends one file to the advert targetID under role.
func (o *Orchestrator) UploadAsset(ctx context.Context, targetID string, role model.AssetRole, candidate model.UploadCandidate, reporter Reporter) (model.MediaItem, error) {
	if reporter == nil {
		reporter = Discard
	}
	if role != model.AssetRoleImage && role != model.AssetRoleVideo {
		return model.MediaItem{}, fmt.Errorf("unknown asset role %q", role)
	}

	roleCheck := func(c model.UploadCandidate) []string {
		kind, ok := o.policy.Classify(c.Name, c.ContentType)
		if ok && kind != role.Kind() {
			return []string{fmt.Sprintf("%s is not a%s %s file", c.Name, article(role), role)}
		}
		return nil
	}

	req := Request{Path: AdvertAssetPath(targetID, role), Field: "file", Files: []model.UploadCandidate{candidate}}
	items, err := o.send(ctx, req, 0, 1, "asset", roleCheck, reporter, func(body interface{}) ([]model.MediaItem, error) {
		rec, ok := assetRecord(body, role)
		if !ok {
			return nil, &TransportError{Err: errors.New("response carried no media record")}
		}
		return []model.MediaItem{media.Normalize(rec)}, nil
	})
	if err != nil {
		return model.MediaItem{}, err
	}
	return items[0], nil
}

func article(role model.AssetRole) string {
	if role == model.AssetRoleImage {
		return "n"
	}
	return ""
}

// assetRecord picks the media record out of a single-asset response. Advert
// shaped responses carry the role's URL under imageUrl or videoUrl.
func assetRecord(body interface{}, role model.AssetRole) (map[string]interface{}, bool) {
	rec, ok := body.(map[string]interface{})
	if !ok {
		records := media.UnwrapRecords(body, "items")
		if len(records) == 0 {
			return nil, false
		}
		rec = records[0]
	}
	if _, hasURL := rec["url"]; !hasURL {
		if roleURL, ok := rec[string(role)+"Url"]; ok {
			copied := make(map[string]interface{}, len(rec)+1)
			for k, v := range rec {
				copied[k] = v
			}
			copied["url"] = roleURL
			rec = copied
		}
	}
	return rec, true
}

// send runs one request through validation, transport and parsing while
// driving a single progress lifecycle.
func (o *Orchestrator) send(
	ctx context.Context,
	req Request,
	fileIndex, totalFiles int,
	label string,
	check func(model.UploadCandidate) []string,
	reporter Reporter,
	parse func(body interface{}) ([]model.MediaItem, error),
) ([]model.MediaItem, error) {
	var total int64
	for _, f := range req.Files {
		total += f.Size
	}
	name := ""
	if len(req.Files) == 1 {
		name = req.Files[0].Name
	}
	tr := newTracker(reporter, name, total, fileIndex, totalFiles)

	res := o.policy.Validate(req.Files)
	if check != nil {
		for _, f := range req.Files {
			res.Errors = append(res.Errors, check(f)...)
		}
		res.Valid = len(res.Errors) == 0
	}
	for _, w := range res.Warnings {
		o.log.Warn("Upload validation warning", zap.String("path", req.Path), zap.String("warning", w))
	}
	if !res.Valid {
		err := &ValidationError{Messages: res.Errors}
		tr.fail(err.Error())
		metrics.RecordClientUpload(label, "invalid", 0)
		return nil, err
	}

	tr.pending()
	if err := ctx.Err(); err != nil {
		return nil, o.failed(tr, label, req, classify(ctx, err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	body, err := o.transport.UploadMedia(reqCtx, req, tr.advance)
	if err != nil {
		return nil, o.failed(tr, label, req, classify(reqCtx, err))
	}

	items, err := parse(body)
	if err != nil {
		return nil, o.failed(tr, label, req, classify(reqCtx, err))
	}
	tr.complete()

	metrics.RecordClientUpload(label, "success", total)
	o.log.Info("Upload complete",
		zap.String("path", req.Path),
		zap.String("strategy", label),
		zap.Int("files", len(req.Files)),
		zap.Int("items", len(items)),
		zap.Int64("bytes", total),
		zap.Duration("elapsed", time.Since(start)))
	return items, nil
}

func (o *Orchestrator) failed(tr *tracker, label string, req Request, err error) error {
	tr.fail(UserMessage(err))
	metrics.RecordClientUpload(label, "failed", 0)
	o.log.Error("Upload failed",
		zap.String("path", req.Path),
		zap.String("strategy", label),
		zap.Int("files", len(req.Files)),
		zap.Error(err))
	return err
}

// classify ensures every failure is a *ServerError or *TransportError.
func classify(ctx context.Context, err error) error {
	var serr *ServerError
	var terr *TransportError
	switch {
	case errors.As(err, &serr), errors.As(err, &terr):
		if terr != nil && !terr.Timeout && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TransportError{Timeout: true, Err: terr.Err}
		}
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &TransportError{Timeout: true, Err: err}
	}
	return &TransportError{Err: err}
}
