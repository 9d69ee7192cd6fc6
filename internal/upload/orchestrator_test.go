package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"orgmedia/internal/model"
	"orgmedia/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records requests and answers with one record per file
type fakeTransport struct {
	mu      sync.Mutex
	calls   []Request
	respond func(ctx context.Context, req Request, onProgress func(int64)) (interface{}, error)
}

func (f *fakeTransport) UploadMedia(ctx context.Context, req Request, onProgress func(int64)) (interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(ctx, req, onProgress)
	}
	return echoFiles(req, onProgress)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// echoFiles drains every file and returns a stored-file record for each.
func echoFiles(req Request, onProgress func(int64)) (interface{}, error) {
	var sent int64
	records := make([]interface{}, 0, len(req.Files))
	for _, f := range req.Files {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		n, err := io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		sent += n
		onProgress(sent)
		records = append(records, map[string]interface{}{
			"id":          f.Name,
			"fileName":    f.Name,
			"contentType": f.ContentType,
			"size":        float64(n),
		})
	}
	return records, nil
}

func newTestOrchestrator(tr Transport, opts ...Option) *Orchestrator {
	return NewOrchestrator(tr, storage.DefaultPolicy(), zap.NewNop(), opts...)
}

func payload(name, contentType string, size int) model.UploadCandidate {
	return BytesCandidate(name, contentType, []byte(strings.Repeat("x", size)))
}

func TestUpload_SequentialSkipsInvalidFile(t *testing.T) {
	ft := &fakeTransport{}
	o := newTestOrchestrator(ft)
	rec := &Recorder{}

	items, err := o.Upload(context.Background(), "7", []model.UploadCandidate{
		payload("one.jpg", "image/jpeg", 10),
		payload("notes.txt", "text/plain", 10),
		payload("three.mp4", "video/mp4", 10),
	}, model.StrategySequential, rec)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "one.jpg", items[0].ID)
	assert.Equal(t, "/uploads/media2/one.jpg", items[0].URL)
	assert.Equal(t, "three.mp4", items[1].ID)
	assert.Equal(t, model.MediaKindVideo, items[1].Kind)

	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].FileIndex)
	assert.Equal(t, 3, errs[0].TotalFiles)
	assert.Equal(t, "notes.txt", errs[0].CurrentFile)
	assert.Contains(t, errs[0].Error, "unsupported file type")

	assert.Equal(t, 2, ft.callCount())
	for _, call := range ft.calls {
		assert.Len(t, call.Files, 1)
		assert.Equal(t, "files", call.Field)
		assert.Equal(t, "/api/admin/albums/7/items", call.Path)
	}
}

func TestUpload_SequentialContinuesAfterServerError(t *testing.T) {
	ft := &fakeTransport{respond: func(_ context.Context, req Request, p func(int64)) (interface{}, error) {
		if req.Files[0].Name == "a.jpg" {
			return nil, &ServerError{StatusCode: 500}
		}
		return echoFiles(req, p)
	}}
	rec := &Recorder{}

	items, err := newTestOrchestrator(ft).Upload(context.Background(), "1", []model.UploadCandidate{
		payload("a.jpg", "image/jpeg", 4),
		payload("b.jpg", "image/jpeg", 4),
	}, model.StrategySequential, rec)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b.jpg", items[0].ID)
	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, MsgServerFailure, errs[0].Error)
	assert.Equal(t, 0, errs[0].FileIndex)
}

func TestUpload_BatchServerTooLarge(t *testing.T) {
	ft := &fakeTransport{respond: func(context.Context, Request, func(int64)) (interface{}, error) {
		return nil, &ServerError{StatusCode: 413, Body: "Request Entity Too Large"}
	}}
	rec := &Recorder{}

	items, err := newTestOrchestrator(ft).Upload(context.Background(), "1", []model.UploadCandidate{
		payload("a.jpg", "image/jpeg", 4),
		payload("b.jpg", "image/jpeg", 4),
	}, model.StrategyBatch, rec)

	require.Error(t, err)
	assert.Nil(t, items)
	assert.True(t, strings.HasPrefix(err.Error(), "File too large"))
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 413, serr.StatusCode)

	h := rec.History()
	require.NotEmpty(t, h)
	last := h[len(h)-1]
	assert.Equal(t, model.StatusError, last.Status)
	assert.Equal(t, MsgTooLarge, last.Error)
	assert.Equal(t, 1, ft.callCount())
}

func TestUpload_BatchProgressOrdering(t *testing.T) {
	ft := &fakeTransport{}
	rec := &Recorder{}

	items, err := newTestOrchestrator(ft).Upload(context.Background(), "1", []model.UploadCandidate{
		payload("a.jpg", "image/jpeg", 30),
		payload("b.png", "image/png", 70),
	}, model.StrategyBatch, rec)

	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 1, ft.callCount())
	assert.Len(t, ft.calls[0].Files, 2)

	h := rec.History()
	assert.Equal(t, []model.Status{
		model.StatusPending, model.StatusUploading, model.StatusProcessing, model.StatusComplete,
	}, statuses(h))
	assert.Equal(t, 30, h[1].Percentage)
	prev := -1
	for _, p := range h {
		assert.GreaterOrEqual(t, p.Percentage, prev)
		assert.Equal(t, int64(100), p.Total)
		assert.Equal(t, 2, p.TotalFiles)
		prev = p.Percentage
	}
}

func TestUpload_ValidationFailsBeforeNetwork(t *testing.T) {
	ft := &fakeTransport{}
	rec := &Recorder{}
	big := model.UploadCandidate{Name: "huge.png", ContentType: "image/png", Size: 60_000_000}

	_, err := newTestOrchestrator(ft).Upload(context.Background(), "1",
		[]model.UploadCandidate{payload("ok.jpg", "image/jpeg", 1), big}, model.StrategyBatch, rec)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "57.2 MB")
	assert.Equal(t, 0, ft.callCount())
	h := rec.History()
	require.Len(t, h, 1)
	assert.Equal(t, model.StatusError, h[0].Status)
}

func TestUpload_NoFiles(t *testing.T) {
	ft := &fakeTransport{}

	_, err := newTestOrchestrator(ft).Upload(context.Background(), "1", nil, model.StrategyBatch, nil)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, ft.callCount())
}

func TestUpload_Timeout(t *testing.T) {
	ft := &fakeTransport{respond: func(ctx context.Context, _ Request, _ func(int64)) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	_, err := newTestOrchestrator(ft, WithTimeout(20*time.Millisecond)).Upload(context.Background(), "1",
		[]model.UploadCandidate{payload("a.jpg", "image/jpeg", 1)}, model.StrategyBatch, nil)

	require.Error(t, err)
	assert.Equal(t, MsgTimeout, err.Error())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUpload_PlainTransportErrorIsClassified(t *testing.T) {
	ft := &fakeTransport{respond: func(context.Context, Request, func(int64)) (interface{}, error) {
		return nil, errors.New("connection reset by peer")
	}}

	_, err := newTestOrchestrator(ft).Upload(context.Background(), "1",
		[]model.UploadCandidate{payload("a.jpg", "image/jpeg", 1)}, model.StrategyBatch, nil)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "Upload failed: connection reset by peer", err.Error())
}

func TestUpload_PagedEnvelope(t *testing.T) {
	ft := &fakeTransport{respond: func(context.Context, Request, func(int64)) (interface{}, error) {
		return map[string]interface{}{
			"content": []interface{}{
				map[string]interface{}{"id": float64(1), "url": `StoredFile[fileName=a.jpg, url=/uploads/media2/a.jpg]`},
			},
		}, nil
	}}

	items, err := newTestOrchestrator(ft).Upload(context.Background(), "1",
		[]model.UploadCandidate{payload("a.jpg", "image/jpeg", 1)}, model.StrategyBatch, nil)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, "/uploads/media2/a.jpg", items[0].URL)
}

func TestUpload_AdvisorPolicy(t *testing.T) {
	files := []model.UploadCandidate{
		{Name: "long.mp4", ContentType: "video/mp4", Size: 150 * storage.MB, Open: payload("x", "", 1).Open},
		payload("a.jpg", "image/jpeg", 1),
	}

	advised := &fakeTransport{}
	_, err := newTestOrchestrator(advised).Upload(context.Background(), "1", files, model.StrategyBatch, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, advised.callCount())

	auto := &fakeTransport{}
	_, err = newTestOrchestrator(auto, WithAdvisor(AutoSequential)).Upload(context.Background(), "1", files, model.StrategyBatch, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, auto.callCount())
}

func TestUpload_UnknownStrategy(t *testing.T) {
	_, err := newTestOrchestrator(&fakeTransport{}).Upload(context.Background(), "1",
		[]model.UploadCandidate{payload("a.jpg", "image/jpeg", 1)}, model.Strategy("parallel"), nil)
	assert.Error(t, err)
}

func TestUploadAsset(t *testing.T) {
	ft := &fakeTransport{respond: func(_ context.Context, req Request, p func(int64)) (interface{}, error) {
		p(req.Files[0].Size)
		return map[string]interface{}{
			"id":       float64(5),
			"title":    "Spring sale",
			"videoUrl": "/uploads/media/promo_20240101000000_abcd1234.mp4",
		}, nil
	}}
	rec := &Recorder{}

	item, err := newTestOrchestrator(ft).UploadAsset(context.Background(), "5", model.AssetRoleVideo,
		payload("promo.mp4", "video/mp4", 8), rec)

	require.NoError(t, err)
	assert.Equal(t, "/uploads/media/promo_20240101000000_abcd1234.mp4", item.URL)
	assert.Equal(t, model.MediaKindVideo, item.Kind)
	require.Equal(t, 1, ft.callCount())
	assert.Equal(t, "/api/admin/adverts/5/video", ft.calls[0].Path)
	assert.Equal(t, "file", ft.calls[0].Field)
	assert.Equal(t, model.StatusComplete, rec.History()[len(rec.History())-1].Status)
}

func TestUploadAsset_RoleMismatch(t *testing.T) {
	ft := &fakeTransport{}
	rec := &Recorder{}

	_, err := newTestOrchestrator(ft).UploadAsset(context.Background(), "5", model.AssetRoleImage,
		payload("promo.mp4", "video/mp4", 8), rec)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "not an image file")
	assert.Equal(t, 0, ft.callCount())
	require.Len(t, rec.Errors(), 1)
}
