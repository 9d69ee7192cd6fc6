package upload

import (
	"testing"

	"orgmedia/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statuses(history []model.UploadProgress) []model.Status {
	out := make([]model.Status, 0, len(history))
	for _, p := range history {
		out = append(out, p.Status)
	}
	return out
}

func TestTracker_Lifecycle(t *testing.T) {
	rec := &Recorder{}
	tr := newTracker(rec, "a.png", 100, 0, 1)

	tr.pending()
	tr.advance(40)
	tr.advance(30) // out of order callbacks never move progress back
	tr.advance(100)
	tr.advance(100)
	tr.complete()
	tr.fail("late")

	h := rec.History()
	assert.Equal(t, []model.Status{
		model.StatusPending, model.StatusUploading, model.StatusProcessing, model.StatusComplete,
	}, statuses(h))
	assert.Equal(t, 40, h[1].Percentage)
	assert.Equal(t, int64(40), h[1].Loaded)
	assert.Equal(t, 100, h[2].Percentage)
	assert.Equal(t, "a.png", h[3].CurrentFile)
}

func TestTracker_UploadingOnlyWhenPercentageMoves(t *testing.T) {
	rec := &Recorder{}
	const total = 500 * 1024 * 1024
	tr := newTracker(rec, "clip.mp4", total, 0, 1)

	tr.pending()
	for sent := int64(0); sent < total; sent += 32 * 1024 {
		tr.advance(sent)
	}
	tr.advance(total)
	tr.complete()

	h := rec.History()
	uploading := 0
	prev := -1
	for _, p := range h {
		if p.Status != model.StatusUploading {
			continue
		}
		uploading++
		assert.Greater(t, p.Percentage, prev)
		prev = p.Percentage
	}
	assert.LessOrEqual(t, uploading, 101)
	assert.Equal(t, 100, uploading)
	assert.Equal(t, model.StatusProcessing, h[len(h)-2].Status)
	assert.Equal(t, model.StatusComplete, h[len(h)-1].Status)
}

func TestTracker_CompleteWithoutFullProgress(t *testing.T) {
	rec := &Recorder{}
	tr := newTracker(rec, "", 10, 0, 2)

	tr.pending()
	tr.advance(5)
	tr.complete()

	h := rec.History()
	assert.Equal(t, []model.Status{
		model.StatusPending, model.StatusUploading, model.StatusProcessing, model.StatusComplete,
	}, statuses(h))
	assert.Equal(t, int64(10), h[3].Loaded)
	assert.Equal(t, 2, h[3].TotalFiles)
}

func TestTracker_FailAlwaysCarriesMessage(t *testing.T) {
	rec := &Recorder{}
	tr := newTracker(rec, "a.png", 0, 3, 5)

	tr.fail("")
	tr.complete()

	h := rec.History()
	require.Len(t, h, 1)
	assert.Equal(t, model.StatusError, h[0].Status)
	assert.NotEmpty(t, h[0].Error)
	assert.Equal(t, 3, h[0].FileIndex)
	assert.Equal(t, 0, h[0].Percentage)
}

func TestTracker_EmptyPayload(t *testing.T) {
	rec := &Recorder{}
	tr := newTracker(rec, "empty.png", 0, 0, 1)

	tr.pending()
	tr.advance(0)
	tr.complete()

	h := rec.History()
	assert.Equal(t, []model.Status{model.StatusPending, model.StatusProcessing, model.StatusComplete}, statuses(h))
	assert.Equal(t, 100, h[2].Percentage)
}

func TestChanReporter_NeverBlocks(t *testing.T) {
	ch := make(chan model.UploadProgress, 1)
	r := NewChanReporter(ch)

	r.Report(model.UploadProgress{Status: model.StatusPending})
	r.Report(model.UploadProgress{Status: model.StatusUploading})

	assert.Equal(t, int64(1), r.Dropped())
	assert.Equal(t, model.StatusPending, (<-ch).Status)
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	r := Multi(a, nil, b)

	r.Report(model.UploadProgress{Status: model.StatusComplete})

	assert.Len(t, a.History(), 1)
	assert.Len(t, b.History(), 1)
}
