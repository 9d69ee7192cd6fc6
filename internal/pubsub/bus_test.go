package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"orgmedia/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAllowedChannel(t *testing.T) {
	assert.True(t, AllowedChannel("album:12"))
	assert.True(t, AllowedChannel("advert:3"))
	assert.True(t, AllowedChannel("upload:12"))
	assert.False(t, AllowedChannel("album:"))
	assert.False(t, AllowedChannel("entity:1"))
	assert.False(t, AllowedChannel(""))
}

func TestProgressEvent(t *testing.T) {
	event := ProgressEvent(model.UploadProgress{
		Loaded:      30,
		Total:       60,
		Percentage:  50,
		Status:      model.StatusUploading,
		CurrentFile: "clip.mp4",
		FileIndex:   1,
		TotalFiles:  3,
	})

	assert.Equal(t, "upload.progress", event["type"])
	assert.Equal(t, "UPLOADING", event["status"])
	assert.Equal(t, 50, event["percentage"])
	assert.Equal(t, "clip.mp4", event["currentFile"])
	assert.Equal(t, 3, event["totalFiles"])
	assert.NotContains(t, event, "error")

	batch := ProgressEvent(model.UploadProgress{Status: model.StatusError, Error: "Unsupported file format"})
	assert.NotContains(t, batch, "totalFiles")
	assert.Equal(t, "Unsupported file format", batch["error"])
}

func TestWithStreamID(t *testing.T) {
	event := map[string]interface{}{"type": "media.created"}

	out := withStreamID(event, "1715938205123-0")
	assert.Equal(t, "1715938205123-0", out["streamId"])
	assert.NotContains(t, event, "streamId")

	assert.NotContains(t, withStreamID(event, ""), "streamId")
}

func TestStreamTime(t *testing.T) {
	assert.Equal(t, time.UnixMilli(1715938205123).UTC(), streamTime("1715938205123-4"))
	assert.True(t, streamTime("garbage").IsZero())
}

type gatedPublisher struct {
	gate     chan struct{}
	mu       sync.Mutex
	channels []string
	events   []map[string]interface{}
}

func (g *gatedPublisher) publish(_ context.Context, channel string, data []byte) error {
	<-g.gate
	var event map[string]interface{}
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels = append(g.channels, channel)
	g.events = append(g.events, event)
	return nil
}

func TestProgressReporter_DoesNotWaitForRedis(t *testing.T) {
	bus := &Bus{log: zap.NewNop(), ctx: context.Background()}
	pub := &gatedPublisher{gate: make(chan struct{})}
	r := newProgressReporter(bus, "12", pub.publish)

	reported := make(chan struct{})
	go func() {
		defer close(reported)
		for i := 0; i <= 1000; i++ {
			r.Report(model.UploadProgress{Status: model.StatusUploading, Loaded: int64(i), Total: 1000})
		}
	}()
	select {
	case <-reported:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked on a stalled publisher")
	}

	close(pub.gate)
	r.Close()

	require.NotEmpty(t, pub.events)
	assert.Equal(t, "upload:12", pub.channels[0])
	assert.Equal(t, float64(0), pub.events[0]["loaded"])
	assert.Equal(t, int64(1001), int64(len(pub.events))+r.feed.Dropped())

	prev := -1.0
	for _, e := range pub.events {
		loaded := e["loaded"].(float64)
		assert.Greater(t, loaded, prev)
		prev = loaded
	}
}

func TestProgressReporter_FlushesOnClose(t *testing.T) {
	bus := &Bus{log: zap.NewNop(), ctx: context.Background()}
	pub := &gatedPublisher{gate: make(chan struct{})}
	close(pub.gate)
	r := newProgressReporter(bus, "advert-3", pub.publish)

	r.Report(model.UploadProgress{Status: model.StatusPending})
	r.Report(model.UploadProgress{Status: model.StatusComplete, Percentage: 100})
	r.Close()
	r.Close()
	r.Report(model.UploadProgress{Status: model.StatusError, Error: "late"})

	require.Len(t, pub.events, 2)
	assert.Equal(t, "COMPLETE", pub.events[1]["status"])
	assert.Equal(t, "upload:advert-3", pub.channels[1])
}
