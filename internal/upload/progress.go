package upload

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"orgmedia/internal/model"
)

// Reporter receives progress notifications. Report is called synchronously
// from the uploading goroutine and must not block for long.
type Reporter interface {
	Report(p model.UploadProgress)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(p model.UploadProgress)

func (f ReporterFunc) Report(p model.UploadProgress) { f(p) }

// Discard drops every notification.
var Discard Reporter = ReporterFunc(func(model.UploadProgress) {})

// Recorder keeps the full progress history.
type Recorder struct {
	mu      sync.Mutex
	history []model.UploadProgress
}

func (r *Recorder) Report(p model.UploadProgress) {
	r.mu.Lock()
	r.history = append(r.history, p)
	r.mu.Unlock()
}

// History returns a copy of everything reported so far.
func (r *Recorder) History() []model.UploadProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.UploadProgress(nil), r.history...)
}

// Errors returns the ERROR entries in order.
func (r *Recorder) Errors() []model.UploadProgress {
	var out []model.UploadProgress
	for _, p := range r.History() {
		if p.Status == model.StatusError {
			out = append(out, p)
		}
	}
	return out
}

// ChanReporter forwards notifications to a channel without blocking;
// notifications are dropped while the channel is full.
type ChanReporter struct {
	ch      chan<- model.UploadProgress
	dropped atomic.Int64
}

// NewChanReporter creates a ChanReporter sending on ch.
func NewChanReporter(ch chan<- model.UploadProgress) *ChanReporter {
	return &ChanReporter{ch: ch}
}

func (c *ChanReporter) Report(p model.UploadProgress) {
	select {
	case c.ch <- p:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns how many notifications did not fit the channel.
func (c *ChanReporter) Dropped() int64 {
	return c.dropped.Load()
}

type multi []Reporter

func (m multi) Report(p model.UploadProgress) {
	for _, r := range m {
		r.Report(p)
	}
}

// Multi fans notifications out to every non-nil reporter in order.
func Multi(reporters ...Reporter) Reporter {
	var m multi
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

// LogReporter logs each notification. Byte-level UPLOADING updates go to
// debug level.
func LogReporter(log *zap.Logger) Reporter {
	return ReporterFunc(func(p model.UploadProgress) {
		fields := []zap.Field{
			zap.String("status", string(p.Status)),
			zap.String("file", p.CurrentFile),
			zap.Int("file_index", p.FileIndex),
			zap.Int("total_files", p.TotalFiles),
			zap.Int64("loaded", p.Loaded),
			zap.Int64("total", p.Total),
			zap.Int("percentage", p.Percentage),
		}
		switch p.Status {
		case model.StatusUploading:
			log.Debug("Upload progress", fields...)
		case model.StatusError:
			log.Warn("Upload failed", append(fields, zap.String("error", p.Error))...)
		default:
			log.Info("Upload progress", fields...)
		}
	})
}

// tracker emits the progress of one request. Loaded and Percentage never
// decrease, PROCESSING is emitted once, and nothing follows a terminal state.
type tracker struct {
	reporter   Reporter
	name       string
	total      int64
	loaded     int64
	status     model.Status
	fileIndex  int
	totalFiles int

	// last percentage sent with UPLOADING
	shown int
}

func newTracker(reporter Reporter, name string, total int64, fileIndex, totalFiles int) *tracker {
	if reporter == nil {
		reporter = Discard
	}
	return &tracker{
		reporter:   reporter,
		name:       name,
		total:      total,
		fileIndex:  fileIndex,
		totalFiles: totalFiles,
		shown:      -1,
	}
}

func (t *tracker) percentage() int {
	if t.total <= 0 {
		if t.status == model.StatusProcessing || t.status == model.StatusComplete {
			return 100
		}
		return 0
	}
	pct := int(t.loaded * 100 / t.total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (t *tracker) emit(status model.Status, errMsg string) {
	t.status = status
	t.reporter.Report(model.UploadProgress{
		Loaded:      t.loaded,
		Total:       t.total,
		Percentage:  t.percentage(),
		Status:      status,
		CurrentFile: t.name,
		Error:       errMsg,
		FileIndex:   t.fileIndex,
		TotalFiles:  t.totalFiles,
	})
}

func (t *tracker) pending() {
	if t.status != "" {
		return
	}
	t.emit(model.StatusPending, "")
}

// advance records sent bytes as reported by the transport. UPLOADING is only
// emitted when the whole percentage moves, so a file yields at most 101.
func (t *tracker) advance(sent int64) {
	if t.status.Terminal() || t.status == model.StatusProcessing {
		return
	}
	if sent > t.total {
		sent = t.total
	}
	if sent < t.loaded {
		sent = t.loaded
	}
	t.loaded = sent
	if t.loaded >= t.total {
		t.emit(model.StatusProcessing, "")
		return
	}
	if pct := t.percentage(); pct > t.shown {
		t.shown = pct
		t.emit(model.StatusUploading, "")
	}
}

func (t *tracker) complete() {
	if t.status.Terminal() {
		return
	}
	if t.status != model.StatusProcessing {
		t.loaded = t.total
		t.emit(model.StatusProcessing, "")
	}
	t.emit(model.StatusComplete, "")
}

func (t *tracker) fail(msg string) {
	if t.status.Terminal() {
		return
	}
	if msg == "" {
		msg = "Upload failed"
	}
	t.emit(model.StatusError, msg)
}
