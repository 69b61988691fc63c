package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

var (
	ErrClosed     = errors.New("thumbnail worker is closed")
	ErrBufferFull = errors.New("thumbnail queue full")
)

// Target is the part of a tab the worker writes captures into.
type Target interface {
	CaptureSize() (int, int)
	UpdateCapture(img image.Image)
	Screenshot() *image.RGBA
}

// Capturer renders the page shown in a content view.
type Capturer interface {
	Capture(ctx context.Context, width, height int) (image.Image, error)
}

// Request asks for one capture. Tab metadata is copied by the caller so the
// worker never reads tab state owned by another goroutine.
type Request struct {
	TabID     tabs.ID
	URL       string
	Title     string
	Incognito bool
	Target    Target
	View      Capturer
}

type job struct {
	capture *Request
	restore Target
	id      tabs.ID
}

// Worker captures and persists thumbnails off the owning goroutine. Captures
// are paced by a token bucket so a burst of tab switches cannot flood the
// browser with screenshot commands.
type Worker struct {
	store   *Store
	limiter *rate.Limiter
	timeout time.Duration
	now     func() time.Time

	jobs   chan job
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWorker starts a worker. store may be nil to keep thumbnails in memory
// only.
func NewWorker(store *Store, perSecond float64, bufferSize int, timeout time.Duration) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	w := &Worker{
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout: timeout,
		now:     time.Now,
		jobs:    make(chan job, bufferSize),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Submit queues a capture without blocking.
func (w *Worker) Submit(req Request) error {
	return w.enqueue(job{capture: &req})
}

// Delete queues removal of a tab's stored thumbnail.
func (w *Worker) Delete(id tabs.ID) error {
	return w.enqueue(job{id: id})
}

// Restore queues loading a persisted thumbnail into target.
func (w *Worker) Restore(id tabs.ID, target Target) error {
	return w.enqueue(job{id: id, restore: target})
}

func (w *Worker) enqueue(j job) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.jobs <- j:
		return nil
	case <-w.done:
		return ErrClosed
	default:
		slog.Warn("thumbnail queue full, dropping job")
		return ErrBufferFull
	}
}

// Close stops the worker. Jobs still queued are discarded.
func (w *Worker) Close() error {
	w.once.Do(func() {
		close(w.done)
		w.cancel()
	})
	w.wg.Wait()
	if n := len(w.jobs); n > 0 {
		slog.Debug("thumbnail worker closed with pending jobs", "pending", n)
	}
	return nil
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case j := <-w.jobs:
			w.run(j)
		case <-w.done:
			return
		}
	}
}

func (w *Worker) run(j job) {
	switch {
	case j.capture != nil:
		w.capture(*j.capture)
	case j.restore != nil:
		w.restore(j.id, j.restore)
	case w.store != nil:
		if err := w.store.Delete(j.id); err != nil {
			slog.Warn("thumbnail delete failed", "tab_id", j.id, "error", err)
		}
	}
}

func (w *Worker) restore(id tabs.ID, target Target) {
	if w.store == nil {
		return
	}
	data, err := w.store.ReadImage(id)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		slog.Warn("thumbnail read failed", "tab_id", id, "error", err)
		return
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("thumbnail decode failed", "tab_id", id, "error", err)
		return
	}
	target.UpdateCapture(img)
}

func (w *Worker) capture(req Request) {
	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	if err := w.limiter.Wait(ctx); err != nil {
		slog.Debug("thumbnail capture skipped", "tab_id", req.TabID, "error", err)
		return
	}

	width, height := req.Target.CaptureSize()
	img, err := req.View.Capture(ctx, width, height)
	if err != nil {
		slog.Warn("thumbnail capture failed", "tab_id", req.TabID, "error", err)
		return
	}
	req.Target.UpdateCapture(img)

	// incognito captures stay in memory
	if w.store == nil || req.Incognito {
		return
	}
	shot := req.Target.Screenshot()
	if shot == nil {
		return
	}
	meta := Meta{
		TabID:      req.TabID,
		URL:        req.URL,
		Title:      req.Title,
		CapturedAt: w.now().UTC(),
	}
	if err := w.store.Save(meta, shot); err != nil {
		slog.Warn("thumbnail persist failed", "tab_id", req.TabID, "error", err)
	}
}
