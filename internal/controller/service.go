package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tabkeeper/internal/metrics"
	"github.com/dgnsrekt/tabkeeper/internal/tabs"
	"github.com/dgnsrekt/tabkeeper/internal/thumbnail"
)

// Engine creates content views and reports what happens inside them.
type Engine interface {
	tabs.ViewFactory
	Events() <-chan tabs.Event
}

// SessionStore persists the session record.
type SessionStore interface {
	Save(state *tabs.SessionState) error
	Load() (*tabs.SessionState, error)
	Clear() error
}

// ThumbnailQueue captures, restores and deletes thumbnails asynchronously.
type ThumbnailQueue interface {
	Submit(req thumbnail.Request) error
	Restore(id tabs.ID, target thumbnail.Target) error
	Delete(id tabs.ID) error
}

// PageJournal records finished page loads.
type PageJournal interface {
	Record(tabID tabs.ID, incognito bool, url, title string, security tabs.SecurityState, d time.Duration) error
}

// BookmarkStore answers and edits bookmark membership.
type BookmarkStore interface {
	IsBookmarked(url string) bool
	Add(url, title string) error
	Remove(url string) error
}

// Options tunes a Service.
type Options struct {
	MaxTabs               int
	HomePage              string
	RestoreAllTabs        bool
	IncognitoRetention    time.Duration
	AutosaveInterval      time.Duration
	BackgroundLoadTimeout time.Duration
	OpTimeout             time.Duration
	CaptureThumbnails     bool
	ThumbnailWidth        int
	ThumbnailHeight       int
	Now                   func() time.Time
}

// Deps are the collaborators of a Service. Everything except Engine and
// Metrics may be nil.
type Deps struct {
	Engine     Engine
	Sessions   SessionStore
	Thumbnails ThumbnailQueue
	Journal    PageJournal
	Bookmarks  BookmarkStore
	Feed       Publisher
	Metrics    *metrics.Metrics
}

// Service owns the tab control. Every operation and every engine event runs
// on the goroutine executing Run, so tabs are never touched concurrently.
type Service struct {
	opts Options
	deps Deps
	now  func() time.Time

	tabs *tabs.TabControl

	ops     chan func()
	started chan struct{}
	stopped chan struct{}

	bgTimers map[tabs.ID]*time.Timer
}

func NewService(opts Options, deps Deps) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 15 * time.Second
	}
	s := &Service{
		opts:     opts,
		deps:     deps,
		now:      opts.Now,
		ops:      make(chan func()),
		started:  make(chan struct{}),
		stopped:  make(chan struct{}),
		bgTimers: make(map[tabs.ID]*time.Timer),
	}
	s.tabs = tabs.NewTabControl(tabs.ControlOptions{
		MaxTabs:           opts.MaxTabs,
		Factory:           deps.Engine,
		Delegate:          delegate{s},
		CaptureThumbnails: opts.CaptureThumbnails,
		CaptureWidth:      opts.ThumbnailWidth,
		CaptureHeight:     opts.ThumbnailHeight,
		Now:               opts.Now,
	})
	return s
}

// Run restores the previous session and then serves operations and engine
// events until ctx is cancelled. On exit the session is saved and every tab
// destroyed.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.stopped)

	s.withTimeout(s.start)
	s.updateGauges()
	close(s.started)

	var autosave <-chan time.Time
	if s.opts.AutosaveInterval > 0 {
		ticker := time.NewTicker(s.opts.AutosaveInterval)
		defer ticker.Stop()
		autosave = ticker.C
	}
	events := s.deps.Engine.Events()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case op := <-s.ops:
			op()
		case ev, ok := <-events:
			if !ok {
				slog.Warn("engine event stream closed")
				events = nil
				continue
			}
			s.dispatch(ev)
			s.updateGauges()
		case <-autosave:
			s.withTimeout(func(ctx context.Context) {
				if _, err := s.saveSession(ctx); err != nil {
					slog.Warn("autosave failed", "error", err)
				}
			})
		}
	}
}

// Started is closed once the initial session restore has finished.
func (s *Service) Started() <-chan struct{} { return s.started }

func (s *Service) shutdown() {
	for id, timer := range s.bgTimers {
		timer.Stop()
		delete(s.bgTimers, id)
	}
	s.withTimeout(func(ctx context.Context) {
		if _, err := s.saveSession(ctx); err != nil {
			slog.Error("final session save failed", "error", err)
		}
	})
	s.tabs.Destroy()
	s.updateGauges()
	slog.Info("controller stopped")
}

func (s *Service) withTimeout(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
	defer cancel()
	fn(ctx)
}

// do runs fn on the loop and waits for its result.
func (s *Service) do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func call[T any](ctx context.Context, s *Service, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	op := func() {
		v, err := fn(ctx)
		s.updateGauges()
		done <- result{v, err}
	}

	var zero T
	select {
	case s.ops <- op:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.stopped:
		return zero, ErrStopped
	}
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// post queues op from another goroutine without waiting for it to run.
func (s *Service) post(op func()) {
	select {
	case s.ops <- op:
	case <-s.stopped:
	}
}

func (s *Service) dispatch(ev tabs.Event) {
	t := s.tabs.TabFromView(ev.View)
	if t == nil {
		slog.Debug("event for unknown view dropped", "kind", ev.Kind.String())
		return
	}
	t.HandleEvent(ev)
}

func (s *Service) updateGauges() {
	live := 0
	for _, t := range s.tabs.Tabs() {
		if t.View() != nil {
			live++
		}
	}
	s.deps.Metrics.SetTabCounts(s.tabs.TabCount(), live)
}

func (s *Service) lookup(id int64) (*tabs.Tab, error) {
	t := s.tabs.FindTabByID(tabs.ID(id))
	if t == nil {
		return nil, tabNotFound(id)
	}
	return t, nil
}
