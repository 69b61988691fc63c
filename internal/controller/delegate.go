package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tabkeeper/internal/relay"
	"github.com/dgnsrekt/tabkeeper/internal/tabs"
	"github.com/dgnsrekt/tabkeeper/internal/thumbnail"
)

// delegate receives tab callbacks on the loop goroutine.
type delegate struct{ s *Service }

var _ tabs.Delegate = delegate{}

func (d delegate) OnSetView(t *tabs.Tab, v tabs.ContentView) {
	slog.Debug("tab view changed", "tab_id", t.ID(), "live", v != nil)
}

func (d delegate) OnPageStarted(t *tabs.Tab) {
	slog.Debug("page started", "tab_id", t.ID(), "url", logURL(t))
	d.s.publishTab(relay.FeedPages, "page_started", t)
	if !t.InForeground() {
		d.s.armBackgroundTimer(t.ID())
	}
}

func (d delegate) OnPageFinished(t *tabs.Tab, loadTime time.Duration) {
	d.s.disarmBackgroundTimer(t.ID())
	d.s.publishTab(relay.FeedPages, "page_finished", t)
	if loadTime > 0 {
		d.s.deps.Metrics.PageLoadTime.Observe(loadTime.Seconds())
	}
	if d.s.deps.Journal != nil {
		if err := d.s.deps.Journal.Record(t.ID(), t.Incognito(), t.URL(), t.Title(), t.Security(), loadTime); err != nil {
			slog.Warn("page load journal write failed", "tab_id", t.ID(), "error", err)
		}
	}
}

func (d delegate) OnProgressChanged(t *tabs.Tab) {
	if !t.InPageLoad() {
		d.s.disarmBackgroundTimer(t.ID())
	}
}

func (d delegate) OnReceivedTitle(t *tabs.Tab) {
	slog.Debug("title received", "tab_id", t.ID(), "title", t.Title())
}

func (d delegate) OnFavicon(t *tabs.Tab) {}

func (d delegate) OnUpdatedSecurityState(t *tabs.Tab) {
	slog.Debug("security state updated", "tab_id", t.ID(), "security", t.Security().String())
	d.s.publish(relay.FeedPages, Notice{Kind: "security_changed", TabID: int64(t.ID()), Incognito: t.Incognito(), Security: t.Security().String()})
}

func (d delegate) ShowError(t *tabs.Tab, e tabs.LoadError) {
	d.s.deps.Metrics.LoadErrors.WithLabelValues(e.Code.String()).Inc()
	slog.Info("showing load error", "tab_id", t.ID(), "code", e.Code.String(), "title", e.Title)
	d.s.publish(relay.FeedErrors, Notice{Kind: "load_error", TabID: int64(t.ID()), Incognito: t.Incognito(), Code: e.Code.String(), Title: e.Title})
}

// QueryBookmarkStatus looks the url up on another goroutine and applies the
// answer on the loop, provided the tab still shows that url.
func (d delegate) QueryBookmarkStatus(t *tabs.Tab, url string) {
	if d.s.deps.Bookmarks == nil || url == "" {
		return
	}
	id := t.ID()
	go func() {
		bookmarked := d.s.deps.Bookmarks.IsBookmarked(url)
		d.s.post(func() {
			if t := d.s.tabs.FindTabByID(id); t != nil {
				t.SetBookmarked(url, bookmarked)
			}
		})
	}()
}

func (d delegate) BookmarkedStatusChanged(t *tabs.Tab) {
	slog.Debug("bookmark status", "tab_id", t.ID(), "bookmarked", t.Bookmarked())
}

func (d delegate) RequestCapture(t *tabs.Tab, v tabs.ContentView) {
	if d.s.deps.Thumbnails == nil {
		return
	}
	err := d.s.deps.Thumbnails.Submit(thumbnail.Request{
		TabID:     t.ID(),
		URL:       t.URL(),
		Title:     t.Title(),
		Incognito: t.Incognito(),
		Target:    t,
		View:      v,
	})
	if err != nil {
		slog.Debug("thumbnail capture not queued", "tab_id", t.ID(), "error", err)
	}
}

func (d delegate) DeleteThumbnail(t *tabs.Tab) {
	if d.s.deps.Thumbnails == nil {
		return
	}
	if err := d.s.deps.Thumbnails.Delete(t.ID()); err != nil {
		slog.Debug("thumbnail delete not queued", "tab_id", t.ID(), "error", err)
	}
}

func (d delegate) SwitchToTab(t *tabs.Tab) {
	d.s.withTimeout(func(ctx context.Context) { d.s.switchToTab(ctx, t) })
}

func (d delegate) CloseTab(t *tabs.Tab) {
	d.s.withTimeout(func(ctx context.Context) { d.s.closeTab(ctx, t) })
}

func (s *Service) armBackgroundTimer(id tabs.ID) {
	if s.opts.BackgroundLoadTimeout <= 0 {
		return
	}
	if timer, ok := s.bgTimers[id]; ok {
		timer.Reset(s.opts.BackgroundLoadTimeout)
		return
	}
	s.bgTimers[id] = time.AfterFunc(s.opts.BackgroundLoadTimeout, func() {
		s.post(func() { s.backgroundLoadExpired(id) })
	})
}

func (s *Service) disarmBackgroundTimer(id tabs.ID) {
	if timer, ok := s.bgTimers[id]; ok {
		timer.Stop()
		delete(s.bgTimers, id)
	}
}

// backgroundLoadExpired stops a page that kept loading in the background for
// the whole timeout.
func (s *Service) backgroundLoadExpired(id tabs.ID) {
	delete(s.bgTimers, id)
	t := s.tabs.FindTabByID(id)
	if t == nil || t.InForeground() || !t.InPageLoad() {
		return
	}
	s.deps.Metrics.BackgroundStop.Inc()
	t.StopLoading()
	slog.Info("stopped background load after timeout", "tab_id", id, "timeout", s.opts.BackgroundLoadTimeout)
}

func logURL(t *tabs.Tab) string {
	if t.Incognito() {
		return ""
	}
	return t.URL()
}
