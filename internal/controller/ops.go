package controller

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dgnsrekt/tabkeeper/internal/relay"
	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

func requireURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", newError(CodeValidation, "url is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", newError(CodeValidation, fmt.Sprintf("url %q must be absolute", raw), err)
	}
	return raw, nil
}

// ListTabs returns every tab in display order.
func (s *Service) ListTabs(ctx context.Context) ([]TabInfo, error) {
	return call(ctx, s, func(context.Context) ([]TabInfo, error) {
		all := s.tabs.Tabs()
		out := make([]TabInfo, 0, len(all))
		for _, t := range all {
			out = append(out, s.tabInfo(t))
		}
		return out, nil
	})
}

func (s *Service) GetTab(ctx context.Context, id int64) (TabInfo, error) {
	return call(ctx, s, func(context.Context) (TabInfo, error) {
		t, err := s.lookup(id)
		if err != nil {
			return TabInfo{}, err
		}
		return s.tabInfo(t), nil
	})
}

// CurrentTab returns the visible tab.
func (s *Service) CurrentTab(ctx context.Context) (TabInfo, error) {
	return call(ctx, s, func(context.Context) (TabInfo, error) {
		t := s.tabs.CurrentTab()
		if t == nil {
			return TabInfo{}, newError(CodeTabNotFound, "no current tab", nil)
		}
		return s.tabInfo(t), nil
	})
}

// OpenTab creates a tab and starts loading req.URL, or the home page when
// the url is empty. A tab opened from a parent inherits its incognito mode.
func (s *Service) OpenTab(ctx context.Context, req OpenRequest) (TabInfo, error) {
	if strings.TrimSpace(req.URL) != "" {
		u, err := requireURL(req.URL)
		if err != nil {
			return TabInfo{}, err
		}
		req.URL = u
	}
	return call(ctx, s, func(ctx context.Context) (TabInfo, error) {
		t, err := s.openTab(ctx, req)
		if err != nil {
			return TabInfo{}, err
		}
		return s.tabInfo(t), nil
	})
}

func (s *Service) openTab(ctx context.Context, req OpenRequest) (*tabs.Tab, error) {
	if t := s.reusableTab(ctx, req); t != nil {
		return t, nil
	}

	var parent *tabs.Tab
	if req.ParentID != 0 {
		p, err := s.lookup(req.ParentID)
		if err != nil {
			return nil, err
		}
		parent = p
		req.Incognito = p.Incognito()
	}

	if req.ReplaceLeastUsed && !s.tabs.CanCreateNewTab() {
		if victim := s.tabs.LeastUsedTab(s.tabs.CurrentTab()); victim != nil && victim != parent {
			slog.Info("closing least used tab to make room", "tab_id", victim.ID())
			s.removeTab(victim)
		}
	}

	t, err := s.createNewTab(ctx, req.Incognito, req.SetActive, req.UseCurrent)
	if err != nil {
		return nil, err
	}
	if parent != nil && parent != t {
		if err := parent.AddChildTab(t); err != nil {
			slog.Warn("failed to link child tab", "tab_id", t.ID(), "parent_id", parent.ID(), "error", err)
		}
	}
	if req.AppID != "" {
		t.SetAppID(req.AppID)
	}
	t.SetCloseOnBack(req.CloseOnBack)

	target := req.URL
	if target == "" && !t.Incognito() {
		target = s.opts.HomePage
	}
	if target != "" {
		if err := t.LoadURL(target, req.Headers); err != nil {
			return t, newError(CodeViewUnavailable, "load failed", err)
		}
	}
	return t, nil
}

// reusableTab returns a tab that can serve req without opening a new one. A
// tab owned by the same application is navigated again; with ReuseExisting a
// tab already showing the url is brought forward. Requests from an
// application break every parent link, so back never leads into tabs the
// application did not open.
func (s *Service) reusableTab(ctx context.Context, req OpenRequest) *tabs.Tab {
	if req.AppID != "" {
		s.tabs.RemoveParentChildRelationships()
		if t := s.tabs.TabFromAppID(req.AppID); t != nil && t.Incognito() == req.Incognito {
			// switching first materializes an evicted tab
			if req.SetActive {
				s.switchToTab(ctx, t)
			}
			if req.URL != "" {
				if err := t.LoadURL(req.URL, req.Headers); err != nil {
					slog.Warn("failed to reload application tab", "tab_id", t.ID(), "error", err)
				}
			}
			t.SetCloseOnBack(req.CloseOnBack)
			slog.Info("reusing application tab", "tab_id", t.ID(), "app_id", req.AppID)
			return t
		}
	}
	if req.ReuseExisting {
		if t := s.tabs.FindTabWithURL(req.URL); t != nil && t.Incognito() == req.Incognito {
			if req.SetActive {
				s.switchToTab(ctx, t)
			}
			return t
		}
	}
	return nil
}

// createNewTab adds a tab, or hands back the current one when the table is
// full and useCurrent is set.
func (s *Service) createNewTab(ctx context.Context, incognito, setActive, useCurrent bool) (*tabs.Tab, error) {
	if s.tabs.CanCreateNewTab() {
		t, err := s.tabs.CreateNewTab(ctx, nil, incognito)
		if err != nil {
			return nil, newError(CodeViewUnavailable, "could not create browser page", err)
		}
		s.deps.Metrics.TabsCreated.Inc()
		slog.Info("tab opened", "tab_id", t.ID(), "incognito", incognito, "tabs", s.tabs.TabCount())
		s.publishTab(relay.FeedTabs, "tab_opened", t)
		if setActive {
			s.switchToTab(ctx, t)
		}
		return t, nil
	}
	if useCurrent {
		if cur := s.tabs.CurrentTab(); cur != nil {
			cur.SetAppID("")
			cur.SetCloseOnBack(false)
			return cur, nil
		}
	}
	s.deps.Metrics.LimitRejected.Inc()
	return nil, newError(CodeTabLimit, fmt.Sprintf("maximum of %d tabs reached", s.tabs.MaxTabs()), tabs.ErrTabLimit)
}

// SwitchTo makes the tab visible.
func (s *Service) SwitchTo(ctx context.Context, id int64) (TabInfo, error) {
	return call(ctx, s, func(ctx context.Context) (TabInfo, error) {
		t, err := s.lookup(id)
		if err != nil {
			return TabInfo{}, err
		}
		s.switchToTab(ctx, t)
		return s.tabInfo(t), nil
	})
}

func (s *Service) switchToTab(ctx context.Context, t *tabs.Tab) bool {
	if t == nil {
		return false
	}
	if t == s.tabs.CurrentTab() {
		return true
	}
	if !s.tabs.SetCurrentTab(ctx, t) {
		return false
	}
	s.publishTab(relay.FeedTabs, "tab_switched", t)
	return true
}

// CloseTab closes the tab. Closing the visible tab moves focus to its
// parent, then to the tab after it, then to the one before.
func (s *Service) CloseTab(ctx context.Context, id int64) error {
	return s.do(ctx, func(ctx context.Context) error {
		t, err := s.lookup(id)
		if err != nil {
			return err
		}
		s.closeTab(ctx, t)
		return nil
	})
}

// CloseCurrentTab closes the visible tab.
func (s *Service) CloseCurrentTab(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.tabs.CurrentTab() == nil {
			return newError(CodeTabNotFound, "no current tab", nil)
		}
		s.closeCurrentTab(ctx)
		return nil
	})
}

func (s *Service) closeTab(ctx context.Context, t *tabs.Tab) {
	if t == s.tabs.CurrentTab() {
		s.closeCurrentTab(ctx)
		return
	}
	s.removeTab(t)
}

func (s *Service) closeCurrentTab(ctx context.Context) {
	cur := s.tabs.CurrentTab()
	if cur == nil {
		return
	}
	if s.tabs.TabCount() == 1 {
		// the session ends with its last tab
		if s.deps.Sessions != nil {
			if err := s.deps.Sessions.Clear(); err != nil {
				slog.Warn("failed to clear session", "error", err)
			}
		}
		s.removeTab(cur)
		return
	}

	pos := s.tabs.CurrentPosition()
	next := cur.Parent()
	if next == nil {
		next = s.tabs.Tab(pos + 1)
		if next == nil {
			next = s.tabs.Tab(pos - 1)
		}
	}
	if s.switchToTab(ctx, next) {
		s.closeTab(ctx, cur)
	}
}

func (s *Service) removeTab(t *tabs.Tab) {
	id := t.ID()
	s.disarmBackgroundTimer(id)
	if s.tabs.RemoveTab(t) {
		s.deps.Metrics.TabsClosed.Inc()
		slog.Info("tab closed", "tab_id", id, "tabs", s.tabs.TabCount())
		s.publish(relay.FeedTabs, Notice{Kind: "tab_closed", TabID: int64(id), Incognito: t.Incognito()})
		if t.Incognito() && !s.tabs.HasAnyOpenIncognitoTabs() {
			slog.Info("last incognito tab closed")
			s.publish(relay.FeedTabs, Notice{Kind: "incognito_ended", Incognito: true})
		}
	}
}

// CloseOtherTabs closes every tab except the visible one.
func (s *Service) CloseOtherTabs(ctx context.Context) (int, error) {
	return call(ctx, s, func(context.Context) (int, error) {
		cur := s.tabs.CurrentTab()
		if cur == nil {
			return 0, newError(CodeTabNotFound, "no current tab", nil)
		}
		all := s.tabs.Tabs()
		closed := 0
		for i := len(all) - 1; i >= 0; i-- {
			if all[i] != cur {
				s.removeTab(all[i])
				closed++
			}
		}
		return closed, nil
	})
}

// LoadURL navigates the tab, materializing its view first when it has been
// evicted.
func (s *Service) LoadURL(ctx context.Context, id int64, rawURL string, headers map[string]string) (TabInfo, error) {
	u, err := requireURL(rawURL)
	if err != nil {
		return TabInfo{}, err
	}
	return call(ctx, s, func(ctx context.Context) (TabInfo, error) {
		t, err := s.lookup(id)
		if err != nil {
			return TabInfo{}, err
		}
		if t.View() == nil {
			if err := s.tabs.RecreateView(ctx, t); err != nil {
				return TabInfo{}, newError(CodeViewUnavailable, "could not create browser page", err)
			}
		}
		if err := t.LoadURL(u, headers); err != nil {
			return TabInfo{}, newError(CodeViewUnavailable, "load failed", err)
		}
		return s.tabInfo(t), nil
	})
}

// StopLoading stops the tab, or every tab when id is 0.
func (s *Service) StopLoading(ctx context.Context, id int64) error {
	return s.do(ctx, func(context.Context) error {
		if id == 0 {
			s.tabs.StopAllLoading()
			return nil
		}
		t, err := s.lookup(id)
		if err != nil {
			return err
		}
		t.StopLoading()
		return nil
	})
}

// GoBack steps the visible tab back. A tab with no history returns to its
// parent and closes, or closes outright when it was opened by an app or
// asked to close on back.
func (s *Service) GoBack(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		cur := s.tabs.CurrentTab()
		if cur == nil {
			return newError(CodeTabNotFound, "no current tab", nil)
		}
		if cur.CanGoBack() {
			if err := cur.GoBack(); err != nil {
				return newError(CodeViewUnavailable, "back navigation failed", err)
			}
			return nil
		}
		if parent := cur.Parent(); parent != nil {
			s.switchToTab(ctx, parent)
			s.closeTab(ctx, cur)
			return nil
		}
		if cur.AppID() != "" || cur.CloseOnBack() {
			s.closeCurrentTab(ctx)
		}
		return nil
	})
}

func (s *Service) GoForward(ctx context.Context) error {
	return s.do(ctx, func(context.Context) error {
		cur := s.tabs.CurrentTab()
		if cur == nil {
			return newError(CodeTabNotFound, "no current tab", nil)
		}
		if !cur.CanGoForward() {
			return nil
		}
		if err := cur.GoForward(); err != nil {
			return newError(CodeViewUnavailable, "forward navigation failed", err)
		}
		return nil
	})
}

// DismissError drops the error shown for the tab and reveals the next one.
func (s *Service) DismissError(ctx context.Context, id int64) (TabInfo, error) {
	return call(ctx, s, func(context.Context) (TabInfo, error) {
		t, err := s.lookup(id)
		if err != nil {
			return TabInfo{}, err
		}
		t.DismissError()
		return s.tabInfo(t), nil
	})
}

// RecreateView replaces the tab's browser page, keeping its history.
func (s *Service) RecreateView(ctx context.Context, id int64) (TabInfo, error) {
	return call(ctx, s, func(ctx context.Context) (TabInfo, error) {
		t, err := s.lookup(id)
		if err != nil {
			return TabInfo{}, err
		}
		if err := s.tabs.RecreateView(ctx, t); err != nil {
			return TabInfo{}, newError(CodeViewUnavailable, "could not recreate browser page", err)
		}
		return s.tabInfo(t), nil
	})
}

func (s *Service) SetDesktopMode(ctx context.Context, id int64, desktop bool) (TabInfo, error) {
	return call(ctx, s, func(context.Context) (TabInfo, error) {
		t, err := s.lookup(id)
		if err != nil {
			return TabInfo{}, err
		}
		t.SetDesktopMode(desktop)
		return s.tabInfo(t), nil
	})
}

// FreeMemory releases browser pages of the least recently used tabs and
// reports how many were evicted.
func (s *Service) FreeMemory(ctx context.Context) (int, error) {
	return call(ctx, s, func(ctx context.Context) (int, error) {
		n := s.tabs.FreeMemory(ctx)
		s.deps.Metrics.TabsEvicted.Add(float64(n))
		if n > 0 {
			s.publish(relay.FeedTabs, Notice{Kind: "tabs_evicted", Count: n})
		}
		slog.Info("freed memory", "evicted", n, "tabs", s.tabs.TabCount())
		return n, nil
	})
}

// Thumbnail encodes the tab's in-memory capture as PNG.
func (s *Service) Thumbnail(ctx context.Context, id int64) ([]byte, error) {
	t, err := call(ctx, s, func(context.Context) (*tabs.Tab, error) {
		return s.lookup(id)
	})
	if err != nil {
		return nil, err
	}
	// the capture buffer has its own lock
	img := t.Screenshot()
	if img == nil {
		return nil, newError(CodeTabNotFound, "thumbnails are disabled", nil)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// SetBookmark adds or removes the tab's url from the bookmarks. The store is
// written off the loop.
func (s *Service) SetBookmark(ctx context.Context, id int64, bookmarked bool) (TabInfo, error) {
	if s.deps.Bookmarks == nil {
		return TabInfo{}, newError(CodeValidation, "bookmarks are disabled", nil)
	}
	page, err := call(ctx, s, func(context.Context) (TabInfo, error) {
		t, err := s.lookup(id)
		if err != nil {
			return TabInfo{}, err
		}
		return s.tabInfo(t), nil
	})
	if err != nil {
		return TabInfo{}, err
	}
	if page.URL == "" {
		return TabInfo{}, newError(CodeValidation, "tab has no url to bookmark", nil)
	}

	if bookmarked {
		err = s.deps.Bookmarks.Add(page.URL, page.Title)
	} else {
		err = s.deps.Bookmarks.Remove(page.URL)
	}
	if err != nil {
		return TabInfo{}, newError(CodeStateFailure, "bookmark update failed", err)
	}

	return call(ctx, s, func(context.Context) (TabInfo, error) {
		t, err := s.lookup(id)
		if err != nil {
			return TabInfo{}, err
		}
		t.SetBookmarked(page.URL, bookmarked)
		return s.tabInfo(t), nil
	})
}
