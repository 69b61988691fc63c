package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// ControlOptions configures a TabControl.
type ControlOptions struct {
	MaxTabs  int
	IDs      *IDGenerator
	Factory  ViewFactory
	Delegate Delegate

	CaptureThumbnails bool
	CaptureWidth      int
	CaptureHeight     int
	Now               func() time.Time
}

// TabControl owns the ordered tab list, the most-recently-used queue and the
// current tab. It is not safe for concurrent use; one goroutine owns it.
type TabControl struct {
	maxTabs int
	ids     *IDGenerator
	factory ViewFactory
	tabOpts TabOptions

	tabs    []*Tab
	queue   []*Tab
	current int
}

func NewTabControl(opts ControlOptions) *TabControl {
	tabOpts := TabOptions{
		Delegate:          opts.Delegate,
		IDs:               opts.IDs,
		CaptureThumbnails: opts.CaptureThumbnails,
		CaptureWidth:      opts.CaptureWidth,
		CaptureHeight:     opts.CaptureHeight,
		Now:               opts.Now,
	}.withDefaults()
	return &TabControl{
		maxTabs: opts.MaxTabs,
		ids:     tabOpts.IDs,
		factory: opts.Factory,
		tabOpts: tabOpts,
		current: -1,
	}
}

func (tc *TabControl) MaxTabs() int  { return tc.maxTabs }
func (tc *TabControl) TabCount() int { return len(tc.tabs) }

func (tc *TabControl) CanCreateNewTab() bool { return len(tc.tabs) < tc.maxTabs }

// Tabs returns the tabs in creation order.
func (tc *TabControl) Tabs() []*Tab { return slices.Clone(tc.tabs) }

// Tab returns the tab at pos, or nil.
func (tc *TabControl) Tab(pos int) *Tab {
	if pos < 0 || pos >= len(tc.tabs) {
		return nil
	}
	return tc.tabs[pos]
}

// TabPosition returns the index of t, or -1.
func (tc *TabControl) TabPosition(t *Tab) int {
	if t == nil {
		return -1
	}
	return slices.Index(tc.tabs, t)
}

func (tc *TabControl) CurrentPosition() int { return tc.current }

func (tc *TabControl) CurrentTab() *Tab { return tc.Tab(tc.current) }

// CurrentView returns the main view of the current tab.
func (tc *TabControl) CurrentView() ContentView {
	if t := tc.CurrentTab(); t != nil {
		return t.View()
	}
	return nil
}

// MRU returns tab ids from least to most recently used.
func (tc *TabControl) MRU() []ID {
	out := make([]ID, len(tc.queue))
	for i, t := range tc.queue {
		out[i] = t.ID()
	}
	return out
}

func (tc *TabControl) FindTabByID(id ID) *Tab {
	for _, t := range tc.tabs {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

// TabFromView returns the tab showing v.
func (tc *TabControl) TabFromView(v ContentView) *Tab {
	if v == nil {
		return nil
	}
	for _, t := range tc.tabs {
		if t.View() == v {
			return t
		}
	}
	return nil
}

func (tc *TabControl) TabFromAppID(appID string) *Tab {
	if appID == "" {
		return nil
	}
	for _, t := range tc.tabs {
		if t.AppID() == appID {
			return t
		}
	}
	return nil
}

// FindTabWithURL returns a tab showing url, checking the current tab first.
func (tc *TabControl) FindTabWithURL(url string) *Tab {
	if url == "" {
		return nil
	}
	matches := func(t *Tab) bool {
		return t.URL() == url || t.OriginalURL() == url
	}
	if cur := tc.CurrentTab(); cur != nil && matches(cur) {
		return cur
	}
	for _, t := range tc.tabs {
		if matches(t) {
			return t
		}
	}
	return nil
}

func (tc *TabControl) HasAnyOpenIncognitoTabs() bool {
	return slices.ContainsFunc(tc.tabs, func(t *Tab) bool { return t.Incognito() })
}

func (tc *TabControl) StopAllLoading() {
	for _, t := range tc.tabs {
		t.StopLoading()
	}
}

// CreateNewTab adds a background tab. state, when non-nil, supplies the id,
// page metadata and incognito mode. It fails with ErrTabLimit when the table
// is full.
func (tc *TabControl) CreateNewTab(ctx context.Context, state *TabState, incognito bool) (*Tab, error) {
	if !tc.CanCreateNewTab() {
		return nil, ErrTabLimit
	}
	if state != nil {
		incognito = state.Incognito
	}
	v, err := tc.factory.NewView(incognito)
	if err != nil {
		return nil, fmt.Errorf("create view: %w", err)
	}
	t := NewTab(ctx, v, state, tc.tabOpts)
	tc.tabs = append(tc.tabs, t)
	t.PutInBackground()
	return t, nil
}

// RemoveTab destroys t and drops it from the list, the queue and the tree.
func (tc *TabControl) RemoveTab(t *Tab) bool {
	if t == nil {
		return false
	}
	pos := tc.TabPosition(t)
	if pos < 0 {
		return false
	}
	cur := tc.CurrentTab()
	if cur == t {
		// the view is destroyed below, so there is nothing to capture
		t.background(false)
		tc.current = -1
	}
	tc.tabs = slices.Delete(tc.tabs, pos, pos+1)
	if cur != t {
		tc.current = tc.TabPosition(cur)
	}

	t.Destroy()
	t.RemoveFromTree()
	tc.queue = slices.DeleteFunc(tc.queue, func(q *Tab) bool { return q == t })
	tc.tabOpts.tbl.remove(t)
	return true
}

// RemoveParentChildRelationships flattens the tab tree. Thumbnails stay.
func (tc *TabControl) RemoveParentChildRelationships() {
	for _, t := range tc.tabs {
		t.detach()
	}
}

// SetCurrentTab makes t the visible tab.
func (tc *TabControl) SetCurrentTab(ctx context.Context, t *Tab) bool {
	return tc.setCurrentTab(ctx, t, false)
}

func (tc *TabControl) setCurrentTab(ctx context.Context, newTab *Tab, force bool) bool {
	cur := tc.CurrentTab()
	if cur == newTab && !force {
		return true
	}
	if cur != nil {
		cur.PutInBackground()
		tc.current = -1
	}
	if newTab == nil {
		return false
	}
	pos := tc.TabPosition(newTab)
	if pos < 0 {
		return false
	}

	tc.queue = slices.DeleteFunc(tc.queue, func(q *Tab) bool { return q == newTab })
	tc.queue = append(tc.queue, newTab)
	tc.current = pos

	if newTab.View() == nil {
		v, err := tc.factory.NewView(newTab.Incognito())
		if err != nil {
			slog.Error("Failed to materialize tab", "tab_id", newTab.ID(), "error", err)
		} else {
			newTab.SetView(ctx, v, true)
		}
	}
	newTab.PutInForeground()
	return true
}

// RecreateView replaces the main view of t with a fresh one showing the same
// page.
func (tc *TabControl) RecreateView(ctx context.Context, t *Tab) error {
	if t == nil || tc.TabPosition(t) < 0 {
		return fmt.Errorf("recreate view: tab not in control")
	}
	t.evict(ctx)
	v, err := tc.factory.NewView(t.Incognito())
	if err != nil {
		return fmt.Errorf("recreate view: %w", err)
	}
	t.SetView(ctx, v, true)
	if tc.CurrentTab() == t {
		tc.setCurrentTab(ctx, t, true)
	}
	return nil
}

// Destroy tears down every tab.
func (tc *TabControl) Destroy() {
	for _, t := range tc.tabs {
		t.Destroy()
		tc.tabOpts.tbl.remove(t)
	}
	tc.tabs = nil
	tc.queue = nil
	tc.current = -1
}
