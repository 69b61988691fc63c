package tabs

import (
	"context"
	"image"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const initialProgress = 5

// TabOptions carries the collaborators shared by every tab of a TabControl.
type TabOptions struct {
	Delegate          Delegate
	IDs               *IDGenerator
	CaptureThumbnails bool
	CaptureWidth      int
	CaptureHeight     int
	Now               func() time.Time

	tbl *table
}

func (o TabOptions) withDefaults() TabOptions {
	if o.Delegate == nil {
		o.Delegate = NopDelegate{}
	}
	if o.IDs == nil {
		o.IDs = NewIDGenerator()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.tbl == nil {
		o.tbl = newTable()
	}
	return o
}

// Tab is one browsing context: a content view, the page state shown in it
// and the tab's place in the parent/child tree.
// A Tab is owned by a single goroutine; only the thumbnail buffer may be
// touched from elsewhere.
type Tab struct {
	id       ID
	delegate Delegate
	tbl      *table
	now      func() time.Time

	view  ContentView
	saved *TabState

	parent   ID
	children []ID

	state        PageState
	inForeground bool
	inPageLoad   bool
	progress     int
	loadStart    time.Time
	appID        string
	closeOnBack  bool
	desktopMode  bool

	errors []LoadError

	captureMu sync.Mutex
	capture   *image.RGBA
	captureW  int
	captureH  int
}

// NewTab builds a tab around view. With a non-nil state the tab takes its id
// and page metadata from the record; without a view the record is kept until
// SetView materializes it.
func NewTab(ctx context.Context, view ContentView, state *TabState, opts TabOptions) *Tab {
	opts = opts.withDefaults()
	t := &Tab{
		id:       NoID,
		delegate: opts.Delegate,
		tbl:      opts.tbl,
		now:      opts.Now,
		parent:   NoID,
		captureW: opts.CaptureWidth,
		captureH: opts.CaptureHeight,
	}

	incognito := false
	if view != nil {
		incognito = view.Incognito()
	} else if state != nil {
		incognito = state.Incognito
	}
	t.state = newPageState(incognito)

	if state != nil {
		t.restoreState(state)
	}
	if !t.id.Valid() {
		t.id = opts.IDs.Next()
	}
	t.tbl.put(t)

	t.SetCaptureThumbnails(opts.CaptureThumbnails)
	t.SetView(ctx, view, true)
	return t
}

func (t *Tab) restoreState(s *TabState) {
	t.saved = s
	if s.ID.Valid() {
		t.id = s.ID
	}
	t.appID = s.AppID
	t.closeOnBack = s.CloseOnBack
	t.desktopMode = s.DesktopMode
	t.state = newPageStateFor(s.Incognito, s.URL, nil)
	t.state.Title = s.Title
}

func (t *Tab) ID() ID { return t.id }

// View returns the main content view, nil while the tab is evicted or not yet
// materialized.
func (t *Tab) View() ContentView { return t.view }

// SetView swaps the main content view. A nil view detaches the current one
// and keeps the page metadata. When restore is set a pending saved record is
// replayed into the new view and dropped.
func (t *Tab) SetView(ctx context.Context, v ContentView, restore bool) {
	if t.view == v {
		return
	}
	t.view = v
	t.delegate.OnSetView(t, v)
	if v == nil {
		return
	}
	if t.saved == nil {
		if t.desktopMode && !v.DesktopMode() {
			t.applyDesktopMode(true)
		}
		return
	}
	s := t.saved
	t.saved = nil
	if !restore {
		return
	}
	if s.DesktopMode != v.DesktopMode() {
		t.applyDesktopMode(s.DesktopMode)
	}
	if s.History != nil && len(s.History.Entries) > 0 {
		err := v.RestoreHistory(ctx, s.History)
		if err == nil {
			return
		}
		slog.Warn("Restore history failed, reloading url", "tab_id", t.id, "error", err)
	}
	if s.URL != "" {
		if err := t.LoadURL(s.URL, nil); err != nil {
			slog.Warn("Reload of restored tab failed", "tab_id", t.id, "error", err)
		}
	}
}

// LoadURL starts a navigation in the main view.
func (t *Tab) LoadURL(url string, headers map[string]string) error {
	if t.view == nil {
		return ErrNoView
	}
	t.progress = initialProgress
	t.inPageLoad = true
	t.loadStart = t.now()
	t.state = newPageStateFor(t.Incognito(), url, nil)
	t.delegate.OnPageStarted(t)
	return t.view.LoadURL(url, headers)
}

func (t *Tab) StopLoading() {
	if t.view == nil {
		return
	}
	if err := t.view.StopLoading(); err != nil {
		slog.Debug("Stop loading failed", "tab_id", t.id, "error", err)
	}
}

func (t *Tab) CanGoBack() bool    { return t.view != nil && t.view.CanGoBack() }
func (t *Tab) CanGoForward() bool { return t.view != nil && t.view.CanGoForward() }

func (t *Tab) GoBack() error {
	if t.view == nil {
		return ErrNoView
	}
	return t.view.GoBack()
}

func (t *Tab) GoForward() error {
	if t.view == nil {
		return ErrNoView
	}
	return t.view.GoForward()
}

// PutInForeground resumes the tab and shows its first pending error.
func (t *Tab) PutInForeground() {
	if t.inForeground {
		return
	}
	t.inForeground = true
	t.resume()
	if len(t.errors) > 0 {
		t.delegate.ShowError(t, t.errors[0])
	}
	t.delegate.BookmarkedStatusChanged(t)
}

// PutInBackground requests a thumbnail and pauses the tab.
func (t *Tab) PutInBackground() { t.background(true) }

func (t *Tab) background(capture bool) {
	if !t.inForeground {
		return
	}
	if capture {
		t.requestCapture()
	}
	t.inForeground = false
	t.pause()
}

func (t *Tab) InForeground() bool { return t.inForeground }

func (t *Tab) resume() {
	if t.view == nil {
		return
	}
	if err := t.view.Resume(); err != nil {
		slog.Debug("Resume view failed", "tab_id", t.id, "error", err)
	}
}

func (t *Tab) pause() {
	if t.view == nil {
		return
	}
	if err := t.view.Pause(); err != nil {
		slog.Debug("Pause view failed", "tab_id", t.id, "error", err)
	}
}

// SaveState returns the persisted record of the tab. A tab without a view
// returns the record it was evicted or restored with; a tab showing nothing
// returns nil.
func (t *Tab) SaveState(ctx context.Context) *TabState {
	if t.view == nil {
		return t.saved
	}
	if t.URL() == "" {
		return nil
	}
	s := &TabState{
		ID:          t.id,
		URL:         t.state.URL,
		Title:       t.state.Title,
		ParentID:    t.parent,
		AppID:       t.appID,
		Incognito:   t.Incognito(),
		DesktopMode: t.DesktopMode(),
		CloseOnBack: t.closeOnBack,
	}
	h, err := t.view.SaveHistory(ctx)
	if err != nil {
		slog.Warn("Save history failed", "tab_id", t.id, "error", err)
	} else {
		s.History = h
	}
	return s
}

// SavedState is the pending record of an evicted or placeholder tab.
func (t *Tab) SavedState() *TabState { return t.saved }

// Destroy detaches and closes the view.
func (t *Tab) Destroy() {
	if t.view == nil {
		return
	}
	v := t.view
	t.SetView(context.Background(), nil, false)
	if err := v.Destroy(); err != nil {
		slog.Debug("Destroy view failed", "tab_id", t.id, "error", err)
	}
}

// evict trades the live view for a saved record.
func (t *Tab) evict(ctx context.Context) {
	if t.view == nil {
		return
	}
	t.saved = t.SaveState(ctx)
	t.Destroy()
}

// Parent returns the live parent tab, if any.
func (t *Tab) Parent() *Tab { return t.tbl.get(t.parent) }

func (t *Tab) ParentID() ID { return t.parent }

func (t *Tab) Children() []*Tab {
	out := make([]*Tab, 0, len(t.children))
	for _, id := range t.children {
		if c := t.tbl.get(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (t *Tab) ChildIDs() []ID { return slices.Clone(t.children) }

// SetParent links t under p, or unlinks it when p is nil. A child inherits
// the desktop user agent of its parent.
func (t *Tab) SetParent(p *Tab) error {
	if p == t || (p != nil && p.id == t.id) {
		return ErrSelfParent
	}
	if old := t.Parent(); old != nil && old != p {
		old.children = slices.DeleteFunc(old.children, func(id ID) bool { return id == t.id })
	}
	if p == nil {
		t.parent = NoID
	} else {
		t.parent = p.id
	}
	if t.saved != nil {
		t.saved.ParentID = t.parent
	}
	if p != nil && p.DesktopMode() && !t.DesktopMode() {
		t.applyDesktopMode(true)
	}
	return nil
}

// AddChildTab makes child a child of t.
func (t *Tab) AddChildTab(child *Tab) error {
	if err := child.SetParent(t); err != nil {
		return err
	}
	if !slices.Contains(t.children, child.id) {
		t.children = append(t.children, child.id)
	}
	return nil
}

// RemoveFromTree detaches every child and then t itself from its parent.
func (t *Tab) RemoveFromTree() {
	t.detach()
	t.delegate.DeleteThumbnail(t)
}

// detach unlinks t from its parent and children.
func (t *Tab) detach() {
	for _, id := range t.children {
		if c := t.tbl.get(id); c != nil {
			c.parent = NoID
			if c.saved != nil {
				c.saved.ParentID = NoID
			}
		}
	}
	t.children = nil
	if p := t.Parent(); p != nil {
		p.children = slices.DeleteFunc(p.children, func(id ID) bool { return id == t.id })
	}
	t.parent = NoID
}

func (t *Tab) DesktopMode() bool {
	if t.view != nil {
		return t.view.DesktopMode()
	}
	return t.desktopMode
}

func (t *Tab) applyDesktopMode(desktop bool) {
	t.desktopMode = desktop
	if t.saved != nil {
		t.saved.DesktopMode = desktop
	}
	if t.view == nil {
		return
	}
	if err := t.view.SetDesktopMode(desktop); err != nil {
		slog.Warn("Set desktop mode failed", "tab_id", t.id, "error", err)
	}
}

// SetDesktopMode switches the tab between the mobile and desktop user agent.
func (t *Tab) SetDesktopMode(desktop bool) { t.applyDesktopMode(desktop) }

func (t *Tab) PageState() PageState { return t.state }

// URL is the current url with internal placeholders filtered out.
func (t *Tab) URL() string { return filteredURL(t.state.URL) }

// OriginalURL is the url before redirects, falling back to URL.
func (t *Tab) OriginalURL() string {
	if t.state.OriginalURL == "" {
		return t.URL()
	}
	return filteredURL(t.state.OriginalURL)
}

func (t *Tab) Title() string {
	if t.state.Title == "" && t.inPageLoad {
		return loadingTitle
	}
	return t.state.Title
}

func (t *Tab) Favicon() []byte         { return t.state.Favicon }
func (t *Tab) Security() SecurityState { return t.state.Security }
func (t *Tab) SSLError() *SSLError     { return t.state.SSLError }
func (t *Tab) Incognito() bool         { return t.state.Incognito }
func (t *Tab) InPageLoad() bool        { return t.inPageLoad }
func (t *Tab) Bookmarked() bool        { return t.state.Bookmarked }

// LoadProgress is the page load percentage, 100 when idle.
func (t *Tab) LoadProgress() int {
	if t.inPageLoad {
		return t.progress
	}
	return 100
}

func (t *Tab) AppID() string         { return t.appID }
func (t *Tab) SetAppID(id string)    { t.appID = id }
func (t *Tab) CloseOnBack() bool     { return t.closeOnBack }
func (t *Tab) SetCloseOnBack(c bool) { t.closeOnBack = c }

// UpdateBookmarkedStatus asks the delegate whether the current url is
// bookmarked.
func (t *Tab) UpdateBookmarkedStatus() {
	t.delegate.QueryBookmarkStatus(t, t.URL())
}

// SetBookmarked applies a bookmark lookup result if the tab still shows url.
func (t *Tab) SetBookmarked(url string, bookmarked bool) {
	if url != t.URL() {
		return
	}
	t.state.Bookmarked = bookmarked
	t.delegate.BookmarkedStatusChanged(t)
}
