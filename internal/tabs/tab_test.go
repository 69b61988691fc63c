package tabs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestTab(d Delegate, incognito bool) (*Tab, *fakeView) {
	v := &fakeView{incognito: incognito}
	tab := NewTab(context.Background(), v, nil, TabOptions{Delegate: d})
	return tab, v
}

func TestNewTabDefaults(t *testing.T) {
	tab, _ := newTestTab(nil, false)
	if tab.ID() != 1 {
		t.Fatalf("ID() = %d; want 1", tab.ID())
	}
	if tab.Title() != newTabTitle {
		t.Fatalf("Title() = %q; want %q", tab.Title(), newTabTitle)
	}
	if tab.LoadProgress() != 100 {
		t.Fatalf("LoadProgress() = %d; want 100", tab.LoadProgress())
	}
	if tab.Security() != SecurityNotSecure {
		t.Fatalf("Security() = %v; want not_secure", tab.Security())
	}

	inc, _ := newTestTab(nil, true)
	if !inc.Incognito() {
		t.Fatalf("Incognito() = false; want true")
	}
	if inc.URL() != "" {
		t.Fatalf("URL() = %q; want placeholder filtered to empty", inc.URL())
	}
}

func TestTabSaveStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	tab, _ := newTestTab(nil, true)
	tab.SetAppID("com.example.app")
	tab.SetCloseOnBack(true)
	if err := tab.LoadURL("https://example.com/a", nil); err != nil {
		t.Fatalf("LoadURL() error = %v", err)
	}
	tab.HandleEvent(Event{Kind: EventReceivedTitle, View: tab.View(), Title: "Example"})

	st := tab.SaveState(ctx)
	if st == nil {
		t.Fatalf("SaveState() = nil; want record")
	}

	restored := NewTab(ctx, nil, st, TabOptions{})
	if restored.ID() != tab.ID() {
		t.Fatalf("ID() = %d; want %d", restored.ID(), tab.ID())
	}
	if restored.URL() != "https://example.com/a" {
		t.Fatalf("URL() = %q; want https://example.com/a", restored.URL())
	}
	if restored.Title() != "Example" {
		t.Fatalf("Title() = %q; want Example", restored.Title())
	}
	if !restored.Incognito() {
		t.Fatalf("Incognito() = false; want true")
	}
	if restored.AppID() != "com.example.app" {
		t.Fatalf("AppID() = %q; want com.example.app", restored.AppID())
	}
	if !restored.CloseOnBack() {
		t.Fatalf("CloseOnBack() = false; want true")
	}
	if restored.View() != nil || restored.SavedState() == nil {
		t.Fatalf("restored tab should hold a record and no view")
	}
}

func TestTabSaveStateEmptyURL(t *testing.T) {
	tab, _ := newTestTab(nil, false)
	if st := tab.SaveState(context.Background()); st != nil {
		t.Fatalf("SaveState() = %+v; want nil for blank tab", st)
	}
}

func TestTabSetViewRestoresHistory(t *testing.T) {
	ctx := context.Background()
	st := &TabState{
		ID:          3,
		URL:         "https://b.example/",
		DesktopMode: true,
		History: &History{CurrentIndex: 1, Entries: []HistoryEntry{
			{URL: "https://a.example/"}, {URL: "https://b.example/"},
		}},
	}
	tab := NewTab(ctx, nil, st, TabOptions{})
	v := &fakeView{}
	tab.SetView(ctx, v, true)
	if tab.SavedState() != nil {
		t.Fatalf("SavedState() should be consumed once a view exists")
	}
	if !v.CanGoBack() {
		t.Fatalf("restored view should have back history")
	}
	if !v.desktop {
		t.Fatalf("desktop mode not replayed into view")
	}
	if len(v.loaded) != 0 {
		t.Fatalf("loaded = %v; want no reload when history restores", v.loaded)
	}
}

func TestTabSetViewFallsBackToURL(t *testing.T) {
	ctx := context.Background()
	st := &TabState{ID: 2, URL: "https://c.example/", History: &History{Entries: []HistoryEntry{{URL: "https://c.example/"}}}}
	tab := NewTab(ctx, nil, st, TabOptions{})
	v := &fakeView{restoreErr: errors.New("unsupported")}
	tab.SetView(ctx, v, true)
	if len(v.loaded) != 1 || v.loaded[0] != "https://c.example/" {
		t.Fatalf("loaded = %v; want reload of saved url", v.loaded)
	}
}

func TestRemoveFromTreeDetachesChildren(t *testing.T) {
	d := &recordingDelegate{}
	opts := TabOptions{Delegate: d}.withDefaults()
	ctx := context.Background()
	root := NewTab(ctx, &fakeView{}, nil, opts)
	mid := NewTab(ctx, &fakeView{}, nil, opts)
	leafA := NewTab(ctx, &fakeView{}, nil, opts)
	leafB := NewTab(ctx, &fakeView{}, nil, opts)

	for _, link := range []struct{ p, c *Tab }{{root, mid}, {mid, leafA}, {mid, leafB}} {
		if err := link.p.AddChildTab(link.c); err != nil {
			t.Fatalf("AddChildTab() error = %v", err)
		}
	}
	if leafA.Parent() != mid {
		t.Fatalf("Parent() = %v; want mid", leafA.Parent())
	}

	mid.RemoveFromTree()

	for _, c := range []*Tab{leafA, leafB} {
		if c.Parent() != nil {
			t.Fatalf("child %d Parent() = %v; want nil", c.ID(), c.Parent())
		}
	}
	if len(root.Children()) != 0 {
		t.Fatalf("root.Children() = %d; want 0", len(root.Children()))
	}
	if len(mid.Children()) != 0 || mid.Parent() != nil {
		t.Fatalf("removed tab should have no links")
	}
	if len(d.deleted) != 1 || d.deleted[0] != mid.ID() {
		t.Fatalf("deleted thumbnails = %v; want [%d]", d.deleted, mid.ID())
	}
}

func TestSetParentRejectsSelf(t *testing.T) {
	tab, _ := newTestTab(nil, false)
	if err := tab.SetParent(tab); !errors.Is(err, ErrSelfParent) {
		t.Fatalf("SetParent(self) error = %v; want ErrSelfParent", err)
	}
	if err := tab.AddChildTab(tab); !errors.Is(err, ErrSelfParent) {
		t.Fatalf("AddChildTab(self) error = %v; want ErrSelfParent", err)
	}
}

func TestSetParentInheritsDesktopMode(t *testing.T) {
	opts := TabOptions{}.withDefaults()
	ctx := context.Background()
	pv := &fakeView{desktop: true}
	parent := NewTab(ctx, pv, nil, opts)
	cv := &fakeView{}
	child := NewTab(ctx, cv, nil, opts)
	if err := parent.AddChildTab(child); err != nil {
		t.Fatalf("AddChildTab() error = %v", err)
	}
	if !cv.desktop {
		t.Fatalf("child view desktop = false; want inherited true")
	}
}

func TestSecurityStateTransitions(t *testing.T) {
	d := &recordingDelegate{}
	tab, v := newTestTab(d, false)

	tab.HandleEvent(Event{Kind: EventPageStarted, View: v, URL: "https://bank.example/"})
	if tab.Security() != SecuritySecure {
		t.Fatalf("after https start Security() = %v; want secure", tab.Security())
	}

	tab.HandleEvent(Event{Kind: EventLoadResource, View: v, URL: "data:image/png;base64,AA"})
	if tab.Security() != SecuritySecure {
		t.Fatalf("data: resource changed Security() to %v", tab.Security())
	}

	tab.HandleEvent(Event{Kind: EventLoadResource, View: v, URL: "http://cdn.example/x.js"})
	if tab.Security() != SecurityMixed {
		t.Fatalf("after insecure resource Security() = %v; want mixed", tab.Security())
	}

	tab.HandleEvent(Event{Kind: EventProceededAfterSSLError, View: v, URL: "https://bank.example/", Description: "expired"})
	if tab.Security() != SecurityBadCertificate {
		t.Fatalf("after proceeded ssl error Security() = %v; want bad_certificate", tab.Security())
	}
	if tab.SSLError() == nil || tab.SSLError().Reason != "expired" {
		t.Fatalf("SSLError() = %+v; want expired", tab.SSLError())
	}

	tab.HandleEvent(Event{Kind: EventLoadResource, View: v, URL: "http://cdn.example/y.js"})
	if tab.Security() != SecurityBadCertificate {
		t.Fatalf("bad certificate should be terminal, got %v", tab.Security())
	}

	tab.HandleEvent(Event{Kind: EventPageStarted, View: v, URL: "http://plain.example/"})
	if tab.Security() != SecurityNotSecure {
		t.Fatalf("new navigation Security() = %v; want not_secure", tab.Security())
	}
}

func TestProceededSSLErrorOnSubresource(t *testing.T) {
	tab, v := newTestTab(nil, false)
	tab.HandleEvent(Event{Kind: EventPageStarted, View: v, URL: "https://a.example/"})
	tab.HandleEvent(Event{Kind: EventProceededAfterSSLError, View: v, URL: "https://img.example/x.png"})
	if tab.Security() != SecurityMixed {
		t.Fatalf("Security() = %v; want mixed", tab.Security())
	}
}

func TestPageFinishedSyncsState(t *testing.T) {
	d := &recordingDelegate{}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	v := &fakeView{}
	tab := NewTab(context.Background(), v, nil, TabOptions{
		Delegate: d,
		Now:      func() time.Time { return now },
	})

	tab.HandleEvent(Event{Kind: EventPageStarted, View: v, URL: "https://a.example/"})
	if tab.Title() != loadingTitle {
		t.Fatalf("Title() while loading = %q; want %q", tab.Title(), loadingTitle)
	}
	if tab.LoadProgress() != initialProgress {
		t.Fatalf("LoadProgress() = %d; want %d", tab.LoadProgress(), initialProgress)
	}

	now = now.Add(1500 * time.Millisecond)
	tab.HandleEvent(Event{Kind: EventPageFinished, View: v, URL: "http://a.example/landing", Title: "Landing"})
	tab.HandleEvent(Event{Kind: EventProgressChanged, View: v, Progress: 100})

	if tab.URL() != "http://a.example/landing" {
		t.Fatalf("URL() = %q; want synced url", tab.URL())
	}
	if tab.OriginalURL() != "https://a.example/" {
		t.Fatalf("OriginalURL() = %q; want https://a.example/", tab.OriginalURL())
	}
	if tab.Security() != SecurityNotSecure {
		t.Fatalf("Security() = %v; want not_secure after http finish", tab.Security())
	}
	if tab.InPageLoad() || tab.LoadProgress() != 100 {
		t.Fatalf("tab still loading after progress 100")
	}
	if len(d.finished) != 1 || d.finished[0] != 1500*time.Millisecond {
		t.Fatalf("finished = %v; want [1.5s]", d.finished)
	}
}

func TestStaleEventsAreDropped(t *testing.T) {
	tab, v := newTestTab(nil, false)
	old := v
	tab.Destroy()
	tab.SetView(context.Background(), &fakeView{}, false)

	tab.HandleEvent(Event{Kind: EventReceivedTitle, View: old, Title: "stale"})
	if tab.Title() == "stale" {
		t.Fatalf("event from replaced view was applied")
	}
}

func TestErrorQueue(t *testing.T) {
	d := &recordingDelegate{}
	tab, v := newTestTab(d, false)

	tab.HandleEvent(Event{Kind: EventReceivedError, View: v, ErrorCode: ErrorHostLookup})
	if len(tab.PendingErrors()) != 0 {
		t.Fatalf("host lookup errors render inline and must not queue")
	}

	tab.HandleEvent(Event{Kind: EventReceivedError, View: v, ErrorCode: ErrorTimeout, Description: "slow"})
	tab.HandleEvent(Event{Kind: EventReceivedError, View: v, ErrorCode: ErrorTimeout, Description: "slow again"})
	tab.HandleEvent(Event{Kind: EventReceivedError, View: v, ErrorCode: ErrorFileNotFound})
	errs := tab.PendingErrors()
	if len(errs) != 2 {
		t.Fatalf("PendingErrors() = %d; want 2 after coalescing", len(errs))
	}
	if errs[1].Title != FileErrorTitle || errs[0].Title != NetworkErrorTitle {
		t.Fatalf("titles = %q, %q; want Network, File", errs[0].Title, errs[1].Title)
	}
	if len(d.shown) != 0 {
		t.Fatalf("errors shown while in background: %v", d.shown)
	}

	tab.PutInForeground()
	if len(d.shown) != 1 || d.shown[0].Code != ErrorTimeout {
		t.Fatalf("shown = %v; want timeout on foreground", d.shown)
	}
	tab.DismissError()
	if len(d.shown) != 2 || d.shown[1].Code != ErrorFileNotFound {
		t.Fatalf("shown = %v; want file_not_found next", d.shown)
	}
	tab.DismissError()
	if len(tab.PendingErrors()) != 0 {
		t.Fatalf("queue not drained")
	}
}

func TestForegroundBackgroundIdempotent(t *testing.T) {
	d := &recordingDelegate{}
	v := &fakeView{}
	tab := NewTab(context.Background(), v, nil, TabOptions{
		Delegate:          d,
		CaptureThumbnails: true,
		CaptureWidth:      8,
		CaptureHeight:     6,
	})

	tab.PutInForeground()
	tab.PutInForeground()
	if v.resumed != 1 {
		t.Fatalf("resumed = %d; want 1", v.resumed)
	}
	tab.PutInBackground()
	tab.PutInBackground()
	if d.captures != 1 {
		t.Fatalf("captures = %d; want 1", d.captures)
	}
	if !v.paused {
		t.Fatalf("view not paused in background")
	}
}

func TestThumbnailBuffer(t *testing.T) {
	tab := NewTab(context.Background(), &fakeView{}, nil, TabOptions{
		CaptureThumbnails: true,
		CaptureWidth:      4,
		CaptureHeight:     3,
	})
	shot := tab.Screenshot()
	if shot == nil {
		t.Fatalf("Screenshot() = nil; want white buffer")
	}
	if got := shot.RGBAAt(0, 0); got != white {
		t.Fatalf("initial pixel = %v; want white", got)
	}

	img, _ := (&fakeView{}).Capture(context.Background(), 40, 30)
	tab.UpdateCapture(img)
	if got := tab.Screenshot().RGBAAt(2, 1); got == white {
		t.Fatalf("pixel still white after UpdateCapture")
	}

	tab.SetCaptureThumbnails(false)
	if tab.Screenshot() != nil {
		t.Fatalf("Screenshot() should be nil once disabled")
	}
}

func TestCloseWindowEvent(t *testing.T) {
	d := &recordingDelegate{}
	opts := TabOptions{Delegate: d}.withDefaults()
	ctx := context.Background()
	parent := NewTab(ctx, &fakeView{}, nil, opts)
	cv := &fakeView{}
	child := NewTab(ctx, cv, nil, opts)

	child.HandleEvent(Event{Kind: EventCloseWindow, View: cv})
	if len(d.closed) != 0 {
		t.Fatalf("top-level tab closed itself")
	}

	if err := parent.AddChildTab(child); err != nil {
		t.Fatalf("AddChildTab() error = %v", err)
	}
	child.PutInForeground()
	child.HandleEvent(Event{Kind: EventCloseWindow, View: cv})
	if len(d.switched) != 1 || d.switched[0] != parent.ID() {
		t.Fatalf("switched = %v; want parent", d.switched)
	}
	if len(d.closed) != 1 || d.closed[0] != child.ID() {
		t.Fatalf("closed = %v; want child", d.closed)
	}
}

func TestBookmarkStatus(t *testing.T) {
	d := &recordingDelegate{}
	tab, v := newTestTab(d, false)
	tab.HandleEvent(Event{Kind: EventPageStarted, View: v, URL: "https://a.example/"})
	if len(d.bookmarkReq) != 1 || d.bookmarkReq[0] != "https://a.example/" {
		t.Fatalf("bookmark lookups = %v", d.bookmarkReq)
	}
	tab.SetBookmarked("https://other.example/", true)
	if tab.Bookmarked() {
		t.Fatalf("result for another url was applied")
	}
	tab.SetBookmarked("https://a.example/", true)
	if !tab.Bookmarked() {
		t.Fatalf("Bookmarked() = false; want true")
	}
}
