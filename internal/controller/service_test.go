package controller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/dgnsrekt/tabkeeper/internal/metrics"
	"github.com/dgnsrekt/tabkeeper/internal/relay"
	"github.com/dgnsrekt/tabkeeper/internal/tabs"
	"github.com/dgnsrekt/tabkeeper/internal/tabs/tabstest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const home = "https://home.example/"

type memSessions struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	cleared int
}

func (m *memSessions) Save(state *tabs.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.saves++
	return nil
}

func (m *memSessions) Load() (*tabs.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	var s tabs.SessionState
	if err := json.Unmarshal(m.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memSessions) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.cleared++
	return nil
}

func (m *memSessions) counts() (saves, cleared int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves, m.cleared
}

type memBookmarks struct {
	mu   sync.Mutex
	urls map[string]bool
}

func (b *memBookmarks) IsBookmarked(url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.urls[url]
}

func (b *memBookmarks) Add(url, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.urls[url] = true
	return nil
}

func (b *memBookmarks) Remove(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.urls, url)
	return nil
}

type harness struct {
	svc     *Service
	engine  *tabstest.Engine
	metrics *metrics.Metrics
	stop    func()
}

func start(t *testing.T, opts Options, deps Deps) *harness {
	t.Helper()
	eng := tabstest.NewEngine()
	deps.Engine = eng
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if opts.MaxTabs == 0 {
		opts.MaxTabs = 4
	}
	if opts.HomePage == "" {
		opts.HomePage = home
	}
	svc := NewService(opts, deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Run() error = %v", err)
			}
		})
	}
	t.Cleanup(stop)
	<-svc.Started()
	return &harness{svc: svc, engine: eng, metrics: deps.Metrics, stop: stop}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func codeOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

func open(t *testing.T, h *harness, req OpenRequest) TabInfo {
	t.Helper()
	info, err := h.svc.OpenTab(context.Background(), req)
	if err != nil {
		t.Fatalf("OpenTab(%+v) error = %v", req, err)
	}
	return info
}

func current(t *testing.T, h *harness) TabInfo {
	t.Helper()
	info, err := h.svc.CurrentTab(context.Background())
	if err != nil {
		t.Fatalf("CurrentTab() error = %v", err)
	}
	return info
}

func TestStartOpensHomePage(t *testing.T) {
	h := start(t, Options{}, Deps{})
	list, err := h.svc.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListTabs() len = %d; want 1", len(list))
	}
	if !list[0].Current || list[0].URL != home || !list[0].Live {
		t.Fatalf("home tab = %+v", list[0])
	}
	views := h.engine.Views()
	if len(views) != 1 || len(views[0].Loaded()) != 1 || views[0].Loaded()[0] != home {
		t.Fatalf("engine views = %d, loaded = %v", len(views), views[0].Loaded())
	}
	if got := testutil.ToFloat64(h.metrics.TabsOpen); got != 1 {
		t.Fatalf("tabs_open = %v; want 1", got)
	}
}

func TestOpenTabValidation(t *testing.T) {
	h := start(t, Options{}, Deps{})
	for _, raw := range []string{"example.com/page", "://broken"} {
		_, err := h.svc.OpenTab(context.Background(), OpenRequest{URL: raw})
		if codeOf(err) != CodeValidation {
			t.Fatalf("OpenTab(%q) error = %v; want %s", raw, err, CodeValidation)
		}
	}
	_, err := h.svc.OpenTab(context.Background(), OpenRequest{URL: "https://a.example/", ParentID: 99})
	if codeOf(err) != CodeTabNotFound {
		t.Fatalf("OpenTab(missing parent) error = %v; want %s", err, CodeTabNotFound)
	}
}

func TestOpenTabLimit(t *testing.T) {
	h := start(t, Options{MaxTabs: 2}, Deps{})
	second := open(t, h, OpenRequest{URL: "https://a.example/"})
	if second.Current {
		t.Fatal("background tab became current")
	}

	_, err := h.svc.OpenTab(context.Background(), OpenRequest{URL: "https://b.example/"})
	if codeOf(err) != CodeTabLimit {
		t.Fatalf("OpenTab() at limit error = %v; want %s", err, CodeTabLimit)
	}
	if !errors.Is(err, tabs.ErrTabLimit) {
		t.Fatalf("OpenTab() at limit error = %v; want wrapped ErrTabLimit", err)
	}
	if got := testutil.ToFloat64(h.metrics.LimitRejected); got != 1 {
		t.Fatalf("limit rejections = %v; want 1", got)
	}

	reused := open(t, h, OpenRequest{URL: "https://b.example/", UseCurrent: true})
	if reused.ID != current(t, h).ID || reused.URL != "https://b.example/" {
		t.Fatalf("reused tab = %+v; want current tab loading b", reused)
	}
}

func TestOpenChildInheritsIncognito(t *testing.T) {
	h := start(t, Options{}, Deps{})
	parent := open(t, h, OpenRequest{Incognito: true, SetActive: true})
	if !parent.Incognito || !parent.Current {
		t.Fatalf("incognito tab = %+v", parent)
	}
	if len(h.engine.Views()[1].Loaded()) != 0 {
		t.Fatal("incognito tab without url loaded the home page")
	}

	child := open(t, h, OpenRequest{URL: "https://c.example/", ParentID: parent.ID})
	if !child.Incognito || child.ParentID != parent.ID {
		t.Fatalf("child = %+v; want incognito child of %d", child, parent.ID)
	}
	got, err := h.svc.GetTab(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("GetTab() error = %v", err)
	}
	if len(got.Children) != 1 || got.Children[0] != child.ID {
		t.Fatalf("parent children = %v; want [%d]", got.Children, child.ID)
	}
}

func TestCloseCurrentTabFocusOrder(t *testing.T) {
	h := start(t, Options{}, Deps{})
	ctx := context.Background()
	a := current(t, h)
	b := open(t, h, OpenRequest{URL: "https://b.example/"})
	c := open(t, h, OpenRequest{URL: "https://c.example/"})
	child := open(t, h, OpenRequest{URL: "https://child.example/", ParentID: c.ID, SetActive: true})

	// parent first
	if err := h.svc.CloseCurrentTab(ctx); err != nil {
		t.Fatalf("CloseCurrentTab() error = %v", err)
	}
	if got := current(t, h).ID; got != c.ID {
		t.Fatalf("current after closing child = %d; want parent %d", got, c.ID)
	}
	if _, err := h.svc.GetTab(ctx, child.ID); codeOf(err) != CodeTabNotFound {
		t.Fatalf("closed tab still present: %v", err)
	}

	// then the next position, then the previous
	if _, err := h.svc.SwitchTo(ctx, b.ID); err != nil {
		t.Fatalf("SwitchTo() error = %v", err)
	}
	if err := h.svc.CloseCurrentTab(ctx); err != nil {
		t.Fatalf("CloseCurrentTab() error = %v", err)
	}
	if got := current(t, h).ID; got != c.ID {
		t.Fatalf("current after closing b = %d; want next %d", got, c.ID)
	}
	if err := h.svc.CloseTab(ctx, c.ID); err != nil {
		t.Fatalf("CloseTab() error = %v", err)
	}
	if got := current(t, h).ID; got != a.ID {
		t.Fatalf("current after closing last position = %d; want previous %d", got, a.ID)
	}
	if got := testutil.ToFloat64(h.metrics.TabsClosed); got != 3 {
		t.Fatalf("tabs closed = %v; want 3", got)
	}
}

func TestCloseLastTabClearsSession(t *testing.T) {
	sessions := &memSessions{}
	h := start(t, Options{}, Deps{Sessions: sessions})
	ctx := context.Background()
	if _, err := h.svc.SaveSession(ctx); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := h.svc.CloseCurrentTab(ctx); err != nil {
		t.Fatalf("CloseCurrentTab() error = %v", err)
	}
	list, _ := h.svc.ListTabs(ctx)
	if len(list) != 0 {
		t.Fatalf("tabs after closing the last one = %d", len(list))
	}
	if _, cleared := sessions.counts(); cleared == 0 {
		t.Fatal("session not cleared")
	}
	if state, _ := sessions.Load(); state != nil {
		t.Fatalf("session still stored: %+v", state)
	}
	if err := h.svc.CloseCurrentTab(ctx); codeOf(err) != CodeTabNotFound {
		t.Fatalf("CloseCurrentTab() with no tabs error = %v; want %s", err, CodeTabNotFound)
	}
}

func TestCloseOtherTabs(t *testing.T) {
	h := start(t, Options{}, Deps{})
	open(t, h, OpenRequest{URL: "https://b.example/"})
	keep := open(t, h, OpenRequest{URL: "https://c.example/", SetActive: true})
	n, err := h.svc.CloseOtherTabs(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("CloseOtherTabs() = %d, %v; want 2, nil", n, err)
	}
	list, _ := h.svc.ListTabs(context.Background())
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Fatalf("remaining = %+v", list)
	}
}

func TestGoBack(t *testing.T) {
	h := start(t, Options{}, Deps{})
	ctx := context.Background()
	a := current(t, h)

	if _, err := h.svc.LoadURL(ctx, a.ID, "https://next.example/", nil); err != nil {
		t.Fatalf("LoadURL() error = %v", err)
	}
	if !current(t, h).CanGoBack {
		t.Fatal("CanGoBack = false after second load")
	}
	if err := h.svc.GoBack(ctx); err != nil {
		t.Fatalf("GoBack() error = %v", err)
	}
	if got := current(t, h); got.CanGoBack || !got.CanGoForward {
		t.Fatalf("after GoBack: %+v", got)
	}
	if err := h.svc.GoForward(ctx); err != nil {
		t.Fatalf("GoForward() error = %v", err)
	}

	// a child with no history returns to its parent
	child := open(t, h, OpenRequest{URL: "https://child.example/", ParentID: a.ID, SetActive: true})
	if err := h.svc.GoBack(ctx); err != nil {
		t.Fatalf("GoBack() error = %v", err)
	}
	if got := current(t, h).ID; got != a.ID {
		t.Fatalf("current after child back = %d; want %d", got, a.ID)
	}
	if _, err := h.svc.GetTab(ctx, child.ID); codeOf(err) != CodeTabNotFound {
		t.Fatalf("child survived back: %v", err)
	}

	// close-on-back tabs close; plain tabs stay
	app := open(t, h, OpenRequest{URL: "https://app.example/", AppID: "app", SetActive: true})
	if err := h.svc.GoBack(ctx); err != nil {
		t.Fatalf("GoBack() error = %v", err)
	}
	if _, err := h.svc.GetTab(ctx, app.ID); codeOf(err) != CodeTabNotFound {
		t.Fatalf("app tab survived back: %v", err)
	}
	plain := open(t, h, OpenRequest{URL: "https://plain.example/", SetActive: true})
	if err := h.svc.GoBack(ctx); err != nil {
		t.Fatalf("GoBack() error = %v", err)
	}
	if got := current(t, h).ID; got != plain.ID {
		t.Fatalf("plain tab closed on back; current = %d", got)
	}
}

func TestEventsDriveTabState(t *testing.T) {
	h := start(t, Options{}, Deps{})
	h.engine.AutoLoad = true
	ctx := context.Background()
	tab := open(t, h, OpenRequest{URL: "https://events.example/", SetActive: true})

	waitFor(t, "page finished", func() bool {
		got, err := h.svc.GetTab(ctx, tab.ID)
		return err == nil && !got.Loading && got.Title == "Title of https://events.example/"
	})
	got, _ := h.svc.GetTab(ctx, tab.ID)
	if got.Security != "secure" || got.Progress != 100 {
		t.Fatalf("tab after load = %+v", got)
	}
}

func TestLoadErrorsQueue(t *testing.T) {
	h := start(t, Options{}, Deps{})
	ctx := context.Background()
	tab := current(t, h)
	view := h.engine.Views()[0]

	h.engine.Emit(tabs.Event{Kind: tabs.EventReceivedError, View: view, ErrorCode: tabs.ErrorHostLookup, Description: "dns"})
	h.engine.Emit(tabs.Event{Kind: tabs.EventReceivedError, View: view, ErrorCode: tabs.ErrorTimeout, Description: "slow"})
	h.engine.Emit(tabs.Event{Kind: tabs.EventReceivedError, View: view, ErrorCode: tabs.ErrorTimeout, Description: "slow again"})
	h.engine.Emit(tabs.Event{Kind: tabs.EventReceivedError, View: view, ErrorCode: tabs.ErrorIO, Description: "io"})

	waitFor(t, "queued errors", func() bool {
		got, _ := h.svc.GetTab(ctx, tab.ID)
		return got.QueuedErrors == 2
	})
	got, _ := h.svc.GetTab(ctx, tab.ID)
	if got.Error == nil || got.Error.Code != "timeout" {
		t.Fatalf("shown error = %+v; want timeout", got.Error)
	}
	if n := testutil.ToFloat64(h.metrics.LoadErrors.WithLabelValues("timeout")); n != 1 {
		t.Fatalf("load_errors{timeout} = %v; want 1", n)
	}

	got, err := h.svc.DismissError(ctx, tab.ID)
	if err != nil {
		t.Fatalf("DismissError() error = %v", err)
	}
	if got.Error == nil || got.Error.Code != "io" {
		t.Fatalf("after dismiss = %+v; want io", got.Error)
	}
	got, _ = h.svc.DismissError(ctx, tab.ID)
	if got.Error != nil || got.QueuedErrors != 0 {
		t.Fatalf("after second dismiss = %+v", got)
	}
}

func TestBookmarks(t *testing.T) {
	marks := &memBookmarks{urls: map[string]bool{"https://saved.example/": true}}
	h := start(t, Options{}, Deps{Bookmarks: marks})
	h.engine.AutoLoad = true
	ctx := context.Background()

	tab := open(t, h, OpenRequest{URL: "https://saved.example/"})
	waitFor(t, "bookmark lookup", func() bool {
		got, _ := h.svc.GetTab(ctx, tab.ID)
		return got.Bookmarked
	})

	got, err := h.svc.SetBookmark(ctx, tab.ID, false)
	if err != nil {
		t.Fatalf("SetBookmark(false) error = %v", err)
	}
	if got.Bookmarked || marks.IsBookmarked("https://saved.example/") {
		t.Fatalf("bookmark not removed: %+v", got)
	}
	first := current(t, h)
	got, err = h.svc.SetBookmark(ctx, first.ID, true)
	if err != nil || !got.Bookmarked || !marks.IsBookmarked(home) {
		t.Fatalf("SetBookmark(true) = %+v, %v", got, err)
	}
}

func TestSaveAndRestoreSession(t *testing.T) {
	sessions := &memSessions{}
	ctx := context.Background()

	first := start(t, Options{}, Deps{Sessions: sessions})
	a := current(t, first)
	b := open(t, first, OpenRequest{URL: "https://b.example/"})
	c := open(t, first, OpenRequest{URL: "https://c.example/", ParentID: b.ID})
	if _, err := first.svc.SwitchTo(ctx, b.ID); err != nil {
		t.Fatalf("SwitchTo() error = %v", err)
	}
	info, err := first.svc.SaveSession(ctx)
	if err != nil || !info.Saved || info.Tabs != 3 {
		t.Fatalf("SaveSession() = %+v, %v", info, err)
	}
	first.stop()

	second := start(t, Options{}, Deps{Sessions: sessions})
	list, err := second.svc.ListTabs(ctx)
	if err != nil {
		t.Fatalf("ListTabs() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("restored %d tabs; want 3", len(list))
	}
	cur := current(t, second)
	if cur.ID != b.ID || cur.URL != "https://b.example/" || !cur.Live {
		t.Fatalf("restored current = %+v; want live tab %d", cur, b.ID)
	}
	for _, tab := range list {
		if tab.ID != b.ID && tab.Live {
			t.Fatalf("tab %d restored live; want placeholder", tab.ID)
		}
	}
	restoredC, _ := second.svc.GetTab(ctx, c.ID)
	if restoredC.ParentID != b.ID {
		t.Fatalf("restored parent of %d = %d; want %d", c.ID, restoredC.ParentID, b.ID)
	}

	// placeholders materialize on switch and ids keep growing
	restoredA, err := second.svc.SwitchTo(ctx, a.ID)
	if err != nil || !restoredA.Live || restoredA.URL != home {
		t.Fatalf("SwitchTo(placeholder) = %+v, %v", restoredA, err)
	}
	fresh := open(t, second, OpenRequest{URL: "https://d.example/"})
	if fresh.ID <= c.ID {
		t.Fatalf("new tab id %d not above restored max %d", fresh.ID, c.ID)
	}
	if got := testutil.ToFloat64(second.metrics.TabsRestored); got != 3 {
		t.Fatalf("tabs restored = %v; want 3", got)
	}
}

func TestIncognitoRetention(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	state := &tabs.SessionState{
		Positions: []tabs.ID{1, 2},
		Current:   2,
		Tabs: map[tabs.ID]*tabs.TabState{
			1: {ID: 1, URL: "https://a.example/", ParentID: tabs.NoID},
			2: {ID: 2, URL: "https://secret.example/", ParentID: tabs.NoID, Incognito: true},
		},
	}
	cases := []struct {
		name     string
		last     time.Time
		wantTabs int
		wantCur  int64
	}{
		{"recent", now.Add(-time.Hour), 2, 2},
		{"stale", now.Add(-25 * time.Hour), 1, 1},
		{"future", now.Add(time.Hour), 1, 1},
		{"unknown", time.Time{}, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sessions := &memSessions{}
			state.LastActive = tc.last
			if err := sessions.Save(state); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			h := start(t, Options{IncognitoRetention: 24 * time.Hour, Now: func() time.Time { return now }}, Deps{Sessions: sessions})
			list, _ := h.svc.ListTabs(context.Background())
			if len(list) != tc.wantTabs {
				t.Fatalf("restored %d tabs; want %d", len(list), tc.wantTabs)
			}
			if got := current(t, h).ID; got != tc.wantCur {
				t.Fatalf("current = %d; want %d", got, tc.wantCur)
			}
		})
	}
}

func TestUnreadableSessionOpensHome(t *testing.T) {
	sessions := &memSessions{data: []byte("{not json")}
	h := start(t, Options{}, Deps{Sessions: sessions})
	if got := current(t, h); got.URL != home {
		t.Fatalf("current = %+v; want home tab", got)
	}
}

func TestFreeMemoryAndRecreate(t *testing.T) {
	h := start(t, Options{}, Deps{})
	ctx := context.Background()
	a := current(t, h)
	b := open(t, h, OpenRequest{URL: "https://b.example/"})
	c := open(t, h, OpenRequest{URL: "https://c.example/"})
	d := open(t, h, OpenRequest{URL: "https://d.example/"})
	for _, id := range []int64{b.ID, c.ID, d.ID, a.ID} {
		if _, err := h.svc.SwitchTo(ctx, id); err != nil {
			t.Fatalf("SwitchTo(%d) error = %v", id, err)
		}
	}

	n, err := h.svc.FreeMemory(ctx)
	if err != nil || n != 2 {
		t.Fatalf("FreeMemory() = %d, %v; want 2", n, err)
	}
	for _, want := range []struct {
		id   int64
		live bool
	}{{a.ID, true}, {b.ID, false}, {c.ID, false}, {d.ID, true}} {
		got, _ := h.svc.GetTab(ctx, want.id)
		if got.Live != want.live {
			t.Fatalf("tab %d live = %v; want %v", want.id, got.Live, want.live)
		}
	}
	if got := testutil.ToFloat64(h.metrics.LiveViews); got != 2 {
		t.Fatalf("live views = %v; want 2", got)
	}

	// navigating an evicted tab brings its page back first
	got, err := h.svc.LoadURL(ctx, b.ID, "https://b2.example/", nil)
	if err != nil || !got.Live || got.URL != "https://b2.example/" {
		t.Fatalf("LoadURL(evicted) = %+v, %v", got, err)
	}
	if !got.CanGoBack {
		t.Fatal("evicted tab lost its history")
	}

	before := len(h.engine.Views())
	got, err = h.svc.RecreateView(ctx, a.ID)
	if err != nil || !got.Live || !got.Current || got.URL != home {
		t.Fatalf("RecreateView() = %+v, %v", got, err)
	}
	if len(h.engine.Views()) != before+1 {
		t.Fatal("RecreateView() did not create a view")
	}
	if !h.engine.Views()[0].Destroyed() {
		t.Fatal("old view not destroyed")
	}
}

func TestViewUnavailable(t *testing.T) {
	h := start(t, Options{}, Deps{})
	h.engine.Fail(errors.New("browser gone"))
	_, err := h.svc.OpenTab(context.Background(), OpenRequest{URL: "https://a.example/"})
	if codeOf(err) != CodeViewUnavailable {
		t.Fatalf("OpenTab() error = %v; want %s", err, CodeViewUnavailable)
	}
}

func TestBackgroundLoadTimeout(t *testing.T) {
	h := start(t, Options{BackgroundLoadTimeout: 20 * time.Millisecond}, Deps{})
	open(t, h, OpenRequest{URL: "https://slow.example/"})
	view := h.engine.Views()[1]
	waitFor(t, "background stop", func() bool { return view.Stopped() > 0 })
	if got := testutil.ToFloat64(h.metrics.BackgroundStop); got != 1 {
		t.Fatalf("background stops = %v; want 1", got)
	}
	if h.engine.Views()[0].Stopped() != 0 {
		t.Fatal("foreground tab was stopped")
	}
}

func TestAutosaveAndShutdownSave(t *testing.T) {
	sessions := &memSessions{}
	h := start(t, Options{AutosaveInterval: 10 * time.Millisecond}, Deps{Sessions: sessions})
	waitFor(t, "autosave", func() bool {
		saves, _ := sessions.counts()
		return saves > 0
	})
	h.stop()
	saves, _ := sessions.counts()
	if state, _ := sessions.Load(); state == nil || len(state.Tabs) != 1 {
		t.Fatalf("session after shutdown = %+v", state)
	}

	if _, err := h.svc.ListTabs(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("ListTabs() after stop error = %v; want ErrStopped", err)
	}
	if after, _ := sessions.counts(); after != saves {
		t.Fatalf("saves changed after stop: %d -> %d", saves, after)
	}
	if !h.engine.Views()[0].Destroyed() {
		t.Fatal("views not destroyed on shutdown")
	}
}

func TestShouldRestoreIncognito(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	s := &Service{opts: Options{IncognitoRetention: 24 * time.Hour}, now: func() time.Time { return now }}
	cases := []struct {
		last time.Time
		want bool
	}{
		{now, true},
		{now.Add(-23 * time.Hour), true},
		{now.Add(-24 * time.Hour), false},
		{now.Add(time.Minute), false},
		{time.Time{}, false},
	}
	for _, tc := range cases {
		if got := s.shouldRestoreIncognito(tc.last); got != tc.want {
			t.Fatalf("shouldRestoreIncognito(%v) = %v; want %v", tc.last, got, tc.want)
		}
	}
}

func nextNotice(t *testing.T, ch <-chan relay.Event, kind string) (string, Notice) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			var n Notice
			if err := json.Unmarshal([]byte(evt.Payload), &n); err != nil {
				t.Fatalf("decode notice %s: %v", evt.Payload, err)
			}
			if n.Kind == kind {
				return evt.Feed, n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s notice", kind)
		}
	}
}

func TestActivityFeed(t *testing.T) {
	broker := relay.NewBroker()
	defer broker.Close()
	_, ch, _ := broker.Subscribe()
	h := start(t, Options{}, Deps{Feed: broker})

	feed, n := nextNotice(t, ch, "tab_opened")
	if feed != relay.FeedTabs || n.URL != "" || n.TabID == 0 {
		t.Fatalf("home notice = %s %+v; want tabs feed before the first load", feed, n)
	}
	if _, n := nextNotice(t, ch, "page_started"); n.URL != home {
		t.Fatalf("page_started url = %q; want %q", n.URL, home)
	}

	private := open(t, h, OpenRequest{URL: "https://secret.example/", Incognito: true, SetActive: true})
	if _, n := nextNotice(t, ch, "tab_switched"); n.TabID != private.ID {
		t.Fatalf("tab_switched = %+v; want tab %d", n, private.ID)
	}
	if _, n := nextNotice(t, ch, "page_started"); n.TabID != private.ID || n.URL != "" || !n.Incognito {
		t.Fatalf("incognito page_started = %+v; want no url", n)
	}

	if err := h.svc.CloseTab(context.Background(), private.ID); err != nil {
		t.Fatalf("CloseTab() error = %v", err)
	}
	if _, n := nextNotice(t, ch, "tab_closed"); n.TabID != private.ID {
		t.Fatalf("tab_closed = %+v; want tab %d", n, private.ID)
	}
	if feed, _ := nextNotice(t, ch, "incognito_ended"); feed != relay.FeedTabs {
		t.Fatalf("incognito_ended feed = %s; want %s", feed, relay.FeedTabs)
	}
}

func TestOpenReusesTabs(t *testing.T) {
	h := start(t, Options{}, Deps{})
	ctx := context.Background()
	app := open(t, h, OpenRequest{URL: "https://app.example/1", AppID: "mail"})
	child := open(t, h, OpenRequest{URL: "https://b.example/", ParentID: app.ID})

	again := open(t, h, OpenRequest{URL: "https://app.example/2", AppID: "mail", SetActive: true})
	if again.ID != app.ID || !again.Current || again.URL != "https://app.example/2" {
		t.Fatalf("application tab = %+v; want tab %d reloaded and current", again, app.ID)
	}
	got, err := h.svc.GetTab(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetTab() error = %v", err)
	}
	if got.ParentID != 0 {
		t.Fatalf("child parent = %d; want links removed for application requests", got.ParentID)
	}

	same := open(t, h, OpenRequest{URL: "https://b.example/", ReuseExisting: true, SetActive: true})
	if same.ID != child.ID || !same.Current {
		t.Fatalf("ReuseExisting tab = %+v; want tab %d current", same, child.ID)
	}
	private := open(t, h, OpenRequest{URL: "https://b.example/", ReuseExisting: true, Incognito: true})
	if private.ID == child.ID || !private.Incognito {
		t.Fatalf("incognito request reused a regular tab: %+v", private)
	}

	list, _ := h.svc.ListTabs(ctx)
	if len(list) != 4 {
		t.Fatalf("tabs = %d; want 4", len(list))
	}
}

func TestOpenReplacesLeastUsed(t *testing.T) {
	h := start(t, Options{MaxTabs: 2}, Deps{})
	ctx := context.Background()
	home := current(t, h)
	b := open(t, h, OpenRequest{URL: "https://b.example/", SetActive: true})
	if _, err := h.svc.SwitchTo(ctx, home.ID); err != nil {
		t.Fatalf("SwitchTo() error = %v", err)
	}

	if _, err := h.svc.OpenTab(ctx, OpenRequest{URL: "https://c.example/"}); codeOf(err) != CodeTabLimit {
		t.Fatalf("OpenTab() at the limit error = %v; want %s", err, CodeTabLimit)
	}
	c := open(t, h, OpenRequest{URL: "https://c.example/", ReplaceLeastUsed: true})
	if _, err := h.svc.GetTab(ctx, b.ID); codeOf(err) != CodeTabNotFound {
		t.Fatalf("least used tab still open: %v", err)
	}
	if got := current(t, h).ID; got != home.ID {
		t.Fatalf("current = %d; want %d untouched", got, home.ID)
	}
	list, _ := h.svc.ListTabs(ctx)
	if len(list) != 2 || list[1].ID != c.ID {
		t.Fatalf("tabs = %+v; want home and c", list)
	}
}
