package tabs

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"
)

type fakeView struct {
	incognito  bool
	desktop    bool
	history    *History
	loaded     []string
	paused     bool
	resumed    int
	destroyed  bool
	freed      int
	stopped    int
	backs      int
	restoreErr error
}

func (v *fakeView) LoadURL(url string, _ map[string]string) error {
	v.loaded = append(v.loaded, url)
	if v.history == nil {
		v.history = &History{CurrentIndex: -1}
	}
	v.history.Entries = append(v.history.Entries[:v.history.CurrentIndex+1], HistoryEntry{URL: url})
	v.history.CurrentIndex = len(v.history.Entries) - 1
	return nil
}

func (v *fakeView) StopLoading() error { v.stopped++; return nil }

func (v *fakeView) GoBack() error {
	if !v.CanGoBack() {
		return errors.New("no history")
	}
	v.backs++
	v.history.CurrentIndex--
	return nil
}

func (v *fakeView) GoForward() error {
	if !v.CanGoForward() {
		return errors.New("no history")
	}
	v.history.CurrentIndex++
	return nil
}

func (v *fakeView) CanGoBack() bool { return v.history != nil && v.history.CurrentIndex > 0 }

func (v *fakeView) CanGoForward() bool {
	return v.history != nil && v.history.CurrentIndex < len(v.history.Entries)-1
}

func (v *fakeView) Resume() error { v.paused = false; v.resumed++; return nil }
func (v *fakeView) Pause() error  { v.paused = true; return nil }

func (v *fakeView) SaveHistory(context.Context) (*History, error) {
	if v.history == nil {
		return nil, nil
	}
	h := *v.history
	h.Entries = append([]HistoryEntry(nil), v.history.Entries...)
	return &h, nil
}

func (v *fakeView) RestoreHistory(_ context.Context, h *History) error {
	if v.restoreErr != nil {
		return v.restoreErr
	}
	c := *h
	v.history = &c
	return nil
}

func (v *fakeView) Capture(_ context.Context, w, h int) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x20
	}
	return img, nil
}

func (v *fakeView) FreeMemory(context.Context) error { v.freed++; return nil }
func (v *fakeView) SetDesktopMode(d bool) error      { v.desktop = d; return nil }
func (v *fakeView) DesktopMode() bool                { return v.desktop }
func (v *fakeView) Incognito() bool                  { return v.incognito }
func (v *fakeView) Destroy() error                   { v.destroyed = true; return nil }

var _ ContentView = (*fakeView)(nil)

type fakeFactory struct {
	views []*fakeView
	err   error
}

func (f *fakeFactory) NewView(incognito bool) (ContentView, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := &fakeView{incognito: incognito}
	f.views = append(f.views, v)
	return v, nil
}

type recordingDelegate struct {
	NopDelegate
	shown       []LoadError
	started     int
	finished    []time.Duration
	security    int
	captures    int
	deleted     []ID
	switched    []ID
	closed      []ID
	bookmarkReq []string
}

func (d *recordingDelegate) OnPageStarted(*Tab) { d.started++ }

func (d *recordingDelegate) OnPageFinished(_ *Tab, dur time.Duration) {
	d.finished = append(d.finished, dur)
}

func (d *recordingDelegate) OnUpdatedSecurityState(*Tab) { d.security++ }

func (d *recordingDelegate) ShowError(_ *Tab, e LoadError) { d.shown = append(d.shown, e) }

func (d *recordingDelegate) RequestCapture(*Tab, ContentView) { d.captures++ }

func (d *recordingDelegate) DeleteThumbnail(t *Tab) { d.deleted = append(d.deleted, t.ID()) }

func (d *recordingDelegate) SwitchToTab(t *Tab) { d.switched = append(d.switched, t.ID()) }

func (d *recordingDelegate) CloseTab(t *Tab) { d.closed = append(d.closed, t.ID()) }

func (d *recordingDelegate) QueryBookmarkStatus(_ *Tab, url string) {
	d.bookmarkReq = append(d.bookmarkReq, url)
}

func newTestControl(maxTabs int) (*TabControl, *fakeFactory, *recordingDelegate) {
	f := &fakeFactory{}
	d := &recordingDelegate{}
	tc := NewTabControl(ControlOptions{
		MaxTabs:  maxTabs,
		IDs:      NewIDGenerator(),
		Factory:  f,
		Delegate: d,
	})
	return tc, f, d
}

func mustCreate(t *testing.T, tc *TabControl, url string) *Tab {
	t.Helper()
	tab, err := tc.CreateNewTab(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("CreateNewTab() error = %v", err)
	}
	if url != "" {
		if err := tab.LoadURL(url, nil); err != nil {
			t.Fatalf("LoadURL() error = %v", err)
		}
	}
	return tab
}

var white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
