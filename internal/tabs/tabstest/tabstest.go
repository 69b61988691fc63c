// Package tabstest provides an in-memory content view engine for tests.
package tabstest

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

// Engine creates Views and delivers their events on a buffered channel.
type Engine struct {
	mu     sync.Mutex
	views  []*View
	err    error
	events chan tabs.Event

	// AutoLoad makes every LoadURL emit started, finished and progress
	// events as a real page would.
	AutoLoad bool
}

func NewEngine() *Engine {
	return &Engine{events: make(chan tabs.Event, 256)}
}

func (e *Engine) NewView(incognito bool) (tabs.ContentView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	v := &View{engine: e, incognito: incognito}
	e.views = append(e.views, v)
	return v, nil
}

func (e *Engine) Events() <-chan tabs.Event { return e.events }

// Emit queues ev for the consumer of Events.
func (e *Engine) Emit(ev tabs.Event) { e.events <- ev }

// Fail makes subsequent NewView calls return err.
func (e *Engine) Fail(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *Engine) Views() []*View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*View(nil), e.views...)
}

// View is a fake content view with a linear history.
type View struct {
	engine *Engine

	mu        sync.Mutex
	incognito bool
	desktop   bool
	history   tabs.History
	loaded    []string
	paused    bool
	destroyed bool
	freed     int
	stopped   int
}

func (v *View) LoadURL(url string, _ map[string]string) error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return errors.New("view destroyed")
	}
	v.loaded = append(v.loaded, url)
	if len(v.history.Entries) > 0 {
		v.history.Entries = v.history.Entries[:v.history.CurrentIndex+1]
	}
	v.history.Entries = append(v.history.Entries, tabs.HistoryEntry{URL: url})
	v.history.CurrentIndex = len(v.history.Entries) - 1
	auto := v.engine.AutoLoad
	v.mu.Unlock()

	if auto {
		v.engine.Emit(tabs.Event{Kind: tabs.EventPageStarted, View: v, URL: url})
		v.engine.Emit(tabs.Event{Kind: tabs.EventPageFinished, View: v, URL: url, Title: "Title of " + url})
		v.engine.Emit(tabs.Event{Kind: tabs.EventProgressChanged, View: v, Progress: 100})
	}
	return nil
}

func (v *View) StopLoading() error {
	v.mu.Lock()
	v.stopped++
	v.mu.Unlock()
	return nil
}

func (v *View) GoBack() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.history.CurrentIndex <= 0 {
		return errors.New("no back history")
	}
	v.history.CurrentIndex--
	return nil
}

func (v *View) GoForward() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.history.CurrentIndex >= len(v.history.Entries)-1 {
		return errors.New("no forward history")
	}
	v.history.CurrentIndex++
	return nil
}

func (v *View) CanGoBack() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.history.CurrentIndex > 0
}

func (v *View) CanGoForward() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.history.CurrentIndex < len(v.history.Entries)-1
}

func (v *View) Resume() error {
	v.mu.Lock()
	v.paused = false
	v.mu.Unlock()
	return nil
}

func (v *View) Pause() error {
	v.mu.Lock()
	v.paused = true
	v.mu.Unlock()
	return nil
}

func (v *View) SaveHistory(context.Context) (*tabs.History, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.history.Entries) == 0 {
		return nil, nil
	}
	h := tabs.History{
		CurrentIndex: v.history.CurrentIndex,
		Entries:      append([]tabs.HistoryEntry(nil), v.history.Entries...),
	}
	return &h, nil
}

func (v *View) RestoreHistory(_ context.Context, h *tabs.History) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.history = tabs.History{
		CurrentIndex: h.CurrentIndex,
		Entries:      append([]tabs.HistoryEntry(nil), h.Entries...),
	}
	return nil
}

func (v *View) Capture(_ context.Context, w, h int) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = Green.R, Green.G, Green.B, Green.A
	}
	return img, nil
}

func (v *View) FreeMemory(context.Context) error {
	v.mu.Lock()
	v.freed++
	v.mu.Unlock()
	return nil
}

func (v *View) SetDesktopMode(desktop bool) error {
	v.mu.Lock()
	v.desktop = desktop
	v.mu.Unlock()
	return nil
}

func (v *View) DesktopMode() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.desktop
}

func (v *View) Incognito() bool { return v.incognito }

var _ tabs.ContentView = (*View)(nil)

func (v *View) Destroy() error {
	v.mu.Lock()
	v.destroyed = true
	v.mu.Unlock()
	return nil
}

// Loaded returns the urls passed to LoadURL.
func (v *View) Loaded() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.loaded...)
}

func (v *View) Destroyed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.destroyed
}

func (v *View) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *View) Freed() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.freed
}

func (v *View) Stopped() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// Green is the colour every capture is filled with.
var Green = color.RGBA{R: 0x10, G: 0x80, B: 0x10, A: 0xff}
