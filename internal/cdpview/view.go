package cdpview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/memory"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

const (
	commandTimeout = 10 * time.Second
	navTimeout     = 60 * time.Second
	queueSize      = 64
)

var (
	ErrDestroyed = errors.New("page destroyed")
	ErrNoHistory = errors.New("no history entry in that direction")
)

// View is one browser page. Commands that the tab issues synchronously are
// queued and executed in order on the view's own goroutine so the caller
// never waits for the browser.
type View struct {
	engine    *Engine
	ctx       context.Context
	cancel    context.CancelFunc
	incognito bool
	cmds      chan command
	exec      func(ctx context.Context, c command) error

	mu         sync.Mutex
	mainFrame  cdp.FrameID
	url        string
	history    []*page.NavigationEntry
	histIndex  int
	desktop    bool
	frozen     bool
	headersSet bool
	destroyed  bool
}

type command struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	done    chan error
}

func runCommand(ctx context.Context, c command) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(c.run))
}

func newView(e *Engine, ctx context.Context, cancel context.CancelFunc, incognito bool) *View {
	return &View{
		engine:    e,
		ctx:       ctx,
		cancel:    cancel,
		incognito: incognito,
		cmds:      make(chan command, queueSize),
		exec:      runCommand,
		histIndex: -1,
	}
}

func (v *View) loop() {
	for {
		select {
		case <-v.ctx.Done():
			return
		case c := <-v.cmds:
			ctx, cancel := context.WithTimeout(v.ctx, c.timeout)
			err := v.exec(ctx, c)
			cancel()
			if c.done != nil {
				c.done <- err
				continue
			}
			if err != nil && v.ctx.Err() == nil {
				slog.Warn("Page command failed", "command", c.name, "error", err)
			}
		}
	}
}

func (v *View) enqueue(name string, timeout time.Duration, run func(ctx context.Context) error) error {
	return v.push(command{name: name, timeout: timeout, run: run})
}

func (v *View) push(c command) error {
	v.mu.Lock()
	destroyed := v.destroyed
	v.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}
	select {
	case v.cmds <- c:
		return nil
	default:
		return fmt.Errorf("page command queue full, dropping %s", c.name)
	}
}

// enqueueWait queues run behind every pending command and waits for its
// result.
func (v *View) enqueueWait(ctx context.Context, name string, timeout time.Duration, run func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if err := v.push(command{name: name, timeout: timeout, run: run, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-v.ctx.Done():
		return ErrDestroyed
	}
}

// run executes actions now, bounded by both ctx and the page lifetime.
func (v *View) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithCancel(v.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(rctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (v *View) setMainFrame(id cdp.FrameID) {
	v.mu.Lock()
	v.mainFrame = id
	v.mu.Unlock()
}

// LoadURL navigates the page. A frozen page is thawed first.
func (v *View) LoadURL(url string, headers map[string]string) error {
	v.mu.Lock()
	thaw := v.frozen
	v.frozen = false
	resetHeaders := v.headersSet && len(headers) == 0
	v.headersSet = len(headers) > 0
	v.mu.Unlock()

	return v.enqueue("navigate", navTimeout, func(ctx context.Context) error {
		if thaw {
			if err := page.SetWebLifecycleState(page.SetWebLifecycleStateStateActive).Do(ctx); err != nil {
				return err
			}
		}
		if len(headers) > 0 || resetHeaders {
			h := make(network.Headers, len(headers))
			for k, val := range headers {
				h[k] = val
			}
			if err := network.SetExtraHTTPHeaders(h).Do(ctx); err != nil {
				return err
			}
		}
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			slog.Debug("Navigation failed", "error_text", errorText)
		}
		return nil
	})
}

func (v *View) StopLoading() error {
	return v.enqueue("stop", commandTimeout, func(ctx context.Context) error {
		return page.StopLoading().Do(ctx)
	})
}

func (v *View) GoBack() error    { return v.step(-1) }
func (v *View) GoForward() error { return v.step(1) }

func (v *View) step(delta int) error {
	v.mu.Lock()
	idx := v.histIndex + delta
	if idx < 0 || idx >= len(v.history) {
		v.mu.Unlock()
		return ErrNoHistory
	}
	entry := v.history[idx]
	v.histIndex = idx
	v.mu.Unlock()

	return v.enqueue("history", navTimeout, func(ctx context.Context) error {
		return page.NavigateToHistoryEntry(entry.ID).Do(ctx)
	})
}

// CanGoBack answers from the last history snapshot, refreshed after every
// main frame navigation.
func (v *View) CanGoBack() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.histIndex > 0
}

func (v *View) CanGoForward() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.histIndex >= 0 && v.histIndex < len(v.history)-1
}

func (v *View) Resume() error {
	v.mu.Lock()
	if !v.frozen {
		v.mu.Unlock()
		return nil
	}
	v.frozen = false
	v.mu.Unlock()
	return v.enqueue("resume", commandTimeout, func(ctx context.Context) error {
		return page.SetWebLifecycleState(page.SetWebLifecycleStateStateActive).Do(ctx)
	})
}

// Pause freezes the page. Frozen pages run no timers or scripts.
func (v *View) Pause() error {
	v.mu.Lock()
	if v.frozen {
		v.mu.Unlock()
		return nil
	}
	v.frozen = true
	v.mu.Unlock()
	return v.enqueue("pause", commandTimeout, func(ctx context.Context) error {
		return page.SetWebLifecycleState(page.SetWebLifecycleStateStateFrozen).Do(ctx)
	})
}

func (v *View) SaveHistory(ctx context.Context) (*tabs.History, error) {
	var (
		idx     int64
		entries []*page.NavigationEntry
	)
	err := v.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		idx, entries, err = page.GetNavigationHistory().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	v.storeHistory(idx, entries)
	return historyFrom(idx, entries), nil
}

// RestoreHistory reopens the current entry of h. The protocol cannot replay
// a back stack into a fresh page, so older entries are lost. The navigation
// waits behind queued commands such as a user agent override.
func (v *View) RestoreHistory(ctx context.Context, h *tabs.History) error {
	cur, ok := h.Current()
	if !ok || cur.URL == "" {
		return fmt.Errorf("history has no current entry")
	}
	return v.enqueueWait(ctx, "restore-history", navTimeout, func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(cur.URL).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("navigate %s: %s", cur.URL, errorText)
		}
		return nil
	})
}

// Capture screenshots the top of the viewport scaled to width x height.
func (v *View) Capture(ctx context.Context, width, height int) (image.Image, error) {
	var data []byte
	err := v.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, vv, _, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		clip := captureClip(vv.ClientWidth, vv.ClientHeight, width, height)
		data, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(clip).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

// captureClip selects the largest top-left region of the viewport with the
// thumbnail's aspect ratio, scaled so the result is width pixels wide.
func captureClip(viewW, viewH float64, width, height int) *page.Viewport {
	if viewW <= 0 || viewH <= 0 || width <= 0 || height <= 0 {
		return &page.Viewport{Width: float64(width), Height: float64(height), Scale: 1}
	}
	clipW := viewW
	clipH := viewW * float64(height) / float64(width)
	if clipH > viewH {
		clipH = viewH
		clipW = viewH * float64(width) / float64(height)
	}
	return &page.Viewport{Width: clipW, Height: clipH, Scale: float64(width) / clipW}
}

// FreeMemory purges the page's JavaScript heap and the HTTP cache.
func (v *View) FreeMemory(ctx context.Context) error {
	return v.run(ctx,
		memory.ForciblyPurgeJavaScriptMemory(),
		network.ClearBrowserCache(),
	)
}

func (v *View) SetDesktopMode(desktop bool) error {
	v.mu.Lock()
	if v.desktop == desktop {
		v.mu.Unlock()
		return nil
	}
	v.desktop = desktop
	v.mu.Unlock()

	ua := v.engine.defaultUA
	if desktop && v.engine.opts.DesktopUserAgent != "" {
		ua = v.engine.opts.DesktopUserAgent
	}
	if ua == "" {
		return nil
	}
	return v.enqueue("user-agent", commandTimeout, func(ctx context.Context) error {
		return emulation.SetUserAgentOverride(ua).Do(ctx)
	})
}

func (v *View) DesktopMode() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.desktop
}

func (v *View) Incognito() bool { return v.incognito }

var _ tabs.ContentView = (*View)(nil)

// Destroy closes the page. It is safe to call more than once.
func (v *View) Destroy() error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return nil
	}
	v.destroyed = true
	v.mu.Unlock()

	v.engine.forget(v)
	// Cancel waits until the browser has closed the target.
	err := chromedp.Cancel(v.ctx)
	v.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close page: %w", err)
	}
	return nil
}

func (v *View) storeHistory(idx int64, entries []*page.NavigationEntry) {
	v.mu.Lock()
	v.history = entries
	v.histIndex = int(idx)
	v.mu.Unlock()
}

func (v *View) refreshHistory() {
	ctx, cancel := context.WithTimeout(v.ctx, commandTimeout)
	defer cancel()
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		idx, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		v.storeHistory(idx, entries)
		return nil
	}))
	if err != nil && v.ctx.Err() == nil {
		slog.Debug("History refresh failed", "error", err)
	}
}

func historyFrom(idx int64, entries []*page.NavigationEntry) *tabs.History {
	if len(entries) == 0 {
		return nil
	}
	h := &tabs.History{CurrentIndex: int(idx)}
	for _, e := range entries {
		h.Entries = append(h.Entries, tabs.HistoryEntry{URL: e.URL, Title: e.Title})
	}
	return h
}
