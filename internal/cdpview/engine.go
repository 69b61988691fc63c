// Package cdpview backs tab content views with Chromium pages driven over the
// DevTools protocol.
package cdpview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

// Options selects and configures the browser.
type Options struct {
	// RemoteURL attaches to a running browser. When empty a browser is
	// started from ExecPath.
	RemoteURL        string
	ExecPath         string
	ProfileDir       string
	Headless         bool
	DesktopUserAgent string
	EventBuffer      int
}

// Engine creates one browser page per content view and funnels page events
// into a single channel.
type Engine struct {
	opts Options

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	defaultUA     string

	events chan tabs.Event

	mu    sync.Mutex
	views map[*View]struct{}
}

// NewEngine connects to, or launches, the browser.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 1024
	}
	e := &Engine{
		opts:   opts,
		events: make(chan tabs.Event, opts.EventBuffer),
		views:  make(map[*View]struct{}),
	}

	if opts.RemoteURL != "" {
		slog.Info("Connecting to Chromium", "url", opts.RemoteURL)
		e.allocCtx, e.allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		allocOpts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		if opts.ProfileDir != "" {
			allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
		}
		if !opts.Headless {
			allocOpts = append(allocOpts, chromedp.Flag("headless", false))
		}
		slog.Info("Starting embedded Chromium", "exec_path", opts.ExecPath, "headless", opts.Headless)
		e.allocCtx, e.allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	}

	// the first Run binds the browser to browserCtx, so it cannot take a
	// derived context
	e.browserCtx, e.browserCancel = chromedp.NewContext(e.allocCtx)
	stop := context.AfterFunc(ctx, e.browserCancel)
	err := chromedp.Run(e.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, ua, _, err := browser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		e.defaultUA = ua
		slog.Info("Connected to browser", "product", product)
		return nil
	}))
	stop()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	return e, nil
}

// Events delivers page events of every live view.
func (e *Engine) Events() <-chan tabs.Event { return e.events }

// NewView opens a browser page. Incognito pages get their own browser
// context, which is disposed with the page.
func (e *Engine) NewView(incognito bool) (tabs.ContentView, error) {
	var ctxOpts []chromedp.ContextOption
	if incognito {
		ctxOpts = append(ctxOpts, chromedp.WithNewBrowserContext())
	}
	ctx, cancel := chromedp.NewContext(e.browserCtx, ctxOpts...)
	v := newView(e, ctx, cancel, incognito)
	chromedp.ListenTarget(ctx, v.onEvent)

	err := chromedp.Run(ctx,
		security.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			v.setMainFrame(tree.Frame.ID)
			return nil
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open page: %w", err)
	}

	e.mu.Lock()
	e.views[v] = struct{}{}
	e.mu.Unlock()
	go v.loop()
	slog.Debug("Opened browser page", "incognito", incognito, "target_id", targetID(ctx))
	return v, nil
}

func (e *Engine) forget(v *View) {
	e.mu.Lock()
	delete(e.views, v)
	e.mu.Unlock()
}

// LiveViews reports how many pages are open.
func (e *Engine) LiveViews() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.views)
}

// emit never blocks; chromedp calls listeners synchronously.
func (e *Engine) emit(ev tabs.Event) {
	select {
	case e.events <- ev:
	default:
		slog.Warn("Event buffer full, dropping page event", "kind", ev.Kind.String())
	}
}

// Close closes every page and disconnects. A launched browser is shut down.
func (e *Engine) Close() error {
	e.mu.Lock()
	views := make([]*View, 0, len(e.views))
	for v := range e.views {
		views = append(views, v)
	}
	e.mu.Unlock()
	for _, v := range views {
		_ = v.Destroy()
	}
	if e.browserCancel != nil {
		e.browserCancel()
	}
	if e.allocCancel != nil {
		e.allocCancel()
	}
	slog.Info("CDP engine closed")
	return nil
}

func targetID(ctx context.Context) string {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return ""
	}
	return string(c.Target.TargetID)
}
