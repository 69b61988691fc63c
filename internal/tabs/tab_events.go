package tabs

import (
	"log/slog"
	"time"
)

// HandleEvent applies one engine callback. Events from a view the tab no
// longer shows are dropped.
func (t *Tab) HandleEvent(ev Event) {
	if ev.View == nil || ev.View != t.view {
		slog.Debug("Dropping stale event", "tab_id", t.id, "kind", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case EventPageStarted:
		t.onPageStarted(ev)
	case EventPageFinished:
		t.onPageFinished(ev)
	case EventProgressChanged:
		t.onProgressChanged(ev.Progress)
	case EventReceivedTitle:
		t.state.Title = ev.Title
		t.delegate.OnReceivedTitle(t)
	case EventReceivedIcon:
		t.state.Favicon = ev.Icon
		t.delegate.OnFavicon(t)
	case EventLoadResource:
		t.onLoadResource(ev.URL)
	case EventReceivedError:
		t.onReceivedError(ev)
	case EventProceededAfterSSLError:
		t.onProceededAfterSSLError(ev)
	case EventRequestFocus:
		if !t.inForeground {
			t.delegate.SwitchToTab(t)
		}
	case EventCloseWindow:
		// only pages opened by another tab may close themselves
		p := t.Parent()
		if p == nil {
			return
		}
		if t.inForeground {
			t.delegate.SwitchToTab(p)
		}
		t.delegate.CloseTab(t)
	}
}

func (t *Tab) onPageStarted(ev Event) {
	t.inPageLoad = true
	t.progress = initialProgress
	t.loadStart = t.now()
	t.state = newPageStateFor(t.Incognito(), ev.URL, ev.Icon)
	t.delegate.OnPageStarted(t)
	t.UpdateBookmarkedStatus()
}

func (t *Tab) onPageFinished(ev Event) {
	t.syncCurrentState(ev)
	var elapsed time.Duration
	if !t.loadStart.IsZero() {
		elapsed = t.now().Sub(t.loadStart)
	}
	t.delegate.OnPageFinished(t, elapsed)
}

// syncCurrentState catches up with the view after a stop or timeout.
func (t *Tab) syncCurrentState(ev Event) {
	t.state.URL = ev.URL
	if ev.Title != "" {
		t.state.Title = ev.Title
	}
	if t.state.OriginalURL == "" {
		t.state.OriginalURL = ev.URL
	}
	if !isHTTPS(t.state.URL) {
		t.state.Security = SecurityNotSecure
		t.state.SSLError = nil
	}
	if t.view != nil {
		t.state.Incognito = t.view.Incognito()
	}
}

func (t *Tab) onProgressChanged(progress int) {
	t.progress = progress
	if progress >= 100 {
		t.inPageLoad = false
	}
	t.delegate.OnProgressChanged(t)
}

func (t *Tab) onLoadResource(url string) {
	if url == "" || t.state.Security != SecuritySecure {
		return
	}
	if !isSecureResource(url) {
		t.state.Security = SecurityMixed
	}
}

func (t *Tab) onReceivedError(ev Event) {
	if ev.ErrorCode.rendersInline() {
		return
	}
	t.queueError(ev.ErrorCode, ev.Description)
	if !t.Incognito() {
		slog.Warn("Page load error",
			"tab_id", t.id,
			"code", ev.ErrorCode.String(),
			"url", ev.URL,
			"description", ev.Description,
		)
	}
}

func (t *Tab) onProceededAfterSSLError(ev Event) {
	if ev.URL == t.state.URL {
		t.setSecurityState(SecurityBadCertificate)
		t.state.SSLError = &SSLError{URL: ev.URL, Reason: ev.Description}
		return
	}
	if t.state.Security == SecuritySecure {
		t.setSecurityState(SecurityMixed)
	}
}

func (t *Tab) setSecurityState(s SecurityState) {
	t.state.Security = s
	t.state.SSLError = nil
	t.delegate.OnUpdatedSecurityState(t)
}
