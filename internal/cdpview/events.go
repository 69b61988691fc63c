package cdpview

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

const domContentProgress = 60

// onEvent translates protocol events of this page into tab events. It runs on
// the chromedp reader goroutine, so anything that needs a round trip is done
// on a new goroutine.
func (v *View) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		if e.Type != network.ResourceTypeDocument {
			// only insecure subresources can change the security state
			if !secureScheme(e.Request.URL) {
				v.emit(tabs.Event{Kind: tabs.EventLoadResource, URL: e.Request.URL})
			}
			return
		}
		// redirects continue the load that already started
		if !v.isMainFrame(e.FrameID) || e.RedirectResponse != nil {
			return
		}
		v.setURL(e.Request.URL)
		v.emit(tabs.Event{Kind: tabs.EventPageStarted, URL: e.Request.URL})

	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		v.setMainFrame(e.Frame.ID)
		v.setURL(e.Frame.URL + e.Frame.URLFragment)
		go v.refreshHistory()

	case *page.EventNavigatedWithinDocument:
		if !v.isMainFrame(e.FrameID) {
			return
		}
		v.setURL(e.URL)
		go v.refreshHistory()

	case *page.EventDomContentEventFired:
		v.emit(tabs.Event{Kind: tabs.EventProgressChanged, Progress: domContentProgress})

	case *page.EventLoadEventFired:
		go v.finishLoad()

	case *network.EventLoadingFailed:
		if e.Type != network.ResourceTypeDocument || e.Canceled {
			return
		}
		v.emit(tabs.Event{
			Kind:        tabs.EventReceivedError,
			URL:         v.currentURL(),
			ErrorCode:   ErrorCodeFor(e.ErrorText),
			Description: e.ErrorText,
		})

	case *security.EventVisibleSecurityStateChanged:
		s := e.VisibleSecurityState
		if s == nil || s.SecurityState != security.StateInsecureBroken || s.CertificateSecurityState == nil {
			return
		}
		v.emit(tabs.Event{
			Kind:        tabs.EventProceededAfterSSLError,
			URL:         v.currentURL(),
			Description: "certificate error",
		})

	case *page.EventWindowOpen:
		if e.UserGesture {
			v.emit(tabs.Event{Kind: tabs.EventRequestFocus})
		}

	case *inspector.EventTargetCrashed:
		v.emit(tabs.Event{
			Kind:        tabs.EventReceivedError,
			URL:         v.currentURL(),
			ErrorCode:   tabs.ErrorUnknown,
			Description: "page crashed",
		})

	case *inspector.EventDetached:
		v.emit(tabs.Event{Kind: tabs.EventCloseWindow})
	}
}

// finishLoad reports the final url and title of a completed load.
func (v *View) finishLoad() {
	ctx, cancel := context.WithTimeout(v.ctx, commandTimeout)
	defer cancel()
	var url, title string
	if err := chromedp.Run(ctx, chromedp.Location(&url), chromedp.Title(&title)); err != nil {
		url = v.currentURL()
	}
	v.setURL(url)
	v.emit(tabs.Event{Kind: tabs.EventPageFinished, URL: url, Title: title})
	if title != "" {
		v.emit(tabs.Event{Kind: tabs.EventReceivedTitle, Title: title})
	}
	v.emit(tabs.Event{Kind: tabs.EventProgressChanged, Progress: 100})
}

func secureScheme(url string) bool {
	for _, p := range []string{"https:", "wss:", "data:", "blob:", "about:"} {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

func (v *View) emit(ev tabs.Event) {
	ev.View = v
	v.engine.emit(ev)
}

func (v *View) isMainFrame(id cdp.FrameID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mainFrame == "" || id == v.mainFrame
}

func (v *View) setURL(url string) {
	v.mu.Lock()
	v.url = url
	v.mu.Unlock()
}

func (v *View) currentURL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url
}

// ErrorCodeFor maps a Chromium net error such as "net::ERR_NAME_NOT_RESOLVED"
// to a load error code.
func ErrorCodeFor(text string) tabs.ErrorCode {
	name := strings.TrimPrefix(strings.TrimSpace(text), "net::")
	switch {
	case name == "ERR_NAME_NOT_RESOLVED", name == "ERR_NAME_RESOLUTION_FAILED",
		name == "ERR_ADDRESS_UNREACHABLE", name == "ERR_INTERNET_DISCONNECTED":
		return tabs.ErrorHostLookup
	case name == "ERR_TIMED_OUT", name == "ERR_CONNECTION_TIMED_OUT":
		return tabs.ErrorTimeout
	case strings.HasPrefix(name, "ERR_CONNECTION_"), name == "ERR_EMPTY_RESPONSE":
		return tabs.ErrorConnect
	case name == "ERR_TOO_MANY_REDIRECTS":
		return tabs.ErrorRedirectLoop
	case name == "ERR_UNKNOWN_URL_SCHEME", name == "ERR_DISALLOWED_URL_SCHEME":
		return tabs.ErrorUnsupportedScheme
	case strings.HasPrefix(name, "ERR_CERT_"), strings.HasPrefix(name, "ERR_SSL_"):
		return tabs.ErrorFailedSSLHandshake
	case name == "ERR_INVALID_URL":
		return tabs.ErrorBadURL
	case name == "ERR_FILE_NOT_FOUND":
		return tabs.ErrorFileNotFound
	case name == "ERR_ACCESS_DENIED", name == "ERR_FILE_TOO_BIG":
		return tabs.ErrorFile
	case name == "ERR_INVALID_AUTH_CREDENTIALS", name == "ERR_MISSING_AUTH_CREDENTIALS":
		return tabs.ErrorAuthentication
	case name == "ERR_UNSUPPORTED_AUTH_SCHEME":
		return tabs.ErrorUnsupportedAuthScheme
	case strings.HasPrefix(name, "ERR_PROXY_AUTH"):
		return tabs.ErrorProxyAuthentication
	case name == "ERR_INSUFFICIENT_RESOURCES":
		return tabs.ErrorTooManyRequests
	case strings.HasPrefix(name, "ERR_"):
		return tabs.ErrorIO
	default:
		return tabs.ErrorUnknown
	}
}
