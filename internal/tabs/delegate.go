package tabs

import "time"

// Delegate receives the notifications a tab raises while it changes state.
// All calls happen on the goroutine that owns the tab.
type Delegate interface {
	OnSetView(t *Tab, v ContentView)
	OnPageStarted(t *Tab)
	OnPageFinished(t *Tab, loadTime time.Duration)
	OnProgressChanged(t *Tab)
	OnReceivedTitle(t *Tab)
	OnFavicon(t *Tab)
	OnUpdatedSecurityState(t *Tab)

	// ShowError displays the head of a tab's error queue.
	ShowError(t *Tab, e LoadError)

	// QueryBookmarkStatus looks url up and eventually calls
	// t.SetBookmarked(url, ok) on the owning goroutine.
	QueryBookmarkStatus(t *Tab, url string)
	BookmarkedStatusChanged(t *Tab)

	// RequestCapture asks for an asynchronous thumbnail of v.
	RequestCapture(t *Tab, v ContentView)
	DeleteThumbnail(t *Tab)

	SwitchToTab(t *Tab)
	CloseTab(t *Tab)
}

// NopDelegate ignores every notification. Embed it to override a subset.
type NopDelegate struct{}

func (NopDelegate) OnSetView(*Tab, ContentView)        {}
func (NopDelegate) OnPageStarted(*Tab)                 {}
func (NopDelegate) OnPageFinished(*Tab, time.Duration) {}
func (NopDelegate) OnProgressChanged(*Tab)             {}
func (NopDelegate) OnReceivedTitle(*Tab)               {}
func (NopDelegate) OnFavicon(*Tab)                     {}
func (NopDelegate) OnUpdatedSecurityState(*Tab)        {}
func (NopDelegate) ShowError(*Tab, LoadError)          {}
func (NopDelegate) QueryBookmarkStatus(*Tab, string)   {}
func (NopDelegate) BookmarkedStatusChanged(*Tab)       {}
func (NopDelegate) RequestCapture(*Tab, ContentView)   {}
func (NopDelegate) DeleteThumbnail(*Tab)               {}
func (NopDelegate) SwitchToTab(*Tab)                   {}
func (NopDelegate) CloseTab(*Tab)                      {}
