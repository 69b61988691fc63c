package tabs

import (
	"context"
	"image"
)

// ContentView is the engine-side page a tab drives. Loading is asynchronous:
// LoadURL returns once the request is issued and progress is reported back as
// Events carrying the view.
type ContentView interface {
	LoadURL(url string, headers map[string]string) error
	StopLoading() error
	GoBack() error
	GoForward() error
	CanGoBack() bool
	CanGoForward() bool

	// Resume and Pause start and stop page timers and script execution.
	Resume() error
	Pause() error

	SaveHistory(ctx context.Context) (*History, error)
	RestoreHistory(ctx context.Context, h *History) error
	Capture(ctx context.Context, width, height int) (image.Image, error)
	FreeMemory(ctx context.Context) error
	SetDesktopMode(desktop bool) error
	DesktopMode() bool

	Incognito() bool
	Destroy() error
}

// ViewFactory creates content views.
type ViewFactory interface {
	NewView(incognito bool) (ContentView, error)
}

// History is the navigation history a content view can serialize.
type History struct {
	CurrentIndex int            `json:"currentIndex"`
	Entries      []HistoryEntry `json:"entries"`
}

type HistoryEntry struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Current returns the entry the view was showing, if any.
func (h *History) Current() (HistoryEntry, bool) {
	if h == nil || h.CurrentIndex < 0 || h.CurrentIndex >= len(h.Entries) {
		return HistoryEntry{}, false
	}
	return h.Entries[h.CurrentIndex], true
}
