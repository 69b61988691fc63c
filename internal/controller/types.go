package controller

import (
	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

// TabInfo is a snapshot of one tab taken on the loop.
type TabInfo struct {
	ID           int64      `json:"id"`
	Position     int        `json:"position"`
	URL          string     `json:"url"`
	OriginalURL  string     `json:"original_url,omitempty"`
	Title        string     `json:"title"`
	Security     string     `json:"security"`
	Incognito    bool       `json:"incognito"`
	Current      bool       `json:"current"`
	Live         bool       `json:"live"`
	Loading      bool       `json:"loading"`
	Progress     int        `json:"progress"`
	Bookmarked   bool       `json:"bookmarked"`
	DesktopMode  bool       `json:"desktop_mode"`
	CanGoBack    bool       `json:"can_go_back"`
	CanGoForward bool       `json:"can_go_forward"`
	ParentID     int64      `json:"parent_id,omitempty"`
	Children     []int64    `json:"children,omitempty"`
	AppID        string     `json:"app_id,omitempty"`
	CloseOnBack  bool       `json:"close_on_back,omitempty"`
	Error        *ErrorInfo `json:"error,omitempty"`
	QueuedErrors int        `json:"queued_errors,omitempty"`
}

// ErrorInfo describes the load failure shown for a tab.
type ErrorInfo struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// OpenRequest describes a tab to open.
type OpenRequest struct {
	URL         string
	Headers     map[string]string
	Incognito   bool
	SetActive   bool
	UseCurrent  bool
	ParentID    int64
	AppID       string
	CloseOnBack bool

	// ReuseExisting switches to a tab already showing URL instead of
	// opening another one.
	ReuseExisting bool
	// ReplaceLeastUsed closes the least recently used background tab when
	// the tab limit is reached.
	ReplaceLeastUsed bool
}

// SessionInfo reports the result of a session save.
type SessionInfo struct {
	Path  string `json:"path,omitempty"`
	Tabs  int    `json:"tabs"`
	Saved bool   `json:"saved"`
}

func (s *Service) tabInfo(t *tabs.Tab) TabInfo {
	info := TabInfo{
		ID:           int64(t.ID()),
		Position:     s.tabs.TabPosition(t),
		URL:          t.URL(),
		OriginalURL:  t.OriginalURL(),
		Title:        t.Title(),
		Security:     t.Security().String(),
		Incognito:    t.Incognito(),
		Current:      s.tabs.CurrentTab() == t,
		Live:         t.View() != nil,
		Loading:      t.InPageLoad(),
		Progress:     t.LoadProgress(),
		Bookmarked:   t.Bookmarked(),
		DesktopMode:  t.DesktopMode(),
		CanGoBack:    t.CanGoBack(),
		CanGoForward: t.CanGoForward(),
		AppID:        t.AppID(),
		CloseOnBack:  t.CloseOnBack(),
	}
	if p := t.ParentID(); p.Valid() {
		info.ParentID = int64(p)
	}
	for _, c := range t.ChildIDs() {
		info.Children = append(info.Children, int64(c))
	}
	if errs := t.PendingErrors(); len(errs) > 0 {
		info.Error = &ErrorInfo{
			Code:        errs[0].Code.String(),
			Title:       errs[0].Title,
			Description: errs[0].Description,
		}
		info.QueuedErrors = len(errs)
	}
	return info
}
