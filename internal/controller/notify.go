package controller

import (
	"time"

	"github.com/dgnsrekt/tabkeeper/internal/relay"
	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

// Publisher receives activity notices. Publish must not block.
type Publisher interface {
	Publish(feed string, v any)
}

// Notice is one activity message on the event feed. Incognito tabs never
// carry a url or title.
type Notice struct {
	Kind      string    `json:"kind"`
	TabID     int64     `json:"tab_id,omitempty"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	Incognito bool      `json:"incognito,omitempty"`
	Security  string    `json:"security,omitempty"`
	Code      string    `json:"code,omitempty"`
	Count     int       `json:"count,omitempty"`
	At        time.Time `json:"at"`
}

func (s *Service) publish(feed string, n Notice) {
	if s.deps.Feed == nil {
		return
	}
	n.At = s.now().UTC()
	s.deps.Feed.Publish(feed, n)
}

func (s *Service) publishTab(feed, kind string, t *tabs.Tab) {
	n := Notice{Kind: kind, TabID: int64(t.ID()), Incognito: t.Incognito()}
	if !t.Incognito() {
		n.URL = t.URL()
		n.Title = t.Title()
	}
	s.publish(feed, n)
}

var _ Publisher = (*relay.Broker)(nil)
