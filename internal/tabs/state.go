package tabs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TabState is the persisted record of one tab.
type TabState struct {
	ID          ID       `json:"ID"`
	URL         string   `json:"currentUrl"`
	Title       string   `json:"currentTitle"`
	ParentID    ID       `json:"parentTab"`
	AppID       string   `json:"appid,omitempty"`
	Incognito   bool     `json:"privateBrowsingEnabled"`
	DesktopMode bool     `json:"useragent"`
	CloseOnBack bool     `json:"closeOnBack"`
	History     *History `json:"history,omitempty"`
}

// SessionState is the persisted record of a whole TabControl. On disk it is a
// flat object: "positions", "current", "lastActiveDate" and one entry per tab
// keyed by the tab's id.
type SessionState struct {
	Positions  []ID
	Current    ID
	Tabs       map[ID]*TabState
	LastActive time.Time
}

const (
	keyPositions  = "positions"
	keyCurrent    = "current"
	keyLastActive = "lastActiveDate"
)

// Tab returns the record stored for id, or nil.
func (s *SessionState) Tab(id ID) *TabState {
	if s == nil || s.Tabs == nil {
		return nil
	}
	return s.Tabs[id]
}

func (s *SessionState) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Tabs)+3)
	out[keyPositions] = s.Positions
	out[keyCurrent] = s.Current
	if !s.LastActive.IsZero() {
		out[keyLastActive] = s.LastActive
	}
	for id, st := range s.Tabs {
		out[id.String()] = st
	}
	return json.Marshal(out)
}

func (s *SessionState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SessionState{Current: NoID, Tabs: make(map[ID]*TabState)}
	for key, val := range raw {
		switch key {
		case keyPositions:
			if err := json.Unmarshal(val, &s.Positions); err != nil {
				return fmt.Errorf("decode %s: %w", keyPositions, err)
			}
		case keyCurrent:
			if err := json.Unmarshal(val, &s.Current); err != nil {
				return fmt.Errorf("decode %s: %w", keyCurrent, err)
			}
		case keyLastActive:
			if err := json.Unmarshal(val, &s.LastActive); err != nil {
				return fmt.Errorf("decode %s: %w", keyLastActive, err)
			}
		default:
			n, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				// unknown keys are ignored so older files stay readable
				continue
			}
			var st TabState
			if err := json.Unmarshal(val, &st); err != nil {
				return fmt.Errorf("decode tab %s: %w", key, err)
			}
			s.Tabs[ID(n)] = &st
		}
	}
	return nil
}
