package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// SaveState captures every tab in list order. Tabs with nothing to save are
// recorded as NoID and their thumbnails dropped. It returns nil when there
// is nothing to persist.
func (tc *TabControl) SaveState(ctx context.Context) (*SessionState, error) {
	if len(tc.tabs) == 0 {
		return nil, nil
	}
	s := &SessionState{
		Positions: make([]ID, len(tc.tabs)),
		Current:   NoID,
		Tabs:      make(map[ID]*TabState, len(tc.tabs)),
	}
	for i, t := range tc.tabs {
		st := t.SaveState(ctx)
		if st == nil {
			s.Positions[i] = NoID
			tc.tabOpts.Delegate.DeleteThumbnail(t)
			continue
		}
		id := t.ID()
		if _, dup := s.Tabs[id]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTabID, id)
		}
		s.Positions[i] = id
		s.Tabs[id] = st
	}
	if len(s.Tabs) == 0 {
		return nil, nil
	}
	if cur := tc.CurrentTab(); cur != nil {
		s.Current = cur.ID()
	}
	return s, nil
}

// CanRestoreState picks the tab that should become current when s is
// restored, or NoID when nothing can be restored. The previously current tab
// wins unless it is incognito and incognito tabs are not being restored.
func (tc *TabControl) CanRestoreState(s *SessionState, restoreIncognito bool) ID {
	if s == nil || s.Positions == nil {
		return NoID
	}
	old := s.Current
	if old.Valid() {
		if restoreIncognito {
			return old
		}
		if rec := s.Tab(old); rec != nil && !rec.Incognito {
			return old
		}
	}
	for _, id := range s.Positions {
		rec := s.Tab(id)
		if rec == nil {
			continue
		}
		if restoreIncognito || !rec.Incognito {
			return id
		}
	}
	return NoID
}

// RestoreState rebuilds the tabs recorded in s. The tab with currentID, or
// every tab when restoreAll is set, gets a live view; the others come back
// as placeholders at the front of the MRU queue and materialize when first
// made current. It returns the number of tabs restored.
func (tc *TabControl) RestoreState(ctx context.Context, s *SessionState, currentID ID, restoreIncognito, restoreAll bool) int {
	if s == nil || !currentID.Valid() {
		return 0
	}
	maxID := NoID
	restored := make(map[ID]*Tab, len(s.Positions))
	for _, id := range s.Positions {
		if id > maxID {
			maxID = id
		}
		rec := s.Tab(id)
		if rec == nil {
			continue
		}
		if !restoreIncognito && rec.Incognito {
			continue
		}
		st := *rec
		st.ID = id

		if id == currentID || restoreAll {
			t, err := tc.CreateNewTab(ctx, &st, st.Incognito)
			if err != nil {
				slog.Warn("Restore tab failed", "tab_id", id, "error", err)
				continue
			}
			restored[id] = t
			if id == currentID {
				tc.SetCurrentTab(ctx, t)
			}
			continue
		}

		t := NewTab(ctx, nil, &st, tc.tabOpts)
		restored[id] = t
		tc.tabs = append(tc.tabs, t)
		tc.queue = slices.Insert(tc.queue, 0, t)
	}

	tc.ids.AdvancePast(maxID)

	if tc.CurrentTab() == nil && len(tc.tabs) > 0 {
		tc.SetCurrentTab(ctx, tc.tabs[0])
	}

	for _, id := range s.Positions {
		t := restored[id]
		rec := s.Tab(id)
		if t == nil || rec == nil {
			continue
		}
		p := restored[rec.ParentID]
		if p == nil {
			continue
		}
		if err := p.AddChildTab(t); err != nil {
			slog.Warn("Restore parent link failed", "tab_id", id, "parent_id", rec.ParentID, "error", err)
		}
	}
	return len(restored)
}
