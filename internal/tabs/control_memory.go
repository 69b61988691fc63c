package tabs

import (
	"context"
	"log/slog"
)

// FreeMemory reacts to memory pressure. It evicts about half of the least
// recently used tabs that still hold a view, never the current tab or its
// parent, and falls back to trimming the current view's caches when there
// is nothing to evict. It returns the number of tabs evicted.
func (tc *TabControl) FreeMemory(ctx context.Context) int {
	if len(tc.tabs) == 0 {
		return 0
	}
	victims := tc.halfLeastUsedTabs(tc.CurrentTab())
	if len(victims) > 0 {
		for _, t := range victims {
			slog.Info("Evicting tab view", "tab_id", t.ID(), "url", t.URL())
			t.evict(ctx)
		}
		return len(victims)
	}
	if v := tc.CurrentView(); v != nil {
		if err := v.FreeMemory(ctx); err != nil {
			slog.Warn("Free view memory failed", "error", err)
		}
	}
	return 0
}

func (tc *TabControl) halfLeastUsedTabs(current *Tab) []*Tab {
	if len(tc.tabs) == 1 || current == nil || len(tc.queue) == 0 {
		return nil
	}
	parent := current.Parent()
	open := 0
	var out []*Tab
	for _, t := range tc.queue {
		if t.View() == nil {
			continue
		}
		open++
		// a blank tab has no record to come back from
		if t.URL() == "" {
			continue
		}
		if t != current && t != parent {
			out = append(out, t)
		}
	}
	open /= 2
	if len(out) > open {
		out = out[:open]
	}
	return out
}

// LeastUsedTab returns the least recently used tab with a live view that is
// neither current nor current's parent.
func (tc *TabControl) LeastUsedTab(current *Tab) *Tab {
	if len(tc.tabs) == 1 || current == nil || len(tc.queue) == 0 {
		return nil
	}
	parent := current.Parent()
	for _, t := range tc.queue {
		if t.View() != nil && t != current && t != parent {
			return t
		}
	}
	return nil
}
