package controller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tabkeeper/internal/relay"
	"github.com/dgnsrekt/tabkeeper/internal/tabs"
)

// start rebuilds the previous session, or opens the home page when there is
// nothing to restore.
func (s *Service) start(ctx context.Context) {
	if n := s.restoreSession(ctx); n > 0 {
		return
	}
	_, err := s.openTab(ctx, OpenRequest{SetActive: true})
	if err != nil {
		slog.Error("failed to open home page tab", "error", err)
	}
}

func (s *Service) restoreSession(ctx context.Context) int {
	if s.deps.Sessions == nil {
		return 0
	}
	state, err := s.deps.Sessions.Load()
	if err != nil {
		slog.Warn("ignoring unreadable session", "error", err)
		return 0
	}
	if state == nil {
		return 0
	}

	restoreIncognito := s.shouldRestoreIncognito(state.LastActive)
	currentID := s.tabs.CanRestoreState(state, restoreIncognito)
	if !currentID.Valid() {
		slog.Info("saved session has nothing to restore", "restore_incognito", restoreIncognito)
		return 0
	}
	n := s.tabs.RestoreState(ctx, state, currentID, restoreIncognito, s.opts.RestoreAllTabs)
	if n == 0 {
		return 0
	}

	if s.deps.Thumbnails != nil && s.opts.CaptureThumbnails {
		for _, t := range s.tabs.Tabs() {
			if t.Incognito() {
				continue
			}
			if err := s.deps.Thumbnails.Restore(t.ID(), t); err != nil {
				slog.Debug("thumbnail restore not queued", "tab_id", t.ID(), "error", err)
			}
		}
	}
	s.deps.Metrics.SessionsRestored.Inc()
	s.deps.Metrics.TabsRestored.Add(float64(n))
	s.publish(relay.FeedSession, Notice{Kind: "session_restored", Count: n})
	slog.Info("session restored", "tabs", n, "current_id", currentID, "restore_incognito", restoreIncognito)
	return n
}

// shouldRestoreIncognito reports whether incognito tabs from a session last
// active at last may come back. A timestamp in the future never qualifies.
func (s *Service) shouldRestoreIncognito(last time.Time) bool {
	if last.IsZero() {
		return false
	}
	now := s.now()
	if last.After(now) {
		return false
	}
	return now.Sub(last) < s.opts.IncognitoRetention
}

// SaveSession writes the session record now.
func (s *Service) SaveSession(ctx context.Context) (SessionInfo, error) {
	return call(ctx, s, s.saveSession)
}

func (s *Service) saveSession(ctx context.Context) (SessionInfo, error) {
	if s.deps.Sessions == nil {
		return SessionInfo{}, nil
	}
	state, err := s.tabs.SaveState(ctx)
	if err != nil {
		if errors.Is(err, tabs.ErrDuplicateTabID) {
			return SessionInfo{}, newError(CodeStateFailure, "tab table is inconsistent", err)
		}
		return SessionInfo{}, newError(CodeStateFailure, "could not snapshot tabs", err)
	}
	if state == nil {
		if err := s.deps.Sessions.Clear(); err != nil {
			return SessionInfo{}, newError(CodeStateFailure, "could not clear session", err)
		}
		return SessionInfo{}, nil
	}

	state.LastActive = s.now().UTC()
	if err := s.deps.Sessions.Save(state); err != nil {
		return SessionInfo{}, newError(CodeStateFailure, "could not write session", err)
	}
	s.deps.Metrics.SessionsSaved.Inc()
	s.publish(relay.FeedSession, Notice{Kind: "session_saved", Count: len(state.Tabs)})

	info := SessionInfo{Tabs: len(state.Tabs), Saved: true}
	if p, ok := s.deps.Sessions.(interface{ Path() string }); ok {
		info.Path = p.Path()
	}
	slog.Debug("session saved", "tabs", info.Tabs)
	return info, nil
}
