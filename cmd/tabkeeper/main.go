package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/tabkeeper/internal/api"
	"github.com/dgnsrekt/tabkeeper/internal/bookmarks"
	"github.com/dgnsrekt/tabkeeper/internal/browser"
	"github.com/dgnsrekt/tabkeeper/internal/cdpprobe"
	"github.com/dgnsrekt/tabkeeper/internal/cdpview"
	"github.com/dgnsrekt/tabkeeper/internal/config"
	"github.com/dgnsrekt/tabkeeper/internal/controller"
	"github.com/dgnsrekt/tabkeeper/internal/journal"
	"github.com/dgnsrekt/tabkeeper/internal/metrics"
	"github.com/dgnsrekt/tabkeeper/internal/netutil"
	"github.com/dgnsrekt/tabkeeper/internal/relay"
	"github.com/dgnsrekt/tabkeeper/internal/sessionstore"
	"github.com/dgnsrekt/tabkeeper/internal/thumbnail"
)

const (
	thumbnailQueueSize = 64
	thumbnailTimeout   = 10 * time.Second
	journalBufferSize  = 256
	journalMaxSizeMB   = 25
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("tabkeeper config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"embedded_browser", cfg.EmbeddedBrowser,
		"launch_browser", cfg.LaunchBrowser,
		"max_tabs", cfg.MaxTabs,
		"restore_all_tabs", cfg.RestoreAllTabs,
		"capture_thumbnails", cfg.CaptureThumbnails,
		"state_dir", cfg.StateDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	if err := run(cfg); err != nil {
		slog.Error("tabkeeper exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineOpts := cdpview.Options{
		ExecPath:         cfg.ChromiumPath,
		ProfileDir:       cfg.ProfileDir,
		Headless:         cfg.Headless,
		DesktopUserAgent: cfg.DesktopUserAgent,
	}
	var probe api.BrowserProbe
	if !cfg.EmbeddedBrowser {
		if cfg.LaunchBrowser {
			launcher := browser.NewLauncher(browser.Config{
				CDPAddress: cfg.CDPAddress,
				CDPPort:    cfg.CDPPort,
				ExecPath:   cfg.ChromiumPath,
				ProfileDir: cfg.ProfileDir,
				Headless:   cfg.Headless,
			})
			if err := launcher.Launch(ctx); err != nil {
				return err
			}
			defer launcher.Stop()
		}
		engineOpts.RemoteURL = cfg.CDPURL()
		probe = cdpprobe.New(cfg.CDPURL())
	}

	engine, err := cdpview.NewEngine(ctx, engineOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Debug("engine close failed", "error", err)
		}
	}()

	m := metrics.New()
	feed := relay.NewBroker()
	deps := controller.Deps{Engine: engine, Metrics: m, Feed: feed}

	sessions, err := sessionstore.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}
	deps.Sessions = sessions

	if cfg.CaptureThumbnails {
		store, err := thumbnail.NewStore(cfg.ThumbnailDir)
		if err != nil {
			return err
		}
		worker := thumbnail.NewWorker(store, cfg.ThumbnailRate, thumbnailQueueSize, thumbnailTimeout)
		defer func() {
			if err := worker.Close(); err != nil {
				slog.Debug("thumbnail worker close failed", "error", err)
			}
		}()
		deps.Thumbnails = worker
	}

	if cfg.JournalDir != "" {
		loads := journal.NewPageLoads(cfg.JournalDir, journalBufferSize, journalMaxSizeMB)
		defer func() {
			if err := loads.Close(); err != nil {
				slog.Warn("page load journal close failed", "error", err)
			}
		}()
		deps.Journal = loads
	}

	if cfg.BookmarksFile != "" {
		marks, err := bookmarks.Open(cfg.BookmarksFile)
		if err != nil {
			return err
		}
		deps.Bookmarks = marks
	}

	svc := controller.NewService(controller.Options{
		MaxTabs:               cfg.MaxTabs,
		HomePage:              cfg.HomePage,
		RestoreAllTabs:        cfg.RestoreAllTabs,
		IncognitoRetention:    cfg.IncognitoRetention,
		AutosaveInterval:      cfg.AutosaveInterval,
		BackgroundLoadTimeout: cfg.BackgroundLoadTimeout,
		OpTimeout:             cfg.OpTimeout,
		CaptureThumbnails:     cfg.CaptureThumbnails,
		ThumbnailWidth:        cfg.ThumbnailWidth,
		ThumbnailHeight:       cfg.ThumbnailHeight,
	}, deps)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           api.NewServer(svc, api.Options{Metrics: m, Probe: probe, Feed: feed}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		addr := ln.Addr().String()
		slog.Info("tabkeeper listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// event streams only end when their subscription closes
		feed.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("tabkeeper stopped")
	return err
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
