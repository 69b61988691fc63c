package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/tabkeeper/internal/cdpprobe"
	"github.com/dgnsrekt/tabkeeper/internal/controller"
	"github.com/dgnsrekt/tabkeeper/internal/metrics"
	"github.com/dgnsrekt/tabkeeper/internal/relay"
)

type Service interface {
	ListTabs(ctx context.Context) ([]controller.TabInfo, error)
	GetTab(ctx context.Context, id int64) (controller.TabInfo, error)
	CurrentTab(ctx context.Context) (controller.TabInfo, error)
	OpenTab(ctx context.Context, req controller.OpenRequest) (controller.TabInfo, error)
	SwitchTo(ctx context.Context, id int64) (controller.TabInfo, error)
	CloseTab(ctx context.Context, id int64) error
	CloseCurrentTab(ctx context.Context) error
	CloseOtherTabs(ctx context.Context) (int, error)
	LoadURL(ctx context.Context, id int64, url string, headers map[string]string) (controller.TabInfo, error)
	StopLoading(ctx context.Context, id int64) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	DismissError(ctx context.Context, id int64) (controller.TabInfo, error)
	RecreateView(ctx context.Context, id int64) (controller.TabInfo, error)
	SetDesktopMode(ctx context.Context, id int64, desktop bool) (controller.TabInfo, error)
	SetBookmark(ctx context.Context, id int64, bookmarked bool) (controller.TabInfo, error)
	Thumbnail(ctx context.Context, id int64) ([]byte, error)
	FreeMemory(ctx context.Context) (int, error)
	SaveSession(ctx context.Context) (controller.SessionInfo, error)
}

// BrowserProbe checks the browser out of band for the deep health check.
type BrowserProbe interface {
	Check(ctx context.Context) (cdpprobe.Result, error)
}

// Options carries the optional collaborators of the HTTP surface.
type Options struct {
	Metrics *metrics.Metrics
	Probe   BrowserProbe
	Feed    *relay.Broker
}

type tabIDInput struct {
	TabID int64 `path:"tab_id" minimum:"1" doc:"Tab id"`
}

type tabOutput struct {
	Body controller.TabInfo
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func okStatus() *statusOutput {
	out := &statusOutput{}
	out.Body.Status = "ok"
	return out
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	if opts.Metrics != nil {
		router.Use(requestMetrics(opts.Metrics))
	}
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Tabkeeper API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}
	if opts.Feed != nil {
		router.Get("/api/v1/events", relay.SSEHandler(opts.Feed))
	}

	registerTabHandlers(api, svc)
	registerNavigationHandlers(api, svc)
	registerMiscHandlers(api, svc, opts.Probe)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, controller.ErrStopped) {
		return huma.Error503ServiceUnavailable("tab service is not running")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout("operation timed out")
	}
	var coded *controller.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case controller.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case controller.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case controller.CodeTabLimit:
			return huma.Error409Conflict(coded.Message)
		case controller.CodeViewUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
