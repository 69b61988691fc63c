package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tabkeeper/internal/cdpprobe"
	"github.com/dgnsrekt/tabkeeper/internal/controller"
)

func registerMiscHandlers(api huma.API, svc Service, probe BrowserProbe) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			return okStatus(), nil
		})

	type deepHealthOutput struct {
		Body struct {
			Status       string           `json:"status"`
			Tabs         int              `json:"tabs"`
			LiveViews    int              `json:"live_views"`
			Browser      *cdpprobe.Result `json:"browser,omitempty"`
			BrowserError string           `json:"browser_error,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "deep-health", Method: http.MethodGet, Path: "/api/v1/health/deep", Summary: "Deep health check", Description: "Round-trips the tab loop and, when configured, probes the browser over its own DevTools connection.", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*deepHealthOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &deepHealthOutput{}
			out.Body.Status = "ok"
			out.Body.Tabs = len(tabs)
			for _, t := range tabs {
				if t.Live {
					out.Body.LiveViews++
				}
			}
			if probe != nil {
				res, err := probe.Check(ctx)
				if err != nil {
					out.Body.Status = "degraded"
					out.Body.BrowserError = err.Error()
				} else {
					out.Body.Browser = &res
				}
			}
			return out, nil
		})

	type sessionOutput struct {
		Body controller.SessionInfo
	}
	huma.Register(api, huma.Operation{OperationID: "save-session", Method: http.MethodPost, Path: "/api/v1/session/save", Summary: "Save the session now", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*sessionOutput, error) {
			info, err := svc.SaveSession(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: info}, nil
		})

	type freeMemoryOutput struct {
		Body struct {
			Evicted int `json:"evicted"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "free-memory", Method: http.MethodPost, Path: "/api/v1/memory/free", Summary: "Release browser pages of background tabs", Description: "Evicts the views of the least recently used tabs. Their pages are recreated when they are shown again.", Tags: []string{"Memory"}},
		func(ctx context.Context, input *struct{}) (*freeMemoryOutput, error) {
			n, err := svc.FreeMemory(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &freeMemoryOutput{}
			out.Body.Evicted = n
			return out, nil
		})
}
