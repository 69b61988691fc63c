package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tabkeeper/internal/controller"
)

func registerTabHandlers(api huma.API, svc Service) {
	type tabListOutput struct {
		Body struct {
			Tabs []controller.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List tabs in display order", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabListOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabListOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "open-tab", Method: http.MethodPost, Path: "/api/v1/tabs", Summary: "Open a tab", Description: "Opens a tab and starts loading url, or the home page when url is empty. A tab with a parent inherits the parent's incognito mode.", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			Body struct {
				URL         string            `json:"url,omitempty" doc:"Absolute url to load" example:"https://example.com/"`
				Headers     map[string]string `json:"headers,omitempty" doc:"Extra request headers for the first load"`
				Incognito   bool              `json:"incognito,omitempty"`
				SetActive   *bool             `json:"set_active,omitempty" doc:"Make the new tab current (default true)"`
				UseCurrent  bool              `json:"use_current,omitempty" doc:"Reuse the current tab when the tab limit is reached"`
				ParentID    int64             `json:"parent_id,omitempty" doc:"Tab that opened this one"`
				AppID       string            `json:"app_id,omitempty" doc:"Id of the application that requested the tab"`
				CloseOnBack bool              `json:"close_on_back,omitempty" doc:"Close the tab when back is pressed with no history"`
				Reuse       bool              `json:"reuse_existing,omitempty" doc:"Switch to a tab already showing url instead of opening one"`
				Replace     bool              `json:"replace_least_used,omitempty" doc:"At the tab limit, close the least recently used background tab"`
			}
		}) (*tabOutput, error) {
			setActive := true
			if input.Body.SetActive != nil {
				setActive = *input.Body.SetActive
			}
			info, err := svc.OpenTab(ctx, controller.OpenRequest{
				URL:         input.Body.URL,
				Headers:     input.Body.Headers,
				Incognito:   input.Body.Incognito,
				SetActive:   setActive,
				UseCurrent:  input.Body.UseCurrent,
				ParentID:    input.Body.ParentID,
				AppID:       input.Body.AppID,
				CloseOnBack: input.Body.CloseOnBack,

				ReuseExisting:    input.Body.Reuse,
				ReplaceLeastUsed: input.Body.Replace,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-current-tab", Method: http.MethodGet, Path: "/api/v1/tabs/current", Summary: "Get the current tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabOutput, error) {
			info, err := svc.CurrentTab(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "close-current-tab", Method: http.MethodPost, Path: "/api/v1/tabs/current/close", Summary: "Close the current tab", Description: "Focus moves to the parent tab, then the next tab, then the previous one. Closing the last tab also clears the saved session.", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			if err := svc.CloseCurrentTab(ctx); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	type closeOthersOutput struct {
		Body struct {
			Closed int `json:"closed"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "close-other-tabs", Method: http.MethodPost, Path: "/api/v1/tabs/close-others", Summary: "Close every tab except the current one", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*closeOthersOutput, error) {
			n, err := svc.CloseOtherTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &closeOthersOutput{}
			out.Body.Closed = n
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "stop-all-tabs", Method: http.MethodPost, Path: "/api/v1/tabs/stop", Summary: "Stop loading in every tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			if err := svc.StopLoading(ctx, 0); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-tab", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}", Summary: "Get a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			info, err := svc.GetTab(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "close-tab", Method: http.MethodDelete, Path: "/api/v1/tabs/{tab_id}", Summary: "Close a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
			if err := svc.CloseTab(ctx, input.TabID); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "activate-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/activate", Summary: "Make a tab current", Description: "Pauses the previous tab and resumes this one, recreating its browser page if it was evicted.", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			info, err := svc.SwitchTo(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "stop-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/stop", Summary: "Stop loading a tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*statusOutput, error) {
			if err := svc.StopLoading(ctx, input.TabID); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "dismiss-tab-error", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/errors/dismiss", Summary: "Dismiss the shown load error", Description: "Drops the error shown for the tab and shows the next queued one, if any.", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			info, err := svc.DismissError(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "recreate-tab-view", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/recreate", Summary: "Replace the tab's browser page", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabOutput, error) {
			info, err := svc.RecreateView(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-tab-desktop-mode", Method: http.MethodPut, Path: "/api/v1/tabs/{tab_id}/desktop-mode", Summary: "Request the desktop or the mobile site", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			TabID int64 `path:"tab_id" minimum:"1"`
			Body  struct {
				Enabled bool `json:"enabled"`
			}
		}) (*tabOutput, error) {
			info, err := svc.SetDesktopMode(ctx, input.TabID, input.Body.Enabled)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-tab-bookmark", Method: http.MethodPut, Path: "/api/v1/tabs/{tab_id}/bookmark", Summary: "Bookmark or unbookmark the tab's url", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			TabID int64 `path:"tab_id" minimum:"1"`
			Body  struct {
				Bookmarked bool `json:"bookmarked"`
			}
		}) (*tabOutput, error) {
			info, err := svc.SetBookmark(ctx, input.TabID, input.Body.Bookmarked)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	type thumbnailOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-tab-thumbnail",
		Method:      http.MethodGet,
		Path:        "/api/v1/tabs/{tab_id}/thumbnail",
		Summary:     "Get the tab's thumbnail",
		Tags:        []string{"Tabs"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Thumbnail image",
				Content: map[string]*huma.MediaType{
					"image/png": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *tabIDInput) (*thumbnailOutput, error) {
		data, err := svc.Thumbnail(ctx, input.TabID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &thumbnailOutput{ContentType: "image/png", Body: data}, nil
	})
}

func registerNavigationHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "navigate-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/navigate", Summary: "Load a url in a tab", Tags: []string{"Navigation"}},
		func(ctx context.Context, input *struct {
			TabID int64 `path:"tab_id" minimum:"1"`
			Body  struct {
				URL     string            `json:"url" required:"true" doc:"Absolute url to load" example:"https://example.com/"`
				Headers map[string]string `json:"headers,omitempty" doc:"Extra request headers"`
			}
		}) (*tabOutput, error) {
			info, err := svc.LoadURL(ctx, input.TabID, input.Body.URL, input.Body.Headers)
			if err != nil {
				return nil, mapErr(err)
			}
			return &tabOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "go-back", Method: http.MethodPost, Path: "/api/v1/navigation/back", Summary: "Go back in the current tab", Description: "With no history the tab returns to its parent and closes, or closes when it was opened by an app or asked to close on back.", Tags: []string{"Navigation"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			if err := svc.GoBack(ctx); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "go-forward", Method: http.MethodPost, Path: "/api/v1/navigation/forward", Summary: "Go forward in the current tab", Tags: []string{"Navigation"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			if err := svc.GoForward(ctx); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})
}
