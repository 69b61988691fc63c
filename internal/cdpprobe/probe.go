// Package cdpprobe checks a DevTools endpoint without going through chromedp.
// It opens its own browser-level websocket, issues Browser.getVersion and
// hangs up, so a wedged chromedp session cannot mask a healthy browser or
// the other way around.
package cdpprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const defaultTimeout = 5 * time.Second

// Result is the outcome of one probe.
type Result struct {
	Browser         string `json:"browser"`
	ProtocolVersion string `json:"protocol_version"`
	UserAgent       string `json:"user_agent,omitempty"`
	PageTargets     int    `json:"page_targets"`
	LatencyMS       int64  `json:"latency_ms"`
}

// Prober talks to the DevTools HTTP endpoint at httpBase, for example
// "http://127.0.0.1:9222".
type Prober struct {
	httpBase string
	client   *http.Client
	timeout  time.Duration
}

func New(httpBase string) *Prober {
	return &Prober{
		httpBase: strings.TrimRight(httpBase, "/"),
		client:   &http.Client{Timeout: defaultTimeout},
		timeout:  defaultTimeout,
	}
}

// Check resolves the browser websocket, runs Browser.getVersion over it and
// counts open page targets.
func (p *Prober) Check(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()

	var version struct {
		Browser              string `json:"Browser"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := p.getJSON(ctx, "/json/version", &version); err != nil {
		return Result{}, err
	}
	if version.WebSocketDebuggerURL == "" {
		return Result{}, fmt.Errorf("cdpprobe: empty webSocketDebuggerUrl")
	}

	res, err := p.getVersion(ctx, version.WebSocketDebuggerURL)
	if err != nil {
		return Result{}, err
	}
	if res.Browser == "" {
		res.Browser = version.Browser
	}

	var targets []struct {
		Type string `json:"type"`
	}
	if err := p.getJSON(ctx, "/json/list", &targets); err != nil {
		return Result{}, err
	}
	for _, t := range targets {
		if t.Type == "page" {
			res.PageTargets++
		}
	}
	res.LatencyMS = time.Since(start).Milliseconds()
	return res, nil
}

func (p *Prober) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpBase+path, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("cdpprobe: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cdpprobe: %s: HTTP %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("cdpprobe: %s: %w", path, err)
	}
	return nil
}

func (p *Prober) getVersion(ctx context.Context, wsURL string) (Result, error) {
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return Result{}, fmt.Errorf("cdpprobe: dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	const id = 1
	req, err := json.Marshal(struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
	}{ID: id, Method: "Browser.getVersion"})
	if err != nil {
		return Result{}, err
	}
	if err := wsutil.WriteClientText(conn, req); err != nil {
		return Result{}, fmt.Errorf("cdpprobe: send: %w", err)
	}

	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{}, fmt.Errorf("cdpprobe: read: %w", err)
		}
		var msg struct {
			ID     int64 `json:"id"`
			Result struct {
				ProtocolVersion string `json:"protocolVersion"`
				Product         string `json:"product"`
				UserAgent       string `json:"userAgent"`
			} `json:"result"`
			Error *struct {
				Code    int64  `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &msg) != nil || msg.ID != id {
			// events and stray replies
			slog.Debug("cdpprobe skipping message", "bytes", len(data))
			continue
		}
		if msg.Error != nil {
			return Result{}, fmt.Errorf("cdpprobe: Browser.getVersion: %s (%d)", msg.Error.Message, msg.Error.Code)
		}
		return Result{
			Browser:         msg.Result.Product,
			ProtocolVersion: msg.Result.ProtocolVersion,
			UserAgent:       msg.Result.UserAgent,
		}, nil
	}
}
