package script

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/event"
	"github.com/edgeflare/sqlgate/pkg/httputil"
)

const EngineWebhook = "webhook"

// WebhookEngine delegates a script to a remote endpoint. The script content
// is the endpoint URL; the event is POSTed as JSON
//
//	{"name": ..., "config": ..., "event": {...}}
//
// and the JSON object in the response body is the script result. A string
// "output" key in the result is written to the script output.
type WebhookEngine struct {
	Timeout time.Duration
	Retries int
	Logger  *zap.Logger
}

func (w *WebhookEngine) Run(ctx context.Context, inv event.Invocation, output io.Writer) (any, error) {
	target := strings.TrimSpace(inv.Content)
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return map[string]any{"exception": fmt.Sprintf("invalid webhook url %q", target)}, nil
	}

	cfg := httputil.DefaultRequestConfig(http.MethodPost, target)
	cfg.Logger = w.Logger
	if w.Timeout > 0 {
		cfg.Timeout = w.Timeout
	}
	cfg.RetryEnabled = w.Retries > 0
	cfg.MaxRetries = w.Retries
	cfg.Headers = map[string][]string{"Accept": {"application/json"}}
	if headers, ok := inv.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			cfg.Headers[k] = []string{fmt.Sprint(v)}
		}
	}

	resp, err := httputil.Request(ctx, cfg, map[string]any{
		"name":   inv.Name,
		"config": inv.Config,
		"event":  inv.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook %s: %w", inv.Name, err)
	}
	if len(resp.Body) == 0 {
		return tag(nil), nil
	}

	var result any
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return map[string]any{"exception": fmt.Sprintf("webhook %s returned invalid JSON: %v", inv.Name, err)}, nil
	}
	m, ok := result.(map[string]any)
	if !ok {
		return result, nil
	}
	if s, ok := m["output"].(string); ok && s != "" {
		fmt.Fprint(output, s)
	}
	if m["error"] != nil || m["exception"] != nil {
		return m, nil
	}
	return tag(m), nil
}
