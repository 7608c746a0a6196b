package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"whisperd/pkg/logx"
)

const defaultEndpoint = "https://exp.host/--/api/v2/push/send"

// Config configures the Expo push client.
type Config struct {
	Endpoint    string        // default: the Expo push API
	AccessToken string        // optional bearer token
	RatePerSec  int           // provider call rate limit, default 5
	Timeout     time.Duration // per-call bound, default 10s
}

// Client sends push chunks to the Expo push API.
//
// One Send call is one HTTP POST; the response carries one ticket per
// message in request order.
type Client struct {
	cfg     Config
	log     logx.Logger
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

type expoTicket struct {
	Status  string `json:"status"` // "ok" | "error"
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

func (c *Client) Send(ctx context.Context, msgs []Message) ([]Ticket, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("expo: encode: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("expo: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expo: send: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("expo: read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("expo: status %d: %s", res.StatusCode, truncate(string(raw), 200))
	}

	var parsed expoResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("expo: decode response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("expo: request-level error %s: %s", parsed.Errors[0].Code, parsed.Errors[0].Message)
	}

	// One ticket per message, in order. A short response pads the tail as
	// unclassified failures rather than guessing.
	out := make([]Ticket, len(msgs))
	for i := range out {
		if i >= len(parsed.Data) {
			out[i] = Ticket{Fault: FaultOther, Detail: "missing ticket"}
			continue
		}
		t := parsed.Data[i]
		if t.Status == "ok" {
			out[i] = Ticket{OK: true}
			continue
		}
		out[i] = Ticket{Fault: classify(t.Details.Error), Detail: firstNonEmpty(t.Details.Error, t.Message)}
	}
	return out, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
