// Package mexc implements the MEXC USDT-M contract REST endpoints the engine consumes.
package mexc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"signal-core/pkg/exchanges/common"
)

// DefaultBaseURL is the production contract API host.
const DefaultBaseURL = "https://contract.mexc.com"

// Config holds MEXC contract credentials.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
}

// Client handles MEXC USDT-M contracts.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
}

// NewClient creates a new contract client.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	c.timeSync = common.NewTimeSync(c.ServerTime)
	c.rateLimiter = common.NewRateLimiter("mexc", 20, 2*time.Second)
	return c
}

// StartTimeSync keeps Request-Time aligned with the exchange clock until ctx ends.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

func (c *Client) now() int64 {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

// ServerTime fetches contract server time in milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	data, err := c.doPublic(ctx, "contract/ping", "/api/v1/contract/ping", nil)
	if err != nil {
		return 0, err
	}
	return data.Int(), nil
}

func (c *Client) doPublic(ctx context.Context, op, path string, params url.Values) (gjson.Result, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return c.send(req, op, common.ErrDataUnavailable)
}

// doSigned signs accessKey + Request-Time + paramString, where paramString is the
// sorted query for GET and the raw JSON body for POST.
func (c *Client) doSigned(ctx context.Context, op, method, path string, params url.Values, body any, failKind error) (gjson.Result, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return gjson.Result{}, errors.New("mexc contract: API key/secret required")
	}

	var (
		paramString string
		reader      io.Reader
		endpoint    = c.baseURL + path
	)
	switch method {
	case http.MethodGet, http.MethodDelete:
		paramString = params.Encode()
		if paramString != "" {
			endpoint += "?" + paramString
		}
	default:
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return gjson.Result{}, fmt.Errorf("encode %s: %w", op, err)
			}
			paramString = string(raw)
			reader = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return gjson.Result{}, err
	}
	reqTime := strconv.FormatInt(c.now(), 10)
	req.Header.Set("ApiKey", c.cfg.APIKey)
	req.Header.Set("Request-Time", reqTime)
	req.Header.Set("Signature", sign(c.cfg.APIKey+reqTime+paramString, c.cfg.APISecret))
	req.Header.Set("Content-Type", "application/json")

	return c.send(req, op, failKind)
}

// send executes req and unwraps the {success, code, message, data} envelope.
// Envelope failures are tagged with failKind; transport failures always with ErrDataUnavailable.
func (c *Client) send(req *http.Request, op string, failKind error) (gjson.Result, error) {
	if err := c.rateLimiter.Wait(req.Context()); err != nil {
		return gjson.Result{}, fmt.Errorf("mexc %s: %w: %w", op, common.ErrDataUnavailable, err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("mexc %s: %w: %w", op, common.ErrDataUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("mexc %s: read body: %w: %w", op, common.ErrDataUnavailable, err)
	}
	if res.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("mexc %s status %d: %s: %w", op, res.StatusCode, truncate(body), common.ErrDataUnavailable)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("mexc %s: malformed payload %q: %w", op, truncate(body), common.ErrDataUnavailable)
	}

	env := gjson.ParseBytes(body)
	if !env.Get("success").Bool() || env.Get("code").Int() != 0 {
		return gjson.Result{}, &common.APIError{
			Op:      op,
			Code:    env.Get("code").Int(),
			Message: env.Get("message").String(),
			Kind:    failKind,
		}
	}
	return env.Get("data"), nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
