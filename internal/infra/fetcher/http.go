package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// Request describes a single HTTP fetch.
// When RPCMethod is set the request is sent as a JSON-RPC 2.0 call and Body is ignored.
type Request struct {
	URL       string
	Method    string
	Headers   map[string]string
	Body      string
	RPCMethod string
	Params    []any
}

// RPCError is an error object returned by a JSON-RPC endpoint.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPFetcher performs REST and JSON-RPC fetches over a shared client.
// Rate limiting is tracked per host.
type HTTPFetcher struct {
	httpClient *http.Client

	mu       sync.Mutex
	monitors map[string]*throttleMonitor
}

// NewHTTPFetcher creates a fetcher. A zero timeout leaves requests bounded only by their context.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		monitors: make(map[string]*throttleMonitor),
	}
}

// Func binds a request to a fetch function.
func (f *HTTPFetcher) Func(req Request) domain.FetchFunc {
	return func(ctx context.Context) (any, error) {
		return f.Fetch(ctx, req)
	}
}

// Fetch executes the request and decodes the response.
func (f *HTTPFetcher) Fetch(ctx context.Context, r Request) (any, error) {
	if r.RPCMethod != "" {
		return f.call(ctx, r)
	}
	return f.rest(ctx, r)
}

func (f *HTTPFetcher) rest(ctx context.Context, r Request) (any, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(r.Body)
	}

	data, contentType, err := f.do(ctx, method, r.URL, r.Headers, body)
	if err != nil {
		return nil, err
	}
	return decodeBody(data, contentType), nil
}

func (f *HTTPFetcher) call(ctx context.Context, r Request) (any, error) {
	params := r.Params
	if params == nil {
		params = []any{}
	}
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  r.RPCMethod,
		"params":  params,
		"id":      1,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	body, _, err := f.do(ctx, http.MethodPost, r.URL, r.Headers, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}

	var rpcResp struct {
		Result any `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if rpcResp.Error != nil {
		msg := rpcResp.Error.Message
		if msg == "" {
			msg = "unknown error"
		}
		if detectThrottlePattern(msg) {
			return nil, fmt.Errorf("%w: %s", ErrThrottled, msg)
		}
		return nil, &RPCError{Code: rpcResp.Error.Code, Message: msg}
	}
	return rpcResp.Result, nil
}

// do sends the request and returns the body of a 2xx response.
func (f *HTTPFetcher) do(
	ctx context.Context,
	method, url string,
	headers map[string]string,
	body io.Reader,
) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	mon := f.monitor(req.URL.Host)
	if wait, blocked := mon.check(); wait > 0 {
		if blocked {
			return nil, "", fmt.Errorf("%w: %s refusing requests, retry after %v", ErrBlocked, req.URL.Host, wait)
		}
		return nil, "", fmt.Errorf("%w: %s, retry after %v", ErrThrottled, req.URL.Host, wait)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		wait := mon.record(resp.StatusCode, retryAfter)
		return nil, "", fmt.Errorf("%w: rate limited (429), retry after %v", ErrThrottled, wait)
	}

	// IP blocked detection
	if resp.StatusCode == http.StatusForbidden {
		mon.record(resp.StatusCode, "")
		return nil, "", fmt.Errorf("%w: ip blocked (403)", ErrBlocked)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if detectThrottlePattern(string(data)) {
			return nil, "", fmt.Errorf("%w: %s", ErrThrottled, strings.TrimSpace(string(data)))
		}
		return nil, "", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (f *HTTPFetcher) monitor(host string) *throttleMonitor {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.monitors[host]
	if !ok {
		m = newThrottleMonitor()
		f.monitors[host] = m
	}
	return m
}

// Close cleans up resources.
func (f *HTTPFetcher) Close() error {
	f.httpClient.CloseIdleConnections()
	return nil
}

// decodeBody returns JSON bodies as decoded values and everything else as text.
// Bodies without a content type are decoded when they parse as JSON.
func decodeBody(data []byte, contentType string) any {
	if strings.Contains(contentType, "json") || (contentType == "" && json.Valid(data)) {
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	}
	return string(data)
}
