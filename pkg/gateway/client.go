package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL   = "http://127.0.0.1:8000"
	DefaultUserAgent = "aira-client"
	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 4 << 20

	chatPath   = "/chat"
	alertsPath = "/analise-alertas"
	healthPath = "/"
)

type chatRequest struct {
	Question string `json:"pergunta"`
}

type chatResponse struct {
	Question string  `json:"pergunta"`
	Answer   *string `json:"resposta"`
}

type alertsResponse struct {
	Days     int     `json:"dias"`
	Analysis *string `json:"analise"`
	Error    string  `json:"erro"`
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

var _ Gateway = &Client{}
var _ AlertAnalyzer = &Client{}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout bounds each request. Zero leaves the caller's context alone.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.timeout = d
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(client *Client) {
		client.userAgent = ua
	}
}

func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid backend url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, errors.Errorf("invalid backend url %q: missing host", baseURL)
	}

	ret := &Client{
		baseURL:    u,
		httpClient: http.DefaultClient,
		userAgent:  DefaultUserAgent,
	}
	for _, option := range options {
		option(ret)
	}
	return ret, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Ask posts the question to /chat and returns the answer text.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	body, err := json.Marshal(chatRequest{Question: question})
	if err != nil {
		return "", NewBackendError(OpAsk, errors.Wrap(err, "failed to encode request"))
	}

	var resp chatResponse
	if err := c.do(ctx, OpAsk, http.MethodPost, c.endpoint(chatPath, nil), body, &resp); err != nil {
		return "", err
	}
	if resp.Answer == nil {
		return "", &BackendError{Op: OpAsk, Err: errors.Wrap(ErrMalformedBody, "missing resposta")}
	}
	return *resp.Answer, nil
}

// AnalyzeAlerts asks the backend for an analysis of the alerts of the last
// days. A body carrying "erro" is a failure even with a 2xx status.
func (c *Client) AnalyzeAlerts(ctx context.Context, days int) (*AlertAnalysis, error) {
	if days < 1 {
		return nil, &BackendError{Op: OpAlerts, Err: ErrInvalidDays}
	}
	q := url.Values{}
	q.Set("dias", strconv.Itoa(days))

	var resp alertsResponse
	if err := c.do(ctx, OpAlerts, http.MethodGet, c.endpoint(alertsPath, q), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &BackendError{Op: OpAlerts, Err: errors.Wrap(ErrBackendReport, resp.Error)}
	}
	if resp.Analysis == nil {
		return nil, &BackendError{Op: OpAlerts, Err: errors.Wrap(ErrMalformedBody, "missing analise")}
	}
	if resp.Days == 0 {
		resp.Days = days
	}
	return &AlertAnalysis{Days: resp.Days, Analysis: *resp.Analysis}, nil
}

// Health queries the backend root document.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.do(ctx, OpHealth, http.MethodGet, c.endpoint(healthPath, nil), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return NewBackendError(op, errors.Wrap(err, "failed to create request"))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NewBackendError(op, ctxErr)
		}
		return &BackendError{Op: op, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	logger := sendLogger(ctx, log.Logger)
	logger.Debug().
		Str("op", op).
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend response")

	data, err := readResponse(resp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NewBackendError(op, ctxErr)
		}
		return &BackendError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &BackendError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %v", ErrMalformedBody, err),
		}
	}
	return nil
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxResponseSize)
	}
	return body, nil
}

// detailFromBody extracts an error description from common error bodies
// ({"detail": ...} or {"erro": ...}).
func detailFromBody(body []byte) string {
	var v struct {
		Detail interface{} `json:"detail"`
		Erro   string      `json:"erro"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}
	if v.Erro != "" {
		return v.Erro
	}
	switch d := v.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
