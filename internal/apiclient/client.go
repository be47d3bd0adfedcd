// Package apiclient talks to the remote complaint API on behalf of a worker.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/config"
	"github.com/spec-kit/worker-portal/internal/events"
	"github.com/spec-kit/worker-portal/internal/observability"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

const maxBodyBytes = 4 << 20

// Options configures a Client.
type Options struct {
	BaseURL       string
	AuthScheme    string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// Transport overrides the base round tripper; tests point it at httptest.
	Transport http.RoundTripper
}

// OptionsFromConfig maps portal configuration onto client options.
func OptionsFromConfig(cfg config.APIConfig) Options {
	return Options{
		BaseURL:       cfg.BaseURL,
		AuthScheme:    cfg.AuthScheme,
		Timeout:       cfg.Timeout(),
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    200 * time.Millisecond,
	}
}

// Client is the shared, session-agnostic complaint API client.
type Client struct {
	baseURL    string
	scheme     string
	http       *http.Client
	attempts   uint
	retryDelay time.Duration
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// New builds a client. dispatcher receives unauthorized events from
// session-bound calls and may be nil.
func New(opts Options, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	scheme := opts.AuthScheme
	if scheme == "" {
		scheme = "Token"
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		scheme:     scheme,
		http:       &http.Client{Timeout: opts.Timeout, Transport: otelhttp.NewTransport(base)},
		attempts:   uint(attempts),
		retryDelay: opts.RetryDelay,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// call describes one upstream request.
type call struct {
	method      string
	path        string
	label       string
	token       string
	contentType string
	// bodyBytes rather than a reader so retries can replay the body.
	bodyBytes []byte
}

// do executes c and decodes a 2xx body into out. Only GETs are retried and
// only when the complaint API could not be reached.
func (cl *Client) do(ctx context.Context, c call, out any) error {
	attempt := func() error {
		return cl.once(ctx, c, out)
	}
	if c.method != http.MethodGet || cl.attempts == 1 {
		return attempt()
	}
	return retry.Do(
		attempt,
		retry.Attempts(cl.attempts),
		retry.Delay(cl.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && apperrors.HasCode(err, apperrors.CodeNetwork)
		}),
		retry.OnRetry(func(n uint, err error) {
			cl.logger.Warn("complaint api unreachable, retrying",
				zap.String("endpoint", c.label), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func (cl *Client) once(ctx context.Context, c call, out any) error {
	var body io.Reader
	if c.bodyBytes != nil {
		body = bytes.NewReader(c.bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, cl.baseURL+c.path, body)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", cl.scheme+" "+c.token)
	}

	start := time.Now()
	resp, err := cl.http.Do(req)
	if err != nil {
		cl.metrics.RecordUpstream(c.label, c.method, 0, time.Since(start))
		return apperrors.NewNetworkError(err)
	}
	defer resp.Body.Close()
	cl.metrics.RecordUpstream(c.label, c.method, resp.StatusCode, time.Since(start))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return apperrors.NewNetworkError(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(payload)) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return apperrors.NewUpstreamError(resp.StatusCode, fmt.Sprintf("malformed response from %s", c.label))
		}
		return nil
	}

	return statusError(resp.StatusCode, ServerMessage(payload))
}

// statusError maps a non-2xx status onto the portal error taxonomy. The raw
// server message, if any, is kept in Details["server_message"].
func statusError(status int, msg string) error {
	var err error
	switch status {
	case http.StatusUnauthorized:
		err = apperrors.NewUnauthorized(orDefault(msg, "session expired"))
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		err = apperrors.NewValidationError(orDefault(msg, "request rejected"), nil)
	case http.StatusNotFound:
		err = apperrors.NewNotFound("complaint", nil)
	default:
		err = apperrors.NewUpstreamError(status, msg)
	}
	if msg != "" {
		de := apperrors.ToDomainError(err)
		if de.Details == nil {
			de.Details = map[string]any{}
		}
		de.Details["server_message"] = msg
	}
	return err
}

// ServerMessageOf returns the message the complaint API attached to a
// failed response, or "".
func ServerMessageOf(err error) string {
	de := apperrors.ToDomainError(err)
	if de == nil {
		return ""
	}
	msg, _ := de.Details["server_message"].(string)
	return msg
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// ServerMessage extracts a human readable error from a complaint API error
// body. It understands {"error"}, {"detail"}, {"message"} and
// {"non_field_errors": [...]} and returns "" when none is present.
func ServerMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message", "non_field_errors"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if msg := firstString(raw); msg != "" {
			return msg
		}
	}
	return ""
}

func firstString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0])
	}
	return ""
}

func jsonCall(method, path, label, token string, payload any) (call, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return call{}, apperrors.NewInternalError(err)
	}
	return call{
		method:      method,
		path:        path,
		label:       label,
		token:       token,
		bodyBytes:   data,
		contentType: "application/json",
	}, nil
}
