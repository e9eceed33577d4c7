// Package transport issues chat backend requests and decodes chat streams.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/auth"
	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
	"github.com/capitalize-ai/agent-chat/pkg/metrics"
)

// DefaultTimeout leaves room for slow AI generations.
const DefaultTimeout = 10 * time.Minute

// maxResponseSize bounds a buffered response body.
const maxResponseSize = 16 << 20

// Client talks to the chat backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenSource
	logger     *logger.Logger
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenSource sets the bearer token provider.
func WithTokenSource(ts auth.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// New creates a transport client for baseURL.
func New(baseURL string, timeout time.Duration, log *logger.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Named("transport"),
		tracer:     otel.Tracer("github.com/capitalize-ai/agent-chat/internal/transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send issues a buffered request and decodes a 2xx JSON body into out (when
// out is non-nil). Non-2xx responses become an *APIError.
func (c *Client) Send(ctx context.Context, method, path string, payload, out any) error {
	ctx, span := c.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	resp, err := c.do(ctx, method, path, payload, "application/json")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return AsAPIError(fmt.Errorf("failed to read response: %w", err))
	}
	if len(body) > maxResponseSize {
		apiErr := &APIError{Kind: KindGeneric, StatusCode: resp.StatusCode, Message: "response body too large"}
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseErrorBody(resp.StatusCode, body)
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Kind: KindGeneric, StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	return nil
}

// do builds and executes a request. Failures are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, payload any, accept string) (*http.Response, error) {
	body, contentType, err := encodeBody(payload)
	if err != nil {
		return nil, &APIError{Kind: KindGeneric, Message: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &APIError{Kind: KindGeneric, Message: "failed to create request", Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Correlation-ID", uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, &APIError{Kind: KindUnauthorized, Message: "no valid session", Err: err}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(method, "error").Inc()
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, AsAPIError(err)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}
	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("correlation_id", req.Header.Get("X-Correlation-ID")),
	)
	return resp, nil
}

// encodeBody encodes payload as JSON, or as multipart/form-data when it is a
// chat request carrying attachments.
func encodeBody(payload any) (io.Reader, string, error) {
	if payload == nil {
		return nil, "", nil
	}

	var chat *model.ChatRequest
	switch p := payload.(type) {
	case *model.ChatRequest:
		chat = p
	case model.ChatRequest:
		chat = &p
	}
	if chat != nil && len(chat.Files) > 0 {
		return encodeMultipart(chat)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(data), "application/json", nil
}

func encodeMultipart(req *model.ChatRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"message", req.Message},
		{"agentId", req.AgentID},
		{"includeFiles", strconv.FormatBool(req.IncludeFiles)},
		{"stream", strconv.FormatBool(req.Stream)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	for _, file := range req.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, file.Name))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
