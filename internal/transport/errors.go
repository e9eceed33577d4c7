package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies failures so callers can tell machine-readable cases
// such as an exhausted token budget from generic failures.
type ErrorKind string

const (
	KindTokenLimit   ErrorKind = "token_limit"
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindTimeout      ErrorKind = "timeout"
	KindCanceled     ErrorKind = "canceled"
	KindNetwork      ErrorKind = "network"
	KindStream       ErrorKind = "stream"
	KindServer       ErrorKind = "server"
	KindGeneric      ErrorKind = "generic"
)

// APIError is the structured failure reported by the transport, whether it
// came from a non-2xx response, an in-stream error frame, or the network.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	// Body is the parsed JSON error body, when there was one.
	Body map[string]any
	Err  error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindGeneric when err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindGeneric
}

// AsAPIError converts any error into an APIError, classifying context and
// network failures.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &APIError{Kind: KindCanceled, Message: "request canceled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{Kind: KindTimeout, Message: "request timed out", Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &APIError{Kind: KindTimeout, Message: "request timed out", Err: err}
		}
		return &APIError{Kind: KindNetwork, Message: "network error", Err: err}
	}

	return &APIError{Kind: KindNetwork, Message: err.Error(), Err: err}
}

// parseErrorBody builds an APIError from a non-2xx response body.
func parseErrorBody(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Body = parsed
		fillFromObject(apiErr, parsed)
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 {
		apiErr.Message = text
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	apiErr.Kind = classify(apiErr.Code, apiErr.Message, status)
	return apiErr
}

// parseErrorValue builds an APIError from the error field of a stream frame,
// which is either a string or an object.
func parseErrorValue(raw json.RawMessage) *APIError {
	apiErr := &APIError{}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		apiErr.Message = text
	} else {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err == nil {
			apiErr.Body = obj
			fillFromObject(apiErr, obj)
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = "stream reported an error"
	}
	apiErr.Kind = classify(apiErr.Code, apiErr.Message, 0)
	if apiErr.Kind == KindGeneric {
		apiErr.Kind = KindStream
	}
	return apiErr
}

func fillFromObject(apiErr *APIError, obj map[string]any) {
	for _, key := range []string{"code", "type", "errorCode"} {
		if s, ok := obj[key].(string); ok && s != "" {
			apiErr.Code = s
			break
		}
	}
	switch v := obj["error"].(type) {
	case string:
		apiErr.Message = v
	case map[string]any:
		fillFromObject(apiErr, v)
	}
	if s, ok := obj["message"].(string); ok && s != "" {
		apiErr.Message = s
	}
}

func classify(code, message string, status int) ErrorKind {
	c := strings.ToLower(code)
	m := strings.ToLower(message)
	if strings.Contains(c, "token_limit") || strings.Contains(c, "quota") ||
		strings.Contains(m, "token limit") || strings.Contains(m, "token_limit") {
		return KindTokenLimit
	}

	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServer
	}
	return KindGeneric
}
