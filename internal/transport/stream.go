package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/metrics"
)

// Event is one typed frame of a chat stream.
type Event struct {
	Type     model.EventType
	Content  string
	Complete *model.CompletePayload
	Err      *APIError
}

// EventStream is a pull iterator over a chat stream. A complete or error
// frame is always the last event it yields.
type EventStream struct {
	ctx     context.Context
	body    io.ReadCloser
	decoder *Decoder
	span    trace.Span

	current Event
	err     error
	done    bool
}

// Next advances to the next event. It returns false once a terminal frame
// has been yielded or the stream failed; Err reports the failure.
func (s *EventStream) Next() bool {
	if s.done {
		return false
	}

	env, err := s.decoder.Next()
	if err != nil {
		s.done = true
		switch {
		case s.ctx.Err() != nil:
			s.err = AsAPIError(s.ctx.Err())
		case errors.Is(err, io.EOF):
			s.err = &APIError{Kind: KindStream, Message: "stream ended before completion"}
		default:
			s.err = AsAPIError(err)
		}
		return false
	}

	switch env.Type {
	case model.EventTypeChunk:
		metrics.StreamChunksTotal.Inc()
		s.current = Event{Type: model.EventTypeChunk, Content: env.Content}
	case model.EventTypeComplete:
		s.done = true
		s.current = Event{Type: model.EventTypeComplete, Complete: &model.CompletePayload{
			Messages: model.DecodeMessages(env.Messages),
			Raw:      env.Messages,
		}}
	case model.EventTypeError:
		s.done = true
		s.current = Event{Type: model.EventTypeError, Err: parseErrorValue(env.Error)}
	}
	return true
}

// Current returns the event loaded by the last successful Next.
func (s *EventStream) Current() Event {
	return s.current
}

// Err returns the failure that ended the stream, if any. Error frames sent
// by the server are events, not failures.
func (s *EventStream) Err() error {
	return s.err
}

// Close releases the response body.
func (s *EventStream) Close() error {
	if s.span != nil {
		if s.err != nil {
			s.span.SetStatus(codes.Error, s.err.Error())
		}
		s.span.End()
		s.span = nil
	}
	return s.body.Close()
}

// OpenStream issues a streaming chat request. Non-2xx responses and network
// failures are returned as an *APIError.
func (c *Client) OpenStream(ctx context.Context, path string, payload any) (*EventStream, error) {
	ctx, span := c.tracer.Start(ctx, "chat.stream", trace.WithAttributes(
		attribute.String("http.path", path),
	))

	resp, err := c.do(ctx, http.MethodPost, path, payload, "text/event-stream")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := parseErrorBody(resp.StatusCode, body)
		span.SetStatus(codes.Error, apiErr.Error())
		span.End()
		return nil, apiErr
	}

	return &EventStream{
		ctx:     ctx,
		body:    resp.Body,
		decoder: NewDecoder(resp.Body, c.logger),
		span:    span,
	}, nil
}

// Handlers receive the events of a stream. OnChunk fires in arrival order;
// exactly one of OnComplete or OnError fires, last.
type Handlers struct {
	OnChunk    func(content string)
	OnComplete func(payload model.CompletePayload)
	OnError    func(err *APIError)
}

// Stream runs a streaming chat request to completion, dispatching every
// event to h. It never returns a failure; all failures go to OnError.
func (c *Client) Stream(ctx context.Context, path string, payload any, h Handlers) {
	start := time.Now()
	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	outcome := "error"
	defer func() {
		metrics.RecordStream(outcome, time.Since(start).Seconds())
	}()

	stream, err := c.OpenStream(ctx, path, payload)
	if err != nil {
		h.fail(AsAPIError(err))
		return
	}
	defer stream.Close()

	for stream.Next() {
		ev := stream.Current()
		switch ev.Type {
		case model.EventTypeChunk:
			if h.OnChunk != nil {
				h.OnChunk(ev.Content)
			}
		case model.EventTypeComplete:
			outcome = "success"
			if h.OnComplete != nil {
				h.OnComplete(*ev.Complete)
			}
			return
		case model.EventTypeError:
			h.fail(ev.Err)
			return
		}
	}

	apiErr := AsAPIError(stream.Err())
	if apiErr == nil {
		apiErr = &APIError{Kind: KindStream, Message: "stream ended before completion"}
	}
	if apiErr.Kind == KindCanceled {
		outcome = "canceled"
	}
	h.fail(apiErr)
}

func (h Handlers) fail(err *APIError) {
	if h.OnError != nil {
		h.OnError(err)
	}
}
