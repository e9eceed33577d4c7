package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
	"github.com/capitalize-ai/agent-chat/pkg/metrics"
)

const (
	dataPrefix = "data:"

	// maxLineSize bounds one stream line. A complete frame carries the
	// thread's full message list, so this sits well above a chunk.
	maxLineSize = 8 << 20
)

// Decoder splits a chat stream body into envelopes. Only `data:` lines carry
// envelopes; anything that does not decode is logged and skipped.
type Decoder struct {
	scanner *bufio.Scanner
	logger  *logger.Logger
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, log *logger.Logger) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{
		scanner: scanner,
		logger:  log,
	}
}

// Next returns the next envelope, or io.EOF when the body is exhausted. A line
// longer than maxLineSize fails the stream with a KindStream error.
func (d *Decoder) Next() (*model.StreamEnvelope, error) {
	for d.scanner.Scan() {
		if env, ok := d.parse(d.scanner.Text()); ok {
			return env, nil
		}
	}

	err := d.scanner.Err()
	switch {
	case err == nil:
		return nil, io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		metrics.StreamMalformedLinesTotal.Inc()
		return nil, &APIError{Kind: KindStream, Message: "stream line exceeds size limit", Err: err}
	default:
		return nil, err
	}
}

func (d *Decoder) parse(line string) (*model.StreamEnvelope, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	data := strings.TrimSpace(line[len(dataPrefix):])
	if data == "" {
		return nil, false
	}

	var env model.StreamEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		metrics.StreamMalformedLinesTotal.Inc()
		d.logger.Warn("skipping malformed stream line", zap.Error(err), zap.Int("length", len(data)))
		return nil, false
	}

	switch env.Type {
	case model.EventTypeChunk, model.EventTypeComplete, model.EventTypeError:
		return &env, true
	default:
		metrics.StreamMalformedLinesTotal.Inc()
		d.logger.Warn("skipping stream line with unknown type", zap.String("type", string(env.Type)))
		return nil, false
	}
}
