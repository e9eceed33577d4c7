package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
	"github.com/capitalize-ai/agent-chat/pkg/metrics"
)

const usageRefreshTimeout = 30 * time.Second

// UsageGate decides whether sends are allowed.
type UsageGate interface {
	CanSend() bool
	StatusMessage() string
	Refresh(ctx context.Context) error
}

// SendOptions selects the send mode and attachments.
type SendOptions struct {
	Stream       bool
	IncludeFiles bool
	Files        []model.Attachment
}

// Controller orchestrates a user send: validation, the usage gate, active
// thread resolution, the send itself and the usage refresh afterwards.
type Controller struct {
	threads  *ThreadService
	messages *MessageService
	gate     UsageGate
	store    *store.Store
	logger   *logger.Logger
}

// NewController creates a controller.
func NewController(threads *ThreadService, messages *MessageService, gate UsageGate, st *store.Store, log *logger.Logger) *Controller {
	return &Controller{
		threads:  threads,
		messages: messages,
		gate:     gate,
		store:    st,
		logger:   log.Named("controller"),
	}
}

// SendMessage sends content to agentID in the project's active thread,
// creating the thread when needed.
//
// It returns the thread the message went to, which stays valid even if the
// active thread changes while the send runs. Validation, gate and thread
// creation failures are returned with no thread. Streaming failures are
// recorded in the store and nil is returned; buffered failures are recorded
// and returned.
func (c *Controller) SendMessage(ctx context.Context, projectID, agentID, content string, opts SendOptions) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(opts.Files) == 0 {
		return "", ErrEmptyMessage
	}
	if agentID == "" {
		return "", ErrMissingAgent
	}

	threadID := c.threads.Active(projectID)
	if threadID != "" && c.store.IsSending(threadID) {
		return "", ErrAlreadySending
	}

	if !c.gate.CanSend() {
		msg := c.gate.StatusMessage()
		if msg == "" {
			msg = defaultLimitMessage
		}
		c.store.SetLastError(msg)
		metrics.UsageGateBlockedTotal.Inc()
		c.logger.Info("send blocked by usage gate", zap.String("project_id", projectID))
		return "", &LimitError{Message: msg}
	}

	if threadID == "" {
		id, err := c.threads.EnsureActive(ctx, projectID)
		if err != nil {
			c.store.SetLastError(FormatError(err))
			c.logger.Error("failed to create thread", zap.String("project_id", projectID), zap.Error(err))
			return "", fmt.Errorf("failed to create thread: %w", err)
		}
		threadID = id
	}

	att := Attachments{IncludeFiles: opts.IncludeFiles, Files: opts.Files}
	var err error
	if opts.Stream {
		err = c.messages.SendStreamingMessage(ctx, threadID, agentID, content, att)
	} else {
		err = c.messages.SendMessage(ctx, threadID, agentID, content, att)
	}
	if errors.Is(err, ErrAlreadySending) {
		return "", err
	}

	c.refreshUsage(ctx)
	return threadID, err
}

// refreshUsage runs after a send settles. It is detached from the caller's
// cancellation and its failure only logs.
func (c *Controller) refreshUsage(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageRefreshTimeout)
	defer cancel()
	if err := c.gate.Refresh(ctx); err != nil {
		c.logger.Warn("failed to refresh usage", zap.Error(err))
	}
}
