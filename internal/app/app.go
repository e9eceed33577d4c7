// Package app wires the chat client core from configuration. Both the
// gateway and the terminal driver build on it.
package app

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/auth"
	"github.com/capitalize-ai/agent-chat/internal/client"
	"github.com/capitalize-ai/agent-chat/internal/config"
	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/internal/storage"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/internal/transport"
	"github.com/capitalize-ai/agent-chat/internal/usage"
	"github.com/capitalize-ai/agent-chat/internal/view"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

const tokenRefreshSkew = time.Minute

// App holds one process-wide conversation state and the services over it.
type App struct {
	API        *client.API
	Store      *store.Store
	Gate       *usage.Gate
	Threads    *service.ThreadService
	Messages   *service.MessageService
	Controller *service.Controller
	View       *view.Bindings

	active *storage.ActiveThreads
}

// New builds the client core. An empty StateDBPath disables active-thread
// persistence.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	var opts []transport.Option
	if tokens := TokenSource(cfg); tokens != nil {
		opts = append(opts, transport.WithTokenSource(tokens))
	}
	api := client.New(transport.New(cfg.APIBaseURL, cfg.RequestTimeout, log, opts...))

	a := &App{
		API:   api,
		Store: store.New(),
		Gate:  usage.NewGate(api, cfg.UsageWarnPercent, log),
	}

	var active service.ActiveThreadStore
	if cfg.StateDBPath != "" {
		db, err := storage.Open(cfg.StateDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open state db: %w", err)
		}
		a.active = db
		active = db
		log.Info("active thread state opened", zap.String("path", cfg.StateDBPath))
	}

	a.Threads = service.NewThreadService(api, a.Store, active, log)
	a.Messages = service.NewMessageService(api, a.Store, a.Threads, log)
	a.Controller = service.NewController(a.Threads, a.Messages, a.Gate, a.Store, log)
	a.View = view.New(a.Store, a.Gate)
	return a, nil
}

// TokenSource picks the bearer source: a refreshing source when a refresh
// endpoint is configured, a static token otherwise, or nil for none.
func TokenSource(cfg *config.Config) auth.TokenSource {
	switch {
	case cfg.RefreshURL != "" && cfg.RefreshToken != "":
		refresher := auth.HTTPRefresher(&http.Client{Timeout: 30 * time.Second}, cfg.RefreshURL, cfg.RefreshToken)
		return auth.NewRefreshingToken(cfg.APIToken, refresher, tokenRefreshSkew)
	case cfg.APIToken != "":
		return auth.StaticToken(cfg.APIToken)
	}
	return nil
}

// Close releases the state database.
func (a *App) Close() error {
	if a.active == nil {
		return nil
	}
	return a.active.Close()
}
