package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-chat/internal/auth"
	"github.com/capitalize-ai/agent-chat/internal/config"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

func TestTokenSource(t *testing.T) {
	assert.Nil(t, TokenSource(&config.Config{}))

	static := TokenSource(&config.Config{APIToken: "abc"})
	assert.Equal(t, auth.StaticToken("abc"), static)

	refreshing := TokenSource(&config.Config{APIToken: "abc", RefreshToken: "r", RefreshURL: "http://localhost/refresh"})
	assert.IsType(t, &auth.RefreshingToken{}, refreshing)
}

func TestNew_WiresCore(t *testing.T) {
	cfg := &config.Config{
		APIBaseURL:  "http://localhost:1",
		StateDBPath: filepath.Join(t.TempDir(), "state.sqlite"),
	}
	a, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Controller)
	assert.True(t, a.View.Usage().CanSend)
	assert.Empty(t, a.View.Threads("p1"))
}
