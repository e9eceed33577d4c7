package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

func TestStreamPrinter_WritesDeltas(t *testing.T) {
	var out bytes.Buffer
	p := newStreamPrinter(&out)

	user := model.Message{ID: "u", Role: model.RoleUser, Content: "hi"}
	loading := func(content string) []model.Message {
		return []model.Message{user, {ID: "local-1", Role: model.RoleAssistant, Content: content, IsLoading: true}}
	}

	p.update(loading(""))
	p.update(loading("Hel"))
	p.update(loading("Hello"))
	p.update(loading("Hello world"))
	p.finish(model.Message{ID: "m2", Role: model.RoleAssistant, Content: "Hello world!"})

	assert.Equal(t, "Hello world!\n", out.String())
}

func TestStreamPrinter_BufferedReply(t *testing.T) {
	var out bytes.Buffer
	p := newStreamPrinter(&out)

	p.update([]model.Message{{ID: "u", Role: model.RoleUser, Content: "hi"}})
	p.finish(model.Message{ID: "m2", Role: model.RoleAssistant, Content: "Full reply"})

	assert.Equal(t, "Full reply\n", out.String())
}

func TestReadAttachments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))

	files, err := readAttachments([]string{path})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "notes.json", files[0].Name)
	assert.Contains(t, files[0].ContentType, "application/json")
	assert.Equal(t, []byte(`{"a":1}`), files[0].Data)

	_, err = readAttachments([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
