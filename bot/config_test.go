package bot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
telegram:
  token: "123:abc"
  operators: [111, 222]
logging:
  level: info
database:
  driver: sqlite
  path: /tmp/gradebot.db
bot:
  start_active: true
  support_handle: "@help_desk"
  username_ttl: 30m
grading:
  command: ["python3", "grade.py"]
  timeout: 90s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []int64{111, 222}, cfg.Telegram.Operators)
	assert.Equal(t, "longpoll", cfg.Telegram.RunMode)
	assert.True(t, cfg.Bot.StartActive)
	assert.Equal(t, "help_desk", cfg.Bot.SupportHandle)
	assert.Equal(t, 30*time.Minute, cfg.Bot.UsernameTTL)
	assert.Equal(t, "notebooks", cfg.Bot.NotebooksDir)
	assert.Equal(t, "sql", cfg.Bot.SessionStore)
	assert.Equal(t, 90*time.Second, cfg.Grading.Timeout)
	assert.True(t, cfg.Grading.Enabled())
	assert.Equal(t, 30, cfg.Broadcast.Capacity)
	assert.Equal(t, 100, cfg.Replay.BatchLimit)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestLoadConfigRequiresOperators(t *testing.T) {
	body := `
telegram:
  token: "123:abc"
database:
  driver: sqlite
  path: /tmp/gradebot.db
`
	_, err := LoadConfig(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
}

func TestLoadConfigPostgresNeedsHost(t *testing.T) {
	body := `
telegram:
  token: "123:abc"
  operators: [1]
database:
  driver: postgres
  name: grades
  user: bot
`
	_, err := LoadConfig(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")
}
