package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/pinloom/pinloom"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()

	// Run from an empty directory so no stray config.yaml is picked up
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		_ = os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(suite.T(), internal.DefaultDatabaseDSN, cfg.Database.DSN)
	assert.Equal(suite.T(), internal.DefaultDatabaseType, cfg.Database.Type)
	assert.Equal(suite.T(), internal.DefaultLLMBaseURL, cfg.LLM.BaseURL)
	assert.Equal(suite.T(), 0, cfg.LLM.MaxRetries)

	assert.Equal(suite.T(), 4, cfg.Harness.ContextTurns)
	assert.Equal(suite.T(), 90*time.Second, cfg.Harness.ToolTimeout)
	assert.Equal(suite.T(), 10*time.Second, cfg.Harness.RateLimitRefillRate)
	assert.Equal(suite.T(), 15, cfg.Tools.PexelsPerPage)
	assert.Equal(suite.T(), "black-forest-labs/FLUX.1-schnell", cfg.Tools.HFModel)
	assert.Equal(suite.T(), 5, cfg.Tools.HFInferenceSteps)
	assert.Contains(suite.T(), cfg.Auth.PublicPaths, "/api/images*")
	assert.Empty(suite.T(), cfg.Auth.Tokens)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
server:
  addr: ":9090"
database:
  dsn: "test.db"
  type: "sqlite"
harness:
  context_turns: 6
  tool_timeout: 15s
  allowed_tools: ["search_images"]
auth:
  tokens:
    - token: "secret-a"
      user_id: "user-a"
    - token: "secret-b"
      user_id: "user-b"
log:
  level: debug
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), ":9090", cfg.Server.Addr)
	assert.Equal(suite.T(), "test.db", cfg.Database.DSN)
	assert.Equal(suite.T(), "sqlite", cfg.Database.Type)
	assert.Equal(suite.T(), 6, cfg.Harness.ContextTurns)
	assert.Equal(suite.T(), 15*time.Second, cfg.Harness.ToolTimeout)
	assert.Equal(suite.T(), []string{"search_images"}, cfg.Harness.AllowedTools)
	require.Len(suite.T(), cfg.Auth.Tokens, 2)
	assert.Equal(suite.T(), TokenConfig{Token: "secret-b", UserID: "user-b"}, cfg.Auth.Tokens[1])
	assert.Equal(suite.T(), "debug", cfg.Log.Level)

	// Untouched sections keep their defaults
	assert.Equal(suite.T(), 15, cfg.Tools.PexelsPerPage)
}

func (suite *ConfigTestSuite) TestLoadConfigEnvOverride() {
	suite.T().Setenv("LLM_API_KEY", "from-env")
	suite.T().Setenv("HARNESS_TOOL_CONCURRENCY", "9")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "from-env", cfg.LLM.APIKey)
	assert.Equal(suite.T(), 9, cfg.Harness.ToolConcurrency)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	// An explicit path that does not exist is an error
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
database:
  dsn: "test.db"
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(malformedContent), 0o644))

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestAppConfigGlobal() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), cfg.Server.Addr, AppConfig.Server.Addr)
}

func (suite *ConfigTestSuite) TestWatchWithoutFile() {
	err := Watch("", zerolog.Nop(), func(*Config) {
		suite.T().Fatal("apply must not run without a config file")
	})
	assert.NoError(suite.T(), err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLogLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLogLevel("nonsense"))
	assert.Equal(t, zerolog.InfoLevel, ParseLogLevel(""))
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	for b.Loop() {
		if _, err := LoadConfig(""); err != nil {
			b.Fatal(err)
		}
	}
}
