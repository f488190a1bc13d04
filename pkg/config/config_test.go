package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte("symbols: [' btcusdt ', ethusdt]\n"))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Symbols)
	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 10*time.Second, c.Ensemble.Interval)
	assert.Equal(t, []float64{2, 3, 4.5}, c.Levels.TargetMultiples)
	assert.Equal(t, []string{"08:00", "20:00"}, c.Distribution.Free.Windows)
	assert.Len(t, c.Strategies.Enabled, 5)
	assert.Equal(t, "final", c.Lifecycle.TargetPolicy)
	assert.False(t, c.Kafka.Enabled)
}

func TestValidateRejectsCrossFieldViolations(t *testing.T) {
	cases := map[string]string{
		"majority below half":  "symbols: [BTCUSDT]\nensemble:\n  majority_fraction: 0.4\n",
		"budget over interval": "symbols: [BTCUSDT]\nensemble:\n  interval: 2s\n  budget: 3s\n",
		"targets not sorted":   "symbols: [BTCUSDT]\nlevels:\n  target_multiples: [3, 2]\n",
		"bad window":           "symbols: [BTCUSDT]\ndistribution:\n  free:\n    windows: ['8am']\n",
		"reset hour":           "symbols: [BTCUSDT]\ndistribution:\n  reset_hour: 24\n",
		"remote without url":   "symbols: [BTCUSDT]\nstrategies:\n  enabled: [momentum, remote]\n",
		"max slower than pro":  "symbols: [BTCUSDT]\ndistribution:\n  max:\n    delay: 5m\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := Parse([]byte(doc))
			require.NoError(t, err)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidateTagRules(t *testing.T) {
	c, err := Parse([]byte("symbols: []\n"))
	require.NoError(t, err)
	assert.Error(t, c.Validate(), "at least one symbol is required")

	c, err = Parse([]byte("symbols: [BTCUSDT]\nkafka:\n  enabled: true\n"))
	require.NoError(t, err)
	assert.Error(t, c.Validate(), "brokers are required when kafka is enabled")

	c, err = Parse([]byte("symbols: [BTCUSDT]\nstrategies:\n  enabled: [unknown]\n"))
	require.NoError(t, err)
	assert.Error(t, c.Validate())
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbols: [BTCUSDT]\n"), 0o600))

	t.Setenv("SYMBOLS", "solusdt, adausdt")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("HTTP_PORT", "9099")
	t.Setenv("LOG_LEVEL", "DEBUG")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSDT", "ADAUSDT"}, c.Symbols)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 9099, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestShippedConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, c.Symbols)
	assert.Equal(t, 10000.0, c.Gate.SymbolVolume["BTCUSDT"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
