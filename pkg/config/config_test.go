package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 15*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, "BTCUSDT", c.Evaluation.Dataset)
	assert.Equal(t, []string{"valid", "test"}, c.Evaluation.Splits)
	assert.Equal(t, 0.00015, c.Evaluation.TransactionCost)
	assert.Equal(t, 0.01, c.Evaluation.MaxHoldingNumber)
	assert.Equal(t, 5, c.Evaluation.ActionDim)
	assert.Equal(t, 5, c.Evaluation.EnsembleWidth)
	assert.True(t, c.Evaluation.LiquidateOnEnd)
	assert.True(t, c.Sinks.File)
	assert.Equal(t, "csv", c.Feed.Source)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
}

func TestParseYAMLOverridesDefaults(t *testing.T) {
	yml := `
environment: prod
evaluation:
  dataset: ETHUSDT
  action: 3
  splits: [test]
  liquidate_on_end: false
  ensemble:
    ETHUSDT:
      - [a.onnx, b.onnx]
feed:
  splits:
    test:
      path: data/{dataset}/test.csv
`
	c, err := Parse([]byte(yml))
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", c.Evaluation.Dataset)
	assert.Equal(t, 3, c.Evaluation.Action)
	assert.Equal(t, []string{"test"}, c.Evaluation.Splits)
	assert.False(t, c.Evaluation.LiquidateOnEnd)
	assert.Equal(t, [][]string{{"a.onnx", "b.onnx"}}, c.Evaluation.Ensemble["ETHUSDT"])
	assert.Equal(t, "data/{dataset}/test.csv", c.Feed.Splits["test"].Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{"bad port", "environment: x\nserver:\n  port: 70000\n"},
		{"action out of range", "environment: x\nevaluation:\n  action: 5\n"},
		{"unknown feed source", "environment: x\nfeed:\n  source: parquet\n"},
		{"clickhouse without host", "environment: x\nfeed:\n  source: clickhouse\n"},
		{"kafka sink without brokers", "environment: x\nsinks:\n  kafka: true\n"},
		{"empty splits", "environment: x\nevaluation:\n  splits: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yml))
			require.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\nfeed:\n  source: clickhouse\n"), 0o644))

	t.Setenv("DATASET_NAME", "GALAUSDT")
	t.Setenv("EVAL_ACTION", "4")
	t.Setenv("CLICKHOUSE_HOST", "ch.local")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SAVE_PATH", "/tmp/out")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "GALAUSDT", c.Evaluation.Dataset)
	assert.Equal(t, 4, c.Evaluation.Action)
	assert.Equal(t, "ch.local", c.ClickHouse.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "/tmp/out", c.Evaluation.SavePath)
}

func TestLoadWithEnvBadAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o644))
	t.Setenv("EVAL_ACTION", "four")
	_, err := LoadWithEnv(path)
	require.Error(t, err)
}

func TestFeatures(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "second_feature.yml")
	require.NoError(t, os.WriteFile(file, []byte("- bid1_size_n\n- ask1_size_n\n"), 0o644))

	f := FeedConfig{HighFeatures: []string{"close_n"}, LowFeaturesFile: file}
	high, low, err := f.Features()
	require.NoError(t, err)
	assert.Equal(t, []string{"close_n"}, high)
	assert.Equal(t, []string{"bid1_size_n", "ask1_size_n"}, low)

	f.HighFeaturesFile = filepath.Join(dir, "missing.yml")
	_, _, err = f.Features()
	require.Error(t, err)
}

func TestSplitSourceRange(t *testing.T) {
	cases := []struct {
		name    string
		src     SplitSource
		wantErr bool
	}{
		{"empty", SplitSource{}, false},
		{"dates", SplitSource{From: "2024-01-01", To: "2024-02-01"}, false},
		{"rfc3339", SplitSource{From: "2024-01-01T00:00:00Z", To: "2024-01-01T06:00:00+02:00"}, false},
		{"reversed", SplitSource{From: "2024-02-01", To: "2024-01-01"}, true},
		{"garbage", SplitSource{From: "yesterday"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.src.Range()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
