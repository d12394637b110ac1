package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"FinReplay/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Logger      struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"logger"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"20s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name" default:"finreplay"`
		Output      string `yaml:"output" default:"stdout"`
		PrettyPrint bool   `yaml:"pretty_print"`
	} `yaml:"tracing"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Feed       FeedConfig       `yaml:"feed"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Sinks      struct {
		File       bool `yaml:"file" default:"true"`
		ClickHouse bool `yaml:"clickhouse"`
		Kafka      bool `yaml:"kafka"`
	} `yaml:"sinks"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"finreplay.evaluations"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"20ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"finreplay"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		ReportTTL time.Duration `yaml:"report_ttl" default:"168h"`
	} `yaml:"redis"`
	Queue struct {
		Name         string        `yaml:"name" default:"finreplay:jobs"`
		Workers      int           `yaml:"workers" default:"2"`
		PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
		MaxRetries   int           `yaml:"max_retries" default:"1"`
	} `yaml:"queue"`
	RateLimit struct {
		RPS   float64 `yaml:"rps" default:"1"`
		Burst int     `yaml:"burst" default:"5"`
	} `yaml:"rate_limit"`
}

// EvaluationConfig is the state machine and harness block.
type EvaluationConfig struct {
	Dataset            string                `yaml:"dataset" default:"BTCUSDT"`
	Datasets           []string              `yaml:"datasets"`
	Action             int                   `yaml:"action"`
	Splits             []string              `yaml:"splits" default:"[\"valid\",\"test\"]"`
	ParallelSplits     bool                  `yaml:"parallel_splits"`
	SavePath           string                `yaml:"save_path" default:"result"`
	TransactionCost    float64               `yaml:"transaction_cost" default:"0.00015"`
	MaxHoldingNumber   float64               `yaml:"max_holding_number" default:"0.01"`
	ActionDim          int                   `yaml:"action_dim" default:"5"`
	BackTimeLength     int                   `yaml:"back_time_length" default:"1"`
	InitialAction      int                   `yaml:"initial_action"`
	EarlyStop          bool                  `yaml:"early_stop"`
	EarlyStopLoss      float64               `yaml:"early_stop_loss"`
	RewardReduction    string                `yaml:"reward_reduction" default:"sum"`
	LiquidateOnEnd     bool                  `yaml:"liquidate_on_end" default:"true"`
	CoarseTimeframe    string                `yaml:"coarse_timeframe" default:"1m"`
	FineTimeframe      string                `yaml:"fine_timeframe" default:"1s"`
	MicroStepsPerMacro int                   `yaml:"micro_steps_per_macro"`
	EnsembleWidth      int                   `yaml:"ensemble_width" default:"5"`
	CheckpointTemplate string                `yaml:"checkpoint_template" default:"result_risk/{dataset}/potential_model/initial_action_{action}/model_{slot}.onnx"`
	Ensemble           map[string][][]string `yaml:"ensemble"`
	LenientLoad        bool                  `yaml:"lenient_load"`
}

// FeedConfig says where split rows come from and which columns are features.
type FeedConfig struct {
	Source           string                 `yaml:"source" default:"csv"`
	Table            string                 `yaml:"table" default:"features_1s"`
	HighFeatures     []string               `yaml:"high_features"`
	LowFeatures      []string               `yaml:"low_features"`
	HighFeaturesFile string                 `yaml:"high_features_file"`
	LowFeaturesFile  string                 `yaml:"low_features_file"`
	Splits           map[string]SplitSource `yaml:"splits"`
}

// SplitSource locates one split: a CSV path, or a symbol and time range.
// {dataset} in Path is replaced with the dataset name.
type SplitSource struct {
	Path   string `yaml:"path"`
	Symbol string `yaml:"symbol"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
}

type ProvidersConfig struct {
	Root          string        `yaml:"root"`
	ONNXLibrary   string        `yaml:"onnx_library"`
	InputName     string        `yaml:"input_name" default:"state"`
	OutputName    string        `yaml:"output_name" default:"q_values"`
	RemoteTimeout time.Duration `yaml:"remote_timeout" default:"5s"`
	RemoteRetries int           `yaml:"remote_retries" default:"2"`
}

// Load reads a YAML file over the default-tagged values and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes over the defaults and validates.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), then the YAML, then applies environment overrides
// before validating.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("DATASET_NAME"); v != "" {
		c.Evaluation.Dataset = v
	}
	if v := os.Getenv("EVAL_ACTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EVAL_ACTION: %w", err)
		}
		c.Evaluation.Action = n
	}
	if v := os.Getenv("SAVE_PATH"); v != "" {
		c.Evaluation.SavePath = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	return nil
}

// Validate checks if the configuration is usable. Domain rules (dataset whitelist,
// ensemble shape) are checked where the environment is built.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Evaluation.Dataset == "" {
		return fmt.Errorf("evaluation.dataset is required")
	}
	if len(c.Evaluation.Splits) == 0 {
		return fmt.Errorf("evaluation.splits cannot be empty")
	}
	if c.Evaluation.Action < 0 || c.Evaluation.Action >= c.Evaluation.ActionDim {
		return fmt.Errorf("evaluation.action must be in [0, %d), got %d", c.Evaluation.ActionDim, c.Evaluation.Action)
	}
	switch c.Feed.Source {
	case "csv", "clickhouse":
	default:
		return fmt.Errorf("feed.source must be 'csv' or 'clickhouse', got '%s'", c.Feed.Source)
	}
	if (c.Feed.Source == "clickhouse" || c.Sinks.ClickHouse) && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required by feed.source or sinks.clickhouse")
	}
	if c.Sinks.Kafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when sinks.kafka is set")
	}
	return nil
}

// LoadFeatureList reads a YAML sequence of column names.
func LoadFeatureList(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feature list: %w", err)
	}
	var names []string
	if err := yaml.Unmarshal(b, &names); err != nil {
		return nil, fmt.Errorf("parse feature list %s: %w", path, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("feature list %s is empty", path)
	}
	return names, nil
}

// Features resolves the high and low feature columns, preferring the list files.
func (f FeedConfig) Features() (high, low []string, err error) {
	high, low = f.HighFeatures, f.LowFeatures
	if f.HighFeaturesFile != "" {
		if high, err = LoadFeatureList(f.HighFeaturesFile); err != nil {
			return nil, nil, err
		}
	}
	if f.LowFeaturesFile != "" {
		if low, err = LoadFeatureList(f.LowFeaturesFile); err != nil {
			return nil, nil, err
		}
	}
	return high, low, nil
}

// Range parses From and To as RFC 3339 timestamps or plain dates. Empty bounds are zero.
func (s SplitSource) Range() (from, to time.Time, err error) {
	if from, err = parseBound(s.From); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("split from: %w", err)
	}
	if to, err = parseBound(s.To); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("split to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("split range %s..%s is empty", s.From, s.To)
	}
	return from, to, nil
}

func parseBound(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, ok := util.ParseTime(v); ok {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
