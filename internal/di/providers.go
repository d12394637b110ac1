package di

import (
	"context"
	"fmt"
	"time"

	"FinReplay/internal/domain/repository"
	"FinReplay/internal/ensemble"
	"FinReplay/internal/env"
	"FinReplay/internal/handler/api"
	internalrepo "FinReplay/internal/repository"
	"FinReplay/internal/service/progress"
	"FinReplay/internal/service/ratelimit"
	"FinReplay/internal/services/performance"
	"FinReplay/internal/services/provider"
	"FinReplay/internal/usecase"
	"FinReplay/pkg/cache"
	pkgch "FinReplay/pkg/clickhouse"
	"FinReplay/pkg/config"
	xhttp "FinReplay/pkg/http"
	pkgkafka "FinReplay/pkg/kafka"
	"FinReplay/pkg/logger"
	"FinReplay/pkg/metrics"
	"FinReplay/pkg/queue"
	"FinReplay/pkg/server"

	"github.com/redis/go-redis/v9"
)

// Features are the resolved feed columns.
type Features struct {
	High []string
	Low  []string
}

// Harness is what cmd/evaluate needs to run one evaluation from the command line.
type Harness struct {
	Evaluator *usecase.Evaluator
	Splits    *usecase.SplitCatalog
	Publisher repository.ResultPublisher
	Log       *logger.Logger
}

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideEnvConfig maps the evaluation block onto env settings. Micro steps per
// macro step come from the timeframe pair unless set explicitly.
func ProvideEnvConfig(cfg *config.Config) (env.Config, error) {
	ev := cfg.Evaluation
	micro := ev.MicroStepsPerMacro
	if micro == 0 {
		n, err := repository.StepsPerWindow(repository.Timeframe(ev.CoarseTimeframe), repository.Timeframe(ev.FineTimeframe))
		if err != nil {
			return env.Config{}, fmt.Errorf("micro steps: %w", err)
		}
		micro = n
	}
	opts := []env.Option{
		env.WithDataset(ev.Dataset),
		env.WithTransactionCost(ev.TransactionCost),
		env.WithMaxHolding(ev.MaxHoldingNumber),
		env.WithActionDim(ev.ActionDim),
		env.WithBackTimeLength(ev.BackTimeLength),
		env.WithInitialAction(ev.InitialAction),
		env.WithMicroSteps(micro),
		env.WithRewardReduction(ev.RewardReduction),
		env.WithLiquidateOnEnd(ev.LiquidateOnEnd),
	}
	if len(ev.Datasets) > 0 {
		opts = append(opts, env.WithAllowedDatasets(ev.Datasets...))
	}
	if ev.EarlyStop {
		opts = append(opts, env.WithEarlyStop(ev.EarlyStopLoss))
	}
	c := env.NewConfig(opts...)
	if err := c.Validate(); err != nil {
		return env.Config{}, err
	}
	return c, nil
}

// ProvideFeatures resolves the feature column lists.
func ProvideFeatures(cfg *config.Config) (Features, error) {
	high, low, err := cfg.Feed.Features()
	if err != nil {
		return Features{}, err
	}
	if len(low) == 0 {
		return Features{}, fmt.Errorf("feed: low-level feature list is empty")
	}
	return Features{High: high, Low: low}, nil
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when neither the feed
// nor a sink needs one.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Feed.Source != "clickhouse" && !cfg.Sinks.ClickHouse {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.Sinks.ClickHouse {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, internalrepo.ResultSchema(cfg.ClickHouse.Database)); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil without brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithAutoCreateTopic(true),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideRedisClient returns a shared client, or nil without an address.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func()) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return client, func() { _ = client.Close() }
}

// ProvideFeedSource picks the CSV or ClickHouse feed.
func ProvideFeedSource(cfg *config.Config, f Features, ch *pkgch.Client, log *logger.Logger) (repository.FeedSource, error) {
	switch cfg.Feed.Source {
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("feed: clickhouse source without a client")
		}
		src, err := internalrepo.NewCHFeedSource(ch, cfg.Feed.Table, f.High, f.Low, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return internalrepo.NewCSVFeedSource(f.High, f.Low, log), nil
	}
}

// ProvideProviderLoader creates the checkpoint loader.
func ProvideProviderLoader(cfg *config.Config, ec env.Config, f Features, log *logger.Logger) (*provider.Loader, func()) {
	l := provider.NewLoader(provider.Config{
		Root:            cfg.Providers.Root,
		ONNXLibraryPath: cfg.Providers.ONNXLibrary,
		InputName:       cfg.Providers.InputName,
		OutputName:      cfg.Providers.OutputName,
		InputSize:       env.FineStateSize(ec.BackTimeLength, len(f.Low)),
		ActionDim:       ec.ActionDim,
		RemoteTimeout:   cfg.Providers.RemoteTimeout,
		RemoteRetries:   cfg.Providers.RemoteRetries,
	}, log)
	return l, func() { _ = l.Close() }
}

// ProvideRegistry builds the per-dataset ensemble registry.
func ProvideRegistry(cfg *config.Config, ec env.Config, loader *provider.Loader, m repository.Metrics, log *logger.Logger) *ensemble.Registry {
	tables := make(map[string]ensemble.Table, len(cfg.Evaluation.Ensemble))
	for ds, rows := range cfg.Evaluation.Ensemble {
		tables[ds] = ensemble.Table(rows)
	}
	return ensemble.NewRegistry(ensemble.RegistryConfig{
		ActionDim: ec.ActionDim,
		Width:     cfg.Evaluation.EnsembleWidth,
		Template:  cfg.Evaluation.CheckpointTemplate,
		Tables:    tables,
		Lenient:   cfg.Evaluation.LenientLoad,
	}, loader, m, log)
}

// ProvideKafkaResultPublisher wraps the producer, or returns nil without one.
func ProvideKafkaResultPublisher(cfg *config.Config, producer *pkgkafka.Producer) *internalrepo.KafkaResultPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.Topic)
}

// ProvideResultPublisher exposes the Kafka publisher as the domain interface.
func ProvideResultPublisher(k *internalrepo.KafkaResultPublisher) repository.ResultPublisher {
	if k == nil {
		return nil
	}
	return k
}

// ProvideSinks builds the enabled result sinks.
func ProvideSinks(cfg *config.Config, ch *pkgch.Client, k *internalrepo.KafkaResultPublisher, log *logger.Logger) ([]repository.ResultSink, error) {
	var sinks []repository.ResultSink
	if cfg.Sinks.File {
		sinks = append(sinks, internalrepo.NewFileResultSink(cfg.Evaluation.SavePath, log))
	}
	if cfg.Sinks.ClickHouse {
		if ch == nil {
			return nil, fmt.Errorf("sinks: clickhouse enabled without a client")
		}
		sinks = append(sinks, internalrepo.NewCHResultStore(ch, cfg.ClickHouse.Database, log))
	}
	if cfg.Sinks.Kafka {
		if k == nil {
			return nil, fmt.Errorf("sinks: kafka enabled without brokers")
		}
		sinks = append(sinks, k)
	}
	return sinks, nil
}

func ProvideProgressHub(log *logger.Logger) *progress.Hub {
	return progress.NewHub(log)
}

// ProvideProgressPublisher streams macro steps to websocket subscribers.
func ProvideProgressPublisher(hub *progress.Hub) repository.ProgressPublisher {
	return hub
}

// ProvideNoProgress is the command line publisher: nobody listens.
func ProvideNoProgress() repository.ProgressPublisher {
	return nil
}

// ProvideEvaluator builds the harness.
func ProvideEvaluator(cfg *config.Config, ec env.Config, feeds repository.FeedSource, reg *ensemble.Registry, sinks []repository.ResultSink, pp repository.ProgressPublisher, m repository.Metrics, log *logger.Logger) *usecase.Evaluator {
	opts := []usecase.EvaluatorOption{
		usecase.WithSinks(sinks...),
		usecase.WithEvaluatorMetrics(m),
		usecase.WithLogger(log),
		usecase.WithBarsPerYear(performance.BarsPerYearForTF(cfg.Evaluation.CoarseTimeframe)),
	}
	if pp != nil {
		opts = append(opts, usecase.WithProgress(pp))
	}
	return usecase.NewEvaluator(ec, feeds, reg, opts...)
}

// ProvideSplitCatalog parses the configured split locations.
func ProvideSplitCatalog(cfg *config.Config) (*usecase.SplitCatalog, error) {
	templates := make(map[string]usecase.SplitTemplate, len(cfg.Feed.Splits))
	for name, src := range cfg.Feed.Splits {
		from, to, err := src.Range()
		if err != nil {
			return nil, fmt.Errorf("feed.splits.%s: %w", name, err)
		}
		templates[name] = usecase.SplitTemplate{Path: src.Path, Symbol: src.Symbol, From: from, To: to}
	}
	return usecase.NewSplitCatalog(templates), nil
}

// ProvideReportCache layers a memory cache over Redis, or uses memory alone.
func ProvideReportCache(client *redis.Client) (cache.Service, func()) {
	if client == nil {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(1024), cache.WithMemoryCleanup(time.Minute))
		return mc, func() { _ = mc.Close() }
	}
	lc := cache.NewLayeredCache(cache.NewRedisCacheFromClient(client, "finreplay"),
		cache.WithLayeredMemorySize(256),
		cache.WithLayeredMemoryTTL(30*time.Second),
	)
	return lc, func() { _ = lc.Close() }
}

func ProvideReportStore(c cache.Service, cfg *config.Config) repository.ReportStore {
	return internalrepo.NewCacheReportStore(c, cfg.Redis.ReportTTL)
}

// ProvideQueue uses Redis when configured and an in-process queue otherwise.
func ProvideQueue(cfg *config.Config, client *redis.Client, log *logger.Logger) queue.Runner {
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.PollInterval,
	}
	if client == nil {
		return queue.NewMemoryQueue(log, qc)
	}
	return queue.NewRedisQueue(log, qc, client, queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Queue.Name))
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

func ProvideEvaluationService(q queue.Runner, store repository.ReportStore, lim *ratelimit.Limiter, cfg *config.Config, log *logger.Logger) *usecase.EvaluationService {
	return usecase.NewEvaluationService(q, store, lim, cfg.Evaluation.ParallelSplits, log)
}

func ProvideEvaluationJob(ev *usecase.Evaluator, splits *usecase.SplitCatalog, store repository.ReportStore, pub repository.ResultPublisher, log *logger.Logger) *usecase.EvaluationJob {
	return usecase.NewEvaluationJob(ev, splits, store, pub, log)
}

// ProvideHTTPServer registers the evaluation API on the Echo server.
func ProvideHTTPServer(cfg *config.Config, svc *usecase.EvaluationService, hub *progress.Hub, log *logger.Logger) *xhttp.Server {
	h := api.NewEvaluationsEchoHandler(log, svc, hub)
	return xhttp.NewServer(log, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowRequest),
	)
}

// ProvideApp creates the application server. Repeated error logs go to Kafka when
// a log topic and brokers are configured.
func ProvideApp(cfg *config.Config, log *logger.Logger, srv *xhttp.Server, q queue.Runner, job *usecase.EvaluationJob, hub *progress.Hub, producer *pkgkafka.Producer) *server.App {
	var opts []server.Option
	if producer != nil && cfg.Kafka.LogTopic != "" {
		opts = append(opts, server.WithLogPublisher(producer, cfg.Kafka.LogTopic))
	}
	return server.New(cfg, log, srv, q, []queue.Job{job}, hub, opts...)
}

// ProvideHarness bundles the command line dependencies.
func ProvideHarness(ev *usecase.Evaluator, splits *usecase.SplitCatalog, pub repository.ResultPublisher, log *logger.Logger) *Harness {
	return &Harness{Evaluator: ev, Splits: splits, Publisher: pub, Log: log}
}
