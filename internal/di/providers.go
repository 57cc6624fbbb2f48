package di

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	domrepo "CryptoCast/internal/domain/repository"
	"CryptoCast/internal/handler/api"
	"CryptoCast/internal/handler/ws"
	internalrepo "CryptoCast/internal/repository"
	"CryptoCast/internal/service/ratelimit"
	"CryptoCast/internal/services/forecast"
	"CryptoCast/internal/services/models"
	"CryptoCast/internal/usecase"
	"CryptoCast/pkg/cache"
	pkgch "CryptoCast/pkg/clickhouse"
	"CryptoCast/pkg/config"
	xhttp "CryptoCast/pkg/http"
	pkgkafka "CryptoCast/pkg/kafka"
	applogger "CryptoCast/pkg/logger"
	"CryptoCast/pkg/metrics"
	"CryptoCast/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		MaxBackups: cfg.Logger.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served on the metrics path.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideSchema builds the feature schema; an empty feature list selects the canonical one.
func ProvideSchema(cfg *config.Config) (*forecast.Schema, error) {
	if len(cfg.Prediction.Features) == 0 {
		return forecast.DefaultSchema(), nil
	}
	return forecast.NewSchema(cfg.Prediction.Features)
}

// ProvideNormalizationConfig converts the configured range table. Ranges are ordered
// by schema position, followed by any extra features sorted by name.
func ProvideNormalizationConfig(cfg *config.Config, schema *forecast.Schema) (*forecast.NormalizationConfig, error) {
	return forecast.NewNormalizationConfig(cfg.Prediction.NormMin, cfg.Prediction.NormMax, featureRanges(cfg.Prediction.Ranges, schema.Names()))
}

func featureRanges(in map[string]config.RangeConfig, order []string) []forecast.FeatureRange {
	out := make([]forecast.FeatureRange, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, name := range order {
		if r, ok := in[name]; ok {
			out = append(out, forecast.FeatureRange{Feature: name, Min: r.Min, Max: r.Max})
			seen[name] = struct{}{}
		}
	}
	extra := make([]string, 0)
	for name := range in {
		if _, ok := seen[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		r := in[name]
		out = append(out, forecast.FeatureRange{Feature: name, Min: r.Min, Max: r.Max})
	}
	return out
}

// ProvideNormalizer creates the normalizer and counts missing-range lookups.
func ProvideNormalizer(ncfg *forecast.NormalizationConfig, schema *forecast.Schema, m domrepo.Metrics, l *applogger.Logger) *forecast.Normalizer {
	return forecast.NewNormalizer(ncfg,
		forecast.WithLogger(l),
		forecast.WithMissingRangeHook(missingRangeHook(schema, m)),
	)
}

// missingRangeHook records names outside the schema as "unknown"; they come from clients.
func missingRangeHook(schema *forecast.Schema, m domrepo.Metrics) forecast.MissingRangeHook {
	return func(op, feature string) {
		if !schema.Has(feature) {
			feature = "unknown"
		}
		m.RecordMissingRange(op, feature)
	}
}

// ProvideCompleter creates the completer for the configured policy.
func ProvideCompleter(cfg *config.Config, nz *forecast.Normalizer) (*forecast.Completer, error) {
	policy, err := forecast.ParsePolicy(cfg.Prediction.CompletionPolicy)
	if err != nil {
		return nil, err
	}
	var opts []forecast.CompleterOption
	if len(cfg.Prediction.Defaults) > 0 {
		opts = append(opts, forecast.WithDefaults(cfg.Prediction.Defaults))
	}
	return forecast.NewCompleter(policy, nz, opts...), nil
}

// ProvideModelBuilder selects how model snapshots are built from models.source.
func ProvideModelBuilder(cfg *config.Config, schema *forecast.Schema, l *applogger.Logger) (models.Builder, error) {
	switch cfg.Models.Source {
	case "http":
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Models.HTTP.Timeout))
		return models.NewRemoteBuilder(cfg.Models.HTTP.BaseURL, cfg.Prediction.Symbols, client), nil
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		src, err := models.NewS3Source(ctx, models.S3Options{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 model source: %w", err)
		}
		return models.NewArtifactBuilder(src, modelPaths(cfg), schema.Names(), l), nil
	default:
		return models.NewArtifactBuilder(models.NewFileSource(cfg.Models.Dir), modelPaths(cfg), schema.Names(), l), nil
	}
}

// modelPaths keeps only the supported symbols.
func modelPaths(cfg *config.Config) map[string]string {
	out := make(map[string]string, len(cfg.Prediction.Symbols))
	for _, s := range cfg.Prediction.Symbols {
		sym := strings.ToUpper(s)
		if p, ok := cfg.Models.Paths[sym]; ok {
			out[sym] = p
		}
	}
	return out
}

// ProvideModelRegistry creates an empty registry; the app loads it on start.
func ProvideModelRegistry(b models.Builder, l *applogger.Logger) *models.Registry {
	return models.NewRegistry(b, models.WithRegistryLogger(l))
}

// ProvidePredictor wires the normalization pipeline.
func ProvidePredictor(cfg *config.Config, schema *forecast.Schema, nz *forecast.Normalizer, c *forecast.Completer, reg *models.Registry, l *applogger.Logger) *forecast.Predictor {
	return forecast.NewPredictor(schema, nz, c, reg, cfg.Prediction.Symbols, forecast.WithPredictorLogger(l))
}

// ProvideCache creates the result cache; backend "none" yields a nil service.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	cc := cfg.Cache
	switch cc.Backend {
	case "memory":
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cc.MemorySize),
			cache.WithMemoryDefaultTTL(cc.TTL),
		), nil
	case "redis", "layered":
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(cc.Redis.Addr),
			cache.WithRedisPassword(cc.Redis.Password),
			cache.WithRedisDB(cc.Redis.DB),
			cache.WithRedisPool(cc.Redis.PoolSize, cc.Redis.PoolSize/4, 5*time.Second),
			cache.WithRedisPrefix(cc.Redis.Prefix),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		if cc.Backend == "redis" {
			return rc, nil
		}
		return cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cc.MemorySize),
			cache.WithLayeredMemoryTTL(cc.TTL/4),
		), nil
	default:
		return nil, nil
	}
}

// ProvideClickHouseClient connects to ClickHouse when it backs the recorder; otherwise nil.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Recorder.Backend != "clickhouse" {
		return nil, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithAddr(ch.Host, ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRecorder creates the prediction audit recorder for recorder.backend.
func ProvideRecorder(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (domrepo.PredictionRecorder, error) {
	switch cfg.Recorder.Backend {
	case "sqlite":
		r, err := internalrepo.NewSQLiteRecorder(cfg.SQLite.Path, l)
		if err != nil {
			return nil, fmt.Errorf("sqlite recorder: %w", err)
		}
		return r, nil
	case "clickhouse":
		r := internalrepo.NewClickHouseRecorder(ch, cfg.ClickHouse.Table, l)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ch.InitSchema(ctx, r.Schema()); err != nil {
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return r, nil
	default:
		return internalrepo.NewNoopRecorder(), nil
	}
}

// ProvideEventPublisher creates the Kafka event publisher; nil when Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config, reg *prometheus.Registry) (domrepo.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithTopic(k.Topic),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaEventPublisher(producer), nil
}

// ProvideHub creates the websocket hub; nil when websockets are disabled.
func ProvideHub(cfg *config.Config, l *applogger.Logger) *ws.Hub {
	if !cfg.WebSocket.Enabled {
		return nil
	}
	return ws.NewHub(l, cfg.WebSocket.BufferSize)
}

// ProvidePredictionService assembles the prediction use case with its side channels.
func ProvidePredictionService(
	cfg *config.Config,
	p *forecast.Predictor,
	reg *models.Registry,
	m domrepo.Metrics,
	c cache.Service,
	rec domrepo.PredictionRecorder,
	pub domrepo.EventPublisher,
	hub *ws.Hub,
	l *applogger.Logger,
) *usecase.PredictionService {
	opts := []usecase.PredictionOption{
		usecase.WithCache(c, cfg.Cache.TTL),
		usecase.WithRecorder(rec),
		usecase.WithPublisher(pub),
		usecase.WithPricePrecision(cfg.Prediction.PricePrecision),
		usecase.WithTimeout(cfg.Prediction.Timeout),
		usecase.WithServiceLogger(l),
	}
	if hub != nil {
		opts = append(opts, usecase.WithBroadcaster(hub))
	}
	return usecase.NewPredictionService(p, reg, m, opts...)
}

// ProvideModelReloader schedules registry reloads and purges stale cached results.
func ProvideModelReloader(cfg *config.Config, reg *models.Registry, svc *usecase.PredictionService, m domrepo.Metrics, l *applogger.Logger) *usecase.ModelReloader {
	return usecase.NewModelReloader(reg, svc, m, cfg.Models.ReloadSchedule, l)
}

// ProvideHTTPServer builds the Echo server with the prediction API and optional websocket feed.
func ProvideHTTPServer(cfg *config.Config, svc *usecase.PredictionService, hub *ws.Hub, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	handlers := []xhttp.Handler{api.NewPredictEchoHandler(l, svc)}
	if hub != nil {
		handlers = append(handlers, hub)
	}

	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithCORS(cfg.Server.CORSOrigins),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, cfg.Metrics.Path))
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		opts = append(opts, xhttp.WithMiddleware(ratelimit.Middleware(limiter, "/healthz", cfg.Metrics.Path, "/ws/predictions")))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp collects everything that must be closed on shutdown.
func ProvideApp(
	l *applogger.Logger,
	srv *xhttp.Server,
	reloader *usecase.ModelReloader,
	c cache.Service,
	rec domrepo.PredictionRecorder,
	pub domrepo.EventPublisher,
	ch *pkgch.Client,
	hub *ws.Hub,
) *server.App {
	var res []server.Resource
	if ch != nil {
		res = append(res, server.Resource{Name: "clickhouse", Closer: ch})
	}
	res = append(res, server.Resource{Name: "recorder", Closer: rec})
	if pub != nil {
		res = append(res, server.Resource{Name: "kafka", Closer: pub})
	}
	if c != nil {
		res = append(res, server.Resource{Name: "cache", Closer: c})
	}
	if hub != nil {
		res = append(res, server.Resource{Name: "websocket", Closer: hub})
	}
	return server.New(l, srv, reloader, res...)
}
