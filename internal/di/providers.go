package di

import (
	"context"
	"fmt"
	"time"

	domrepo "SignalRelay/internal/domain/repository"
	domsvc "SignalRelay/internal/domain/service"
	"SignalRelay/internal/handler/api"
	internalrepo "SignalRelay/internal/repository"
	"SignalRelay/internal/service/ratelimit"
	"SignalRelay/internal/services/channels"
	"SignalRelay/internal/services/decoder"
	"SignalRelay/internal/usecase"
	"SignalRelay/pkg/cache"
	pkgch "SignalRelay/pkg/clickhouse"
	"SignalRelay/pkg/config"
	xhttp "SignalRelay/pkg/http"
	pkgkafka "SignalRelay/pkg/kafka"
	applogger "SignalRelay/pkg/logger"
	"SignalRelay/pkg/metrics"
	"SignalRelay/pkg/push/snspush"
	"SignalRelay/pkg/push/webpush"
	"SignalRelay/pkg/queue"
	"SignalRelay/pkg/server"

	"github.com/redis/go-redis/v9"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// ProvideLogger creates the application logger. When log collection is enabled the
// aggregated error logs are shipped through the Kafka producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collect && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectInterval,
			CountThreshold: cfg.Log.CollectCount,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(nil)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
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
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the ingest consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.IngestTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerHandleTimeout(cfg.Kafka.Consumer.HandleTimeout),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisClient connects to Redis, or returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ProvideDirectory opens the SQLite subscriber directory and applies migrations.
func ProvideDirectory(cfg *config.Config, log *applogger.Logger) (*internalrepo.SQLiteDirectory, error) {
	dir, err := internalrepo.NewSQLiteDirectory(internalrepo.SQLiteOptions{
		Path:         cfg.Directory.Path,
		MaxReadConns: cfg.Directory.MaxReadConns,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("subscriber directory: %w", err)
	}
	return dir, nil
}

// ProvideClickHouseClient creates a ClickHouse client and its history table, or nil
// when history is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.History.Host),
		pkgch.WithPort(cfg.History.Port),
		pkgch.WithDatabase(cfg.History.Database),
		pkgch.WithCredentials(cfg.History.User, cfg.History.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.History.UseHTTP),
		pkgch.WithAsyncInsert(cfg.History.AsyncInsert, cfg.History.WaitForAsync),
		pkgch.WithTimeouts(cfg.History.DialTimeout, cfg.History.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.History.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx, internalrepo.HistorySchema(cfg.History.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideHistory returns the alert history sink, or nil when history is disabled.
func ProvideHistory(ch *pkgch.Client, cfg *config.Config) domrepo.AlertHistory {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseHistory(ch.DB(), cfg.History.Table)
}

// ProvideEvents returns the alert event publisher, or nil when Kafka is disabled.
func ProvideEvents(producer *pkgkafka.Producer, cfg *config.Config) domrepo.EventPublisher {
	if producer == nil || cfg.Kafka.EventsTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaEvents(producer, cfg.Kafka.EventsTopic)
}

// ProvideDedupCache backs the duplicate guard with Redis when available and an
// in-process cache otherwise.
func ProvideDedupCache(rc *redis.Client, cfg *config.Config) cache.Service {
	if rc != nil {
		return cache.NewRedisCacheFromClient(rc, cfg.Redis.Prefix)
	}
	return cache.NewMemoryCache(cache.WithMemoryMaxSize(10_000))
}

func ProvideDedup(c cache.Service) domrepo.Deduplicator {
	return internalrepo.NewCacheDedup(c)
}

// ProvideChannels builds one channel per enabled push provider.
func ProvideChannels(cfg *config.Config) ([]domsvc.Channel, error) {
	var out []domsvc.Channel

	if cfg.Push.SNS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := snspush.New(ctx,
			snspush.WithRegion(cfg.Push.SNS.Region),
			snspush.WithPlatformApplication(cfg.Push.SNS.PlatformApplicationARN),
			snspush.WithEndpoint(cfg.Push.SNS.Endpoint),
			snspush.WithAPNSSandbox(cfg.Push.SNS.APNSSandbox),
		)
		if err != nil {
			return nil, fmt.Errorf("sns push: %w", err)
		}
		out = append(out, channels.NewMobilePush(client, cfg.Push.SNS.AndroidChannelID))
	}

	if cfg.Push.WebPush.Enabled {
		client, err := webpush.New(
			webpush.WithVAPIDKeys(cfg.Push.WebPush.VAPIDPublicKey, cfg.Push.WebPush.VAPIDPrivateKey),
			webpush.WithSubscriber(cfg.Push.WebPush.Subscriber),
			webpush.WithTTL(cfg.Push.WebPush.TTL),
			webpush.WithUrgency(cfg.Push.WebPush.Urgency),
			webpush.WithTimeout(cfg.Push.WebPush.Timeout),
			webpush.WithHTTPClient(xhttp.NewClient(
				xhttp.WithTimeout(cfg.Push.WebPush.Timeout),
				xhttp.WithUserAgent("SignalRelay/"+Version),
			)),
		)
		if err != nil {
			return nil, fmt.Errorf("web push: %w", err)
		}
		out = append(out, channels.NewWebPush(client, cfg.Push.WebPush.Icon))
	}
	return out, nil
}

// ProvideDirectoryInvalidator applies invalidations straight to the directory.
func ProvideDirectoryInvalidator(dir *internalrepo.SQLiteDirectory, m domrepo.Metrics, log *applogger.Logger, cfg *config.Config) *usecase.DirectoryInvalidator {
	return usecase.NewDirectoryInvalidator(dir, cfg.Dispatch.InvalidationTimeout, m, log)
}

// ProvideJobQueue creates the Redis job queue that retries invalidations, or nil
// when Redis is disabled.
func ProvideJobQueue(rc *redis.Client, cfg *config.Config, log *applogger.Logger, inv *usecase.DirectoryInvalidator) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Redis.Queue.Workers,
		RetryLimit: cfg.Redis.Queue.RetryLimit,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
		JobTimeout: cfg.Dispatch.InvalidationTimeout,
	}, rc, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJob(usecase.NewInvalidationJob(inv))
	return q
}

// ProvideInvalidator prefers the durable queue path when Redis is available.
func ProvideInvalidator(q *queue.RedisQueue, direct *usecase.DirectoryInvalidator, log *applogger.Logger) domsvc.Invalidator {
	if q == nil {
		return direct
	}
	return usecase.NewQueueInvalidator(q, direct, log)
}

func ProvideDispatcher(cfg *config.Config, chans []domsvc.Channel, inv domsvc.Invalidator, m domrepo.Metrics, log *applogger.Logger) *usecase.Dispatcher {
	return usecase.NewDispatcher(usecase.DispatcherConfig{
		Workers:     cfg.Dispatch.Workers,
		RunTimeout:  cfg.Dispatch.RunTimeout,
		SendTimeout: cfg.Dispatch.SendTimeout,
	}, chans, inv, m, log)
}

// ProvideIngest assembles the ingest use case. Optional sinks are attached only when present.
func ProvideIngest(
	cfg *config.Config,
	dir *internalrepo.SQLiteDirectory,
	disp *usecase.Dispatcher,
	m domrepo.Metrics,
	log *applogger.Logger,
	history domrepo.AlertHistory,
	events domrepo.EventPublisher,
	dedup domrepo.Deduplicator,
) *usecase.Ingest {
	opts := []usecase.IngestOption{usecase.WithDedup(dedup, cfg.Redis.DedupTTL)}
	if history != nil {
		opts = append(opts, usecase.WithHistory(history))
	}
	if events != nil {
		opts = append(opts, usecase.WithEvents(events))
	}
	return usecase.NewIngest(decoder.New(), dir, disp, m, log, opts...)
}

// ProvideKafkaAlertsHandler consumes the ingest topic, or is nil when Kafka is disabled.
func ProvideKafkaAlertsHandler(ingest *usecase.Ingest, consumer *pkgkafka.Consumer, cfg *config.Config) pkgkafka.MessageHandler {
	if consumer == nil {
		return nil
	}
	return usecase.NewKafkaAlertsHandler(cfg.Kafka.IngestTopic, ingest)
}

func ProvideWebhookHandler(
	cfg *config.Config,
	log *applogger.Logger,
	ingest *usecase.Ingest,
	dir *internalrepo.SQLiteDirectory,
	history domrepo.AlertHistory,
	q *queue.RedisQueue,
) *api.WebhookEchoHandler {
	opts := []api.WebhookOption{
		api.WithBanner("SignalRelay", Version),
		api.WithHealthCheck("directory", dir),
	}
	if history != nil {
		opts = append(opts, api.WithHealthCheck("history", history))
	}
	if q != nil {
		opts = append(opts, api.WithHealthCheck("redis", q))
	}
	if cfg.RateLimit.Enabled {
		opts = append(opts, api.WithWebhookLimit(api.RateLimit(ratelimit.New(), cfg.RateLimit.Burst, cfg.RateLimit.PerSecond)))
	}
	return api.NewWebhookEchoHandler(log, ingest, opts...)
}

func ProvideHTTPServer(cfg *config.Config, log *applogger.Logger, h *api.WebhookEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(log, []xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(cfg.Server.BodyLimit),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithMetrics(metricsPath, nil),
	)
}

// ProvideResources lists what shutdown closes, in order: sinks first, stores last.
func ProvideResources(
	log *applogger.Logger,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	dir *internalrepo.SQLiteDirectory,
	dedupCache cache.Service,
	rc *redis.Client,
) server.Resources {
	var res server.Resources
	// The collector publishes through the producer, so it goes first.
	res = append(res, server.Closer{Name: "log collector", Close: func() error { log.RemoveCollector(); return nil }})
	if producer != nil {
		res = append(res, server.Closer{Name: "kafka producer", Close: producer.Close})
	}
	if ch != nil {
		res = append(res, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	res = append(res, server.Closer{Name: "subscriber directory", Close: dir.Close})
	if mc, ok := dedupCache.(*cache.MemoryCache); ok {
		res = append(res, server.Closer{Name: "dedup cache", Close: mc.Close})
	}
	if rc != nil {
		res = append(res, server.Closer{Name: "redis", Close: rc.Close})
	}
	return res
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	q *queue.RedisQueue,
	inv *usecase.DirectoryInvalidator,
	res server.Resources,
) *server.App {
	return server.New(cfg, log, httpServer, consumer, kh, q, inv, res)
}
