// cmd/tripgen-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tripgen/internal/api"
	"tripgen/internal/chat"
	"tripgen/internal/common/auth"
	"tripgen/internal/common/aws"
	"tripgen/internal/common/camunda"
	"tripgen/internal/common/config"
	"tripgen/internal/common/database"
	"tripgen/internal/common/logger"
	"tripgen/internal/common/observability"
	"tripgen/internal/export"
	"tripgen/internal/llm"
	"tripgen/internal/search"
	"tripgen/internal/share"
	"tripgen/internal/store"
	"tripgen/internal/tools"
	"tripgen/internal/tripindex"
	"tripgen/internal/trips"

	gi "tripgen/internal/workers/itinerary/generate-itinerary"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	zapLog.Info("Starting tripgen server...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name, cfg.Tracing, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, pg.DB); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("Schema is up to date")
	}

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]api.Pinger{"postgres": pg, "redis": rdb}

	// --- Init Elasticsearch (optional) ---
	var index trips.SearchIndex
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, trip search falls back to postgres", zap.Error(err))
		} else {
			tripIndex := tripindex.New(esClient.Client, cfg.Database.Elasticsearch.TripIndex, log)
			if err := tripIndex.EnsureIndex(ctx); err != nil {
				zapLog.Warn("failed to create trip index", zap.Error(err))
			}
			index = tripIndex
			checks["elasticsearch"] = esClient
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Repositories and external clients ---
	repos := store.New(pg.DB, log)

	llmClient, err := llm.New(ctx, cfg.APIs.LLM, log)
	if err != nil {
		zapLog.Fatal("llm client init failed", zap.Error(err))
	}

	searchCache := search.NewCache(rdb.Client, config.GetDuration(cfg.APIs.WebSearch.CacheTTL), log)
	searcher := search.NewClient(cfg.APIs.WebSearch, searchCache, log)

	// --- Chat ---
	turnTimeout := config.GetDuration(cfg.Chat.TurnTimeout)
	turnLock := chat.NewTurnLock(rdb.Client, turnTimeout+30*time.Second)
	chatService := chat.NewService(cfg.Chat, chat.Deps{
		LLM:      llmClient,
		Trips:    repos.Trips,
		Messages: repos.Messages,
		Sheets:   repos.Versions,
		Tools:    tools.NewDispatcher(searcher, repos.Versions, log),
		Searcher: searcher,
		Limiter:  chat.NewRateLimiter(rdb.Client, cfg.Chat.RateLimitPerMinute),
		Locker:   turnLock,
		Obs:      obs,
	}, log)

	// --- Sharing ---
	var (
		emailSender share.EmailSender
		smsSender   share.SMSSender
	)
	awsCfg := cfg.Integrations.AWS
	if awsCfg.SES.Enabled {
		sesClient, err := aws.NewSESClient(ctx, awsCfg.Region, awsCfg.SES.FromEmail)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		emailSender = sesClient
	}
	if awsCfg.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, awsCfg.Region, awsCfg.SNS.DefaultSMSSenderID)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		smsSender = snsClient
	}
	shareService := share.NewService(repos.Trips, emailSender, smsSender, cfg.Sharing.PublicBaseURL, log)

	// --- Export ---
	var exporter trips.Exporter
	if cfg.Integrations.GoogleSheets.Enabled {
		sheetsExporter, err := export.NewSheetsExporter(ctx, cfg.Integrations.GoogleSheets.CredentialsFile, log)
		if err != nil {
			zapLog.Fatal("google sheets exporter init failed", zap.Error(err))
		}
		exporter = sheetsExporter
	}

	// --- Itinerary generation: Zeebe process or in-process goroutine ---
	var (
		launcher    trips.Launcher
		localLaunch *trips.LocalLauncher
		zeebeClient *camunda.Client
		genWorker   *camunda.CamundaWorker
	)
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebeClient, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
		checks["zeebe"] = pingFunc(zeebeClient.HealthCheck)

		launcher = trips.NewProcessLauncher(zeebeClient, cfg.Camunda.ProcessID, log)

		if wcfg := config.GetWorkerConfig(cfg, gi.TaskType); wcfg.Enabled {
			handlerCfg := gi.LoadConfig(wcfg)
			handler := gi.NewHandler(handlerCfg, chatService, obs, log)
			genWorker = camunda.NewWorker(zeebeClient.GetClient(), gi.TaskType,
				handlerCfg.MaxJobsActive, handlerCfg.Timeout, handler, log)
		} else {
			zapLog.Info("worker disabled", zap.String("taskType", gi.TaskType))
		}
	} else {
		localLaunch = trips.NewLocalLauncher(chatService, turnTimeout, log)
		launcher = localLaunch
	}

	// --- Auth ---
	googleCfg := cfg.Auth.Google
	authService := auth.NewService(
		auth.NewGoogleClient(googleCfg.ClientID, googleCfg.ClientSecret, googleCfg.RedirectURL, cfg.Auth.UserInfoURL),
		auth.NewStateStore(rdb.Client, config.GetDuration(cfg.Auth.StateTTL)),
		auth.NewSessions(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, config.GetDuration(cfg.Auth.SessionTTL), rdb.Client),
		repos.Users,
		log,
	)

	// --- Trips ---
	tripService := trips.NewService(trips.Deps{
		Trips:     repos.Trips,
		Messages:  repos.Messages,
		Versions:  repos.Versions,
		Validator: chat.NewValidator(llmClient, log),
		Index:     index,
		Exporter:  exporter,
		Launcher:  launcher,
		Locker:    turnLock,
	}, log)

	server := api.NewServer(cfg.Server, api.Deps{
		Auth:   authService,
		Users:  repos.Users,
		Trips:  tripService,
		Chat:   chatService,
		Share:  shareService,
		Checks: checks,

		SharedLimiter: chat.NewScopedRateLimiter(rdb.Client, "shared", cfg.Sharing.RateLimitPerMinute),
	}, log)

	zapLog.Info("All services initialized")

	// --- Serve until signalled ---
	if err := server.Run(ctx); err != nil {
		zapLog.Error("http server failed", zap.Error(err))
	}

	zapLog.Info("Shutdown signal received, stopping...")
	if genWorker != nil {
		genWorker.Stop()
	}
	if localLaunch != nil {
		localLaunch.Wait()
	}
	if zeebeClient != nil {
		if err := zeebeClient.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("tripgen server stopped gracefully")
}
