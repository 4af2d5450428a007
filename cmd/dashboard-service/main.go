package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/healthreport/pkg/analytics/dashboard"
	"github.com/synaptica-ai/healthreport/pkg/common/config"
	"github.com/synaptica-ai/healthreport/pkg/common/database"
	"github.com/synaptica-ai/healthreport/pkg/common/kafka"
	"github.com/synaptica-ai/healthreport/pkg/common/logger"
	"github.com/synaptica-ai/healthreport/pkg/gateway/middleware"
	"github.com/synaptica-ai/healthreport/pkg/ingestion"
	"github.com/synaptica-ai/healthreport/pkg/ml/linear"
	"github.com/synaptica-ai/healthreport/pkg/observability/metrics"
	"github.com/synaptica-ai/healthreport/pkg/storage"
)

const sourcePostgres = "postgres"

func main() {
	logger.Init()
	cfg := config.Load()

	catalog, err := dashboard.LoadCatalog(cfg.CategoryCatalogPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load category catalog")
	}

	readOpts := ingestion.Options{SkipInvalid: cfg.SkipInvalidRows}
	if cfg.PredictionWeightsPath != "" {
		artifact, err := linear.LoadArtifact(cfg.PredictionWeightsPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to load prediction weights")
		}
		readOpts.Scorer = artifact
	}

	var cache dashboard.SummaryCache
	if cfg.SummaryCacheTTL > 0 {
		cache = storage.NewSummaryCache(database.GetRedis(cfg), cfg.SummaryCacheTTL)
		defer database.CloseRedis()
	}

	var (
		loader  dashboard.DatasetLoader
		presets dashboard.PresetStore
		store   *storage.RecordStore
	)

	db, dbErr := database.GetPostgres(cfg)
	if dbErr == nil {
		defer database.ClosePostgres()
		repo := dashboard.NewPresetRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate preset tables")
		}
		presets = repo
	}

	if cfg.DatasetSource == sourcePostgres {
		if dbErr != nil {
			logger.Log.WithError(dbErr).Fatal("failed to connect to postgres")
		}
		store = storage.NewRecordStore(db)
		if err := store.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate dataset tables")
		}
		loader = store
	} else {
		if dbErr != nil {
			logger.Log.WithError(dbErr).Warn("postgres unavailable, filter presets disabled")
		}
		loader = ingestion.FileSource{Path: cfg.DatasetPath, Format: cfg.DatasetSource, Options: readOpts}
	}

	svc := dashboard.NewService(loader, cache, presets, dashboard.Settings{
		Catalog:     catalog,
		TopDoctors:  cfg.TopDoctors,
		AtRiskLimit: cfg.AtRiskLimit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Reload(ctx); err != nil {
		if !errors.Is(err, storage.ErrNoDataset) {
			logger.Log.WithError(err).Fatal("failed to load dataset")
		}
		logger.Log.Warn("no dataset stored yet, waiting for the first load")
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.Info(); err != nil {
			http.Error(w, `{"status":"loading"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	queries := api.NewRoute().Subrouter()
	queries.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	dashboard.NewHTTPHandler(svc).Register(queries)

	if store != nil {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.DatasetTopic)
		defer producer.Close()

		runs := ingestion.NewRepository(db)
		if err := runs.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate load history tables")
		}
		loads := ingestion.NewService(ingestion.NewValidator(cfg.AllowedSources), runs, store, producer, readOpts, cfg.LoadHistoryTTL)
		ingestion.NewHTTPHandler(loads, cfg.MaxDatasetBytes).Register(api)

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.DatasetTopic, kafka.ReplicaGroupID(cfg.KafkaGroupID))
		defer consumer.Close()
		go func() {
			if err := consumer.Consume(ctx, svc.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.WithError(err).Error("dataset event consumer stopped")
			}
		}()

		go func() {
			ticker := time.NewTicker(12 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := loads.Cleanup(ctx); err != nil {
						logger.Log.WithError(err).Warn("load history cleanup failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var handler http.Handler = router
	handler = middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Logging(handler)
	handler = middleware.Recovery(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":   cfg.ServerHost,
			"port":   cfg.ServerPort,
			"source": cfg.DatasetSource,
		}).Info("Dashboard Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Dashboard Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Dashboard Service stopped")
}
