package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"waste-patrol-service/internal/auth"
	"waste-patrol-service/internal/blobstore"
	"waste-patrol-service/internal/codegen"
	"waste-patrol-service/internal/config"
	"waste-patrol-service/internal/db"
	"waste-patrol-service/internal/domain/detection"
	httphandler "waste-patrol-service/internal/http"
	"waste-patrol-service/internal/logger"
	"waste-patrol-service/internal/metrics"
	"waste-patrol-service/internal/repository"
	"waste-patrol-service/internal/service"
)

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		c, err := metrics.NewCollector()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		collector = c
	}

	store, codes, err := openStore(cfg, log, &closers)
	if err != nil {
		return err
	}

	blobs, err := openBlobStore(ctx, cfg.Storage, &closers)
	if err != nil {
		return err
	}
	cleaner := blobstore.NewCleaner(blobs, log.With().Str("component", "blob_cleaner").Logger(),
		cfg.Reports.CleanupQueueSize, collector.BlobCleanupFailures())

	reports := service.NewReportService(store, codes, service.Options{
		Thresholds:   cfg.Reports.Severity.Thresholds(),
		AreaPolicy:   detection.AreaPolicy(cfg.Reports.AreaPolicy),
		PublicPolicy: service.PublicPolicy(cfg.Reports.PublicPolicy),
		Cleaner:      cleaner,
		Metrics:      collector,
	}, log.With().Str("component", "reports").Logger())
	submissions := service.NewSubmissionService(reports, blobs,
		service.NewDetectorClient(cfg.Detector.URL, cfg.Detector.Timeout), collector,
		log.With().Str("component", "submissions").Logger())

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(log))
	if collector != nil {
		r.Use(collector.Middleware())
		r.GET("/metrics", gin.WrapH(collector.Handler()))
	}
	r.Use(cors.New(corsConfig(cfg.HTTP.CORSOrigins)))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Storage.Backend == "local" {
		r.Static("/uploads", cfg.Storage.LocalDir)
	}
	httphandler.NewHandler(reports, submissions, blobs, cfg.HTTP, log).Register(r, verifier.Middleware(), verifier.Optional())

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		if err := cleaner.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("blob cleaner did not drain")
		}
		return nil
	})
	return g.Wait()
}

func openStore(cfg *config.Config, log zerolog.Logger, closers *[]io.Closer) (repository.Store, codegen.Allocator, error) {
	var (
		store repository.Store
		codes codegen.Allocator
	)
	switch cfg.Database.Driver {
	case "postgres":
		gdb, err := db.Connect(cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, sqlDB)
		store = repository.NewReportRepository(gdb)
		codes = repository.NewSequenceAllocator(gdb)
	default:
		log.Warn().Msg("using in-memory report store; data is lost on restart")
		store = repository.NewMemoryStore()
		codes = codegen.NewCounter(0)
	}

	if cfg.Reports.CodeAllocator == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		*closers = append(*closers, client)
		codes = codegen.NewRedisAllocator(client, cfg.Redis.CodeKey)
	}
	return store, codes, nil
}

func openBlobStore(ctx context.Context, cfg config.StorageConfig, closers *[]io.Closer) (blobstore.Store, error) {
	switch cfg.Backend {
	case "gcs":
		s, err := blobstore.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, s)
		return s, nil
	case "ftp":
		s := blobstore.NewFTPStore(cfg.FTPAddr, cfg.FTPUser, cfg.FTPPassword, cfg.FTPRoot, cfg.PublicBaseURL)
		*closers = append(*closers, s)
		return s, nil
	default:
		return blobstore.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization")
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	c.MaxAge = 12 * time.Hour
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
