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

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitea.kood.tech/petrkubec/soulmate/backend/config"
	"gitea.kood.tech/petrkubec/soulmate/backend/logger"
	"gitea.kood.tech/petrkubec/soulmate/backend/media"
	"gitea.kood.tech/petrkubec/soulmate/backend/metrics"
	"gitea.kood.tech/petrkubec/soulmate/backend/querycache"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

var (
	configPath  string
	seedCount   int
	seedValue   int64
	skipMigrate bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "soulmate",
		Short:        "SoulMate matrimonial backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("APP_CONFIG", "config.yaml"), "path to the YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  func(cmd *cobra.Command, args []string) error { return runServe(cmd.Context()) },
	}
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply the schema on start")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE:  func(cmd *cobra.Command, args []string) error { return runMigrate(cmd.Context()) },
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo members with profiles",
		RunE:  func(cmd *cobra.Command, args []string) error { return runSeed(cmd.Context(), seedCount, seedValue) },
	}
	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 24, "number of members to create")
	seedCmd.Flags().Int64Var(&seedValue, "seed", 1, "random seed")

	root.AddCommand(serveCmd, migrateCmd, seedCmd)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// bootstrap loads config and builds the logger shared by every command.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func runServe(parent context.Context) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg, log, !skipMigrate)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := metrics.New("soulmate")
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	photos, err := newPhotoStorage(cfg)
	if err != nil {
		return err
	}

	app := newApp(appDeps{
		Config:  cfg,
		Store:   store.NewPostgres(db),
		Photos:  photos,
		Log:     log,
		Metrics: m,
	})

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		bus := querycache.NewBus(client, cfg.Redis.Channel, log.Named("bus"))
		app.cache.SetPublisher(bus)
		go func() {
			if err := bus.Run(ctx, app.cache); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("invalidation bus stopped", zap.Error(err))
			}
		}()
	} else {
		log.Info("redis not configured, cache invalidation stays local")
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      app.routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting SoulMate backend", zap.String("addr", cfg.HTTP.Addr), zap.String("env", cfg.Env))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown http server", zap.Error(err))
			return err
		}
		log.Info("http server stopped")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			return err
		}
		return nil
	}
}

// newPhotoStorage picks S3 when an endpoint is configured, local disk
// otherwise.
func newPhotoStorage(cfg config.Config) (media.Storage, error) {
	if cfg.S3.Endpoint == "" {
		return media.NewDiskStorage(cfg.Uploads.Dir, cfg.Uploads.URLPrefix)
	}
	return media.NewS3Storage(media.S3Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		UseSSL:    cfg.S3.UseSSL,
		PublicURL: cfg.S3.PublicURL,
	})
}

func runMigrate(ctx context.Context) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	db, err := openDB(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	return db.Close()
}
