package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinref/clinref/internal/config"
	"github.com/clinref/clinref/internal/domain/authority"
	"github.com/clinref/clinref/internal/domain/member"
	"github.com/clinref/clinref/internal/domain/payer"
	"github.com/clinref/clinref/internal/domain/prescription"
	"github.com/clinref/clinref/internal/domain/reflist"
	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/auth"
	"github.com/clinref/clinref/internal/platform/cache"
	"github.com/clinref/clinref/internal/platform/db"
	"github.com/clinref/clinref/internal/platform/middleware"
	"github.com/clinref/clinref/internal/platform/telemetry"
	"github.com/clinref/clinref/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinref-server",
		Short: "Clinical reference data and prescription intake API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, schema, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, schema, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatuses(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
		c.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	}
	return cmd
}

func openMigrator(cmd *cobra.Command) (*db.Migrator, string, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", nil, err
	}
	schema, _ := cmd.Flags().GetString("schema")
	if schema == "" {
		schema = cfg.DBSchema
	}

	pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, "")
	if err != nil {
		return nil, "", nil, err
	}

	return db.NewMigrator(pool, migrationsFS(cmd)), schema, pool.Close, nil
}

func migrationsFS(cmd *cobra.Command) fs.FS {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func printStatuses(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	tel, err := telemetry.NewTelemetryProvider(ctx, telemetry.TelemetryConfig{
		ServiceName:    "clinref-server",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Environment:    cfg.Env,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	tel.Install()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	var listCache cache.Cache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, list cache disabled")
		} else {
			defer client.Close()
			listCache = cache.NewRedisCache(client, "clinref")
			logger.Info().Dur("ttl", cfg.CacheTTL).Msg("list cache enabled")
		}
	}

	e := newServer(cfg, logger, pool, listCache, tel)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with middleware and every route. A
// nil listCache disables list caching.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, listCache cache.Cache, tel *telemetry.TelemetryProvider) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger, cfg.ShowErrorDetails())

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(tel.TracingMiddleware())
	e.Use(tel.MetricsMiddleware())

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", tel.PrometheusHandler())
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
		if err := tel.RegisterPoolStats(func() (int32, int32, int32) {
			s := pool.Stat()
			return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
		}); err != nil {
			logger.Warn().Err(err).Msg("failed to register pool metrics")
		}
	}

	tx := db.NewTxManager(pool)
	lookup := ingest.NewPGLookup(pool)
	opts := []ingest.Option{
		ingest.WithMaxBatch(cfg.MaxBatchSize),
		ingest.WithLogger(logger),
		ingest.WithRecorder(tel),
	}

	api := e.Group("/api/v1")

	var listRepo reflist.Repository = reflist.NewListRepoPG(pool)
	if listCache != nil {
		listRepo = reflist.NewCachedRepo(listRepo, listCache, cfg.CacheTTL, logger)
	}
	reflist.NewHandler(reflist.NewService(listRepo, lookup, tx, opts...)).RegisterRoutes(api)

	member.NewDiagnosisHandler(member.NewDiagnosisService(member.NewDiagnosisRepoPG(pool), lookup, tx, opts...)).RegisterRoutes(api)
	member.NewDrugHandler(member.NewDrugService(member.NewDrugRepoPG(pool), lookup, tx, opts...)).RegisterRoutes(api)
	member.NewClinicianHandler(member.NewClinicianService(member.NewClinicianRepoPG(pool), lookup, tx, opts...)).RegisterRoutes(api)

	authority.NewHandler(authority.NewService(
		authority.NewAuthorityRepoPG(pool), authority.NewConfigRepoPG(pool), lookup, tx, opts...,
	)).RegisterRoutes(api)
	payer.NewHandler(payer.NewService(payer.NewPayerRepoPG(pool), lookup, tx, opts...)).RegisterRoutes(api)

	prescription.NewHandler(prescription.NewService(
		prescription.NewRepoPG(pool), lookup, tx,
		prescription.WithLogger(logger),
		prescription.WithRecorder(tel),
	)).RegisterRoutes(api)

	return e
}
