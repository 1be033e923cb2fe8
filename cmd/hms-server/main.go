package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/accounts"
	"github.com/hms/hms/internal/domain/clinical"
	"github.com/hms/hms/internal/domain/diagnostics"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/fixtures"
	"github.com/hms/hms/internal/platform/legacy"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/openapi"
	"github.com/hms/hms/internal/platform/tlsreload"
	"github.com/hms/hms/internal/platform/websocket"
	"github.com/hms/hms/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "hms-server",
		Short:         "Hospital management API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Logger = newLogger(os.Getenv("ENV"))
		},
	}
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "Env files to load before reading the environment (default .env)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createSuperuserCmd())
	rootCmd.AddCommand(changePasswordCmd())
	rootCmd.AddCommand(loadDataCmd())
	rootCmd.AddCommand(importLegacyCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "" || env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	files, _ := cmd.Flags().GetStringSlice("env-file")
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	// .env may have changed ENV after the logger was built.
	log.Logger = newLogger(cfg.Env)
	return cfg, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	level, err := db.ParseQueryLogLevel(cfg.DBLogLevel)
	if err != nil {
		return nil, fmt.Errorf("DB_LOG_LEVEL: %w", err)
	}
	var opts []db.PoolOption
	if level != tracelog.LogLevelNone {
		opts = append(opts, db.WithQueryLog(log.Logger, level))
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, opts...)
}

// services holds the domain services wired against one pool.
type services struct {
	tx          db.Transactor
	accounts    *accounts.Service
	identity    *identity.Service
	clinical    *clinical.Service
	diagnostics *diagnostics.Service
	scheduling  *scheduling.Service
}

func newServices(pool *pgxpool.Pool) *services {
	tx := db.NewTransactor(pool)
	accountsSvc := accounts.NewService(accounts.NewUserRepo(pool), tx)
	identitySvc := identity.NewService(identity.NewPatientRepo(pool), identity.NewDoctorRepo(pool), accountsSvc, tx)
	accountsSvc.SetProfileLoader(identitySvc)

	return &services{
		tx:          tx,
		accounts:    accountsSvc,
		identity:    identitySvc,
		clinical:    clinical.NewService(clinical.NewDiagnosisHistoryRepo(pool), clinical.NewDiagnosticRepo(pool), identitySvc),
		diagnostics: diagnostics.NewService(diagnostics.NewLabResultRepo(pool), identitySvc),
		scheduling:  scheduling.NewService(scheduling.NewAppointmentRepo(pool), identitySvc),
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

// migrationsFS returns the migrations in dir when it exists and the set
// compiled into the binary otherwise.
func migrationsFS(dir string) (fs.FS, string) {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir), dir
		}
	}
	return migrations.FS, "embedded"
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")
			to, _ := cmd.Flags().GetInt("to")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fsys, source := migrationsFS(dir)
			migrator := db.NewMigrator(pool, fsys)
			fmt.Printf("Running migrations from %s on schema: %s\n", source, schema)

			var count int
			if to > 0 {
				count, err = migrator.UpTo(ctx, schema, to)
			} else {
				count, err = migrator.Up(ctx, schema)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR, then the embedded set)")
	upCmd.Flags().Int("to", 0, "Stop after applying this version")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fsys, _ := migrationsFS(dir)
			statuses, err := db.NewMigrator(pool, fsys).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR, then the embedded set)")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a backup or write a forward migration that reverts the change.")
			return nil
		},
	})

	return cmd
}

func createSuperuserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			firstName, _ := cmd.Flags().GetString("first-name")
			lastName, _ := cmd.Flags().GetString("last-name")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("HMS_SUPERUSER_PASSWORD")
			}
			if email == "" || password == "" {
				return fmt.Errorf("--email and a password (--password or HMS_SUPERUSER_PASSWORD) are required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			u, err := newServices(pool).accounts.CreateSuperuser(ctx, accounts.UserInput{
				Email:     email,
				Password:  password,
				FirstName: firstName,
				LastName:  lastName,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Superuser %s created (id %s).\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email address (login)")
	cmd.Flags().String("first-name", "", "First name")
	cmd.Flags().String("last-name", "", "Last name")
	cmd.Flags().String("password", "", "Password (prefer HMS_SUPERUSER_PASSWORD)")
	return cmd
}

func changePasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changepassword",
		Short: "Set a user's password from HMS_NEW_PASSWORD",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password := os.Getenv("HMS_NEW_PASSWORD")
			if email == "" || password == "" {
				return fmt.Errorf("--email and HMS_NEW_PASSWORD are required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newServices(pool).accounts
			u, err := svc.GetUserByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("find user %s: %w", email, err)
			}
			if err := svc.SetPassword(ctx, u.ID, password); err != nil {
				return err
			}
			fmt.Printf("Password changed for %s.\n", u.Email)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email address of the user")
	return cmd
}

func loadDataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "loaddata <file.yaml>...",
		Short: "Load YAML fixtures through the domain services",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]*fixtures.File, 0, len(args))
			for _, name := range args {
				f, err := parseFixture(name)
				if err != nil {
					return err
				}
				files = append(files, f)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newServices(pool)
			loader := fixtures.NewLoader(fixtures.Services{
				Users:        svc.accounts,
				Identity:     svc.identity,
				Clinical:     svc.clinical,
				Labs:         svc.diagnostics,
				Appointments: svc.scheduling,
			}, svc.tx)
			summary, err := loader.Load(ctx, files...)
			if err != nil {
				return err
			}
			printCounts(summary)
			return nil
		},
	}
}

func parseFixture(name string) (*fixtures.File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	parsed, err := fixtures.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return parsed, nil
}

func printCounts(counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-22s %d\n", name, counts[name])
	}
}

func importLegacyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Copy records from the previous MySQL deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dsn, _ := cmd.Flags().GetString("dsn")
			if dsn == "" {
				dsn = cfg.LegacyMySQLDSN
			}
			if dsn == "" {
				return fmt.Errorf("--dsn or LEGACY_MYSQL_DSN is required")
			}

			ctx := cmd.Context()
			reader, err := legacy.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer reader.Close()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			report, err := legacy.NewImporter(reader, pool, db.NewTransactor(pool)).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-22s %8s %8s %8s\n", "TABLE", "READ", "INSERTED", "SKIPPED")
			for _, table := range legacy.Tables {
				c := report[table]
				fmt.Printf("%-22s %8d %8d %8d\n", table, c.Read, c.Inserted, c.Skipped)
			}
			return nil
		},
	}
	cmd.Flags().String("dsn", "", "MySQL DSN of the legacy database (default LEGACY_MYSQL_DSN)")
	return cmd
}

// resolveSigningKey returns the configured token signing key. Without one,
// which Validate only allows in development auth mode, a random key is
// generated and the second return value is true.
func resolveSigningKey(cfg *config.Config) ([]byte, bool, error) {
	if cfg.AuthSigningKey != "" {
		key, err := cfg.SigningKey()
		return key, false, err
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}

func runServer(cfg *config.Config) error {
	logger := log.Logger

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svc := newServices(pool)

	// Tokens
	signingKey, randomKey, err := resolveSigningKey(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("signing key error")
	}
	if randomKey {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set; using random key (tokens will not survive restart)")
	}
	issuer := auth.NewTokenIssuer(signingKey, cfg.AuthIssuer, cfg.AuthTokenTTL)
	revocations := auth.NewTokenRevocationStore(cfg.AuthTokenTTL)
	defer revocations.Close()
	svc.accounts.SetTokenIssuer(issuer)
	svc.accounts.SetRevocationStore(revocations)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierr.ErrorHandler(e)

	metrics := middleware.NewMetrics()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(middleware.BodyLimit("2M"))
	e.Use(metrics.Middleware())

	// Auth middleware
	jwtCfg := issuer.Config()
	jwtCfg.Skipper = auth.AuthSkipper
	jwtCfg.Revocations = revocations
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	rateLimitCfg.OnReject = metrics.IncRateLimitRejectionsTotal
	limiter := middleware.NewRateLimiter(rateLimitCfg)
	defer limiter.Close()
	apiV1.Use(limiter.Middleware())
	apiV1.Use(middleware.RequestTimeout(30 * time.Second))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	// Live appointment board
	hub := websocket.NewHub()
	hub.OnClientCount(metrics.SetWebSocketClients)
	websocket.NewHandler(hub, cfg.CORSOrigins, scheduling.CanSubscribe).RegisterRoutes(apiV1)
	svc.scheduling.SetPublisher(hub)
	svc.scheduling.SetMetrics(metrics)

	// Domain handlers
	accounts.NewHandler(svc.accounts).RegisterRoutes(apiV1)
	identity.NewHandler(svc.identity).RegisterRoutes(apiV1)
	clinical.NewHandler(svc.clinical).RegisterRoutes(apiV1)
	diagnostics.NewHandler(svc.diagnostics).RegisterRoutes(apiV1)
	scheduling.NewHandler(svc.scheduling).RegisterRoutes(apiV1)

	// OpenAPI document
	scheme := "http"
	if cfg.TLSEnabled {
		scheme = "https"
	}
	docs := openapi.NewGenerator("HMS API", version, fmt.Sprintf("%s://localhost:%s/api/v1", scheme, cfg.Port))
	docs.Add(apiResources()...)
	docs.RegisterRoutes(apiV1)

	// Graceful shutdown
	addr := ":" + cfg.Port
	if cfg.TLSEnabled {
		certs, err := tlsreload.New(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load TLS certificate")
		}
		defer certs.Close()
		e.TLSServer.Addr = addr
		e.TLSServer.TLSConfig = certs.ServerConfig()
		go func() {
			logger.Info().Str("addr", addr).Msg("starting TLS server")
			if err := e.StartServer(e.TLSServer); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Msg("server error")
			}
		}()
	} else {
		go func() {
			logger.Info().Str("addr", addr).Msg("starting server")
			if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Msg("server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
