package main

import (
	"context"
	"fmt"
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

	"github.com/therakit/therakit/internal/config"
	"github.com/therakit/therakit/internal/domain/appointment"
	"github.com/therakit/therakit/internal/domain/maintenance"
	"github.com/therakit/therakit/internal/domain/patient"
	"github.com/therakit/therakit/internal/domain/reconcile"
	"github.com/therakit/therakit/internal/domain/reschedule"
	"github.com/therakit/therakit/internal/domain/template"
	"github.com/therakit/therakit/internal/platform/availability"
	"github.com/therakit/therakit/internal/platform/db"
	"github.com/therakit/therakit/internal/platform/middleware"
	"github.com/therakit/therakit/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "therakit-server",
		Short: "Therapy clinic scheduling and session reconciliation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(clinicCmd())
	rootCmd.AddCommand(maintainCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "clinic_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("schema", "clinic_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func clinicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Manage clinics",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new clinic schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating clinic schema: clinic_%s\n", name)
			if err := db.CreateClinicSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Clinic created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Clinic identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

func maintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run one maintenance pass over every clinic",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			app := buildApp(cfg, pool, logger)
			report, err := app.orchestrator.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Maintenance finished: %d clinic(s), %d session(s) matched, %d orphan(s) found, %d converted, %d marked missed, %d appointment(s) generated, %d error(s)\n",
				report.Clinics, report.SessionsMatched, report.OrphansFound,
				report.OrphansConverted, report.MarkedMissed,
				report.AppointmentsGenerated, len(report.Errors))
			for _, e := range report.Errors {
				fmt.Println("  -", e)
			}
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// app bundles the wired services so serve and maintain share one setup.
type app struct {
	appointments *appointment.Service
	templates    *template.Service
	reconciler   *reconcile.Engine
	rescheduler  *reschedule.Engine
	orchestrator *maintenance.Orchestrator
	notifier     *notification.CounterNotifier
}

func buildApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *app {
	notifier := notification.NewCounterNotifier()
	bestEffort := notification.NewBestEffort(notifier, logger)

	directory := patient.NewDirectoryPG(pool)
	runTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}

	apptSvc := appointment.NewService(appointment.NewRepoPG(pool), directory, bestEffort, runTx, logger)

	tplSvc := template.NewService(
		template.NewRepoPG(pool),
		template.NewHolidayRepoPG(pool),
		apptSvc,
		directory,
		cfg.GenerateWeeksAhead,
		logger,
	)

	reconciler := reconcile.NewEngine(
		reconcile.NewSessionLogPG(pool),
		apptSvc,
		reconcile.Config{
			WindowBefore: time.Duration(cfg.MatchWindowBeforeMin) * time.Minute,
			WindowAfter:  time.Duration(cfg.MatchWindowAfterMin) * time.Minute,
			LookbackDays: cfg.OrphanLookbackDays,
		},
		logger,
	)

	// The availability calendar is fed by the clinic's staffing system;
	// until that integration lands the finder starts empty and slots are
	// seeded through it by the operator tooling.
	finder := availability.NewMemoryFinder()
	rescheduler := reschedule.NewEngine(apptSvc, finder, directory, logger)

	orchestrator := maintenance.NewOrchestrator(
		func(ctx context.Context) ([]string, error) { return db.ListClinics(ctx, pool) },
		func(ctx context.Context, clinicID string, fn func(ctx context.Context) error) error {
			return db.WithClinic(ctx, pool, clinicID, fn)
		},
		reconciler,
		apptSvc,
		tplSvc,
		apptSvc,
		bestEffort,
		maintenance.Config{
			MissedAfterHours: cfg.MissedAfterHours,
			AutoConvert:      cfg.OrphanAutoConvert,
		},
		logger,
	)

	return &app{
		appointments: apptSvc,
		templates:    tplSvc,
		reconciler:   reconciler,
		rescheduler:  rescheduler,
		orchestrator: orchestrator,
		notifier:     notifier,
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a := buildApp(cfg, pool, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID", "X-Clinic-ID"},
	}))
	e.Use(db.ClinicMiddleware(pool, cfg.DefaultClinic))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	appointment.NewHandler(a.appointments).RegisterRoutes(apiV1)
	template.NewHandler(a.templates).RegisterRoutes(apiV1)
	reconcile.NewHandler(a.reconciler).RegisterRoutes(apiV1)
	reschedule.NewHandler(a.rescheduler).RegisterRoutes(apiV1)
	maintenance.NewHandler(a.orchestrator).RegisterRoutes(apiV1)

	// Periodic maintenance
	maintCtx, stopMaint := context.WithCancel(context.Background())
	defer stopMaint()
	if cfg.MaintenanceIntervalMin > 0 {
		a.orchestrator.StartPeriodic(maintCtx, time.Duration(cfg.MaintenanceIntervalMin)*time.Minute)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopMaint()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
