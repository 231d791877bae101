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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"media-lending/pkg/circuitbreaker"
	"media-lending/pkg/clock"
	"media-lending/pkg/config"
	"media-lending/pkg/database"
	"media-lending/pkg/fine"
	"media-lending/pkg/repository"
	"media-lending/pkg/service"
	"media-lending/pkg/sweeper"
)

var (
	db           *gorm.DB
	library      *service.LibraryService
	reservations *service.ReservationService
	auth         service.Authenticator
)

var logger = zap.NewNop()

var clk clock.Clock = clock.Real{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "library",
		Short:         "Media lending service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			logger, err = newLogger(cfg.LogLevel)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	root.PersistentFlags().String("db-driver", "", "database driver (postgres|sqlite)")
	root.PersistentFlags().String("log-level", "", "log level")
	_ = v.BindPFlag("db.driver", root.PersistentFlags().Lookup("db-driver"))
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reservation sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	serve.Flags().String("addr", "", "listen address")
	_ = v.BindPFlag("http.addr", serve.Flags().Lookup("addr"))

	expire := &cobra.Command{
		Use:   "expire",
		Short: "Expire overdue reservations once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := connect(cfg); err != nil {
				return err
			}
			defer database.Close(db)
			n, err := reservations.ExpireReservations(cmd.Context(), clk.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d reservations\n", n)
			return nil
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(*cobra.Command, []string) error {
			if err := connect(cfg); err != nil {
				return err
			}
			logger.Info("schema is up to date")
			return database.Close(db)
		},
	}

	root.AddCommand(serve, expire, migrate)
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

// connect opens the store and wires the services onto it.
func connect(cfg *config.Config) error {
	conn, err := database.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	wire(conn, service.PolicyFromConfig(cfg.Lending))
	return nil
}

func wire(conn *gorm.DB, policy service.Policy) {
	db = conn
	store := repository.NewGormStore(conn)
	reservations = service.NewReservationService(store, policy, service.NewMonotonicSequencer(clk), logger.Named("reservations"))
	library = service.NewLibraryService(store, fine.DailyRate{}, reservations, policy, logger.Named("library"))
	auth = service.NewAuthService(store.Repos().Users, logger.Named("auth"))
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := connect(cfg); err != nil {
		return err
	}
	defer database.Close(db)

	breaker := circuitbreaker.NewCircuitBreaker(5, 30*time.Second).WithClock(clk)
	sweep := sweeper.New(reservations, cfg.ExpiryInterval, clk, breaker, logger.Named("sweeper"))
	go sweep.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("library service starting", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
