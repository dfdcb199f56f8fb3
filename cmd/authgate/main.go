package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/baluarte/authgate/internal/cache"
	"github.com/baluarte/authgate/internal/config"
	"github.com/baluarte/authgate/internal/duo"
	"github.com/baluarte/authgate/internal/email"
	authctrl "github.com/baluarte/authgate/internal/http/controllers/auth"
	router "github.com/baluarte/authgate/internal/http/router"
	authsvc "github.com/baluarte/authgate/internal/http/services/auth"
	"github.com/baluarte/authgate/internal/http/services/session"
	"github.com/baluarte/authgate/internal/metrics"
	"github.com/baluarte/authgate/internal/observability/logger"
	"github.com/baluarte/authgate/internal/rate"
	"github.com/baluarte/authgate/internal/store"
	pgdriver "github.com/baluarte/authgate/internal/store/pg"
	migrations "github.com/baluarte/authgate/migrations/postgres"
	rdb "github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	// .env opcional: en producción las vars vienen del entorno real.
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:   "authgate",
		Short: "Gateway de login con segundo factor delegado",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("AUTHGATE_CONFIG", "configs/config.yaml"), "ruta del archivo de configuración (env AUTHGATE_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}

	checkDuoCmd := &cobra.Command{
		Use:   "check-duo",
		Short: "Verifica conectividad y credenciales contra el proveedor MFA",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckDuo(cfgPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Imprime la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serveCmd, checkDuoCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	defer logger.Sync()
	log := logger.L().With(logger.Component("main"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	repo, err := store.Open(ctx, store.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Postgres: store.PostgresTuning{
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MinIdleConns:    cfg.Storage.Postgres.MinIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		},
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()

	if cfg.Storage.Migrate {
		if pgs, ok := repo.(*pgdriver.Store); ok {
			if err := pgs.RunMigrations(ctx, migrations.FS, "."); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			log.Info("migrations applied")
		}
	}

	// Cache (sesiones y logins pendientes)
	cacheClient, err := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.SessionTTL(),
	})
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer cacheClient.Close()

	// Proveedor MFA
	duoClient, err := duo.New(duo.Config{
		ClientID:         cfg.Duo.ClientID,
		ClientSecret:     cfg.Duo.ClientSecret,
		APIHostname:      cfg.Duo.APIHostname,
		RedirectURI:      cfg.Duo.RedirectURI,
		Timeout:          cfg.HealthTimeout(),
		ChallengeTimeout: cfg.ChallengeTimeout(),
		CertsFile:        cfg.Duo.CertsFile,
	})
	if err != nil {
		return fmt.Errorf("duo client: %w", err)
	}

	var duoAdmin *duo.Admin
	if cfg.Duo.Admin.Enabled {
		duoAdmin, err = duo.NewAdmin(duoClient, duo.AdminConfig{
			IKey:      cfg.Duo.Admin.IKey,
			SKey:      cfg.Duo.Admin.SKey,
			GroupName: cfg.Duo.Admin.GroupName,
		})
		if err != nil {
			return fmt.Errorf("duo admin client: %w", err)
		}
	}

	mailer := email.New(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	// Rate limiter de login: Redis si el cache es Redis, memoria si no.
	var loginLimiter rate.Limiter
	if cfg.Rate.Enabled {
		if cfg.Cache.Kind == "redis" {
			loginLimiter = rate.NewRedisLimiter(rdb.NewClient(&rdb.Options{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			}), "rl:login:", cfg.Rate.Login.Limit, cfg.LoginRateWindow())
		} else {
			loginLimiter = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, cfg.LoginRateWindow())
		}
	}

	// Métricas
	metricsHandler, err := metrics.Register(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Services
	sessions := session.NewManager(session.Deps{Cache: cacheClient, Cfg: cfg})
	loginSvc := authsvc.NewLoginService(authsvc.Deps{
		Cfg:      cfg,
		Repo:     repo,
		Cache:    cacheClient,
		Duo:      duoClient,
		Sessions: sessions,
		Mailer:   mailer,
	})
	registerSvc := authsvc.NewRegisterService(authsvc.RegisterDeps{
		Repo:  repo,
		Admin: duoAdmin,
	})

	handler := router.New(router.Deps{
		Cfg:             cfg,
		AuthControllers: authctrl.NewControllers(cfg, loginSvc, registerSvc, sessions),
		MetricsHandler:  metricsHandler,
		LoginLimiter:    loginLimiter,
		Repo:            repo,
		Cache:           cacheClient,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			logger.String("addr", cfg.Server.Addr),
			logger.String("mode", cfg.Duo.Mode),
			logger.Failmode(cfg.Duo.Failmode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runCheckDuo(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	defer logger.Sync()

	duoClient, err := duo.New(duo.Config{
		ClientID:     cfg.Duo.ClientID,
		ClientSecret: cfg.Duo.ClientSecret,
		APIHostname:  cfg.Duo.APIHostname,
		RedirectURI:  cfg.Duo.RedirectURI,
		Timeout:      cfg.HealthTimeout(),
		CertsFile:    cfg.Duo.CertsFile,
	})
	if err != nil {
		return fmt.Errorf("duo client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HealthTimeout())
	defer cancel()

	status := duoClient.Health(ctx)
	fmt.Printf("provider status: %s\n", status)
	if status != duo.Healthy {
		os.Exit(1)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
