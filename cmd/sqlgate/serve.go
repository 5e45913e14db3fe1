package sqlgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/broadcast"
	"github.com/edgeflare/sqlgate/pkg/config"
	"github.com/edgeflare/sqlgate/pkg/event"
	"github.com/edgeflare/sqlgate/pkg/httputil"
	mw "github.com/edgeflare/sqlgate/pkg/httputil/middleware"
	"github.com/edgeflare/sqlgate/pkg/metrics"
	"github.com/edgeflare/sqlgate/pkg/rest"
	"github.com/edgeflare/sqlgate/pkg/script"
	"github.com/edgeflare/sqlgate/pkg/service"
	"github.com/edgeflare/sqlgate/pkg/store"
	"github.com/edgeflare/sqlgate/pkg/system"
	"github.com/edgeflare/sqlgate/pkg/util"

	// Register broadcast sinks
	_ "github.com/edgeflare/sqlgate/pkg/broadcast/kafka"
	_ "github.com/edgeflare/sqlgate/pkg/broadcast/mqtt"
	_ "github.com/edgeflare/sqlgate/pkg/broadcast/nats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Connects the configured data services and serves them, together with the system resources, over HTTP`,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("server.listenAddr", "l", "", "REST server listen address")
	f.String("server.baseURL", "", "Base URL for API endpoints")
	f.StringP("system.connString", "c", "", "PostgreSQL connection string of the system database")
	f.String("server.oidc.clientID", "", "OIDC client ID")
	f.String("server.oidc.clientSecret", "", "OIDC client secret")
	f.String("server.oidc.issuer", "", "OIDC issuer URL")
	f.Bool("metrics.enabled", false, "Serve Prometheus metrics")
	f.String("metrics.addr", "", "Prometheus metrics listen address")

	viper.BindPFlags(f)
}

// systemStore serves event scripts through the lookup cache so that writes
// from the system resources invalidate cached lookups.
type systemStore struct {
	*store.CachedScripts
	store.Catalog
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.System, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	scripts := store.NewCachedScripts(st, cfg.Scripting.LookupCacheSize, cfg.Scripting.LookupCacheTTL)

	registry := service.NewRegistry(logger)
	defer registry.Close()
	for _, sc := range cfg.Services {
		svc, err := registry.Add(ctx, sc)
		if err != nil {
			return err
		}
		if cfg.System.ListenReload && svc.Dialect.Driver() == "pgsql" {
			go listenReload(ctx, svc, sc.DSN, logger)
		}
	}

	runner := script.NewManager(cfg.Scripting.DefaultEngine, logger)
	runner.Register(script.EngineExpr, script.NewExprEngine(cfg.Scripting.ProgramCacheSize))
	runner.Register(script.EngineWebhook, &script.WebhookEngine{
		Timeout: cfg.Scripting.Webhook.Timeout,
		Retries: cfg.Scripting.Webhook.Retries,
		Logger:  logger,
	})

	pipeline := event.NewPipeline()
	event.NewDispatcher(scripts, runner, logger).Subscribe(pipeline)

	sinks := broadcast.New(logger)
	defer sinks.Close()
	for _, sc := range cfg.Broadcast.Sinks {
		if err := sinks.Open(sc); err != nil {
			return err
		}
	}
	sinks.Subscribe(pipeline)

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	router, err := newRouter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	api := router.Group(cfg.Server.BaseURL)
	sys := system.NewHandler(systemStore{scripts, st}, registry, cfg.Server.BaseURL, system.Config{
		API:      cfg.API,
		Platform: cfg.Platform,
	}, logger)
	sys.OpenAPI().Follow(ctx, registry.Caches()...)
	sys.Register(api)
	rest.NewServer(registry, pipeline, rest.Config{
		AlwaysWrap: cfg.API.AlwaysWrapResources,
		Wrapper:    cfg.API.ResourcesWrapper,
		MaxRecords: cfg.API.DB.MaxRecordsReturned,
	}, logger).Register(api)

	errCh := make(chan error, 1)
	go func() {
		if err := router.ListenAndServe(cfg.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	wg.Wait()
	logger.Info("server gracefully stopped")
	return nil
}

// newRouter installs the root middleware: request IDs, access log, CORS,
// optional basic auth and bearer tokens, then session resolution.
func newRouter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*httputil.Router, error) {
	opts := []httputil.RouterOptions{httputil.WithLogger(logger)}
	if tls := cfg.Server.TLS; tls.Enabled() {
		if _, err := util.LoadOrGenerateCert(tls.CertFile, tls.KeyFile, tls.Hosts...); err != nil {
			return nil, err
		}
		opts = append(opts, httputil.WithTLS(tls.CertFile, tls.KeyFile))
	}
	r := httputil.NewRouter(opts...)
	r.Use(mw.RequestID)
	if logLevel != "none" {
		r.Use(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	}

	var cors *mw.CORSOptions
	if len(cfg.Server.CORS.AllowedOrigins) > 0 {
		cors = &cfg.Server.CORS
	}
	r.Use(mw.CORSWithOptions(cors))

	if len(cfg.Server.BasicAuth) > 0 {
		r.Use(mw.VerifyBasicAuth(&mw.BasicAuthConfig{Credentials: cfg.Server.BasicAuth, Optional: true}))
	}
	if cfg.Server.OIDC.Enabled() {
		provider, err := mw.NewOIDCProvider(ctx, cfg.Server.OIDC)
		if err != nil {
			return nil, err
		}
		r.Use(mw.VerifyOIDCToken(provider, false))
	}
	r.Use(mw.Session(cfg.Server.SessionConfig()))
	return r, nil
}

func openStore(ctx context.Context, c config.SystemConfig, logger *zap.Logger) (store.Store, error) {
	if c.ConnString == "" {
		logger.Warn("no system database configured, event scripts and apps are kept in memory")
		return store.NewMemory(), nil
	}
	pg, err := store.ConnectPostgres(ctx, c.ConnString, c.Schema, c.MaxWait, logger)
	if err != nil {
		return nil, fmt.Errorf("system database: %w", err)
	}
	if c.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
	}
	return pg, nil
}

// listenReload keeps a dedicated connection listening for schema reload
// notifications until ctx is done.
func listenReload(ctx context.Context, svc *service.Service, dsn string, logger *zap.Logger) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		logger.Error("schema reload listener", zap.String("service", svc.Name), zap.Error(err))
		return
	}
	defer conn.Close(context.Background())
	if err := svc.Cache.Listen(ctx, conn); err != nil {
		logger.Error("schema reload listener", zap.String("service", svc.Name), zap.Error(err))
	}
}
