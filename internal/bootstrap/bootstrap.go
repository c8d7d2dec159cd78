// Package bootstrap opens the infrastructure and builds the application services shared by
// the HTTP server and the operator CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/application/reconciliation"
	wishlistapp "github.com/elyphant/backend/internal/application/wishlist"
	"github.com/elyphant/backend/internal/domain/fulfillment"
	"github.com/elyphant/backend/internal/domain/payment"
	"github.com/elyphant/backend/internal/infrastructure/cache"
	"github.com/elyphant/backend/internal/infrastructure/config"
	infrafulfillment "github.com/elyphant/backend/internal/infrastructure/fulfillment"
	"github.com/elyphant/backend/internal/infrastructure/logger"
	infrapayment "github.com/elyphant/backend/internal/infrastructure/payment"
	"github.com/elyphant/backend/internal/infrastructure/persistence"
	"github.com/elyphant/backend/internal/infrastructure/storage"
	"github.com/elyphant/backend/internal/infrastructure/telemetry"
)

// Services are the application services built over one database
type Services struct {
	Cleanup   *reconciliation.DuplicateCleanupService
	Payments  *reconciliation.PaymentVerificationService
	Statuses  *reconciliation.FulfillmentStatusService
	Webhooks  *reconciliation.PaymentWebhookService
	Orders    *reconciliation.OrderQueryService
	Wishlists *wishlistapp.Service
}

// App owns every resource opened for the process
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Telemetry *telemetry.Telemetry
	DB        *persistence.Database
	Stores    *cache.Stores
	Services  *Services
}

// Open starts telemetry, connects to Postgres and Redis, and builds the services.
// Stripe and Zinc adapters that are not configured fail their calls as unavailable.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (app *App, err error) {
	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	app.Telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, cfg.App.Env, log)
	if err != nil {
		return app, fmt.Errorf("telemetry: %w", err)
	}
	log = app.Telemetry.Logs.Bridge(log, logger.ParseLevel(cfg.Log.Level))
	app.Logger = log

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	app.DB, err = persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(gormLog),
		persistence.WithPlugin(telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			DBName:     cfg.Database.DBName,
			LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		})),
	)
	if err != nil {
		return app, err
	}
	log.Info("Database connected", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))

	app.Stores, err = cache.NewStores(ctx, cfg.Redis, cfg.App.Env, log)
	if err != nil {
		return app, fmt.Errorf("redis: %w", err)
	}
	log.Info("Idempotency and lock stores ready", zap.Bool("distributed", app.Stores.Distributed()))

	var reports reconciliation.ReportStore
	if cfg.Storage.Enabled() {
		s3Store, serr := storage.NewS3ReportStore(ctx, &cfg.Storage, storage.WithLogger(log))
		if serr != nil {
			return app, fmt.Errorf("storage: %w", serr)
		}
		if serr := s3Store.EnsureBucket(ctx); serr != nil {
			return app, fmt.Errorf("storage: %w", serr)
		}
		reports = s3Store
	} else {
		log.Info("Object storage not configured, cleanup reports are not archived")
	}

	var recorder reconciliation.Recorder
	metrics, merr := telemetry.NewReconciliationMetrics(app.Telemetry.Meter.Meter("elyphant/reconciliation"))
	if merr != nil {
		log.Warn("Reconciliation metrics disabled", zap.Error(merr))
	} else {
		recorder = metrics
	}

	app.Services = buildServices(cfg, app.DB, app.Stores, reports, recorder, newVerifier(cfg, log), newWebhookParser(cfg, log), newFulfillmentClient(cfg, log), log)
	return app, nil
}

func buildServices(
	cfg *config.Config,
	db *persistence.Database,
	stores *cache.Stores,
	reports reconciliation.ReportStore,
	recorder reconciliation.Recorder,
	verifier payment.Verifier,
	parser payment.WebhookParser,
	client fulfillment.Client,
	log *zap.Logger,
) *Services {
	orders := persistence.NewGormOrderRepository(db.DB)
	securityLogs := persistence.NewGormSecurityLogRepository(db.DB)
	rc := cfg.Reconciliation

	return &Services{
		Cleanup: reconciliation.NewDuplicateCleanupService(reconciliation.DuplicateCleanupServiceConfig{
			Orders:       orders,
			SecurityLogs: securityLogs,
			Lock:         stores.RunLock,
			Reports:      reports,
			ReportPrefix: cfg.Storage.ReportPrefix,
			LockTTL:      rc.CleanupLockTTL,
			StaleAfter:   rc.SubmittingStaleAfter,
			Recorder:     recorder,
			Logger:       log.Named("cleanup"),
		}),
		Payments: reconciliation.NewPaymentVerificationService(reconciliation.PaymentVerificationServiceConfig{
			Verifier:     verifier,
			Orders:       orders,
			SecurityLogs: securityLogs,
			RetryDelays:  rc.VerifyRetryDelays,
			Recorder:     recorder,
			Logger:       log.Named("payments"),
		}),
		Statuses: reconciliation.NewFulfillmentStatusService(reconciliation.FulfillmentStatusServiceConfig{
			Client:   client,
			Orders:   orders,
			Recorder: recorder,
			Logger:   log.Named("fulfillment"),
		}),
		Webhooks: reconciliation.NewPaymentWebhookService(reconciliation.PaymentWebhookServiceConfig{
			Parser:       parser,
			Orders:       orders,
			SecurityLogs: securityLogs,
			Idempotency:  stores.Idempotency,
			TTL:          rc.WebhookIdempotentTTL,
			Recorder:     recorder,
			Logger:       log.Named("webhook"),
		}),
		Orders:    reconciliation.NewOrderQueryService(orders),
		Wishlists: wishlistapp.NewService(persistence.NewGormWishlistRepository(db.DB), log.Named("wishlist")),
	}
}

// Close releases resources in reverse order of opening and flushes telemetry last
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Stores != nil {
		errs = append(errs, a.Stores.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func newVerifier(cfg *config.Config, log *zap.Logger) payment.Verifier {
	gateway, err := infrapayment.NewStripeGateway(&infrapayment.StripeConfig{
		SecretKey:         cfg.Stripe.SecretKey,
		WebhookSecret:     cfg.Stripe.WebhookSecret,
		MaxNetworkRetries: cfg.Stripe.MaxRetries,
	}, log.Named("stripe"))
	if err != nil {
		log.Warn("Stripe payment verification disabled", zap.Error(err))
		return unconfigured{reason: err}
	}
	return gateway
}

func newWebhookParser(cfg *config.Config, log *zap.Logger) payment.WebhookParser {
	parser, err := infrapayment.NewStripeWebhookParser(cfg.Stripe.WebhookSecret)
	if err != nil {
		log.Warn("Stripe webhooks disabled", zap.Error(err))
		return unconfigured{reason: err}
	}
	return parser
}

func newFulfillmentClient(cfg *config.Config, log *zap.Logger) fulfillment.Client {
	client, err := infrafulfillment.NewZincClient(&infrafulfillment.ZincConfig{
		BaseURL:     cfg.Zinc.BaseURL,
		ClientToken: cfg.Zinc.ClientToken,
		Timeout:     cfg.Zinc.Timeout,
	}, nil, log.Named("zinc"))
	if err != nil {
		log.Warn("Zinc status checks disabled", zap.Error(err))
		return unconfigured{reason: err}
	}
	return client
}

// unconfigured stands in for an adapter whose credentials are missing.
// Its errors are never transient, so retry loops fail on the first attempt.
type unconfigured struct {
	reason error
}

func (u unconfigured) Verify(context.Context, string, string) (*payment.Verification, error) {
	return nil, fmt.Errorf("%w: %v", payment.ErrGatewayRejected, u.reason)
}

// Parse rejects every delivery; without a secret no signature can be checked
func (u unconfigured) Parse([]byte, string) (*payment.WebhookEvent, error) {
	return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, u.reason)
}

func (u unconfigured) GetOrder(context.Context, string) (*fulfillment.OrderStatus, error) {
	return nil, fmt.Errorf("%w: %v", fulfillment.ErrUpstreamRejected, u.reason)
}
