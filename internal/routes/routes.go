package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/auth"
	"github.com/congo-pay/custody/internal/bank"
	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/events"
	"github.com/congo-pay/custody/internal/faucet"
	"github.com/congo-pay/custody/internal/host"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/metrics"
	"github.com/congo-pay/custody/internal/middleware"
	"github.com/congo-pay/custody/internal/store"
	"github.com/congo-pay/custody/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache are optional in
// development; Store is always required.
type Deps struct {
	Cfg     config.Config
	Store   store.Store
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil {
		return fmt.Errorf("a store is required")
	}
	if !d.Cfg.IsDev() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(logging.Component(d.Logger, "http")))

	RegisterHealthRoutes(app, d)

	// Services and handlers
	journal := events.NewJournal(events.DefaultJournalSize)
	emitter := events.Multi{events.NewLogEmitter(logging.Component(d.Logger, "events")), journal}
	if d.Cache != nil {
		emitter = append(emitter, events.NewRedisStreamEmitter(d.Cache, d.Cfg.EventStream, d.Cfg.EventStreamMaxLen))
	}

	program, err := transfer.ForAsset(d.Cfg.BankAsset)
	if err != nil {
		return fmt.Errorf("bank asset: %w", err)
	}
	engine, err := bank.NewEngine(bank.Options{
		Program:   d.Cfg.ProgramID,
		Store:     d.Store,
		Holder:    program,
		Lifecycle: host.New(d.Cfg.RentPerByte),
		Emitter:   emitter,
		Metrics:   d.Metrics,
		Logger:    logging.Component(d.Logger, "bank"),
	})
	if err != nil {
		return err
	}

	var challenges identity.Repository
	if d.Cache != nil {
		challenges = identity.NewRedisRepository(d.Cache)
	} else {
		challenges = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(challenges, d.Cfg.ChallengeTTL)
	tokens, err := auth.NewService(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL, d.Cfg.AppName)
	if err != nil {
		return err
	}
	transferSvc := transfer.NewService(d.Store, program, emitter, logging.Component(d.Logger, "transfer"))

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		vault, _ := engine.VaultAddress()
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"program":    engine.Program(),
			"vault":      vault,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterAuthRoutes(api, identity.NewHandler(identitySvc), auth.NewHandler(identitySvc, tokens), d.Cache)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(tokens))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterBankRoutes(protected, bank.NewHandler(engine, journal))
	RegisterTransferRoutes(protected, transfer.NewHandler(transferSvc))
	if d.Cfg.FaucetEnabled {
		faucetSvc, err := faucet.NewService(d.Store, d.Cfg.FaucetMaxAmount, emitter, logging.Component(d.Logger, "faucet"), program)
		if err != nil {
			return err
		}
		RegisterFaucetRoutes(protected, faucet.NewHandler(faucetSvc))
	}

	return nil
}
