package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"cooksa_backend/internal/controller"
	"cooksa_backend/internal/middleware"
	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/billing"
	"cooksa_backend/pkg/cache"
	"cooksa_backend/pkg/config"
	"cooksa_backend/pkg/content"
	"cooksa_backend/pkg/cron"
	"cooksa_backend/pkg/database"
	"cooksa_backend/pkg/email"
	"cooksa_backend/pkg/entitlements"
	"cooksa_backend/pkg/logging"
	"cooksa_backend/pkg/subscription"
	"cooksa_backend/pkg/utils/cloudflare"
	"cooksa_backend/pkg/utils/jwt"
)

// maxBodySize leaves room for a 5MB avatar plus multipart framing.
const maxBodySize = 6 * 1024 * 1024

type handlers struct {
	auth         *controller.AuthController
	billing      *controller.BillingController
	webhook      *controller.WebhookController
	profile      *controller.ProfileController
	entitlements *controller.EntitlementsController
	content      *controller.ContentController
}

func setupRoutes(app *fiber.App, h handlers, signer *jwt.Signer, resolver *entitlements.Resolver) {
	api := app.Group("/api")
	requireAuth := middleware.AuthMiddleware(signer)

	// Auth
	auth := api.Group("/auth")
	auth.Post("/register", h.auth.Register)
	auth.Post("/login", h.auth.Login)
	auth.Post("/guest", h.auth.Guest)
	auth.Post("/session", requireAuth, h.auth.Session)
	api.Get("/me", requireAuth, h.auth.GetMe)

	// Billing
	stripe := api.Group("/stripe")
	stripe.Get("/webhook", h.webhook.Status)
	stripe.Post("/webhook", h.webhook.Handle)
	stripe.Post("/checkout", requireAuth, h.billing.Checkout)
	stripe.Post("/buy-credits", requireAuth, h.billing.BuyCredits)
	stripe.Post("/portal", requireAuth, h.billing.Portal)

	api.Get("/entitlements", requireAuth, middleware.LoadEntitlements(resolver), h.entitlements.Get)
	api.Post("/avatar/upload", requireAuth, h.profile.UploadAvatar)

	// Content
	api.Get("/countries", h.content.ListCountries)
	api.Get("/countries/:id", h.content.GetCountry)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to database")
	}
	if err := database.Migrate(db, store.Models()...); err != nil {
		log.Warn().Err(err).Msg("Migration warning")
	}
	st := store.New(db)

	if cfg.Stripe.SecretKey == "" {
		log.Warn().Msg("STRIPE_SECRET_KEY is not set, processor calls will fail")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Error().Msg("STRIPE_WEBHOOK_SECRET is not set, webhooks will be rejected")
	}
	catalog := subscription.NewCatalog(cfg.Stripe.Prices)
	processor := billing.NewStripeProcessor(cfg.Stripe.SecretKey)

	mailer := newMailer(cfg)
	var notifier billing.Notifier
	if mailer != nil {
		notifier = mailer
	}
	events := billing.NewEventHandler(cfg.Stripe.WebhookSecret, st, processor, catalog, notifier)

	var objects cloudflare.ObjectStore
	if cfg.StorageEnabled() {
		r2, err := cloudflare.NewR2(ctx, cloudflare.Config{
			AccountID: cfg.Storage.AccountID,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Could not initialize object storage")
		}
		objects = r2
	} else {
		log.Warn().Msg("R2 storage is not configured, avatar uploads are disabled")
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = cache.Connect(ctx, cache.Config{
			URL:            cfg.Redis.URL,
			RetryAttempts:  cfg.Redis.RetryAttempts,
			RetryInterval:  cfg.Redis.RetryInterval,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, content responses will not be cached")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	resolver := entitlements.NewResolver(st)
	signer := jwt.NewSigner(cfg.JWT.Secret, cfg.JWT.TTL)

	scheduler := cron.NewScheduler(ctx)
	if err := scheduler.Add("0 3 * * *", cron.NewEventRetention(st, cron.DefaultEventRetention)); err != nil {
		log.Fatal().Err(err).Msg("Could not schedule event retention")
	}
	if mailer != nil {
		if err := scheduler.Add("0 9 * * *", cron.NewSubscriptionEnding(st, mailer)); err != nil {
			log.Fatal().Err(err).Msg("Could not schedule ending notices")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit: maxBodySize,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.Server.CORSOrigins}))

	setupRoutes(app, handlers{
		auth:         controller.NewAuthController(st, signer),
		billing:      controller.NewBillingController(st, processor, catalog, cfg.Server.AppURL),
		webhook:      controller.NewWebhookController(events),
		profile:      controller.NewProfileController(st, objects),
		entitlements: controller.NewEntitlementsController(resolver),
		content:      controller.NewContentController(content.NewClient(cfg.Content.GraphQLURL, rdb, cfg.Content.CacheTTL)),
	}, signer, resolver)

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Server.Port).Msg("Server is running")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Error().Err(err).Msg("Server stopped")
	}
}

func newMailer(cfg *config.Config) *email.Service {
	if cfg.Email.ServerToken == "" {
		log.Warn().Msg("POSTMARK_SERVER_TOKEN is not set, billing emails are disabled")
		return nil
	}
	sender, err := email.NewPostmarkSender(cfg.Email.ServerToken, cfg.Email.AccountToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not initialize email sender")
	}
	svc, err := email.NewService(sender, cfg.Email.From, cfg.Server.AppURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not initialize email service")
	}
	return svc
}
