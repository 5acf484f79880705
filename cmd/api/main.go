package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v74"

	"lodgepage_backend/internal/billing"
	"lodgepage_backend/internal/controller"
	"lodgepage_backend/internal/middleware"
	"lodgepage_backend/internal/model"
	"lodgepage_backend/internal/notify"
	"lodgepage_backend/internal/publish"
	"lodgepage_backend/internal/queue"
	"lodgepage_backend/internal/slot"
	"lodgepage_backend/internal/store"
	"lodgepage_backend/internal/sweep"
	"lodgepage_backend/pkg/config"
	"lodgepage_backend/pkg/cron"
	"lodgepage_backend/pkg/database"
	"lodgepage_backend/pkg/email"
	"lodgepage_backend/pkg/plan"
)

func setupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Stripe webhook
	api.Post("/webhook", controller.HandleStripeWebhook)

	// Subscription routes
	subscriptions := api.Group("/subscriptions")
	subscriptions.Get("/plans", controller.ListPlans)
	subscriptions.Get("/my", middleware.AuthMiddleware(), controller.GetMySubscription)

	// Protected listing routes
	listings := api.Group("/listings", middleware.AuthMiddleware())
	listings.Post("/:id/publish", controller.PublishListing)
	listings.Post("/:id/unpublish", controller.UnpublishListing)
	listings.Post("/:id/do-not-renew", controller.DoNotRenewListing)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	cfg := config.Load()
	stripe.Key = cfg.Stripe.SecretKey

	if key := os.Getenv("RESEND_API_KEY"); key != "" {
		if err := email.InitEmailService(key); err != nil {
			log.Fatal("Could not initialize email service:", err)
		}
	}

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is not set in .env")
	}

	database.InitDB(cfg.Database.URL)
	err := database.MigrateDatabase(
		&model.Host{},
		&model.SubscriptionPlan{},
		&model.HostSubscription{},
		&model.Listing{},
		&model.ListingImage{},
		&model.Location{},
		&model.PublicListing{},
		&model.PublicListingMedia{},
		&model.AdvertisingSlot{},
		&model.ProcessedEvent{},
	)
	if err != nil {
		log.Printf("Migration warning: %v", err)
	}

	engineStore := store.NewGormStore(database.GetDB())

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if email.GlobalEmailService != nil {
		dispatcher = email.NewDispatcher(email.GlobalEmailService, engineStore)
	}

	slotManager := slot.NewManager(engineStore, engineStore)
	coordinator := publish.NewCoordinator(engineStore, slotManager)
	synchronizer := billing.NewSynchronizer(engineStore, slotManager, dispatcher)
	processor := billing.NewProcessor(engineStore, synchronizer)
	sweeper := sweep.NewSweeper(engineStore, slotManager, coordinator, dispatcher)
	catalog := plan.NewCatalog(engineStore)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	eventQueue := queue.NewRedisQueue(redisClient)

	consumer := queue.NewConsumer(eventQueue, func(ctx context.Context, env queue.Envelope) error {
		return processor.Process(ctx, env.ID, env.Type, env.Payload)
	})
	consumer.Workers = cfg.Queue.Workers

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go consumer.Run(ctx)

	cron.InitSlotSweepCron(sweeper)

	controller.InitControllers(engineStore, coordinator, slotManager, eventQueue, catalog, cfg.Stripe.WebhookSecret)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New())

	setupRoutes(app)

	log.Printf("Server is running on port %s", cfg.Server.Port)
	log.Fatal(app.Listen(":" + cfg.Server.Port))
}
