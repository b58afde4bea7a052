package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/daraja"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
	"github.com/ManuelReschke/PayFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/PayFox/internal/pkg/reconciler"
	"github.com/ManuelReschke/PayFox/internal/pkg/router"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "check-env" {
		os.Exit(checkEnv())
	}

	app, sweeper := NewApplication()
	sweeper.Start()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("[Server] Shutting down...")
		sweeper.Stop()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Errorf("[Server] Shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "3000"))
	log.Infof("[Server] M-Pesa Daraja API running at http://%s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

// checkEnv reports missing Daraja variables and returns the process exit code.
func checkEnv() int {
	env.SetupEnvFile()
	missing := daraja.MissingEnv()
	if len(missing) > 0 {
		fmt.Println("Missing required environment variables:")
		for _, key := range missing {
			fmt.Println("  - " + key)
		}
		return 1
	}
	if err := daraja.ConfigFromEnv().Validate(); err != nil {
		fmt.Println("Invalid configuration: " + err.Error())
		return 1
	}
	fmt.Println("All required environment variables are set.")
	return 0
}

func NewApplication() (*fiber.App, *reconciler.Reconciler) {
	env.SetupEnvFile()

	// PAYMENT STORE
	if database.Enabled() {
		if err := database.SetupDatabase(); err != nil {
			log.Fatalf("[Database] Giving up: %v", err)
		}
		repository.InitializeFactory(database.GetDB())
	} else {
		log.Info("[Database] PAYMENT_STORE is memory, payments are lost on restart")
		repository.InitializeFactory(nil)
	}
	repo := repository.GetGlobalFactory().GetPaymentRepository()

	// GATEWAY
	client, err := daraja.NewClientFromEnv()
	if err != nil {
		log.Fatalf("[Daraja] Invalid configuration: %v", err)
	}

	// CACHE
	var (
		idempotency    controllers.IdempotencyStore
		limiterStorage fiber.Storage
		cachePing      func(ctx context.Context) error
		stats          counter.Counter = counter.NewMemoryCounter()
	)
	if cache.Enabled() {
		if err := cache.SetupCache(); err != nil {
			log.Warnf("[Cache] Continuing without cache: %v", err)
		} else {
			rdb := cache.GetClient()
			idempotency = cache.NewIdempotencyStore(rdb, controllers.IdempotencyLockTTL)
			limiterStorage = ratelimit.NewStorage(rdb)
			stats = counter.NewRedisCounter(rdb)
			cachePing = cache.Ping
		}
	}

	svc := payments.NewService(repo, client, payments.WithOutcomeRecorder(stats))

	app := fiber.New(fiber.Config{
		AppName:   "PayFox",
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if password := env.GetEnv("METRICS_PASSWORD", ""); password != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "admin"): password,
			},
		}), monitor.New())
	} else {
		log.Info("[Server] METRICS_PASSWORD not set, /metrics disabled")
	}

	// SWAGGER / OPENAPI
	if basePath, ok := findBasePath(); ok {
		openAPICfg := swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}
		app.Use(swagger.New(openAPICfg))
	} else {
		log.Warn("[Server] OpenAPI document not found, /docs/api/v1 disabled")
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Payments:       controllers.NewPaymentController(svc, idempotency, stats),
		Tokens:         client,
		LimiterStorage: limiterStorage,
		CachePing:      cachePing,
	})

	return app, reconciler.FromEnv(svc)
}

func findBasePath() (string, bool) {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/payfox to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path, true
		}
	}
	return "", false
}
