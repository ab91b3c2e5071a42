package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ticket-acquisition/config"
	"ticket-acquisition/handlers"
	"ticket-acquisition/internal/admission"
	"ticket-acquisition/internal/payment"
	"ticket-acquisition/internal/payment/orberpay"
	"ticket-acquisition/internal/payment/swiftpay"
	"ticket-acquisition/internal/purchase"
	"ticket-acquisition/internal/store"
	"ticket-acquisition/security"
	"ticket-acquisition/utils"
)

func main() {
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Admission: HTTP transport plus the PubNub push channel.
	push := admission.NewPushManager(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.PubNubUUID)
	queue := admission.NewQueueClient(admission.NewClient(cfg.AdmissionBaseURL), push, cfg.LostPositionRejoins)

	// Payment providers. SwiftPay registers first and is the default.
	providers := payment.NewRegistry()
	if sp, err := swiftpay.New(ctx, &cfg.SwiftPay); err != nil {
		log.Printf("swiftpay disabled: %v", err)
	} else {
		providers.Register(sp)
	}
	if op, err := orberpay.New(ctx, &cfg.OrberPay); err != nil {
		log.Printf("orberpay disabled: %v", err)
	} else {
		providers.Register(op)
	}

	finalizer := purchase.NewFinalizer(cfg.PurchaseBaseURL, cfg.PurchaseToken)

	stores := func(owner string) store.SelectionStore {
		return store.NewRedisStore(redisClient, owner, cfg.SelectionTTL)
	}

	e := echo.New()

	limiter := security.NewRateLimiter(redisClient)
	api := e.Group("/api/acquisition", limiter.AcquisitionRateLimit(), limiter.AntiBotMiddleware())

	acquisitions := handlers.NewAcquisitionHandler(cfg, queue, providers, finalizer, stores)
	acquisitions.RegisterRoutes(api)

	e.GET("/health", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	if cfg.EnableMetrics {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("metrics listening on :%s", cfg.MetricsPort)
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}

	go func() {
		log.Printf("listening on :%s (%s)", cfg.Port, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := providers.Close(shutdownCtx); err != nil {
		log.Printf("closing payment providers: %v", err)
	}
	push.Teardown()
	log.Println("shutdown complete")
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
