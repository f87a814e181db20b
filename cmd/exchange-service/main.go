package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medex/exchange-service/internal/config"
	"medex/exchange-service/internal/exchange"
	"medex/exchange-service/internal/hospitals"
	"medex/exchange-service/internal/httpapi"
	"medex/exchange-service/internal/ledger/postgres"
	"medex/exchange-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	shutdownTracing := telemetry.Setup("exchange-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("schema setup: %v", err)
	}

	directory, err := hospitals.Load(cfg.HospitalDirectoryPath)
	if err != nil {
		log.Fatalf("hospital directory: %v", err)
	}

	service := exchange.NewService(store)
	handler := httpapi.NewHandler(service, directory)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:       cfg.RateLimitPerMinute,
		IPBurst:           cfg.RateLimitBurst,
		HospitalPerMinute: cfg.HospitalRateLimitPerMin,
		HospitalBurst:     cfg.HospitalRateLimitBurst,
	})

	routes := limiter.Middleware(handler.Routes())
	routes = httpapi.AuthMiddleware(directory, routes)
	routes = httpapi.LoggingMiddleware(routes)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(routes, "exchange-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("exchange-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
