package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PstasDev/biliard-backend/internal/auth"
	"github.com/PstasDev/biliard-backend/internal/config"
	"github.com/PstasDev/biliard-backend/internal/db"
	"github.com/PstasDev/biliard-backend/internal/engine"
	"github.com/PstasDev/biliard-backend/internal/handlers"
	"github.com/PstasDev/biliard-backend/internal/publisher"
	"github.com/PstasDev/biliard-backend/internal/session"
)

func main() {
	fmt.Println("=== Biliard Backend ===")

	cfg := config.LoadConfig()

	store, err := db.Open(cfg.Database.DSN)
	if err != nil {
		fmt.Printf("❌ Failed to connect to Postgres: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	fmt.Println("✓ Connected to Postgres")

	// The delta mirror is optional; without Redis the live channels still work.
	var pub session.Publisher
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			fmt.Printf("❌ Failed to parse Redis URL: %v\n", err)
			os.Exit(1)
		}
		if cfg.Redis.Password != "" {
			redisOpts.Password = cfg.Redis.Password
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cancel()
			fmt.Printf("❌ Failed to connect to Redis: %v\n", err)
			os.Exit(1)
		}
		cancel()
		fmt.Println("✓ Connected to Redis")

		pub = publisher.NewStreamPublisher(redisClient)
	}

	guard := auth.NewGuard(cfg.Auth.JWTSecret, store)
	eng := engine.New(store, store)
	registry := session.NewRegistry(store, eng, guard, pub, cfg.Session.IdleTTL)
	defer registry.Shutdown()

	handler := handlers.NewHandler(store, guard, registry)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Router(cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections write indefinitely
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		fmt.Printf("✓ Listening on %s\n", cfg.Server.Addr)
		fmt.Println("  Endpoints:")
		fmt.Println("    GET  /health")
		fmt.Println("    POST /api/login")
		fmt.Println("    GET  /api/tournaments")
		fmt.Println("    GET  /api/tournaments/{tournamentID}")
		fmt.Println("    GET  /api/matches")
		fmt.Println("    GET  /api/matches/{matchID}")
		fmt.Println("    GET  /api/profile")
		fmt.Println("    *    /api/biro/...")
		fmt.Println("    WS   /ws/match/{matchID}")
		fmt.Println("    WS   /ws/biro/match/{matchID}")

		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		fmt.Printf("❌ Server error: %v\n", err)
		os.Exit(1)

	case sig := <-shutdown:
		fmt.Printf("\n⚠️  Received signal: %v\n", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("⚠️  Graceful shutdown failed: %v\n", err)
			if err := srv.Close(); err != nil {
				fmt.Printf("❌ Could not stop server: %v\n", err)
			}
		}
	}

	fmt.Println("✓ Shutdown complete")
}
