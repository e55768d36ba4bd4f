package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	appconfig "github.com/thezfz/corebank-sub000/internal/config"
	"github.com/thezfz/corebank-sub000/internal/database"
	"github.com/thezfz/corebank-sub000/internal/handlers"
	mW "github.com/thezfz/corebank-sub000/internal/middleware"
	"github.com/thezfz/corebank-sub000/internal/services"
	"github.com/thezfz/corebank-sub000/internal/store"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.SetDefault("server.port", "8080")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	engineConfig := appconfig.LoadEngineConfig()
	st := store.New(db)
	ledgerService := services.NewLedgerService(st)
	pricingService := services.NewPricingService(st, redisClient, engineConfig)
	investmentService := services.NewInvestmentService(st, pricingService, ledgerService, engineConfig)

	ledgerHandler := handlers.NewLedgerHandler(ledgerService, engineConfig)
	investmentHandler := handlers.NewInvestmentHandler(investmentService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/accounts/{accountID}/deposit", ledgerHandler.Deposit)
		r.Post("/accounts/{accountID}/withdraw", ledgerHandler.Withdraw)
		r.Get("/accounts/{accountID}/balance", ledgerHandler.GetBalance)
		r.Get("/accounts/{accountID}/movements", ledgerHandler.ListMovements)
		r.Post("/transfers", ledgerHandler.Transfer)

		r.Post("/investments/purchase", investmentHandler.Purchase)
		r.Post("/investments/redeem", investmentHandler.Redeem)
		r.Get("/users/{userID}/holdings", investmentHandler.ListHoldings)
		r.Get("/holdings/{holdingID}", investmentHandler.GetHolding)
	})

	port := viper.GetString("server.port")
	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
