package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/gooddeeds/gooddeeds-api/internal/config"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/account"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/payment"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/referral"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/usage"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/wallet"
	"github.com/gooddeeds/gooddeeds-api/internal/middleware"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/database"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/jwt"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/logger"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/paystack"
	pkgresponse "github.com/gooddeeds/gooddeeds-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting GoodDeeds API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	paystackClient := paystack.NewClient(paystack.Config{
		BaseURL:   cfg.PaystackBaseURL,
		SecretKey: cfg.PaystackSecretKey,
		PublicKey: cfg.PaystackPublicKey,
	})

	// ---------- Repositories ----------
	walletRepo := wallet.NewRepository(db)
	planRepo := plan.NewRepository(db)
	usageRepo := usage.NewRepository(db)
	referralRepo := referral.NewRepository(db)
	accountRepo := account.NewRepository(db)

	// ---------- Services ----------
	walletService := wallet.NewService(walletRepo)
	planService := plan.NewService(planRepo, redis, plan.Config{
		FreeStarterMB:    cfg.FreeStarterMB,
		FreeValidityDays: cfg.FreeValidityDays,
	})
	usageService := usage.NewService(usageRepo, walletService, usage.Config{
		PerMBRateKobo: cfg.PerMBRateKobo,
	})
	referralService := referral.NewService(referralRepo, walletService, referral.Config{
		RateBP: cfg.ReferralRateBP,
	})
	paymentService := payment.NewService(paystackClient, walletService, planService, referralService, payment.Config{
		CallbackURL: cfg.PaystackCallbackURL,
		Channels:    []string{"card", "bank", "ussd", "bank_transfer"},
	})
	accountService := account.NewService(accountRepo, planService, walletRepo)

	// ---------- Handlers ----------
	usageStream := usage.NewStreamHandler(usageService, cfg.AllowedOrigins)

	walletHandler := wallet.NewHandler(walletService)
	planHandler := plan.NewHandler(planService)
	usageHandler := usage.NewHandler(usageService, usageStream)
	referralHandler := referral.NewHandler(referralService)
	paymentHandler := payment.NewHandler(paymentService)
	accountHandler := account.NewHandler(accountService)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket usage ingest; browsers cannot set headers on WS handshakes,
	// so the token also rides a query parameter
	r.Get("/ws/usage", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(usageStream.Serve)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))

			r.Mount("/account", accountHandler.Routes(authMiddleware))
			r.Mount("/wallet", walletHandler.Routes(authMiddleware))
			r.Mount("/plans", planHandler.Routes(authMiddleware))
			r.Mount("/referrals", referralHandler.Routes(authMiddleware))
			r.Mount("/payments", paymentHandler.Routes(authMiddleware))
		})

		// Uncompressed so the websocket upgrade on /usage/stream can hijack
		// the connection
		r.Mount("/usage", usageHandler.Routes(authMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
