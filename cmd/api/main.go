package main

import (
	"context"
	"fmt"
	"log"

	"flexfolio-backend/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	userRepo := core.NewPgUserRepository(db)
	portfolioRepo := core.NewPgPortfolioRepository(db)
	experienceRepo := core.NewPgExperienceRepository(db)
	educationRepo := core.NewPgEducationRepository(db)

	codec := core.NewTokenCodec(cfg.JWTSecret, cfg.TokenTTL)
	auth := core.NewAuthenticator(userRepo, codec)
	limiter := core.NewLoginLimiter(redisClient, cfg.LoginMaxAttempts, cfg.LoginWindow)

	if err := core.BootstrapUser(ctx, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap user failed: %v", err)
	}

	router := core.NewRouter(cfg, auth, codec, userRepo, portfolioRepo, experienceRepo, educationRepo, limiter)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
