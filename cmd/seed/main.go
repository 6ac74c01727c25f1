package main

import (
	"context"
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-account-lifecycle/config"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/repository"
	pginfra "github.com/oksasatya/go-account-lifecycle/internal/infrastructure/postgres"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
)

// seed creates a verified demo account so the dashboard can be reached
// without a mail transport.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)
	ctx := context.Background()

	pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{DSN: cfg.DB.DSN(), MaxConns: 2})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	email := getenv("SEED_EMAIL", "demo@example.com")
	password := getenv("SEED_PASSWORD", "password123")

	hash, err := helpers.NewPasswordHasher(cfg.BcryptCost).Hash(password)
	if err != nil {
		logger.WithError(err).Fatal("failed to hash password")
	}

	repo := pginfra.NewAccountRepository(pool)
	a := &entity.Account{Email: email, PasswordHash: hash, DisplayName: "Demo User", EmailVerified: true}
	switch err := repo.Create(ctx, a); {
	case errors.Is(err, repository.ErrDuplicateEmail):
		logger.WithField("email", email).Info("demo account already exists")
		return
	case err != nil:
		helpers.LogError(logger, "failed to seed account", err, nil)
		return
	}
	helpers.LogInfo(logger, "seeded verified demo account", logrus.Fields{"account_id": a.ID, "email": email})
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
