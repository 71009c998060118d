package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-pos/internal/cache"
	"github.com/noah-isme/toko-pos/internal/migrations"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/payment"
)

func main() {
	var (
		migrate = flag.Bool("migrate", false, "apply pending migrations before seeding")
		demo    = flag.Bool("demo", false, "also seed a demo product and customer")
	)
	flag.Parse()

	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()

	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	if *migrate {
		if err := migrations.Up(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	n, err := seedPaymentMethods(ctx, pool, defaultPaymentMethods())
	if err != nil {
		logger.Fatal().Err(err).Msg("seed payment methods")
	}
	logger.Info().Int("count", n).Msg("payment methods seeded")

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := invalidateMethodCache(ctx, redisURL); err != nil {
			logger.Warn().Err(err).Msg("payment method cache not invalidated")
		}
	}

	if *demo {
		if err := seedDemo(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("seed demo data")
		}
		logger.Info().Msg("demo catalog seeded")
	}
}

// invalidateMethodCache drops the cached method list so running APIs pick up
// the seeded rows.
func invalidateMethodCache(ctx context.Context, redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	store := &payment.Store{Cache: cache.NewJSON(rdb, time.Minute)}
	return store.Invalidate(ctx)
}
