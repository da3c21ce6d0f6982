package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/app"
	"github.com/noah-isme/backend-kasir/internal/auth"
	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/ledger"
	"github.com/noah-isme/backend-kasir/internal/obs"
)

func main() {
	migrateFirst := flag.Bool("migrate", true, "apply migrations before seeding")
	employee := flag.String("employee", "", "print a cashier token for this employee id")
	tokenTTL := flag.Duration("token-ttl", 12*time.Hour, "lifetime of the printed token")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger(envOr("OBS_LOG_FORMAT", "console"), envOr("OBS_LOG_LEVEL", "info")).With().Str("component", "seeder").Logger()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	if *migrateFirst {
		if err := db.Migrate(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer func() { _ = conn.Close(context.Background()) }()

	var cache *catalog.Cache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		cache = catalog.NewCache(rdb, 0)
	}

	seed, err := app.DemoSeed()
	if err != nil {
		logger.Fatal().Err(err).Msg("build seed")
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("begin transaction")
	}
	if err := apply(ctx, tx, seed, logger); err != nil {
		_ = tx.Rollback(ctx)
		logger.Fatal().Err(err).Msg("seed")
	}
	if err := tx.Commit(ctx); err != nil {
		logger.Fatal().Err(err).Msg("commit seed")
	}

	// cached entries are dropped only once the new rows are visible
	if cache != nil {
		for id := range seed.Stock {
			if err := cache.Invalidate(ctx, id); err != nil {
				logger.Warn().Err(err).Str("item_id", id).Msg("invalidate catalog cache")
			}
		}
	}
	logger.Info().
		Int("products", len(seed.Products)).
		Int("combos", len(seed.Combos)).
		Int("customers", len(seed.Customers)).
		Msg("seeding completed")

	if *employee != "" {
		tokens := auth.Tokens{
			Secret:   []byte(os.Getenv("JWT_SECRET")),
			Issuer:   os.Getenv("JWT_ISSUER"),
			Audience: os.Getenv("JWT_AUDIENCE"),
		}
		token, err := tokens.Issue(*employee, *tokenTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("issue token")
		}
		fmt.Println(token)
	}
}

func apply(ctx context.Context, tx pgx.Tx, seed app.Seed, logger zerolog.Logger) error {
	products := catalog.Postgres{DB: tx, Logger: &logger}
	for _, p := range seed.Products {
		if err := products.UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("product %s: %w", p.ID, err)
		}
	}
	for _, c := range seed.Combos {
		if err := products.UpsertCombo(ctx, c); err != nil {
			return fmt.Errorf("combo %s: %w", c.ID, err)
		}
	}
	stock := inventory.Postgres{DB: tx}
	for id, qty := range seed.Stock {
		if err := stock.Set(ctx, id, qty); err != nil {
			return fmt.Errorf("stock %s: %w", id, err)
		}
	}
	customers := ledger.Postgres{DB: tx}
	for _, a := range seed.Customers {
		if err := customers.Upsert(ctx, a); err != nil {
			return fmt.Errorf("customer %s: %w", a.CustomerID, err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
