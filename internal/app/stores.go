package app

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/audit"
	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/ledger"
	"github.com/noah-isme/backend-kasir/internal/sales"
)

// Stores bundles the persistence behind a checkout.
type Stores struct {
	Catalog   catalog.Catalog
	Menu      catalog.Lister
	Inventory inventory.Store
	Ledger    ledger.Ledger
	Sales     sales.Store
	History   sales.History
	Reports   sales.HistoryReader
	Events    events.EventStore
	Audit     audit.Store
}

// PostgresStores binds every store to the pool. Catalog reads go through
// the Redis cache.
func PostgresStores(pool *pgxpool.Pool, rdb *redis.Client, cacheTTL time.Duration, logger *zerolog.Logger) Stores {
	cat := catalog.Postgres{DB: pool, Cache: catalog.NewCache(rdb, cacheTTL), Logger: logger}
	return Stores{
		Catalog:   cat,
		Menu:      cat,
		Inventory: inventory.Postgres{DB: pool},
		Ledger:    ledger.Postgres{DB: pool},
		Sales:     sales.Postgres{DB: pool},
		History:   sales.PostgresHistory{DB: pool},
		Reports:   sales.PostgresHistory{DB: pool},
		Events:    events.PostgresStore{DB: pool},
		Audit:     audit.Postgres{DB: pool},
	}
}

// Seed is reference data for a fresh store.
type Seed struct {
	Products  []catalog.Product
	Combos    []catalog.Combo
	Stock     map[string]int64
	Customers []ledger.Account
}

// MemoryStores builds process-local stores holding seed.
func MemoryStores(seed Seed) (Stores, error) {
	cat, err := catalog.NewMemory(seed.Products, seed.Combos)
	if err != nil {
		return Stores{}, fmt.Errorf("seed catalog: %w", err)
	}
	history := sales.NewMemoryHistory()
	return Stores{
		Catalog:   cat,
		Menu:      cat,
		Inventory: inventory.NewMemory(seed.Stock),
		Ledger:    ledger.NewMemory(seed.Customers...),
		Sales:     sales.NewMemory(),
		History:   history,
		Reports:   history,
		Events:    events.NewMemoryStore(),
		Audit:     audit.NewMemory(),
	}, nil
}

// DemoSeed is the café menu used by the memory driver and the seeder.
func DemoSeed() (Seed, error) {
	products := []catalog.Product{
		{ID: "52", Name: "Tinto", UnitPrice: 3000, Category: "Café", Subcategory: "Negro"},
		{ID: "53", Name: "Café con leche", UnitPrice: 4500, Category: "Café", Subcategory: "Con leche"},
		{ID: "54", Name: "Capuchino", UnitPrice: 6500, Category: "Café", Subcategory: "Con leche"},
		{ID: "61", Name: "Pandebono", UnitPrice: 2500, Category: "Panadería", Subcategory: "Horneados"},
		{ID: "62", Name: "Almojábana", UnitPrice: 2500, Category: "Panadería", Subcategory: "Horneados"},
		{ID: "63", Name: "Torta de chocolate", UnitPrice: 10000, Category: "Panadería", Subcategory: "Postres"},
		{ID: "71", Name: "Jugo de naranja", UnitPrice: 7000, Category: "Bebidas", Subcategory: "Jugos"},
	}
	desayuno, err := catalog.NewCombo("c-desayuno", "Desayuno tradicional", 7000, 3000+2500+2500, []string{"52", "61", "62"})
	if err != nil {
		return Seed{}, err
	}
	onces, err := catalog.NewCombo("c-onces", "Onces", 14000, 6500+10000, []string{"54", "63"})
	if err != nil {
		return Seed{}, err
	}
	stock := map[string]int64{}
	for _, p := range products {
		stock[p.ID] = 50
	}
	stock[desayuno.ID] = 20
	stock[onces.ID] = 10
	return Seed{
		Products: products,
		Combos:   []catalog.Combo{desayuno, onces},
		Stock:    stock,
		Customers: []ledger.Account{
			{CustomerID: "cli-001", Name: "Ana Rojas", PointBalance: 320},
			{CustomerID: "cli-002", Name: "Julián Pardo", PointBalance: 1480},
			{CustomerID: "cli-003", Name: "Marta Quintero", PointBalance: 5200, IsVIP: true},
		},
	}, nil
}
