package catalog_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/catalog"
)

func TestNewComboDerivesDiscount(t *testing.T) {
	c, err := catalog.NewCombo("combo-1", "Desayuno", 7500, 9000, []string{"52", "80"})
	require.NoError(t, err)
	require.Equal(t, 17, c.DiscountPercent)

	_, err = catalog.NewCombo("combo-2", "Caro", 9000, 9000, nil)
	require.ErrorIs(t, err, catalog.ErrInvalidCombo)
}

func TestMemoryLookup(t *testing.T) {
	combo, err := catalog.NewCombo("combo-1", "Desayuno", 7500, 9000, []string{"52", "80"})
	require.NoError(t, err)
	mem, err := catalog.NewMemory([]catalog.Product{
		{ID: "52", Name: "Latte", UnitPrice: 3000, Category: "Café", Subcategory: "Espresso"},
		{ID: "80", Name: "Croissant", UnitPrice: 6000, Category: "Panadería"},
	}, []catalog.Combo{combo})
	require.NoError(t, err)

	e, err := mem.Lookup(context.Background(), "52")
	require.NoError(t, err)
	require.Equal(t, int64(3000), e.UnitPrice)
	require.Equal(t, "Espresso", e.Subcategory)

	e, err = mem.Lookup(context.Background(), "combo-1")
	require.NoError(t, err)
	require.Equal(t, catalog.ComboCategory, e.Category)
	require.Equal(t, int64(7500), e.UnitPrice)

	_, err = mem.Lookup(context.Background(), "404")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestMemoryRejectsDanglingComboMember(t *testing.T) {
	combo, err := catalog.NewCombo("combo-1", "Desayuno", 7500, 9000, []string{"missing"})
	require.NoError(t, err)
	_, err = catalog.NewMemory(nil, []catalog.Combo{combo})
	require.Error(t, err)
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int64:
			*p = r.values[i].(int64)
		}
	}
	return nil
}

type stubDB struct {
	rows    map[string]stubRow
	queries int
}

func (s *stubDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (s *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	s.queries++
	table := "products"
	if strings.Contains(sql, "FROM combos") {
		table = "combos"
	}
	row, ok := s.rows[table+":"+args[0].(string)]
	if !ok {
		return stubRow{err: pgx.ErrNoRows}
	}
	return row
}

func TestPostgresLookupUsesCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := &stubDB{rows: map[string]stubRow{
		"products:52":     {values: []any{"52", "Latte", int64(3000), "Café", ""}},
		"combos:combo-1": {values: []any{"combo-1", "Desayuno", int64(7500)}},
	}}
	repo := catalog.Postgres{DB: db, Cache: catalog.NewCache(client, time.Minute)}
	ctx := context.Background()

	e, err := repo.Lookup(ctx, "52")
	require.NoError(t, err)
	require.Equal(t, "Latte", e.Name)
	queries := db.queries

	e, err = repo.Lookup(ctx, "52")
	require.NoError(t, err)
	require.Equal(t, int64(3000), e.UnitPrice)
	require.Equal(t, queries, db.queries, "second lookup must be served from cache")

	e, err = repo.Lookup(ctx, "combo-1")
	require.NoError(t, err)
	require.Equal(t, catalog.ComboCategory, e.Category)

	_, err = repo.Lookup(ctx, "nope")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
