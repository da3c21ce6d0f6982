package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/catalog"
)

func menu(t *testing.T) *catalog.Memory {
	t.Helper()
	combo, err := catalog.NewCombo("c-onces", "Onces", 14000, 16500, []string{"54", "63"})
	require.NoError(t, err)
	mem, err := catalog.NewMemory([]catalog.Product{
		{ID: "54", Name: "Capuchino", UnitPrice: 6500, Category: "Café"},
		{ID: "52", Name: "Americano", UnitPrice: 3000, Category: "Café"},
		{ID: "63", Name: "Torta", UnitPrice: 10000, Category: "Panadería"},
	}, []catalog.Combo{combo})
	require.NoError(t, err)
	return mem
}

func TestMemoryListOrdersAndFilters(t *testing.T) {
	mem := menu(t)
	all, err := mem.List(context.Background(), "")
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	require.Equal(t, []string{"52", "54", "c-onces", "63"}, ids)

	cafe, err := mem.List(context.Background(), "café")
	require.NoError(t, err)
	require.Len(t, cafe, 2)
}

func serve(t *testing.T, h *catalog.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandlerItems(t *testing.T) {
	mem := menu(t)
	h := &catalog.Handler{Catalog: mem, Lister: mem}

	rec := serve(t, h, "/catalog/items?category=Combos")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	var body struct {
		Data []catalog.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(14000), body.Data[0].UnitPrice)
}

func TestHandlerItem(t *testing.T) {
	mem := menu(t)
	h := &catalog.Handler{Catalog: mem, Lister: mem}

	rec := serve(t, h, "/catalog/items/54")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Capuchino")

	rec = serve(t, h, "/catalog/items/999")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "ITEM_NOT_FOUND")
}
