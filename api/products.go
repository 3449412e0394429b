package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func defaultCatalogue() []Product {
	return []Product{
		{ID: "p-100", Name: "Walnut desk lamp", PriceCents: 8900, Currency: "EUR"},
		{ID: "p-101", Name: "Linen throw", PriceCents: 5400, Currency: "EUR"},
		{ID: "p-102", Name: "Stoneware mug set", PriceCents: 3200, Currency: "EUR"},
		{ID: "p-103", Name: "Cast iron skillet", PriceCents: 6100, Currency: "EUR"},
		{ID: "p-104", Name: "Wool rug, small", PriceCents: 12900, Currency: "EUR"},
		{ID: "p-105", Name: "Beeswax candles", PriceCents: 1500, Currency: "EUR"},
	}
}

// ListProducts handles GET /products.
func (a *API) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	start, end, meta := paginateSlice(len(a.catalogue), limit, offset)
	writeJSON(w, http.StatusOK, ListProductsResponse{
		Products:       a.catalogue[start:end],
		PaginationMeta: meta,
	})
}

// GetProduct handles GET /products/{productID}.
func (a *API) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	for _, p := range a.catalogue {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "product not found")
}
