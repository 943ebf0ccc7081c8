package main

import (
	"net/http"

	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

// DataLoaderMiddleware creates middleware that injects dataloaders into the request context
func DataLoaderMiddleware(s store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// one set per request so batches never mix users
			ctx := WithDataLoaders(r.Context(), NewDataLoaders(s))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
