package main

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

// DataLoaderContextKey is the key used to store dataloaders in context
type DataLoaderContextKey string

const dataLoaderKey DataLoaderContextKey = "dataloader"

// DataLoaders holds the request-scoped loaders
type DataLoaders struct {
	ProfileCards *dataloader.Loader[string, *store.ProfileCard]
}

// NewDataLoaders creates new dataloaders backed by the store
func NewDataLoaders(s store.Store) *DataLoaders {
	return &DataLoaders{
		ProfileCards: dataloader.NewBatchedLoader(
			profileCardBatchFn(s),
			dataloader.WithWait[string, *store.ProfileCard](16*time.Millisecond),
		),
	}
}

// GetDataLoadersFromContext retrieves dataloaders from context
func GetDataLoadersFromContext(ctx context.Context) *DataLoaders {
	if dl, ok := ctx.Value(dataLoaderKey).(*DataLoaders); ok {
		return dl
	}
	return nil
}

// WithDataLoaders adds dataloaders to context
func WithDataLoaders(ctx context.Context, dl *DataLoaders) context.Context {
	return context.WithValue(ctx, dataLoaderKey, dl)
}

// profileCardBatchFn loads every requested card in one query. A missing
// profile yields a nil card, not an error.
func profileCardBatchFn(s store.Store) dataloader.BatchFunc[string, *store.ProfileCard] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[*store.ProfileCard] {
		results := make([]*dataloader.Result[*store.ProfileCard], len(keys))
		for i := range results {
			results[i] = &dataloader.Result[*store.ProfileCard]{}
		}
		if len(keys) == 0 {
			return results
		}

		cards, err := s.ProfileCards(ctx, keys)
		if err != nil {
			for i := range results {
				results[i].Error = err
			}
			return results
		}

		for i, key := range keys {
			if card, ok := cards[key]; ok {
				results[i].Data = &card
			}
		}
		return results
	}
}
