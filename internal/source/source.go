// Package source holds the provider adapters that fetch trending lists and
// normalize them into media.Item values.
//
// Every adapter is independent: a failure is returned as a *media.SourceError
// and never affects other adapters.
package source

import (
	"context"

	"trendbot/internal/media"
)

// DefaultLimit is used when Fetch is called with limit <= 0.
const DefaultLimit = 10

type Source interface {
	Name() string
	Kind() media.Kind
	// Fetch returns at most limit items in provider order.
	Fetch(ctx context.Context, limit int) ([]media.Item, error)
}

func normLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// capItems truncates items to limit, keeping order.
func capItems(items []media.Item, limit int) []media.Item {
	limit = normLimit(limit)
	if len(items) > limit {
		return items[:limit:limit]
	}
	return items
}
