package pagination

import (
	"context"
	"encoding/json"
	"fmt"
)

// Page is one fetched batch of items plus its continuation signal.
// HasMore == false is the only terminal signal the server sends; an empty
// page also ends a traversal.
type Page[T any] struct {
	Items      []T  `json:"data"`
	HasMore    bool `json:"has_more"`
	TotalCount *int `json:"total_results,omitempty"`
}

// DecodePage converts a raw page into a typed one.
func DecodePage[T any](raw Page[json.RawMessage]) (Page[T], error) {
	page := Page[T]{
		Items:      make([]T, 0, len(raw.Items)),
		HasMore:    raw.HasMore,
		TotalCount: raw.TotalCount,
	}
	for i, item := range raw.Items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return Page[T]{}, fmt.Errorf("decode item %d: %w", i, err)
		}
		page.Items = append(page.Items, v)
	}
	return page, nil
}

// Typed adapts a raw search function to a typed one.
func Typed[T any](search SearchFunc[json.RawMessage]) SearchFunc[T] {
	return func(ctx context.Context, opts Options) (Page[T], error) {
		raw, err := search(ctx, opts)
		if err != nil {
			return Page[T]{}, err
		}
		return DecodePage[T](raw)
	}
}
