package pagination

import (
	"context"
	"iter"
	"time"

	"github.com/Sternrassler/closecrm-client/pkg/logging"
)

// SearchFunc fetches one page of a search. It receives the caller's options
// with Limit and Skip set to the current cursor.
type SearchFunc[T any] func(ctx context.Context, opts Options) (Page[T], error)

// cursor is the offset/limit pair of one traversal.
type cursor struct {
	offset   int
	pageSize int
}

// traversal walks a search function page by page. It is owned by a single
// Paginate call or a single range loop over a Stream.
type traversal[T any] struct {
	search    SearchFunc[T]
	opts      Options
	cursor    cursor
	exhausted bool
	pages     int
}

func newTraversal[T any](search SearchFunc[T], opts Options) *traversal[T] {
	return &traversal[T]{
		search: search,
		opts:   opts,
		cursor: cursor{offset: 0, pageSize: opts.PageSize()},
	}
}

// next fetches the next page. It returns no items once the traversal is
// exhausted. After a page with HasMore == false the traversal is exhausted
// but that page's items are still returned.
func (t *traversal[T]) next(ctx context.Context) ([]T, error) {
	if t.exhausted {
		return nil, nil
	}

	page, err := t.search(ctx, t.opts.withCursor(t.cursor))
	if err != nil {
		t.exhausted = true
		return nil, err
	}
	t.pages++

	if len(page.Items) == 0 {
		t.exhausted = true
		return nil, nil
	}

	if !page.HasMore {
		t.exhausted = true
	} else {
		t.cursor.offset += t.cursor.pageSize
	}

	return page.Items, nil
}

// Paginate fetches every page of a search and returns all items in page order.
// An error from search aborts the traversal and no partial result is returned.
func Paginate[T any](ctx context.Context, search SearchFunc[T], opts Options) ([]T, error) {
	start := time.Now()
	t := newTraversal(search, opts)

	var items []T
	for !t.exhausted {
		page, err := t.next(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
	}

	logger := logging.NewLogger(logging.ComponentPagination)
	logger.Debug().
		Int("pages", t.pages).
		Int("items", len(items)).
		Int("page_size", t.cursor.pageSize).
		Dur("duration", time.Since(start)).
		Msg("Pagination complete")

	return items, nil
}

// Stream returns a lazy sequence over every item of a search. Pages are
// fetched on demand: page N+1 is requested only after the consumer has pulled
// every item of page N and asks for more. Stopping the range loop early ends
// the traversal without further requests.
//
// A search error is yielded once with the zero value and ends the sequence.
// Every range over the returned sequence starts a new traversal at offset 0.
func Stream[T any](ctx context.Context, search SearchFunc[T], opts Options) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		t := newTraversal(search, opts)

		for !t.exhausted {
			page, err := t.next(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}

			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}
