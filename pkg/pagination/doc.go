// Package pagination drives offset-paginated CRM search endpoints.
//
// The CRM API pages with _limit/_skip query parameters and answers every page with
// a has_more flag. This package owns the cursor for one traversal and offers two
// ways to consume it:
//
//	leads, err := pagination.Paginate(ctx, c.Lead.SearchPage, pagination.Options{Limit: 200})
//
//	for lead, err := range pagination.Stream(ctx, c.Lead.SearchPage, opts) {
//		if err != nil {
//			return err
//		}
//		// ...
//	}
//
// Paginate materialises every item; Stream yields items one at a time and only
// fetches the next page once the consumer has pulled every item of the current one.
// Page fetches are strictly sequential in both cases and errors from the search
// function end the traversal immediately.
package pagination
