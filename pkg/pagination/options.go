package pagination

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultPageSize is the page size used when Options.Limit is not positive.
const DefaultPageSize = 100

// Options carries the cursor fields and filters of a search request.
// Filters are forwarded verbatim on every page request.
type Options struct {
	// Limit is the page size (_limit).
	Limit int

	// Skip is the offset of the first item (_skip). Paginate and Stream own it.
	Skip int

	// Fields restricts the returned fields (_fields).
	Fields []string

	// Query is a raw search query, see package query.
	Query string

	// Filters are extra query parameters (e.g. lead_id, date_created__gte).
	Filters map[string]string
}

// PageSize returns the effective page size.
func (o Options) PageSize() int {
	if o.Limit <= 0 {
		return DefaultPageSize
	}
	return o.Limit
}

// Params renders the options in the CRM wire format.
func (o Options) Params() url.Values {
	params := url.Values{}

	keys := make([]string, 0, len(o.Filters))
	for key := range o.Filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		params.Set(key, o.Filters[key])
	}

	if o.Limit > 0 {
		params.Set("_limit", strconv.Itoa(o.Limit))
	}
	if o.Skip > 0 {
		params.Set("_skip", strconv.Itoa(o.Skip))
	}
	if len(o.Fields) > 0 {
		params.Set("_fields", strings.Join(o.Fields, ","))
	}
	if o.Query != "" {
		params.Set("query", o.Query)
	}

	return params
}

// withCursor returns a copy of o positioned at the given cursor.
func (o Options) withCursor(c cursor) Options {
	o.Limit = c.pageSize
	o.Skip = c.offset
	return o
}
