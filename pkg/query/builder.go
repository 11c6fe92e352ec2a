// Package query builds search query strings for the query search parameter.
//
// Conditions are joined with spaces, which the API reads as AND:
//
//	q := query.New().
//		Equals("status", "Potential").
//		Or().
//		Equals("status", "Bad Fit").
//		GreaterThan("date_created", "2024-01-01")
//	q.String() // status:Potential OR status:"Bad Fit" date_created>2024-01-01
package query

import (
	"fmt"
	"strings"
)

// Operators understood by the search syntax.
const (
	OpEquals      = ":"
	OpNotEquals   = "!:"
	OpContains    = "*"
	OpGreaterThan = ">"
	OpLessThan    = "<"
)

// Builder accumulates search conditions. The zero value is ready to use.
// A Builder is not safe for concurrent use.
type Builder struct {
	conditions []string
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// Where adds "field<op>value". A nil value renders as "field is null" and
// string values containing spaces are quoted.
func (b *Builder) Where(field, op string, value any) *Builder {
	switch v := value.(type) {
	case nil:
		b.conditions = append(b.conditions, field+" is null")
	case string:
		if strings.Contains(v, " ") {
			v = `"` + v + `"`
		}
		b.conditions = append(b.conditions, field+op+v)
	default:
		b.conditions = append(b.conditions, field+op+fmt.Sprint(v))
	}
	return b
}

// Equals adds a field:value condition.
func (b *Builder) Equals(field string, value any) *Builder {
	return b.Where(field, OpEquals, value)
}

// NotEquals adds a field!:value condition.
func (b *Builder) NotEquals(field string, value any) *Builder {
	return b.Where(field, OpNotEquals, value)
}

// Contains adds a field*value substring condition.
func (b *Builder) Contains(field string, value any) *Builder {
	return b.Where(field, OpContains, value)
}

// GreaterThan adds a field>value condition.
func (b *Builder) GreaterThan(field string, value any) *Builder {
	return b.Where(field, OpGreaterThan, value)
}

// LessThan adds a field<value condition.
func (b *Builder) LessThan(field string, value any) *Builder {
	return b.Where(field, OpLessThan, value)
}

// In adds a parenthesised OR group matching any of values.
func (b *Builder) In(field string, values ...any) *Builder {
	terms := make([]string, len(values))
	for i, v := range values {
		terms[i] = fmt.Sprintf(`%s:"%v"`, field, v)
	}
	b.conditions = append(b.conditions, "("+strings.Join(terms, " OR ")+")")
	return b
}

// And is a no-op: adjacent conditions are already ANDed.
func (b *Builder) And() *Builder {
	return b
}

// Or joins the previous condition with the next one.
func (b *Builder) Or() *Builder {
	if n := len(b.conditions); n > 0 {
		b.conditions[n-1] += " OR"
	}
	return b
}

// Build returns the query string.
func (b *Builder) Build() string {
	return strings.Join(b.conditions, " ")
}

// String implements fmt.Stringer and returns the same query as Build.
func (b *Builder) String() string {
	return b.Build()
}
