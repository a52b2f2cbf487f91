package strapi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Query builds the bracketed query-string syntax Strapi understands:
//
//	NewQuery().Eq("tg_id", "42").Populate("cart_products", "product")
//
// encodes to
//
//	filters[tg_id][$eq]=42&populate[cart_products][populate][product]=true
//
// A nil *Query is valid and encodes to nothing.
type Query struct {
	values url.Values
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{values: url.Values{}}
}

// Filter adds filters[field][op]=value. op is a Strapi operator such as "$eq" or "$in".
func (q *Query) Filter(field, op, value string) *Query {
	q.values.Add(fmt.Sprintf("filters[%s][%s]", field, op), value)
	return q
}

// Eq is shorthand for Filter(field, "$eq", value).
func (q *Query) Eq(field, value string) *Query {
	return q.Filter(field, "$eq", value)
}

// Populate requests a relation. Populate("*") populates every first-level
// relation; a multi-element path populates nested relations.
func (q *Query) Populate(path ...string) *Query {
	if len(path) == 0 {
		return q
	}
	if len(path) == 1 && path[0] == "*" {
		q.values.Set("populate", "*")
		return q
	}
	var b strings.Builder
	b.WriteString("populate")
	for i, p := range path {
		if i > 0 {
			b.WriteString("[populate]")
		}
		b.WriteString("[" + p + "]")
	}
	q.values.Set(b.String(), "true")
	return q
}

// Paginate selects a page (1-based) of the given size.
func (q *Query) Paginate(page, pageSize int) *Query {
	q.values.Set("pagination[page]", strconv.Itoa(page))
	q.values.Set("pagination[pageSize]", strconv.Itoa(pageSize))
	return q
}

// Sort adds sort keys such as "id:asc".
func (q *Query) Sort(keys ...string) *Query {
	for i, k := range keys {
		q.values.Set(fmt.Sprintf("sort[%d]", i), k)
	}
	return q
}

// Values returns a copy of the encoded parameters.
func (q *Query) Values() url.Values {
	out := url.Values{}
	if q == nil {
		return out
	}
	for k, v := range q.values {
		out[k] = append([]string(nil), v...)
	}
	return out
}
