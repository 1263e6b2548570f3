// Package qcode validates a raw filter/sort/group request against a document
// shape and turns it into a typed Query that the pipeline compiler consumes.
package qcode

import (
	"sort"

	"github.com/dosco/pipejin/core/internal/sdata"
)

const (
	DefaultPageNo   = 1
	DefaultPageSize = 25
)

type Order int8

const (
	OrderAsc  Order = 1
	OrderDesc Order = -1
)

// Clause is a single (field, operator, value) condition. Val holds a
// []interface{} for the set operators and a bool for exists.
type Clause struct {
	Path  string
	Field sdata.FieldDescriptor
	Op    ExpOp
	Val   interface{}
}

// Filter is a named, reusable condition. Filters built from the subquery
// carry clauses, filters built from compound_query refer to other filters
// by name. Both kinds join their members with Conn.
type Filter struct {
	Name    string
	Conn    ExpOp
	Clauses []Clause
	Refs    []string
}

// ExactMatch locates a nested field's enclosing arrays and applies the
// named filter after flattening them.
type ExactMatch struct {
	MatchFieldPath string
	Field          sdata.FieldDescriptor
	Condition      string
}

type SubQuery struct {
	Filters    map[string]*Filter
	ExactMatch *ExactMatch
}

type SortSpec struct {
	Path  string
	Field sdata.FieldDescriptor
	Order Order
}

// Projection is one output field of a group. Collection projections push
// every value of the group, the rest keep the first value seen.
type Projection struct {
	Path       string
	Field      sdata.FieldDescriptor
	Name       string
	Collection bool
}

type GroupSpec struct {
	GroupBy string
	Field   sdata.FieldDescriptor
	Fields  []Projection
}

// Query is the validated request. It is not modified after ParseQuery
// returns it.
type Query struct {
	SubQuery
	Sort     []SortSpec
	Group    *GroupSpec
	PageNo   int
	PageSize int
}

// Filter returns the named filter.
func (q *Query) Filter(name string) (*Filter, bool) {
	f, ok := q.Filters[name]
	return f, ok
}

// FilterNames returns the filter names in sorted order.
func (q *Query) FilterNames() []string {
	names := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
