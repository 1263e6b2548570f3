package qcode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/dosco/pipejin/core/internal/qerr"
	"github.com/dosco/pipejin/core/internal/sdata"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type payload struct {
	Query    *rawQuery `json:"query" validate:"required"`
	SortBy   sortList  `json:"sort_by"`
	Group    *rawGroup `json:"group"`
	PageNo   *int      `json:"page_no" validate:"omitnil,gt=0"`
	PageSize *int      `json:"page_size" validate:"omitnil,gt=0"`
}

type rawQuery struct {
	SubQuery   map[string]map[string]interface{} `json:"subquery" validate:"required"`
	Compound   map[string]map[string][]string    `json:"compound_query"`
	ExactMatch *rawExactMatch                    `json:"nested_exact_match"`
}

type rawExactMatch struct {
	MatchFieldPath string `json:"match_field_path" validate:"required"`
	Condition      string `json:"condition" validate:"required"`
}

type rawGroup struct {
	GroupBy string          `json:"group_by" validate:"required"`
	Fields  []rawProjection `json:"doc_response_fields" validate:"dive"`
}

type rawProjection struct {
	FieldPath   string `json:"field_path" validate:"required"`
	ReturnName  string `json:"return_obj_name" validate:"required"`
	CompleteObj bool   `json:"complete_obj"`
}

type sortPair struct {
	field string
	dir   interface{}
}

// sortList keeps the key order of the sort_by object. It also accepts an
// array of [field, direction] pairs.
type sortList []sortPair

func (sl *sortList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	if b[0] == '[' {
		var pairs [][]interface{}
		if err := dec.Decode(&pairs); err != nil {
			return err
		}
		for i, p := range pairs {
			if len(p) != 2 {
				return fmt.Errorf("sort_by[%d] must be a [field, direction] pair", i)
			}
			f, ok := p[0].(string)
			if !ok {
				return fmt.Errorf("sort_by[%d] field must be a string", i)
			}
			*sl = append(*sl, sortPair{field: f, dir: p[1]})
		}
		return nil
	}

	t, err := dec.Token()
	if err != nil {
		return err
	}
	if t != json.Delim('{') {
		return fmt.Errorf("sort_by must be an object or a list of pairs")
	}
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return err
		}
		*sl = append(*sl, sortPair{field: t.(string), dir: v})
	}
	return nil
}

// ParseQuery decodes and validates a raw request against the shape. Every
// field path in the request must resolve in the shape. No partial query is
// returned on error.
func ParseQuery(data []byte, shape *sdata.Shape) (*Query, error) {
	if shape == nil {
		return nil, qerr.Shape("", "no document shape loaded")
	}

	var p payload

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(&p); err != nil {
		return nil, decodeError(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, qerr.Malformed("payload", "unexpected data after the request")
	}
	if err := validate.Struct(&p); err != nil {
		return nil, validationError(err)
	}

	q := &Query{
		SubQuery: SubQuery{Filters: make(map[string]*Filter)},
		PageNo:   DefaultPageNo,
		PageSize: DefaultPageSize,
	}
	if p.PageNo != nil {
		q.PageNo = *p.PageNo
	}
	if p.PageSize != nil {
		q.PageSize = *p.PageSize
	}

	var err error

	if err = q.parseSubQuery(p.Query, shape); err != nil {
		return nil, err
	}
	if err = q.parseCompound(p.Query.Compound); err != nil {
		return nil, err
	}
	if err = q.parseExactMatch(p.Query.ExactMatch, shape); err != nil {
		return nil, err
	}
	if q.Sort, err = parseSort(p.SortBy, shape); err != nil {
		return nil, err
	}
	if q.Group, err = parseGroup(p.Group, shape); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Query) parseSubQuery(rq *rawQuery, shape *sdata.Shape) error {
	names := make([]string, 0, len(rq.SubQuery))
	for k := range rq.SubQuery {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		fields := rq.SubQuery[name]
		f := &Filter{Name: name, Conn: OpAnd}

		paths := make([]string, 0, len(fields))
		for k := range fields {
			paths = append(paths, k)
		}
		sort.Strings(paths)

		for _, path := range paths {
			fd, err := shape.Describe(path)
			if err != nil {
				return err
			}
			cl, err := parseClauses(name, path, fd, fields[path])
			if err != nil {
				return err
			}
			f.Clauses = append(f.Clauses, cl...)
		}
		q.Filters[name] = f
	}
	return nil
}

// parseClauses reads an [op, value, op, value...] list. A bare value is
// shorthand for equality.
func parseClauses(filter, path string, fd sdata.FieldDescriptor, v interface{}) ([]Clause, error) {
	where := filter + "." + path

	list, ok := v.([]interface{})
	if !ok {
		val, err := scalarValue(where, v)
		if err != nil {
			return nil, err
		}
		return []Clause{{Path: path, Field: fd, Op: OpEquals, Val: val}}, nil
	}

	if len(list) == 0 || len(list)%2 != 0 {
		return nil, qerr.Malformed(where, "expected [operator, value] pairs")
	}

	var cl []Clause

	for i := 0; i < len(list); i += 2 {
		name, ok := list[i].(string)
		if !ok {
			return nil, qerr.Malformed(where, "operator must be a string, got %v", list[i])
		}
		op, err := ParseOp(name)
		if err != nil {
			var qe *qerr.Error
			if errors.As(err, &qe) {
				qe.Path = where
			}
			return nil, err
		}
		val, err := clauseValue(where, op, list[i+1])
		if err != nil {
			return nil, err
		}
		cl = append(cl, Clause{Path: path, Field: fd, Op: op, Val: val})
	}
	return cl, nil
}

func clauseValue(where string, op ExpOp, v interface{}) (interface{}, error) {
	switch {
	case op.IsList():
		list, ok := v.([]interface{})
		if !ok {
			return nil, qerr.Malformed(where, "operator '%s' expects a list of values", op)
		}
		vals := make([]interface{}, len(list))
		for i, item := range list {
			val, err := scalarValue(where, item)
			if err != nil {
				return nil, err
			}
			vals[i] = val
		}
		return vals, nil

	case op == OpExists:
		b, ok := v.(bool)
		if !ok {
			return nil, qerr.Malformed(where, "operator 'exists' expects a boolean")
		}
		return b, nil

	default:
		return scalarValue(where, v)
	}
}

// scalarValue converts json numbers into int64 or float64 and rejects
// lists and objects.
func scalarValue(where string, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, qerr.Malformed(where, "invalid number %s", val)
		}
		return f, nil
	default:
		return nil, qerr.Malformed(where, "expected a scalar value, got %T", v)
	}
}

func (q *Query) parseCompound(cq map[string]map[string][]string) error {
	names := make([]string, 0, len(cq))
	for k := range cq {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		where := "compound_query." + name

		if _, ok := q.Filters[name]; ok {
			return qerr.Malformed(where, "name is already used by a subquery filter")
		}
		exp := cq[name]
		if len(exp) != 1 {
			return qerr.Malformed(where, "expected exactly one connective")
		}
		for conn, refs := range exp {
			op, err := ParseConnective(conn)
			if err != nil {
				var qe *qerr.Error
				if errors.As(err, &qe) {
					qe.Path = where
				}
				return err
			}
			if len(refs) == 0 {
				return qerr.Malformed(where, "connective '%s' has no members", conn)
			}
			q.Filters[name] = &Filter{Name: name, Conn: op, Refs: refs}
		}
	}

	for _, name := range names {
		if err := q.checkRefs(name, map[string]bool{}); err != nil {
			return err
		}
	}
	return nil
}

// checkRefs makes sure every referenced filter exists and that no compound
// filter refers back to itself.
func (q *Query) checkRefs(name string, path map[string]bool) error {
	if path[name] {
		return qerr.Malformed("compound_query."+name, "filter refers to itself")
	}
	f, ok := q.Filters[name]
	if !ok {
		return qerr.Malformed("compound_query", "unknown filter '%s'", name)
	}
	path[name] = true
	for _, r := range f.Refs {
		if err := q.checkRefs(r, path); err != nil {
			return err
		}
	}
	delete(path, name)
	return nil
}

func (q *Query) parseExactMatch(em *rawExactMatch, shape *sdata.Shape) error {
	if em == nil {
		return nil
	}
	fd, err := shape.Describe(em.MatchFieldPath)
	if err != nil {
		return err
	}
	if _, ok := q.Filters[em.Condition]; !ok {
		return qerr.Malformed("nested_exact_match.condition",
			"unknown filter '%s'", em.Condition)
	}
	q.ExactMatch = &ExactMatch{
		MatchFieldPath: em.MatchFieldPath,
		Field:          fd,
		Condition:      em.Condition,
	}
	return nil
}

func parseSort(sl sortList, shape *sdata.Shape) ([]SortSpec, error) {
	var specs []SortSpec

	for _, sp := range sl {
		fd, err := shape.Describe(sp.field)
		if err != nil {
			return nil, err
		}
		ord, err := parseOrder(sp.field, sp.dir)
		if err != nil {
			return nil, err
		}
		specs = append(specs, SortSpec{Path: sp.field, Field: fd, Order: ord})
	}
	return specs, nil
}

func parseOrder(field string, v interface{}) (Order, error) {
	switch val := v.(type) {
	case json.Number:
		switch val.String() {
		case "1":
			return OrderAsc, nil
		case "-1":
			return OrderDesc, nil
		}
	case string:
		switch strings.ToLower(val) {
		case "asc", "ascending":
			return OrderAsc, nil
		case "desc", "descending":
			return OrderDesc, nil
		}
	}
	return 0, qerr.Malformed("sort_by."+field, "direction must be 1 or -1, got %v", v)
}

func parseGroup(rg *rawGroup, shape *sdata.Shape) (*GroupSpec, error) {
	if rg == nil {
		return nil, nil
	}

	fd, err := shape.Describe(rg.GroupBy)
	if err != nil {
		return nil, err
	}
	g := &GroupSpec{GroupBy: rg.GroupBy, Field: fd}
	seen := make(map[string]struct{}, len(rg.Fields))

	for _, rp := range rg.Fields {
		pfd, err := shape.Describe(rp.FieldPath)
		if err != nil {
			return nil, err
		}
		if rp.ReturnName == "_id" {
			return nil, qerr.Malformed("group.doc_response_fields",
				"return_obj_name '_id' is reserved for the group key")
		}
		if _, dup := seen[rp.ReturnName]; dup {
			return nil, qerr.Malformed("group.doc_response_fields",
				"duplicate return_obj_name '%s'", rp.ReturnName)
		}
		seen[rp.ReturnName] = struct{}{}

		g.Fields = append(g.Fields, Projection{
			Path:       rp.FieldPath,
			Field:      pfd,
			Name:       rp.ReturnName,
			Collection: rp.CompleteObj,
		})
	}
	return g, nil
}

func decodeError(err error) error {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		path := te.Field
		if path == "" {
			path = "payload"
		}
		return qerr.Malformed(path, "expected %s, got %s", te.Type, te.Value)
	}
	return &qerr.Error{Kind: qerr.MalformedPayload, Reason: "invalid json", Err: err}
}

func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return &qerr.Error{Kind: qerr.MalformedPayload, Err: err}
	}
	fe := ve[0]

	// drop the struct name from the namespace
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i != -1 {
		path = path[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return qerr.Malformed(path, "value is required")
	case "gt":
		return qerr.Malformed(path, "must be a positive integer")
	default:
		return qerr.Malformed(path, "failed '%s' check", fe.Tag())
	}
}
