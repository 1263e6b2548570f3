package mql

import (
	"github.com/dosco/pipejin/core/internal/qcode"
	"github.com/dosco/pipejin/core/internal/qerr"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// renderFilter resolves a named filter into a match document. Compound
// filters are rendered recursively, path holds the filters being rendered.
func renderFilter(name string, filters map[string]*qcode.Filter, path map[string]bool) (bson.D, error) {
	f, ok := filters[name]
	if !ok {
		return nil, qerr.Malformed("condition", "unknown filter '%s'", name)
	}
	if path[name] {
		return nil, qerr.Malformed("compound_query."+name, "filter refers to itself")
	}
	path[name] = true
	defer delete(path, name)

	if len(f.Refs) != 0 {
		return renderCompound(f, filters, path)
	}
	return renderClauses(f)
}

func renderCompound(f *qcode.Filter, filters map[string]*qcode.Filter, path map[string]bool) (bson.D, error) {
	conn, err := RenderOp(f.Conn)
	if err != nil {
		return nil, err
	}

	members := make(bson.A, 0, len(f.Refs))
	for _, r := range f.Refs {
		d, err := renderFilter(r, filters, path)
		if err != nil {
			return nil, err
		}
		members = append(members, d)
	}
	return bson.D{{Key: conn, Value: members}}, nil
}

// renderClauses joins the clauses of a subquery filter. Conditions on the
// same field share one operator document unless an operator repeats, in
// which case every clause becomes its own member of the connective.
func renderClauses(f *qcode.Filter) (bson.D, error) {
	if f.Conn == qcode.OpAnd && !repeatsOp(f.Clauses) {
		doc := bson.D{}
		idx := make(map[string]int)

		for _, c := range f.Clauses {
			op, val, err := renderCond(c)
			if err != nil {
				return nil, err
			}
			i, ok := idx[c.Field.PropertyPath]
			if !ok {
				idx[c.Field.PropertyPath] = len(doc)
				doc = append(doc, bson.E{Key: c.Field.PropertyPath, Value: bson.D{{Key: op, Value: val}}})
				continue
			}
			cond := doc[i].Value.(bson.D)
			doc[i].Value = append(cond, bson.E{Key: op, Value: val})
		}
		return doc, nil
	}

	conn, err := RenderOp(f.Conn)
	if err != nil {
		return nil, err
	}
	members := make(bson.A, 0, len(f.Clauses))
	for _, c := range f.Clauses {
		op, val, err := renderCond(c)
		if err != nil {
			return nil, err
		}
		members = append(members, bson.D{{Key: c.Field.PropertyPath, Value: bson.D{{Key: op, Value: val}}}})
	}
	return bson.D{{Key: conn, Value: members}}, nil
}

func renderCond(c qcode.Clause) (string, interface{}, error) {
	if c.Op.IsConnective() {
		return "", nil, qerr.Unsupported(c.Op.String())
	}
	op, err := RenderOp(c.Op)
	if err != nil {
		return "", nil, err
	}
	if list, ok := c.Val.([]interface{}); ok {
		return op, bson.A(append([]interface{}{}, list...)), nil
	}
	return op, c.Val, nil
}

func repeatsOp(cl []qcode.Clause) bool {
	type key struct {
		path string
		op   qcode.ExpOp
	}
	seen := make(map[key]struct{}, len(cl))
	for _, c := range cl {
		k := key{c.Field.PropertyPath, c.Op}
		if _, ok := seen[k]; ok {
			return true
		}
		seen[k] = struct{}{}
	}
	return false
}
