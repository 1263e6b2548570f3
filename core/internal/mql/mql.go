// Package mql compiles a validated qcode.Query into a MongoDB aggregation
// pipeline. Every stage is a single key bson.D so the output is ordered and
// serializes the same way every time.
package mql

import (
	"github.com/dosco/pipejin/core/internal/qcode"
	"github.com/dosco/pipejin/core/internal/qerr"
	"github.com/dosco/pipejin/core/internal/sdata"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Compile assembles the pipeline: exact-match stages first, then sort
// stages, then the group stage. Arrays unwound for the exact match are not
// unwound again for sorting.
func Compile(q *qcode.Query, shape *sdata.Shape) (mongo.Pipeline, error) {
	if shape == nil {
		return nil, qerr.Shape("", "no document shape loaded")
	}

	p := mongo.Pipeline{}
	unwound := make(map[string]struct{})

	if q.ExactMatch != nil {
		stages, err := FrameExactMatch(q.ExactMatch, q.Filters, shape)
		if err != nil {
			return nil, err
		}
		for _, st := range stages {
			if path, ok := unwindPath(st); ok {
				unwound[path] = struct{}{}
			}
		}
		p = append(p, stages...)
	}

	if len(q.Sort) != 0 {
		stages, err := frameSorts(q.Sort, shape, unwound)
		if err != nil {
			return nil, err
		}
		p = append(p, stages...)
	}

	if q.Group != nil {
		p = append(p, FrameGroupBy(q.Group))
	}
	return p, nil
}

// FrameSort returns the stages needed to sort by a single field. When the
// field's immediate parent is a nested array it is unwound first. Deeper
// ancestors are not unwound.
func FrameSort(s qcode.SortSpec, shape *sdata.Shape) (mongo.Pipeline, error) {
	return frameSorts([]qcode.SortSpec{s}, shape, nil)
}

func frameSorts(specs []qcode.SortSpec, shape *sdata.Shape, unwound map[string]struct{}) (mongo.Pipeline, error) {
	var p mongo.Pipeline

	seen := make(map[string]struct{}, len(unwound))
	for k := range unwound {
		seen[k] = struct{}{}
	}

	keys := make(bson.D, 0, len(specs))

	for _, s := range specs {
		parent, ok, err := shape.Parent(s.Field)
		if err != nil {
			return nil, err
		}
		if ok && parent.IsNested() {
			if _, dup := seen[parent.PropertyPath]; !dup {
				seen[parent.PropertyPath] = struct{}{}
				p = append(p, unwindStage(parent))
			}
		}
		keys = append(keys, bson.E{Key: s.Field.PropertyPath, Value: int32(s.Order)})
	}

	p = append(p, bson.D{{Key: StageSort, Value: keys}})
	return p, nil
}

// FrameGroupBy returns a group stage keyed by the group-by field. Each
// projection gets its own output field, collection projections push every
// value and the others keep the first.
func FrameGroupBy(g *qcode.GroupSpec) bson.D {
	body := make(bson.D, 0, len(g.Fields)+1)
	body = append(body, bson.E{Key: "_id", Value: "$" + g.Field.PropertyPath})

	for _, f := range g.Fields {
		acc := AccFirst
		if f.Collection {
			acc = AccPush
		}
		body = append(body, bson.E{
			Key:   f.Name,
			Value: bson.D{{Key: acc, Value: "$" + f.Field.PropertyPath}},
		})
	}
	return bson.D{{Key: StageGroup, Value: body}}
}

// FrameExactMatch unwinds every nested array between the document root and
// the match field, outermost first, and then matches the named filter.
func FrameExactMatch(em *qcode.ExactMatch, filters map[string]*qcode.Filter, shape *sdata.Shape) (mongo.Pipeline, error) {
	anc, err := shape.Ancestors(em.Field)
	if err != nil {
		return nil, err
	}

	// leaf to root
	var unwinds mongo.Pipeline
	if em.Field.IsNested() {
		unwinds = append(unwinds, unwindStage(em.Field))
	}
	for _, f := range anc {
		if f.IsNested() {
			unwinds = append(unwinds, unwindStage(f))
		}
	}

	p := make(mongo.Pipeline, 0, len(unwinds)+1)
	for i := len(unwinds) - 1; i >= 0; i-- {
		p = append(p, unwinds[i])
	}

	match, err := renderFilter(em.Condition, filters, map[string]bool{})
	if err != nil {
		return nil, err
	}
	p = append(p, bson.D{{Key: StageMatch, Value: match}})
	return p, nil
}

func unwindStage(f sdata.FieldDescriptor) bson.D {
	return bson.D{{Key: StageUnwind, Value: bson.D{
		{Key: "path", Value: "$" + f.PropertyPath},
		{Key: "includeArrayIndex", Value: f.Name + "_index"},
		{Key: "preserveNullAndEmptyArrays", Value: true},
	}}}
}

func unwindPath(st bson.D) (string, bool) {
	if len(st) != 1 || st[0].Key != StageUnwind {
		return "", false
	}
	body, ok := st[0].Value.(bson.D)
	if !ok || len(body) == 0 {
		return "", false
	}
	path, ok := body[0].Value.(string)
	if !ok || len(path) < 2 {
		return "", false
	}
	return path[1:], true
}
