package mongodriver

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/dosco/pipejin/core"
	"github.com/gobuffalo/flect"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// DefaultSampleSize is the number of documents sampled by InferShape when
// no size is given.
const DefaultSampleSize = 100

// InferShape samples documents from a collection and derives a shape from
// them. The result is a starting point, review it before serving with it.
func InferShape(ctx context.Context, db *mongo.Database, collection string, sampleSize int) (*core.Shape, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	p := mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: sampleSize}}}},
	}

	cursor, err := db.Collection(collection).Aggregate(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: sample: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var docs []bson.D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodriver: sample results: %w", err)
	}
	return ShapeFromDocuments(docs)
}

// ShapeFromDocuments derives a shape from sample documents. Arrays of
// subdocuments become nested fields named after the singular of their key,
// embedded documents become object fields and everything else is a scalar
// typed after the first non-null value seen.
func ShapeFromDocuments(docs []bson.D) (*core.Shape, error) {
	sb := &shapeBuilder{
		fields: make(map[string]core.FieldDescriptor),
		byPath: make(map[string]string),
	}
	for _, d := range docs {
		sb.walk(d, "", "")
	}
	if len(sb.fields) == 0 {
		return nil, fmt.Errorf("mongodriver: no fields found in sample")
	}
	return core.NewShape(sb.fields)
}

type shapeBuilder struct {
	fields map[string]core.FieldDescriptor
	byPath map[string]string
}

func (sb *shapeBuilder) walk(d bson.D, prefix, parent string) {
	for _, elem := range d {
		path := elem.Key
		if prefix != "" {
			path = prefix + "." + elem.Key
		}

		typ := inferBSONType(elem.Value)
		name := sb.add(path, elem.Key, parent, typ)

		switch typ {
		case core.FieldNested:
			for _, item := range elem.Value.(bson.A) {
				if sub, ok := asDoc(item); ok {
					sb.walk(sub, path, name)
				}
			}
		case "object":
			if sub, ok := asDoc(elem.Value); ok {
				sb.walk(sub, path, name)
			}
		}
	}
}

// add records a field the first time its path is seen and returns its name.
// A later sighting only refines an unknown type or an empty array.
func (sb *shapeBuilder) add(path, key, parent string, typ core.FieldType) string {
	if name, ok := sb.byPath[path]; ok {
		f := sb.fields[name]
		switch {
		case f.Type == "array" && typ == core.FieldNested:
			// seen empty before, nothing hangs off it yet so it can be renamed
			delete(sb.fields, name)
			delete(sb.byPath, path)
		case f.Type == "null" && typ != "null":
			f.Type = typ
			sb.fields[name] = f
			return name
		default:
			return name
		}
	}

	name := key
	if typ == core.FieldNested {
		name = flect.Singularize(key)
	}
	if _, taken := sb.fields[name]; taken {
		name = strings.ReplaceAll(path, ".", "_")
	}

	sb.fields[name] = core.FieldDescriptor{
		Name:         name,
		PropertyPath: path,
		ParentPath:   parent,
		Type:         typ,
	}
	sb.byPath[path] = name
	return name
}

// inferBSONType determines the shape type from a decoded value.
func inferBSONType(v any) core.FieldType {
	if v == nil {
		return "null"
	}

	switch val := v.(type) {
	case bson.ObjectID:
		return "objectId"
	case string:
		return "string"
	case int32, int64:
		return "long"
	case float64:
		return "double"
	case bool:
		return "bool"
	case bson.DateTime:
		return "date"
	case bson.A:
		for _, item := range val {
			if _, ok := asDoc(item); ok {
				return core.FieldNested
			}
		}
		return "array"
	case bson.D, bson.M:
		return "object"
	case bson.Decimal128:
		return "decimal"
	case bson.Binary:
		return "binData"
	default:
		rt := reflect.TypeOf(val)
		if rt.Kind() == reflect.Slice {
			return "array"
		}
		if rt.Kind() == reflect.Map || rt.Kind() == reflect.Struct {
			return "object"
		}
		return "string"
	}
}

func asDoc(v any) (bson.D, bool) {
	switch d := v.(type) {
	case bson.D:
		return d, true
	case bson.M:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(bson.D, 0, len(d))
		for _, k := range keys {
			out = append(out, bson.E{Key: k, Value: d[k]})
		}
		return out, true
	}
	return nil, false
}
