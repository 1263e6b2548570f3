package mql

import (
	"bytes"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Clone returns a deep copy of the pipeline.
func Clone(p mongo.Pipeline) mongo.Pipeline {
	if p == nil {
		return nil
	}
	c := make(mongo.Pipeline, len(p))
	for i, st := range p {
		c[i] = cloneDoc(st)
	}
	return c
}

func cloneDoc(d bson.D) bson.D {
	c := make(bson.D, len(d))
	for i, e := range d {
		c[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return c
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.D:
		return cloneDoc(val)
	case bson.A:
		c := make(bson.A, len(val))
		for i, item := range val {
			c[i] = cloneValue(item)
		}
		return c
	default:
		return v
	}
}

// MarshalJSON renders the pipeline as a JSON array of relaxed extended JSON
// stages.
func MarshalJSON(p mongo.Pipeline) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('[')
	for i, st := range p {
		if i != 0 {
			buf.WriteByte(',')
		}
		b, err := bson.MarshalExtJSON(st, false, false)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
