package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/dosco/pipejin/core/internal/sdata"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MockExecutor returns documents generated from the engine's current shape
// instead of querying a database. The pipeline itself is not evaluated, so
// rows have the stored document layout rather than the grouped one.
type MockExecutor struct {
	pj    *Engine
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// NewMockExecutor creates a mock executor. The same seed yields the same
// sequence of documents.
func NewMockExecutor(pj *Engine, seed int64) *MockExecutor {
	return &MockExecutor{pj: pj, faker: gofakeit.New(seed)}
}

func (m *MockExecutor) Execute(ctx context.Context, p mongo.Pipeline, collection string) ([]bson.M, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shape := m.pj.load().shape

	var roots []string
	children := make(map[string][]string)

	for _, k := range shape.Names() {
		f, _ := shape.Field(k)
		if f.HasParent() {
			children[f.ParentPath] = append(children[f.ParentPath], k)
		} else {
			roots = append(roots, k)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g := mockGen{shape: shape, children: children, faker: m.faker}

	rows := make([]bson.M, 1+m.faker.Number(0, 2))
	for i := range rows {
		rows[i] = g.doc(roots, "", i)
	}
	return rows, nil
}

type mockGen struct {
	shape    *sdata.Shape
	children map[string][]string
	faker    *gofakeit.Faker
}

func (g *mockGen) doc(names []string, base string, idx int) bson.M {
	d := bson.M{}

	for _, name := range names {
		f, _ := g.shape.Field(name)
		key := f.PropertyPath
		if base != "" {
			key = strings.TrimPrefix(key, base+".")
		}

		var val interface{}

		switch {
		case f.IsNested():
			list := make(bson.A, 1+g.faker.Number(0, 1))
			for i := range list {
				list[i] = g.doc(g.children[name], f.PropertyPath, i)
			}
			val = list

		case len(g.children[name]) != 0:
			val = g.doc(g.children[name], f.PropertyPath, idx)

		default:
			val = g.scalar(f.Name, idx)
		}
		setPath(d, key, val)
	}
	return d
}

func (g *mockGen) scalar(name string, idx int) interface{} {
	if name == "id" || strings.HasSuffix(name, "_id") {
		return fmt.Sprintf("mock_%s_%d", name, idx+1)
	}
	return g.faker.Word()
}

// setPath stores val under a dotted key, creating the subdocuments between
func setPath(d bson.M, key string, val interface{}) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		sub, ok := d[p].(bson.M)
		if !ok {
			sub = bson.M{}
			d[p] = sub
		}
		d = sub
	}
	d[parts[len(parts)-1]] = val
}
