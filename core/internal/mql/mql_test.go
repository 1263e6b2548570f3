package mql_test

import (
	"strconv"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/dosco/pipejin/core/internal/mql"
	"github.com/dosco/pipejin/core/internal/qcode"
	"github.com/dosco/pipejin/core/internal/qerr"
	"github.com/dosco/pipejin/core/internal/sdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var testShape = sdata.GetTestShape()

func compile(t *testing.T, shape *sdata.Shape, payload string) mongo.Pipeline {
	t.Helper()

	q, err := qcode.ParseQuery([]byte(payload), shape)
	require.NoError(t, err)

	p, err := mql.Compile(q, shape)
	require.NoError(t, err)
	return p
}

func unwind(path, alias string) bson.D {
	return bson.D{{Key: "$unwind", Value: bson.D{
		{Key: "path", Value: path},
		{Key: "includeArrayIndex", Value: alias},
		{Key: "preserveNullAndEmptyArrays", Value: true},
	}}}
}

func TestCompileLegStatus(t *testing.T) {
	shape, err := sdata.Parse(sdata.GetTestShapeJSON())
	require.NoError(t, err)

	p := compile(t, shape, `{
		"query": {
			"subquery": {"activeOnly": {"status": ["equal", "ACTIVE"]}},
			"nested_exact_match": {"match_field_path": "status", "condition": "activeOnly"}
		}
	}`)

	want := mongo.Pipeline{
		unwind("$legs", "leg_index"),
		{{Key: "$match", Value: bson.D{
			{Key: "legs.status", Value: bson.D{{Key: "$eq", Value: "ACTIVE"}}},
		}}},
	}
	assert.Equal(t, want, p)

	js, err := mql.MarshalJSON(p)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"$unwind": {"path": "$legs", "includeArrayIndex": "leg_index", "preserveNullAndEmptyArrays": true}},
		{"$match": {"legs.status": {"$eq": "ACTIVE"}}}
	]`, string(js))
}

func TestFrameExactMatchOrder(t *testing.T) {
	q, err := qcode.ParseQuery([]byte(`{
		"query": {
			"subquery": {"named": {"name": ["in", ["ann", "bob"]], "city": ["ne", "Oslo"]}},
			"nested_exact_match": {"match_field_path": "legs.stops.passengers.name", "condition": "named"}
		}
	}`), testShape)
	require.NoError(t, err)

	p, err := mql.FrameExactMatch(q.ExactMatch, q.Filters, testShape)
	require.NoError(t, err)

	want := mongo.Pipeline{
		unwind("$legs", "leg_index"),
		unwind("$legs.stops", "stop_index"),
		unwind("$legs.stops.passengers", "passenger_index"),
		{{Key: "$match", Value: bson.D{
			{Key: "legs.stops.city", Value: bson.D{{Key: "$ne", Value: "Oslo"}}},
			{Key: "legs.stops.passengers.name", Value: bson.D{{Key: "$in", Value: bson.A{"ann", "bob"}}}},
		}}},
	}
	assert.Equal(t, want, p)
}

func TestFrameExactMatchNestedField(t *testing.T) {
	q, err := qcode.ParseQuery([]byte(`{
		"query": {
			"subquery": {"any": {"legs.stops": ["exists", true]}},
			"nested_exact_match": {"match_field_path": "stop", "condition": "any"}
		}
	}`), testShape)
	require.NoError(t, err)

	p, err := mql.FrameExactMatch(q.ExactMatch, q.Filters, testShape)
	require.NoError(t, err)
	require.Len(t, p, 3)
	assert.Equal(t, unwind("$legs", "leg_index"), p[0])
	assert.Equal(t, unwind("$legs.stops", "stop_index"), p[1])
	assert.Equal(t, "$match", p[2][0].Key)
}

func TestFrameExactMatchRootField(t *testing.T) {
	q, err := qcode.ParseQuery([]byte(`{
		"query": {
			"subquery": {"aa": {"carrier": ["eq", "AA"]}},
			"nested_exact_match": {"match_field_path": "carrier", "condition": "aa"}
		}
	}`), testShape)
	require.NoError(t, err)

	p, err := mql.FrameExactMatch(q.ExactMatch, q.Filters, testShape)
	require.NoError(t, err)
	assert.Equal(t, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "carrier", Value: bson.D{{Key: "$eq", Value: "AA"}}}}}},
	}, p)
}

func TestFrameExactMatchCycle(t *testing.T) {
	shape := sdata.New(map[string]sdata.FieldDescriptor{
		"a":    {PropertyPath: "b.a", ParentPath: "b", Type: sdata.FieldNested},
		"b":    {PropertyPath: "a.b", ParentPath: "a", Type: sdata.FieldNested},
		"leaf": {PropertyPath: "a.b.leaf", ParentPath: "b"},
	})

	q, err := qcode.ParseQuery([]byte(`{
		"query": {
			"subquery": {"f": {"leaf": ["eq", 1]}},
			"nested_exact_match": {"match_field_path": "leaf", "condition": "f"}
		}
	}`), shape)
	require.NoError(t, err)

	_, err = mql.FrameExactMatch(q.ExactMatch, q.Filters, shape)
	require.Error(t, err)
	assert.Equal(t, qerr.CyclicAncestry, qerr.KindOf(err))

	_, err = mql.Compile(q, shape)
	assert.Equal(t, qerr.CyclicAncestry, qerr.KindOf(err))
}

func TestCompoundFilter(t *testing.T) {
	p := compile(t, testShape, `{
		"query": {
			"subquery": {
				"active": {"status": ["eq", "ACTIVE"]},
				"cheap": {"fare": ["gte", 10, "lte", 50]},
				"range": {"fare": ["gt", 1, "gt", 2]}
			},
			"compound_query": {
				"either": {"or": ["active", "cheap"]},
				"neither": {"nor": ["either", "range"]}
			},
			"nested_exact_match": {"match_field_path": "fare", "condition": "neither"}
		}
	}`)

	want := bson.D{{Key: "$nor", Value: bson.A{
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "legs.status", Value: bson.D{{Key: "$eq", Value: "ACTIVE"}}}},
			bson.D{{Key: "legs.fare", Value: bson.D{
				{Key: "$gte", Value: int64(10)},
				{Key: "$lte", Value: int64(50)},
			}}},
		}}},
		bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "legs.fare", Value: bson.D{{Key: "$gt", Value: int64(1)}}}},
			bson.D{{Key: "legs.fare", Value: bson.D{{Key: "$gt", Value: int64(2)}}}},
		}}},
	}}}

	require.Len(t, p, 2)
	assert.Equal(t, unwind("$legs", "leg_index"), p[0])
	assert.Equal(t, bson.D{{Key: "$match", Value: want}}, p[1])
}

func TestFrameSort(t *testing.T) {
	tests := []struct {
		field   string
		unwinds int
	}{
		{"legs.status", 1},
		{"legs.stops.city", 1},
		{"legs.stops.passengers", 1},
		{"trip_id", 0},
		{"meta.source", 0},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			fd, err := testShape.Describe(tt.field)
			require.NoError(t, err)

			p, err := mql.FrameSort(qcode.SortSpec{Path: tt.field, Field: fd, Order: qcode.OrderDesc}, testShape)
			require.NoError(t, err)
			require.Len(t, p, tt.unwinds+1)

			n := 0
			for _, st := range p {
				if st[0].Key == "$unwind" {
					n++
				}
			}
			assert.Equal(t, tt.unwinds, n)

			last := p[len(p)-1]
			assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: fd.PropertyPath, Value: int32(-1)}}}}, last)
		})
	}
}

func TestFrameSortParentPath(t *testing.T) {
	fd, err := testShape.Describe("legs.stops.city")
	require.NoError(t, err)

	p, err := mql.FrameSort(qcode.SortSpec{Field: fd, Order: qcode.OrderAsc}, testShape)
	require.NoError(t, err)
	assert.Equal(t, unwind("$legs.stops", "stop_index"), p[0])
}

func TestCompileMultiSort(t *testing.T) {
	p := compile(t, testShape, `{
		"query": {"subquery": {}},
		"sort_by": {"legs.fare": -1, "legs.status": 1, "carrier": 1}
	}`)

	want := mongo.Pipeline{
		unwind("$legs", "leg_index"),
		{{Key: "$sort", Value: bson.D{
			{Key: "legs.fare", Value: int32(-1)},
			{Key: "legs.status", Value: int32(1)},
			{Key: "carrier", Value: int32(1)},
		}}},
	}
	assert.Equal(t, want, p)
}

func TestFrameGroupBy(t *testing.T) {
	q, err := qcode.ParseQuery([]byte(`{
		"query": {"subquery": {}},
		"group": {
			"group_by": "carrier",
			"doc_response_fields": [
				{"field_path": "legs.status", "return_obj_name": "statuses", "complete_obj": true},
				{"field_path": "legs.fare", "return_obj_name": "fares", "complete_obj": true}
			]
		}
	}`), testShape)
	require.NoError(t, err)

	st := mql.FrameGroupBy(q.Group)
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: "$carrier"},
		{Key: "statuses", Value: bson.D{{Key: "$push", Value: "$legs.status"}}},
		{Key: "fares", Value: bson.D{{Key: "$push", Value: "$legs.fare"}}},
	}}}, st)
}

func TestFrameGroupByFirstNames(t *testing.T) {
	q, err := qcode.ParseQuery([]byte(`{
		"query": {"subquery": {}},
		"group": {
			"group_by": "trip_id",
			"doc_response_fields": [
				{"field_path": "carrier", "return_obj_name": "carrier"},
				{"field_path": "meta.source", "return_obj_name": "source"},
				{"field_path": "legs.status", "return_obj_name": "statuses", "complete_obj": true}
			]
		}
	}`), testShape)
	require.NoError(t, err)

	// every first-accumulator keeps its own output name
	st := mql.FrameGroupBy(q.Group)
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: "$trip_id"},
		{Key: "carrier", Value: bson.D{{Key: "$first", Value: "$carrier"}}},
		{Key: "source", Value: bson.D{{Key: "$first", Value: "$meta.source"}}},
		{Key: "statuses", Value: bson.D{{Key: "$push", Value: "$legs.status"}}},
	}}}, st)
}

func TestCompileOrder(t *testing.T) {
	p := compile(t, testShape, `{
		"query": {
			"subquery": {"oslo": {"city": ["eq", "Oslo"]}},
			"nested_exact_match": {"match_field_path": "city", "condition": "oslo"}
		},
		"sort_by": {"legs.stops.arrival": 1, "legs.status": -1},
		"group": {"group_by": "trip_id", "doc_response_fields": [{"field_path": "legs.stops.city", "return_obj_name": "cities", "complete_obj": true}]}
	}`)

	var keys []string
	for _, st := range p {
		keys = append(keys, st[0].Key)
	}
	// legs and legs.stops are unwound for the match and not again for the sort
	assert.Equal(t, []string{"$unwind", "$unwind", "$match", "$sort", "$group"}, keys)
}

func TestCompileEmpty(t *testing.T) {
	p := compile(t, testShape, `{"query": {"subquery": {"f": {"carrier": ["eq", "AA"]}}}}`)
	assert.Empty(t, p)
}

func TestCompileDeterministic(t *testing.T) {
	faker := gofakeit.New(42)

	for i := 0; i < 20; i++ {
		payload := `{
			"query": {
				"subquery": {
					"a": {"carrier": ["in", ["` + faker.Word() + `", "` + faker.Word() + `"]], "legs.fare": ["gt", ` + strconv.Itoa(faker.Number(10, 99)) + `]},
					"b": {"city": ["eq", "` + faker.City() + `"], "name": ["exists", ` + boolString(faker.Bool()) + `]}
				},
				"compound_query": {"c": {"or": ["a", "b"]}},
				"nested_exact_match": {"match_field_path": "name", "condition": "c"}
			},
			"sort_by": {"legs.stops.arrival": -1, "trip_id": 1},
			"group": {"group_by": "trip_id", "doc_response_fields": [{"field_path": "carrier", "return_obj_name": "carrier"}]}
		}`

		p1 := compile(t, testShape, payload)
		p2 := compile(t, testShape, payload)
		assert.Equal(t, p1, p2)

		b1, err := bson.Marshal(bson.D{{Key: "p", Value: p1}})
		require.NoError(t, err)
		b2, err := bson.Marshal(bson.D{{Key: "p", Value: p2}})
		require.NoError(t, err)
		assert.Equal(t, b1, b2)
	}
}

func TestClone(t *testing.T) {
	p := compile(t, testShape, `{
		"query": {
			"subquery": {"f": {"carrier": ["in", ["AA"]]}},
			"nested_exact_match": {"match_field_path": "carrier", "condition": "f"}
		}
	}`)

	c := mql.Clone(p)
	assert.Equal(t, p, c)

	match := c[0][0].Value.(bson.D)
	cond := match[0].Value.(bson.D)
	cond[0].Value.(bson.A)[0] = "BA"

	assert.NotEqual(t, p, c)
	assert.Nil(t, mql.Clone(nil))
}

func TestRenderOp(t *testing.T) {
	tests := []struct {
		op   qcode.ExpOp
		want string
	}{
		{qcode.OpEquals, "$eq"},
		{qcode.OpNotEquals, "$ne"},
		{qcode.OpGreaterThan, "$gt"},
		{qcode.OpLesserThan, "$lt"},
		{qcode.OpGreaterOrEquals, "$gte"},
		{qcode.OpLesserOrEquals, "$lte"},
		{qcode.OpIn, "$in"},
		{qcode.OpNotIn, "$nin"},
		{qcode.OpExists, "$exists"},
		{qcode.OpAnd, "$and"},
		{qcode.OpOr, "$or"},
		{qcode.OpNor, "$nor"},
	}

	for _, tt := range tests {
		got, err := mql.RenderOp(tt.op)
		if err != nil {
			t.Errorf("RenderOp(%s) error = %v", tt.op, err)
			continue
		}
		if got != tt.want {
			t.Errorf("RenderOp(%s) = %s, want %s", tt.op, got, tt.want)
		}
	}

	_, err := mql.RenderOp(qcode.OpNop)
	assert.Equal(t, qerr.UnsupportedOperator, qerr.KindOf(err))
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
