package mongodriver_test

import (
	"context"
	"testing"
	"time"

	"github.com/dosco/pipejin/core"
	"github.com/dosco/pipejin/mongodriver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const tripShape = `
trip_id: {type: string, this_property_path: trip_id}
carrier: {type: string, this_property_path: carrier}
leg: {type: nested, this_property_path: legs}
status: {type: string, this_property_path: legs.status, parent_path: leg}
fare: {type: number, this_property_path: legs.fare, parent_path: leg}
`

func TestWithMongoDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Skipf("Skipping MongoDB integration test: %v", err)
	}
	defer container.Terminate(context.Background()) //nolint:errcheck

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongodriver.Connect(ctx, mongodriver.ConnOptions{URI: uri, ConnectTimeout: 30 * time.Second})
	require.NoError(t, err)
	defer client.Disconnect(context.Background()) //nolint:errcheck

	db := client.Database("pipejin_test")
	trips := db.Collection("trips")

	_, err = trips.InsertMany(ctx, []interface{}{
		bson.D{
			{Key: "trip_id", Value: "t1"},
			{Key: "carrier", Value: "AA"},
			{Key: "legs", Value: bson.A{
				bson.D{{Key: "status", Value: "ACTIVE"}, {Key: "fare", Value: 120}},
				bson.D{{Key: "status", Value: "CANCELLED"}, {Key: "fare", Value: 80}},
			}},
		},
		bson.D{
			{Key: "trip_id", Value: "t2"},
			{Key: "carrier", Value: "BA"},
			{Key: "legs", Value: bson.A{
				bson.D{{Key: "status", Value: "ACTIVE"}, {Key: "fare", Value: 40}},
			}},
		},
		bson.D{
			{Key: "trip_id", Value: "t3"},
			{Key: "carrier", Value: "AA"},
		},
	})
	require.NoError(t, err)

	shape, err := core.ParseShape([]byte(tripShape))
	require.NoError(t, err)

	e, err := core.NewEngine(nil, core.NewStaticShapeProvider(shape))
	require.NoError(t, err)
	defer e.Close()

	exec := mongodriver.NewExecutor(db, mongodriver.WithRetry(2, 50*time.Millisecond))

	t.Run("exact match on nested field", func(t *testing.T) {
		res, err := e.Execute(ctx, exec, "trips", []byte(`{
			"query": {
				"subquery": {"activeOnly": {"status": ["equal", "ACTIVE"]}},
				"nested_exact_match": {"match_field_path": "status", "condition": "activeOnly"}
			},
			"sort_by": {"legs.fare": -1}
		}`))
		require.NoError(t, err)
		require.Len(t, res.Rows, 2)

		// one row per matching leg, the leg index survives the unwind
		assert.Equal(t, "t1", res.Rows[0]["trip_id"])
		assert.EqualValues(t, 0, res.Rows[0]["leg_index"])
		assert.Equal(t, "t2", res.Rows[1]["trip_id"])
	})

	t.Run("group by carrier", func(t *testing.T) {
		res, err := e.Execute(ctx, exec, "trips", []byte(`{
			"query": {"subquery": {}},
			"sort_by": {"trip_id": 1},
			"group": {
				"group_by": "carrier",
				"doc_response_fields": [
					{"field_path": "trip_id", "return_obj_name": "trips", "complete_obj": true},
					{"field_path": "trip_id", "return_obj_name": "first_trip"}
				]
			}
		}`))
		require.NoError(t, err)
		require.Len(t, res.Rows, 2)

		byCarrier := map[string]bson.M{}
		for _, r := range res.Rows {
			byCarrier[r["_id"].(string)] = r
		}
		assert.Equal(t, bson.A{"t1", "t3"}, byCarrier["AA"]["trips"])
		assert.Equal(t, "t1", byCarrier["AA"]["first_trip"])
		assert.Equal(t, bson.A{"t2"}, byCarrier["BA"]["trips"])
	})

	t.Run("store error", func(t *testing.T) {
		_, err := exec.Execute(ctx, mongo.Pipeline{{{Key: "$bogus", Value: 1}}}, "trips")
		require.Error(t, err)

		var se *core.StoreExecutionError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "trips", se.Collection)
	})

	t.Run("infer shape", func(t *testing.T) {
		s, err := mongodriver.InferShape(ctx, db, "trips", 10)
		require.NoError(t, err)

		f, err := s.Describe("legs.status")
		require.NoError(t, err)
		assert.Equal(t, "leg", f.ParentPath)
	})
}
