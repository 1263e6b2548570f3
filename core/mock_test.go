package core_test

import (
	"context"
	"testing"

	"github.com/dosco/pipejin/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMockExecutor(t *testing.T) {
	e := newEngine(t, nil)

	res, err := e.Execute(context.Background(), core.NewMockExecutor(e, 7), "trips", []byte(activeLegs))
	require.NoError(t, err)
	require.NotEmpty(t, res.Rows)
	assert.LessOrEqual(t, len(res.Rows), 3)

	for i, row := range res.Rows {
		assert.Equal(t, "mock_trip_id_"+string(rune('1'+i)), row["trip_id"])
		assert.NotEmpty(t, row["carrier"])

		meta, ok := row["meta"].(bson.M)
		require.True(t, ok)
		assert.NotEmpty(t, meta["source"])

		legs, ok := row["legs"].(bson.A)
		require.True(t, ok)
		require.NotEmpty(t, legs)

		leg := legs[0].(bson.M)
		assert.NotEmpty(t, leg["status"])

		stops, ok := leg["stops"].(bson.A)
		require.True(t, ok)
		stop := stops[0].(bson.M)

		passengers, ok := stop["passengers"].(bson.A)
		require.True(t, ok)
		assert.NotEmpty(t, passengers[0].(bson.M)["name"])
	}
}

func TestMockExecutorSeeded(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	r1, err := core.NewMockExecutor(e, 42).Execute(ctx, nil, "trips")
	require.NoError(t, err)

	r2, err := core.NewMockExecutor(e, 42).Execute(ctx, nil, "trips")
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
}

func TestMockExecutorCanceled(t *testing.T) {
	e := newEngine(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := core.NewMockExecutor(e, 1).Execute(ctx, nil, "trips")
	assert.ErrorIs(t, err, context.Canceled)
}
