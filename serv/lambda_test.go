package serv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestLambdaCompile(t *testing.T) {
	s := newTestService(t, "", &fakeExecutor{})

	res, err := s.LambdaHandler(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/v1/compile",
		Body:       activeLegs,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Headers["Content-Type"])

	var out compileResp
	require.NoError(t, json.Unmarshal([]byte(res.Body), &out))
	assert.Equal(t, 2, out.PageNo)
	assert.Contains(t, string(out.Pipeline), `"$unwind"`)
}

func TestLambdaQueryDefaultCollection(t *testing.T) {
	exec := &fakeExecutor{rows: []bson.M{{"trip_id": "t1"}}}
	s := newTestService(t, "database: {default_collection: trips}", exec)

	res, err := s.LambdaHandler(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/query",
		Body:            base64.StdEncoding.EncodeToString([]byte(activeLegs)),
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "trips", exec.collection)

	var out queryResp
	require.NoError(t, json.Unmarshal([]byte(res.Body), &out))
	assert.Equal(t, "trips", out.Collection)
	require.Len(t, out.Rows, 1)
	assert.JSONEq(t, `{"trip_id": "t1"}`, string(out.Rows[0]))
}

func TestLambdaQueryPathCollection(t *testing.T) {
	exec := &fakeExecutor{}
	s := newTestService(t, "database: {default_collection: trips}", exec)

	res, err := s.LambdaHandler(context.Background(), events.APIGatewayProxyRequest{
		Path:           "/api/v1/query/flights",
		PathParameters: map[string]string{"collection": "flights"},
		Body:           `{"query": {"subquery": {"f": {"legs.nope": ["eq", 1]}}}}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Empty(t, exec.collection)

	var out errorResp
	require.NoError(t, json.Unmarshal([]byte(res.Body), &out))
	assert.Equal(t, "unknown-field", out.Error.Kind)
}

func TestLambdaQueryNoCollection(t *testing.T) {
	exec := &fakeExecutor{}
	s := newTestService(t, "", exec)

	res, err := s.LambdaHandler(context.Background(), events.APIGatewayProxyRequest{
		Path: "/query",
		Body: activeLegs,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Empty(t, exec.pipeline)

	var out errorResp
	require.NoError(t, json.Unmarshal([]byte(res.Body), &out))
	assert.Equal(t, "request", out.Error.Kind)
}
