package serv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-http-utils/headers"
)

// LambdaHandler serves API Gateway proxy requests. A path ending in
// /compile only compiles the payload, every other path runs it against the
// collection path parameter or the configured default collection.
func (s1 *HttpService) LambdaHandler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	s := s1.Load().(*pipejinService)

	data := []byte(req.Body)
	if req.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return lambdaResp(apiResp{http.StatusBadRequest, errorResp{errorMsg{Kind: "request", Message: err.Error()}}})
		}
		data = b
	}

	if strings.HasSuffix(strings.TrimSuffix(req.Path, "/"), "/compile") {
		return lambdaResp(s.compile(data))
	}

	coll := req.PathParameters["collection"]
	if coll == "" {
		coll = s.conf.DB.Collection
	}
	if coll == "" {
		return lambdaResp(apiResp{http.StatusBadRequest, errorResp{errorMsg{Kind: "request", Message: "no collection named in path or config"}}})
	}
	return lambdaResp(s.query(ctx, coll, data, false))
}

// StartLambda hands the service to the Lambda runtime, it does not return
func (s1 *HttpService) StartLambda() {
	lambda.Start(s1.LambdaHandler)
}

func lambdaResp(res apiResp) (events.APIGatewayProxyResponse, error) {
	b, err := json.Marshal(res.body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: res.status,
		Headers:    map[string]string{headers.ContentType: "application/json", "Server": serverName},
		Body:       string(b),
	}, nil
}
