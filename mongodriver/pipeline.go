package mongodriver

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/dosco/pipejin/core"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/dosco/pipejin/mongodriver"

// StoreExecutionError is returned when the store rejects or fails a pipeline.
type StoreExecutionError = core.StoreExecutionError

// Executor runs compiled pipelines against a MongoDB database. The database
// handle is owned by the caller.
type Executor struct {
	db           *mongo.Database
	attempts     uint
	delay        time.Duration
	allowDiskUse bool
	tracer       trace.Tracer
	log          *zap.Logger

	// aggregate is swapped out in tests
	aggregate func(ctx context.Context, collection string, p mongo.Pipeline) ([]bson.M, error)
}

type Option func(*Executor)

// WithRetry retries transient network and timeout failures. attempts
// counts the first try, the default of 1 never retries.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(e *Executor) {
		if attempts != 0 {
			e.attempts = attempts
		}
		e.delay = delay
	}
}

// WithAllowDiskUse lets large sort and group stages spill to disk.
func WithAllowDiskUse(v bool) Option {
	return func(e *Executor) {
		e.allowDiskUse = v
	}
}

// WithTracerProvider sets the provider spans are created with. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) {
		e.tracer = tp.Tracer(tracerName)
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) {
		e.log = log
	}
}

// NewExecutor returns an executor running pipelines against db.
func NewExecutor(db *mongo.Database, opts ...Option) *Executor {
	e := &Executor{
		db:       db,
		attempts: 1,
		delay:    100 * time.Millisecond,
		tracer:   otel.Tracer(tracerName),
		log:      zap.NewNop(),
	}
	e.aggregate = e.executeAggregate

	for _, op := range opts {
		op(e)
	}
	return e
}

// Execute runs the pipeline and returns every resulting document.
func (e *Executor) Execute(ctx context.Context, p mongo.Pipeline, collection string) ([]bson.M, error) {
	ctx, span := e.tracer.Start(ctx, "mongodriver.aggregate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.collection.name", collection),
			attribute.Int("db.pipeline.stages", len(p)),
		))
	defer span.End()

	if collection == "" {
		err := &StoreExecutionError{Pipeline: p, Err: fmt.Errorf("mongodriver: aggregate requires collection")}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var rows []bson.M

	err := retry.Do(
		func() (err error) {
			rows, err = e.aggregate(ctx, collection, p)
			return
		},
		retry.Context(ctx),
		retry.Attempts(e.attempts),
		retry.Delay(e.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			if n+1 >= e.attempts {
				return
			}
			e.log.Warn("retrying aggregate",
				zap.String("collection", collection),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &StoreExecutionError{Collection: collection, Pipeline: p, Err: err}
	}

	span.SetAttributes(attribute.Int("db.response.returned_rows", len(rows)))
	return rows, nil
}

// executeAggregate runs an aggregation pipeline.
func (e *Executor) executeAggregate(ctx context.Context, collection string, p mongo.Pipeline) ([]bson.M, error) {
	coll := e.db.Collection(collection)

	opts := options.Aggregate()
	if e.allowDiskUse {
		opts.SetAllowDiskUse(true)
	}

	cursor, err := coll.Aggregate(ctx, p, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: aggregate: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	results := []bson.M{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("mongodriver: aggregate results: %w", err)
	}
	return results, nil
}

// isTransient reports whether a failed aggregate may succeed when retried.
func isTransient(err error) bool {
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}
