package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/dosco/pipejin/core/internal/qerr"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// CompilationError is returned for every failure detected before a pipeline
// is handed to the store. Use errors.As to inspect its Kind and Path.
type CompilationError = qerr.Error

// ErrorKind tags a CompilationError.
type ErrorKind = qerr.Kind

const (
	ErrUnknownField        = qerr.UnknownField
	ErrUnsupportedOperator = qerr.UnsupportedOperator
	ErrCyclicAncestry      = qerr.CyclicAncestry
	ErrMalformedPayload    = qerr.MalformedPayload
	ErrInvalidShape        = qerr.InvalidShape
)

// KindOf returns the kind of the CompilationError wrapped by err, or zero.
func KindOf(err error) ErrorKind {
	return qerr.KindOf(err)
}

// Executor runs a compiled pipeline against a collection.
type Executor interface {
	Execute(ctx context.Context, pipeline mongo.Pipeline, collection string) ([]bson.M, error)
}

// StoreExecutionError wraps a failure reported by the store while running
// a pipeline. The pipeline is kept for diagnostics.
type StoreExecutionError struct {
	Collection string
	Pipeline   mongo.Pipeline
	Err        error
}

func (e *StoreExecutionError) Error() string {
	return fmt.Sprintf("pipejin: store execution failed on '%s': %v", e.Collection, e.Err)
}

func (e *StoreExecutionError) Unwrap() error {
	return e.Err
}

func storeError(collection string, p mongo.Pipeline, err error) error {
	var se *StoreExecutionError
	if errors.As(err, &se) {
		return err
	}
	return &StoreExecutionError{Collection: collection, Pipeline: p, Err: err}
}
