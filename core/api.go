// Package core provides an API to compile declarative filter, sort and group
// requests into MongoDB aggregation pipelines against a document shape.
//
// A shape describes every addressable field of a document: its name, its
// full property path, its parent and whether it is an array of subdocuments.
// The compiler uses it to validate field references and to emit the $unwind
// stages needed to reach fields inside nested arrays.
//
//	conf := &core.Config{CacheSize: 1000}
//	e, err := core.NewEngine(conf, core.NewFileShapeProvider(afero.NewOsFs(), "shape.yml"))
//	if err != nil {
//		return err
//	}
//	c, err := e.Compile(payload)
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dosco/pipejin/core/internal/mql"
	"github.com/dosco/pipejin/core/internal/qcode"
	"github.com/dosco/pipejin/core/internal/qerr"
	"github.com/dosco/pipejin/core/internal/sdata"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
)

// Query is a validated request with every field reference resolved.
type Query = qcode.Query

// engine is an immutable snapshot, a reload replaces it as a whole.
type engine struct {
	conf   *Config
	log    *zap.Logger
	shapes ShapeProvider
	shape  *sdata.Shape
	cache  *Cache
	loaded time.Time
}

// Engine compiles requests against the current shape. It is safe for
// concurrent use, compilation never blocks on a reload.
type Engine struct {
	atomic.Value
	done      chan bool
	closeOnce sync.Once
}

type Option func(*engine) error

// Compiled is the output of a successful compilation.
type Compiled struct {
	Query    *Query
	Pipeline mongo.Pipeline
}

// JSON renders the pipeline as a JSON array of relaxed extended JSON stages.
func (c *Compiled) JSON() ([]byte, error) {
	return mql.MarshalJSON(c.Pipeline)
}

// Result is a compiled pipeline together with the documents it returned.
type Result struct {
	*Compiled
	Collection string
	Rows       []bson.M
}

// NewEngine loads the shape from the provider and returns an engine ready to
// compile. When conf.WatchShape is set the shape is reloaded whenever the
// provider reports a change.
func NewEngine(conf *Config, shapes ShapeProvider, options ...Option) (*Engine, error) {
	if conf == nil {
		conf = &Config{}
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if shapes == nil {
		return nil, qerr.Shape("", "no shape provider")
	}

	e := &engine{
		conf:   conf,
		log:    zap.NewNop(),
		shapes: shapes,
	}

	for _, op := range options {
		if err := op(e); err != nil {
			return nil, err
		}
	}

	if err := e.initCache(); err != nil {
		return nil, err
	}

	shape, err := shapes.LoadShape(context.Background())
	if err != nil {
		e.logError("shape load failed", err)
		return nil, err
	}
	e.shape = shape
	e.loaded = time.Now()

	e.log.Info("shape loaded",
		zap.Int("fields", shape.Len()),
		zap.Uint64("hash", shape.Hash()))

	g := &Engine{done: make(chan bool)}
	g.Store(e)

	if err := g.initWatcher(); err != nil {
		return nil, err
	}
	return g, nil
}

// OptionSetLogger sets the logger used by the engine. Defaults to a no-op logger.
func OptionSetLogger(log *zap.Logger) Option {
	return func(e *engine) error {
		if log != nil {
			e.log = log
		}
		return nil
	}
}

func (g *Engine) load() *engine {
	return g.Load().(*engine)
}

// ParseQuery validates a raw payload against the current shape.
func (g *Engine) ParseQuery(data []byte) (*Query, error) {
	e := g.load()
	q, err := qcode.ParseQuery(data, e.shape)
	if err != nil {
		e.logError("invalid query", err)
		return nil, err
	}
	return q, nil
}

// Compile validates the payload and compiles it into a pipeline. Identical
// payloads compiled against the same shape are served from the cache.
func (g *Engine) Compile(data []byte) (*Compiled, error) {
	return g.load().compile(data)
}

func (e *engine) compile(data []byte) (*Compiled, error) {
	var key string

	if e.cache != nil {
		key = cacheKey(e.shape, data)
		if c, ok := e.cache.Get(key); ok {
			return c, nil
		}
	}

	q, err := qcode.ParseQuery(data, e.shape)
	if err != nil {
		e.logError("invalid query", err)
		return nil, err
	}

	p, err := mql.Compile(q, e.shape)
	if err != nil {
		e.logError("compile failed", err)
		return nil, err
	}
	c := &Compiled{Query: q, Pipeline: p}

	if e.cache != nil {
		e.cache.Set(key, c)
	}
	return c, nil
}

// Execute compiles the payload and runs the pipeline against the collection
// with the given executor. Executor failures are returned as a
// *StoreExecutionError.
func (g *Engine) Execute(ctx context.Context, exec Executor, collection string, data []byte) (*Result, error) {
	e := g.load()

	c, err := e.compile(data)
	if err != nil {
		return nil, err
	}

	rows, err := exec.Execute(ctx, c.Pipeline, collection)
	if err != nil {
		e.log.Error("pipeline execution failed",
			zap.String("collection", collection),
			zap.Error(err))
		return nil, storeError(collection, c.Pipeline, err)
	}
	return &Result{Compiled: c, Collection: collection, Rows: rows}, nil
}

// Reload fetches the shape from the provider again and swaps it in when it
// changed. Requests already compiling keep the shape they started with.
func (g *Engine) Reload(ctx context.Context) (changed bool, err error) {
	e := g.load()

	shape, err := e.shapes.LoadShape(ctx)
	if err != nil {
		e.logError("shape reload failed", err)
		return false, err
	}

	if shape.Hash() == e.shape.Hash() {
		return false, nil
	}

	ne := *e
	ne.shape = shape
	ne.loaded = time.Now()
	g.Store(&ne)

	e.log.Info("shape change detected, reloaded",
		zap.Int("fields", shape.Len()),
		zap.Uint64("hash", shape.Hash()))
	return true, nil
}

// ShapeInfo describes the shape currently in use.
type ShapeInfo struct {
	Fields   []string  `json:"fields"`
	Hash     string    `json:"hash"`
	LoadedAt time.Time `json:"loaded_at"`
}

// ShapeInfo returns a summary of the current shape.
func (g *Engine) ShapeInfo() ShapeInfo {
	e := g.load()
	return ShapeInfo{
		Fields:   e.shape.Names(),
		Hash:     strconv.FormatUint(e.shape.Hash(), 16),
		LoadedAt: e.loaded,
	}
}

// Close stops the shape watcher if one is running.
func (g *Engine) Close() {
	g.closeOnce.Do(func() { close(g.done) })
}

func (e *engine) logError(msg string, err error) {
	kind := qerr.KindOf(err)
	fields := []zap.Field{zap.Error(err)}

	var qe *qerr.Error
	if errors.As(err, &qe) {
		if qe.Path != "" {
			fields = append(fields, zap.String("path", qe.Path))
		}
		if qe.Op != "" {
			fields = append(fields, zap.String("operator", qe.Op))
		}
	}

	// bad requests are the caller's problem, the rest point at the
	// shape or the operator table
	switch kind {
	case qerr.UnknownField, qerr.MalformedPayload:
		e.log.Debug(msg, fields...)
	case qerr.UnsupportedOperator:
		e.log.Warn(msg, fields...)
	default:
		e.log.Error(msg, fields...)
	}
}

func cacheKey(shape *sdata.Shape, data []byte) string {
	sum := sha256.Sum256(data)
	return strconv.FormatUint(shape.Hash(), 16) + ":" + hex.EncodeToString(sum[:])
}
