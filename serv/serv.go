package serv

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dosco/pipejin/core"
	"github.com/dosco/pipejin/serv/internal/util"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version string

const (
	serverName = "PipeJin"
	defaultHP  = "0.0.0.0:8080"
)

type servState int

const (
	servStarting servState = iota
	servListening
)

// HttpService runs the compile and query API. The service state is swapped
// atomically so handlers never see a half initialized service.
type HttpService struct {
	atomic.Value
}

type pipejinService struct {
	log     *zap.SugaredLogger
	zlog    *zap.Logger
	conf    *Config
	pj      *core.Engine
	shapes  core.ShapeProvider
	client  *mongo.Client
	exec    core.Executor
	srv     *http.Server
	state   servState
	closeFn func()
}

type Option func(*pipejinService) error

// NewPipeJinService creates the service from the config. Unless options
// supply them, the shape is loaded from the configured source and a MongoDB
// client is opened.
func NewPipeJinService(conf *Config, options ...Option) (*HttpService, error) {
	if conf == nil {
		return nil, fmt.Errorf("pipejin: config required")
	}

	zlog := util.NewLogger(conf.ShouldUseJSONLogs(), util.ParseLevel(conf.LogLevel))

	s := &pipejinService{
		log:  zlog.Sugar(),
		zlog: zlog,
		conf: conf,
	}

	for _, op := range options {
		if err := op(s); err != nil {
			return nil, err
		}
	}

	if err := s.init(); err != nil {
		return nil, err
	}

	s1 := &HttpService{}
	s1.Store(s)
	return s1, nil
}

// OptionSetZapLogger sets the logger used by the service and the engine
func OptionSetZapLogger(zlog *zap.Logger) Option {
	return func(s *pipejinService) error {
		s.zlog = zlog
		s.log = zlog.Sugar()
		return nil
	}
}

// OptionSetShapeProvider overrides the shape source from the config
func OptionSetShapeProvider(p core.ShapeProvider) Option {
	return func(s *pipejinService) error {
		s.shapes = p
		return nil
	}
}

// OptionSetExecutor overrides the MongoDB executor built from the config
func OptionSetExecutor(exec core.Executor) Option {
	return func(s *pipejinService) error {
		s.exec = exec
		return nil
	}
}

func (s *pipejinService) init() error {
	if err := s.initConfig(); err != nil {
		return err
	}

	if err := s.initShapes(); err != nil {
		return err
	}

	var err error
	s.pj, err = core.NewEngine(&s.conf.Core, s.shapes, core.OptionSetLogger(s.zlog))
	if err != nil {
		return err
	}

	if err := s.initDB(); err != nil {
		s.pj.Close()
		return err
	}
	return nil
}

// Engine returns the compiler engine used by the service
func (s *HttpService) Engine() *core.Engine {
	return s.Load().(*pipejinService).pj
}

// Handler returns the service routes, useful for embedding the API in
// another server
func (s *HttpService) Handler() (http.Handler, error) {
	return routesHandler(s)
}

// Start the HTTP server and block until it is shut down
func (s *HttpService) Start() error {
	return startHTTP(s)
}

// Close releases the engine and the database client
func (s *HttpService) Close() {
	ps := s.Load().(*pipejinService)
	ps.pj.Close()

	if ps.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ps.client.Disconnect(ctx); err != nil {
			ps.log.Warnf("database disconnect: %s", err)
		}
	}
}

// Start the HTTP server
func startHTTP(s1 *HttpService) error {
	s := s1.Load().(*pipejinService)

	routes, err := routesHandler(s1)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Addr:              s.conf.hostPort,
		Handler:           routes,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      s.conf.DB.QueryTimeout + 10*time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		if err := s.srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("shutdown signal received")
		}
		close(idleConnsClosed)
	}()

	s.srv.RegisterOnShutdown(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
		s1.Close()
		s.log.Info("shutdown complete")
	})

	ver := version
	if ver == "" {
		ver = "not-set"
	}

	info := s.pj.ShapeInfo()

	fields := []zapcore.Field{
		zap.String("version", ver),
		zap.String("host-port", s.conf.hostPort),
		zap.String("app-name", s.conf.AppName),
		zap.String("env", os.Getenv("GO_ENV")),
		zap.Bool("production", s.conf.Production),
		zap.Int("shape-fields", len(info.Fields)),
		zap.String("shape-hash", info.Hash),
	}

	s.zlog.Info("PipeJin started", fields...)

	l, err := net.Listen("tcp", s.conf.hostPort)
	if err != nil {
		return fmt.Errorf("failed to init port: %w", err)
	}

	// signal we are open for business.
	s.state = servListening

	if err := s.srv.Serve(l); err != http.ErrServerClosed {
		return fmt.Errorf("failed to start: %w", err)
	}
	<-idleConnsClosed
	return nil
}

// Set the server header
func setServerHeader(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", serverName)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// SetVersion sets the version reported in the startup log
func SetVersion(v string) {
	version = v
}
