package serv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dosco/pipejin/core"
	"github.com/dosco/pipejin/serv/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

type (
	Core = core.Config
)

// Configuration for the PipeJin service
type Config struct {
	// Configuration for the pipeline compiler core
	Core `mapstructure:",squash"`

	// Configuration for the PipeJin Service
	Serv `mapstructure:",squash"`

	hostPort string
	viper    *viper.Viper
}

// Configuration for the PipeJin Service
type Serv struct {
	// Application name is used in log and debug messages
	AppName string `mapstructure:"app_name"`

	// When enabled the service logs in JSON and does not watch the shape
	// file unless watch_shape is set explicitly
	Production bool

	// The default path to find all configuration files
	ConfigPath string `mapstructure:"config_path"`

	// Logging level must be one of debug, error, warn, info
	LogLevel string `mapstructure:"log_level"`

	// Logging Format: "auto" (default, colored console in dev, JSON in production),
	// "json" (always JSON), or "simple" (always colored console)
	LogFormat string `mapstructure:"log_format"`

	// The host and port the service runs on. Example localhost:8080
	HostPort string `mapstructure:"host_port"`

	// Host to run the service on
	Host string

	// Port to run the service on
	Port string

	// Enables HTTP compression
	HTTPGZip bool `mapstructure:"http_compress"`

	// Sets the API rate limits
	RateLimiter RateLimiter `mapstructure:"rate_limiter"`

	// Enable OpenTelemetry request tracing
	EnableTracing bool `mapstructure:"enable_tracing"`

	// Sets the HTTP CORS Access-Control-Allow-Origin header
	AllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// Sets the HTTP CORS Access-Control-Allow-Headers header
	AllowedHeaders []string `mapstructure:"cors_allowed_headers"`

	// Enables debug logs for CORS
	DebugCORS bool `mapstructure:"cors_debug"`

	// Sets the HTTP Cache-Control header on compile responses
	CacheControl string `mapstructure:"cache_control"`

	// Where the document shape is read from
	Shape ShapeSource `mapstructure:"shape"`

	// Database configuration
	DB Database `mapstructure:"database"`
}

// ShapeSource points at the shape description
type ShapeSource struct {
	// A JSON or YAML file, relative paths are resolved against the config
	// path. An s3://bucket/key location reads the shape from S3
	Path string

	// AWS region used for s3:// shapes, defaults to the SDK's resolution
	Region string
}

// Database configuration
type Database struct {
	ConnString string `mapstructure:"connection_string"`
	DBName     string `mapstructure:"dbname"`

	// Collection used by the lambda handler when the request does not name one
	Collection string `mapstructure:"default_collection"`

	// Max connections in the client pool
	PoolSize uint64 `mapstructure:"pool_size"`

	// Time allowed to connect and ping at startup
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Time allowed for a single pipeline execution
	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	// Number of tries for transient failures, 1 disables retries
	RetryAttempts uint `mapstructure:"retry_attempts"`

	// Base delay between retries
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// Let large sort and group stages spill to disk
	AllowDiskUse bool `mapstructure:"allow_disk_use"`

	// Serve generated documents instead of connecting to the database
	Mock bool
}

// RateLimiter sets the API rate limits
type RateLimiter struct {
	// The number of events per second
	Rate float64

	// Bucket a burst of at most 'bucket' number of events
	Bucket int

	// The header that contains the client ip
	IPHeader string `mapstructure:"ip_header"`
}

// ReadInConfig function reads in the config file for the environment specified in the GO_ENV
// environment variable. This is the best way to create a new PipeJin config.
func ReadInConfig(configFile string) (*Config, error) {
	return readInConfig(configFile, nil)
}

// ReadInConfigFS is the same as ReadInConfig but it also takes a filesytem as an argument
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	return readInConfig(configFile, fs)
}

// readInConfig function reads in the config file for the environment specified in the GO_ENV
func readInConfig(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	viper := newViper(cp, filepath.Base(configFile))

	if fs != nil {
		viper.SetFs(fs)
	}

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	if pcf := viper.GetString("inherits"); pcf != "" {
		cf := viper.ConfigFileUsed()
		viper = newViper(cp, pcf)
		if fs != nil {
			viper.SetFs(fs)
		}

		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}

		if value := viper.GetString("inherits"); value != "" {
			return nil, fmt.Errorf("inherited config '%s' cannot itself inherit '%s'", pcf, value)
		}

		viper.SetConfigFile(cf)

		if err := viper.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	setEnvValues(viper)

	config := &Config{viper: viper}
	config.ConfigPath = cp

	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}

	return config, nil
}

// NewConfig function creates a new PipeJin configuration from the provided config string
func NewConfig(config, format string) (*Config, error) {
	if format == "" {
		format = "yaml"
	}

	viper := newViperWithDefaults()
	viper.SetConfigType(format)

	if err := viper.ReadConfig(strings.NewReader(config)); err != nil {
		return nil, err
	}

	setEnvValues(viper)

	c := &Config{viper: viper}

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}

	return c, nil
}

// setEnvValues applies PJ_ prefixed environment variables on top of the
// config file, for example PJ_DATABASE_DBNAME sets database.dbname
func setEnvValues(vi *viper.Viper) {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "PJ_") {
			kv := strings.SplitN(e, "=", 2)
			util.SetKeyValue(vi, kv[0], kv[1])
		}
	}
}

// newViperWithDefaults returns a new viper instance with the default settings
func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("app_name", "pipejin")
	vi.SetDefault("host_port", "0.0.0.0:8080")
	vi.SetDefault("http_compress", true)
	vi.SetDefault("enable_tracing", false)

	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "auto")

	vi.SetDefault("cache_size", core.DefaultCacheSize)
	vi.SetDefault("disable_cache", false)
	vi.SetDefault("watch_shape", false)
	vi.SetDefault("shape_poll_every", "0s")

	vi.SetDefault("shape.path", "shape.yml")
	vi.SetDefault("shape.region", "")

	vi.SetDefault("database.connection_string", "mongodb://localhost:27017")
	vi.SetDefault("database.dbname", "")
	vi.SetDefault("database.default_collection", "")
	vi.SetDefault("database.pool_size", 10)
	vi.SetDefault("database.connect_timeout", "10s")
	vi.SetDefault("database.query_timeout", "30s")
	vi.SetDefault("database.retry_attempts", 1)
	vi.SetDefault("database.retry_delay", "100ms")
	vi.SetDefault("database.allow_disk_use", false)
	vi.SetDefault("database.mock", false)

	vi.SetDefault("rate_limiter.rate", 0)
	vi.SetDefault("rate_limiter.bucket", 0)
	vi.SetDefault("rate_limiter.ip_header", "")

	vi.SetDefault("env", "development")

	vi.BindEnv("env", "GO_ENV") //nolint:errcheck
	vi.BindEnv("host", "HOST")  //nolint:errcheck
	vi.BindEnv("port", "PORT")  //nolint:errcheck

	return vi
}

// newViper returns a new viper instance with the default settings
func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))

	if configPath == "" {
		vi.AddConfigPath("./config")
	} else {
		vi.AddConfigPath(configPath)
	}

	return vi
}

// AbsolutePath returns the absolute path of the file
func (c *Config) AbsolutePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ConfigPath, p)
}

// rateLimiterEnable returns true if the rate limiter is enabled
func (c *Config) rateLimiterEnable() bool {
	return c.RateLimiter.Rate > 0 && c.RateLimiter.Bucket > 0
}

// ShouldUseJSONLogs returns true if logs should be in JSON format.
// Returns true if log_format is "json" OR if log_format is "auto" and production mode is enabled.
// Returns false otherwise (colored console output for dev mode).
func (c *Config) ShouldUseJSONLogs() bool {
	if c.LogFormat == "json" {
		return true
	}
	if c.LogFormat == "auto" && c.Serv.Production {
		return true
	}
	return false
}

// GetConfigName returns the name of the configuration
func GetConfigName() string {
	goEnv := strings.TrimSpace(strings.ToLower(os.Getenv("GO_ENV")))

	switch goEnv {
	case "production", "prod":
		return "prod"

	case "staging", "stage":
		return "stage"

	case "testing", "test":
		return "test"

	case "development", "dev", "":
		return "dev"

	default:
		return goEnv
	}
}
