package serv

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	routeCompile     = "/api/v1/compile"
	routeQuery       = "/api/v1/query/{collection}"
	routeShape       = "/api/v1/shape"
	routeShapeReload = "/api/v1/shape/reload"
	healthRoute      = "/health"
)

var errRateLimited = errors.New("too many requests")

// routesHandler is the main handler for all routes
func routesHandler(s1 *HttpService) (http.Handler, error) {
	s := s1.Load().(*pipejinService)
	r := chi.NewRouter()

	if s.conf.rateLimiterEnable() {
		r.Use(newIPRateLimiter(s.conf.RateLimiter).Handler)
	}

	if len(s.conf.AllowedOrigins) != 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   s.conf.AllowedOrigins,
			AllowedHeaders:   s.conf.AllowedHeaders,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowCredentials: true,
			Debug:            s.conf.DebugCORS,
		})
		r.Use(c.Handler)
	}

	if s.conf.HTTPGZip {
		r.Use(func(h http.Handler) http.Handler {
			return gzhttp.GzipHandler(h)
		})
	}

	// Healthcheck API
	r.Method(http.MethodGet, healthRoute, healthCheckHandler(s1))

	// Pipeline API
	r.Method(http.MethodPost, routeCompile, apiV1Compile(s1))
	r.Method(http.MethodPost, routeQuery, apiV1Query(s1))

	// Shape API
	r.Method(http.MethodGet, routeShape, apiV1Shape(s1))
	r.Method(http.MethodPost, routeShapeReload, apiV1ShapeReload(s1))

	var h http.Handler = r
	if s.conf.EnableTracing {
		h = otelhttp.NewHandler(h, s.conf.AppName)
	}

	return setServerHeader(h), nil
}
