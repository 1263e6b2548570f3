package serv

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dosco/pipejin/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-http-utils/headers"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

const maxPayloadSize = 1 << 20

type errorMsg struct {
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Operator string `json:"operator,omitempty"`
	Message  string `json:"message"`
}

type errorResp struct {
	Error errorMsg `json:"error"`
}

type compileResp struct {
	PageNo   int             `json:"page_no"`
	PageSize int             `json:"page_size"`
	Pipeline json.RawMessage `json:"pipeline"`
}

type queryResp struct {
	Collection string            `json:"collection"`
	PageNo     int               `json:"page_no"`
	PageSize   int               `json:"page_size"`
	Pipeline   json.RawMessage   `json:"pipeline,omitempty"`
	Rows       []json.RawMessage `json:"rows"`
}

type reloadResp struct {
	Changed bool           `json:"changed"`
	Shape   core.ShapeInfo `json:"shape"`
}

type apiResp struct {
	status int
	body   interface{}
}

// compile turns a payload into a pipeline without touching the database
func (s *pipejinService) compile(data []byte) apiResp {
	c, err := s.pj.Compile(data)
	if err != nil {
		return s.errorResp(err)
	}

	js, err := c.JSON()
	if err != nil {
		return s.errorResp(err)
	}

	return apiResp{http.StatusOK, compileResp{
		PageNo:   c.Query.PageNo,
		PageSize: c.Query.PageSize,
		Pipeline: js,
	}}
}

// query compiles the payload and runs it against the collection
func (s *pipejinService) query(ctx context.Context, collection string, data []byte, debug bool) apiResp {
	if s.conf.DB.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.conf.DB.QueryTimeout)
		defer cancel()
	}

	st := time.Now()
	res, err := s.pj.Execute(ctx, s.exec, collection, data)
	if err != nil {
		return s.errorResp(err)
	}

	rows := make([]json.RawMessage, 0, len(res.Rows))
	for _, row := range res.Rows {
		js, err := bson.MarshalExtJSON(row, false, false)
		if err != nil {
			return s.errorResp(err)
		}
		rows = append(rows, js)
	}

	qr := queryResp{
		Collection: collection,
		PageNo:     res.Query.PageNo,
		PageSize:   res.Query.PageSize,
		Rows:       rows,
	}

	if debug {
		if qr.Pipeline, err = res.JSON(); err != nil {
			return s.errorResp(err)
		}
	}

	s.zlog.Debug("query",
		zap.String("collection", collection),
		zap.Int("rows", len(rows)),
		zap.Duration("duration", time.Since(st)))

	return apiResp{http.StatusOK, qr}
}

// errorResp maps an error to its status code. Request problems are 400,
// shape problems are 500 and store failures are 502.
func (s *pipejinService) errorResp(err error) apiResp {
	var ce *core.CompilationError
	var se *core.StoreExecutionError

	switch {
	case errors.As(err, &ce):
		st := http.StatusBadRequest
		if ce.Kind == core.ErrInvalidShape {
			st = http.StatusInternalServerError
		}
		return apiResp{st, errorResp{errorMsg{
			Kind:     ce.Kind.String(),
			Path:     ce.Path,
			Operator: ce.Op,
			Message:  ce.Error(),
		}}}

	case errors.As(err, &se):
		st := http.StatusBadGateway
		if errors.Is(se.Err, context.DeadlineExceeded) {
			st = http.StatusGatewayTimeout
		}
		return apiResp{st, errorResp{errorMsg{
			Kind:    "store-execution",
			Message: se.Error(),
		}}}

	default:
		s.log.Errorf("api: %s", err)
		return apiResp{http.StatusInternalServerError, errorResp{errorMsg{
			Kind:    "internal",
			Message: err.Error(),
		}}}
	}
}

func apiV1Compile(s1 *HttpService) http.Handler {
	h := func(w http.ResponseWriter, r *http.Request) {
		s := s1.Load().(*pipejinService)

		data, err := readPayload(w, r)
		if err != nil {
			renderErr(w, http.StatusBadRequest, err)
			return
		}

		res := s.compile(data)
		if res.status == http.StatusOK && s.conf.CacheControl != "" {
			w.Header().Set(headers.CacheControl, s.conf.CacheControl)
		}
		render(w, res)
	}
	return http.HandlerFunc(h)
}

func apiV1Query(s1 *HttpService) http.Handler {
	h := func(w http.ResponseWriter, r *http.Request) {
		s := s1.Load().(*pipejinService)

		data, err := readPayload(w, r)
		if err != nil {
			renderErr(w, http.StatusBadRequest, err)
			return
		}

		debug := r.URL.Query().Get("debug") == "true" && !s.conf.Production
		render(w, s.query(r.Context(), chi.URLParam(r, "collection"), data, debug))
	}
	return http.HandlerFunc(h)
}

func apiV1Shape(s1 *HttpService) http.Handler {
	h := func(w http.ResponseWriter, r *http.Request) {
		s := s1.Load().(*pipejinService)
		render(w, apiResp{http.StatusOK, s.pj.ShapeInfo()})
	}
	return http.HandlerFunc(h)
}

func apiV1ShapeReload(s1 *HttpService) http.Handler {
	h := func(w http.ResponseWriter, r *http.Request) {
		s := s1.Load().(*pipejinService)

		changed, err := s.pj.Reload(r.Context())
		if err != nil {
			render(w, s.errorResp(err))
			return
		}
		render(w, apiResp{http.StatusOK, reloadResp{Changed: changed, Shape: s.pj.ShapeInfo()}})
	}
	return http.HandlerFunc(h)
}

func healthCheckHandler(s1 *HttpService) http.Handler {
	h := func(w http.ResponseWriter, r *http.Request) {
		s := s1.Load().(*pipejinService)

		if s.client != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := s.client.Ping(ctx, nil); err != nil {
				s.log.Errorf("health: database ping: %s", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
	return http.HandlerFunc(h)
}

func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close() //nolint:errcheck
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadSize))
}

func render(w http.ResponseWriter, res apiResp) {
	w.Header().Set(headers.ContentType, "application/json")
	w.WriteHeader(res.status)
	json.NewEncoder(w).Encode(res.body) //nolint:errcheck
}

func renderErr(w http.ResponseWriter, status int, err error) {
	render(w, apiResp{status, errorResp{errorMsg{Kind: "request", Message: err.Error()}}})
}
