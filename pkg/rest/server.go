package rest

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/apidoc"
	"github.com/edgeflare/sqlgate/pkg/event"
	"github.com/edgeflare/sqlgate/pkg/httputil"
	"github.com/edgeflare/sqlgate/pkg/metrics"
	"github.com/edgeflare/sqlgate/pkg/schema"
	"github.com/edgeflare/sqlgate/pkg/service"
)

var errBadBody = errors.New("invalid JSON body")

// Config controls response shaping.
type Config struct {
	AlwaysWrap bool   `mapstructure:"alwaysWrapResources"`
	Wrapper    string `mapstructure:"resourcesWrapper"`
	MaxRecords int    `mapstructure:"maxRecordsReturned"`
}

// Services resolves data services by name.
type Services interface {
	Get(name string) (*service.Service, error)
	List() []string
}

type Server struct {
	services Services
	pipeline *event.Pipeline
	cfg      Config
	logger   *zap.Logger
}

func NewServer(services Services, pipeline *event.Pipeline, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pipeline == nil {
		pipeline = event.NewPipeline()
	}
	cfg.Wrapper = cmp.Or(cfg.Wrapper, "resource")
	cfg.MaxRecords = cmp.Or(cfg.MaxRecords, 1000)
	return &Server{services: services, pipeline: pipeline, cfg: cfg, logger: logger}
}

// Register mounts the service routes on r.
func (s *Server) Register(r *httputil.Router) {
	r.Handle("GET /{service}", s.handle(false, s.listResources))
	r.Handle("GET /{service}/_schema", http.HandlerFunc(s.handleSchema))
	r.Handle("GET /{service}/_schema/{table}", http.HandlerFunc(s.handleSchema))
	r.Handle("GET /{service}/_doc", http.HandlerFunc(s.handleDoc))

	r.Handle("GET /{service}/{table}", s.handle(true, s.list))
	r.Handle("POST /{service}/{table}", s.handle(true, s.create))
	r.Handle("PATCH /{service}/{table}", s.handle(true, s.update))
	r.Handle("DELETE /{service}/{table}", s.handle(true, s.remove))

	r.Handle("GET /{service}/{table}/{id}", s.handle(true, s.read))
	r.Handle("PATCH /{service}/{table}/{id}", s.handle(true, s.update))
	r.Handle("DELETE /{service}/{table}/{id}", s.handle(true, s.remove))
}

// call is one resource request after routing.
type call struct {
	svc   *service.Service
	table schema.Table
	id    string
	req   event.Request
}

func (c call) executor() executor {
	return executor{db: c.svc.DB, d: c.svc.Dialect, table: c.table}
}

func (c call) prefer() *Prefer {
	return parsePrefer(c.req.Headers["Prefer"])
}

type operation func(ctx context.Context, c call) (event.Response, error)

// handle runs op inside the event lifecycle: service pre-process, resource
// pre-process, the operation, resource post-process, service post-process.
// A stop at a pre-process point skips the operation and answers with the
// event's response, or 204 when it has none.
func (s *Server) handle(resource bool, op operation) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		svcName := r.PathValue("service")
		code := s.serve(w, r, svcName, resource, op)
		metrics.RequestDuration.WithLabelValues(svcName, r.Method, strconv.Itoa(code)).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, svcName string, resource bool, op operation) int {
	svc, err := s.services.Get(svcName)
	if err != nil {
		return s.writeError(w, r, err)
	}
	c := call{svc: svc, id: r.PathValue("id")}
	if resource {
		if c.table, err = svc.Cache.Table(r.PathValue("table")); err != nil {
			return s.writeError(w, r, err)
		}
	}

	payload, err := decodeBody(r)
	if err != nil {
		return s.writeError(w, r, err)
	}
	c.req = event.NewRequest(r, payload)

	ctx := r.Context()
	e := event.HookEvent{Service: svc.Name, Resource: c.table.Name, Request: c.req}

	points := []event.Point{event.ServicePreProcess, event.ResourcePreProcess}
	if !resource {
		points = points[:1]
	}
	for _, p := range points {
		var outcome event.Outcome
		e, outcome, err = s.pipeline.Fire(ctx, e.At(p))
		if err != nil {
			return s.writeError(w, r, err)
		}
		if outcome == event.Stopped {
			return s.respond(w, event.AsServiceResponse(e.Response))
		}
	}

	c.req = e.Request
	resp, err := op(ctx, c)
	if err != nil {
		return s.writeError(w, r, err)
	}
	e = e.WithResponse(resp)

	if resource {
		points = []event.Point{event.ResourcePostProcess, event.ServicePostProcess}
	} else {
		points = []event.Point{event.ServicePostProcess}
	}
	for _, p := range points {
		var outcome event.Outcome
		e, outcome, err = s.pipeline.Fire(ctx, e.At(p))
		if err != nil {
			return s.writeError(w, r, err)
		}
		if outcome == event.Stopped {
			break
		}
	}
	return s.respond(w, event.AsServiceResponse(e.Response))
}

func (s *Server) listResources(_ context.Context, c call) (event.Response, error) {
	tables := c.svc.Cache.Tables()
	resources := make([]map[string]any, len(tables))
	for i, t := range tables {
		resources[i] = map[string]any{"name": t.Name, "type": t.Type}
	}
	return okResponse(map[string]any{s.cfg.Wrapper: resources}), nil
}

func (s *Server) list(ctx context.Context, c call) (event.Response, error) {
	q, err := parseQueryParams(c.table, c.req.Parameters, s.cfg.MaxRecords)
	if err != nil {
		return nil, err
	}
	ex := c.executor()
	records, err := ex.list(ctx, q)
	if err != nil {
		return nil, err
	}

	var count *int64
	if q.IncludeCount || c.prefer().WantsCountExact() {
		n, err := ex.count(ctx, q)
		if err != nil {
			return nil, err
		}
		count = &n
	}
	return okResponse(s.wrap(records, count)), nil
}

func (s *Server) read(ctx context.Context, c call) (event.Response, error) {
	if err := requirePrimaryKey(c.table); err != nil {
		return nil, err
	}
	q, err := parseQueryParams(c.table, c.req.Parameters, s.cfg.MaxRecords)
	if err != nil {
		return nil, err
	}
	record, err := c.executor().read(ctx, c.id, q.Fields)
	if err != nil {
		return nil, err
	}
	return okResponse(record), nil
}

func (s *Server) create(ctx context.Context, c call) (event.Response, error) {
	records, single, err := s.records(c.req.Payload)
	if err != nil {
		return nil, err
	}
	created, err := c.executor().create(ctx, records)
	if err != nil {
		return nil, err
	}
	return s.written(c, http.StatusCreated, created, single), nil
}

// update patches by id, by filter or, for a list of records, each record by
// its primary key.
func (s *Server) update(ctx context.Context, c call) (event.Response, error) {
	ex := c.executor()
	if c.id != "" {
		if err := requirePrimaryKey(c.table); err != nil {
			return nil, err
		}
		patch, ok := c.req.Payload.(map[string]any)
		if !ok {
			return nil, errBadBody
		}
		updated, err := ex.update(ctx, patch, QueryParams{IDs: []string{c.id}})
		if err != nil {
			return nil, err
		}
		if len(updated) == 0 {
			return nil, ErrNotFound
		}
		return s.written(c, http.StatusOK, updated, true), nil
	}

	q, err := parseQueryParams(c.table, c.req.Parameters, s.cfg.MaxRecords)
	if err != nil {
		return nil, err
	}
	if len(q.Filters) > 0 || len(q.IDs) > 0 {
		patch, ok := c.req.Payload.(map[string]any)
		if !ok {
			return nil, errBadBody
		}
		updated, err := ex.update(ctx, patch, q)
		if err != nil {
			return nil, err
		}
		return s.written(c, http.StatusOK, updated, false), nil
	}

	records, single, err := s.records(c.req.Payload)
	if err != nil {
		return nil, err
	}
	updated, err := ex.updateRecords(ctx, records)
	if err != nil {
		return nil, err
	}
	return s.written(c, http.StatusOK, updated, single), nil
}

func (s *Server) remove(ctx context.Context, c call) (event.Response, error) {
	q := QueryParams{IDs: []string{c.id}}
	if c.id != "" {
		if err := requirePrimaryKey(c.table); err != nil {
			return nil, err
		}
	} else {
		var err error
		if q, err = parseQueryParams(c.table, c.req.Parameters, s.cfg.MaxRecords); err != nil {
			return nil, err
		}
	}
	deleted, err := c.executor().remove(ctx, q)
	if err != nil {
		return nil, err
	}
	if c.id != "" && len(deleted) == 0 {
		return nil, ErrNotFound
	}
	return s.written(c, http.StatusOK, deleted, c.id != ""), nil
}

// records reads the records of a write payload: one object, a list, or a
// list under the resources wrapper. single reports a bare object.
func (s *Server) records(payload any) (records []map[string]any, single bool, err error) {
	switch p := payload.(type) {
	case map[string]any:
		if list, ok := p[s.cfg.Wrapper].([]any); ok {
			return toRecords(list)
		}
		return []map[string]any{p}, true, nil
	case []any:
		return toRecords(p)
	}
	return nil, false, errBadBody
}

func toRecords(list []any) ([]map[string]any, bool, error) {
	if len(list) == 0 {
		return nil, false, fmt.Errorf("%w: no records", errBadBody)
	}
	out := make([]map[string]any, len(list))
	for i, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("%w: record %d is not an object", errBadBody, i)
		}
		out[i] = m
	}
	return out, false, nil
}

// written shapes the response of a write. Prefer: return=minimal drops the
// body.
func (s *Server) written(c call, status int, records []map[string]any, single bool) event.Response {
	if c.prefer().WantsMinimal() {
		return event.ServiceResponse{StatusCode: http.StatusNoContent}
	}
	if fields := c.req.Param("fields"); fields != "" && fields != "*" {
		records = project(records, strings.Split(fields, ","))
	}
	if single && len(records) == 1 {
		return event.ServiceResponse{StatusCode: status, ContentType: "application/json", Content: records[0]}
	}
	return event.ServiceResponse{StatusCode: status, ContentType: "application/json", Content: s.wrap(records, nil)}
}

// wrap places records under the resources wrapper when configured to, or
// when a count was requested.
func (s *Server) wrap(records []map[string]any, count *int64) any {
	if records == nil {
		records = []map[string]any{}
	}
	if !s.cfg.AlwaysWrap && count == nil {
		return records
	}
	out := map[string]any{s.cfg.Wrapper: records}
	if count != nil {
		out["meta"] = map[string]any{"count": *count}
	}
	return out
}

func project(records []map[string]any, fields []string) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		m := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := r[strings.TrimSpace(f)]; ok {
				m[strings.TrimSpace(f)] = v
			}
		}
		out[i] = m
	}
	return out
}

func requirePrimaryKey(t schema.Table) error {
	if _, ok := t.PrimaryKey(); !ok {
		return fmt.Errorf("%w: table %s has no single primary key", ErrBadParam, t.Name)
	}
	return nil
}

func okResponse(content any) event.Response {
	return event.ServiceResponse{StatusCode: http.StatusOK, ContentType: "application/json", Content: content}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	svc, err := s.services.Get(r.PathValue("service"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if name := r.PathValue("table"); name != "" {
		t, err := svc.Cache.Table(name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, t)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]any{s.cfg.Wrapper: svc.Cache.Tables()})
}

func (s *Server) handleDoc(w http.ResponseWriter, r *http.Request) {
	svc, err := s.services.Get(r.PathValue("service"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, apidoc.Service(svc.Name, svc.Cache.Tables(), s.cfg.Wrapper))
}

func decodeBody(r *http.Request) (any, error) {
	if r.Method != http.MethodPost && r.Method != http.MethodPatch && r.Method != http.MethodPut {
		return nil, nil
	}
	var payload any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body", errBadBody)
		}
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	return payload, nil
}

// respond writes a service response. JSON content is encoded; string or
// byte content of other types is written as is.
func (s *Server) respond(w http.ResponseWriter, resp event.ServiceResponse) int {
	code := cmp.Or(resp.StatusCode, http.StatusOK)
	if resp.Content == nil && code == http.StatusNoContent {
		w.WriteHeader(code)
		return code
	}
	ct := cmp.Or(resp.ContentType, "application/json")
	if !strings.Contains(ct, "json") {
		switch v := resp.Content.(type) {
		case string:
			httputil.Blob(w, code, []byte(v), ct)
			return code
		case []byte:
			httputil.Blob(w, code, v, ct)
			return code
		}
	}
	httputil.JSON(w, code, resp.Content)
	return code
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) int {
	var coded interface{ StatusCode() int }
	code := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, ErrBadParam), errors.Is(err, ErrNoColumns), errors.Is(err, ErrNoFilter), errors.Is(err, errBadBody):
		code = http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, service.ErrServiceNotFound), errors.Is(err, schema.ErrTableNotFound):
		code = http.StatusNotFound
	case errors.As(err, &coded):
		code = coded.StatusCode()
	default:
		httputil.Logger(r.Context(), s.logger).Error("database operation failed", zap.Error(err))
		msg = "database operation failed"
	}
	httputil.Error(w, code, msg)
	return code
}
