package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/apibridge/catalog"
	"github.com/BaSui01/apibridge/executor"
	"github.com/BaSui01/apibridge/openapi"
	"github.com/BaSui01/apibridge/registry"
	"github.com/BaSui01/apibridge/syncer"
)

const testSpec = `{
  "openapi": "3.0.1",
  "info": {"title": "Flytel", "version": "1.0"},
  "servers": [{"url": "SERVER_URL"}],
  "paths": {
    "/api/airports": {
      "get": {"operationId": "getAirports", "summary": "List airports"}
    },
    "/api/airports/{airportId}": {
      "get": {
        "operationId": "getAirport",
        "summary": "Get one airport",
        "parameters": [
          {"name": "airportId", "in": "path", "required": true, "schema": {"type": "integer"}}
        ]
      }
    }
  }
}`

type testEnv struct {
	store    *catalog.Store
	registry *registry.Registry
	router   http.Handler
	upstream *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/airports":
			w.Write([]byte(`{"airports":[{"id":1,"name":"LIS"}]}`))
		case strings.HasPrefix(r.URL.Path, "/api/airports/"):
			w.Write([]byte(`{"id":42}`))
		case r.URL.Path == "/swagger.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(strings.ReplaceAll(testSpec, "SERVER_URL", "http://"+r.Host)))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store := catalog.NewStore(db, zap.NewNop())
	require.NoError(t, store.AutoMigrate())

	job := syncer.Job{SourceName: "flytel", SpecURL: upstream.URL + "/swagger.json"}
	s := syncer.New(openapi.NewLoader(openapi.LoaderConfig{}, nil), store, nil, zap.NewNop())
	_, err = s.Run(ctx, job)
	require.NoError(t, err)

	reg := registry.New(store, "flytel", registry.Options{})
	require.NoError(t, reg.Load(ctx))

	src, err := store.GetSourceByName(ctx, "flytel")
	require.NoError(t, err)
	exec := executor.New(store, src, executor.Tenant{BearerToken: "tok"}, executor.Options{})

	logger := zap.NewNop()
	router := NewRouter(RouterConfig{
		Tools:  NewToolsHandler(reg, logger),
		Invoke: NewInvokeHandler(exec, logger),
		Sync:   NewSyncHandler(s, reg, job, logger),
		Health: NewHealthHandler(logger),
	})

	return &testEnv{store: store, registry: reg, router: router, upstream: upstream}
}

func doRequest(t *testing.T, router http.Handler, method, target, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var envelope Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func TestHandleListTools(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := doRequest(t, env.router, http.MethodGet, "/v1/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var descriptors []registry.Descriptor
	require.NoError(t, json.Unmarshal(data, &descriptors))
	require.Len(t, descriptors, 2)
}

func TestHandleListTools_Filtered(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := doRequest(t, env.router, http.MethodGet,
		"/v1/tools?resource=airports&action=get_by_id&has_path_params=true", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data, _ := json.Marshal(envelope.Data)
	var descriptors []registry.Descriptor
	require.NoError(t, json.Unmarshal(data, &descriptors))
	require.Len(t, descriptors, 1)
	assert.Equal(t, "getAirport", descriptors[0].Name)
}

func TestHandleListTools_BadFlag(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := doRequest(t, env.router, http.MethodGet, "/v1/tools?has_path_params=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_REQUEST", envelope.Error.Code)
}

func TestHandleInvoke(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := doRequest(t, env.router, http.MethodPost, "/v1/invoke",
		`{"operation_id":"getAirport","path_params":{"airportId":"42"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)

	data, _ := json.Marshal(envelope.Data)
	var result InvokeResponse
	require.NoError(t, json.Unmarshal(data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.JSONEq(t, `{"id":42}`, string(result.Body))
	assert.NotEmpty(t, result.InvocationID)
}

func TestHandleInvoke_MissingOperationID(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := doRequest(t, env.router, http.MethodPost, "/v1/invoke", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_REQUEST", envelope.Error.Code)
}

func TestHandleInvoke_UnknownOperation(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := doRequest(t, env.router, http.MethodPost, "/v1/invoke",
		`{"operation_id":"teleport"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "NOT_FOUND", envelope.Error.Code)
}

func TestHandleInvoke_MissingPathParam(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := doRequest(t, env.router, http.MethodPost, "/v1/invoke",
		`{"operation_id":"getAirport"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "MISSING_PARAMETER", envelope.Error.Code)
	assert.Contains(t, envelope.Error.Message, "airportId")
}

func TestHandleSync(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := doRequest(t, env.router, http.MethodPost, "/v1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)

	data, _ := json.Marshal(envelope.Data)
	var report syncer.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "flytel", report.SourceName)
	assert.Equal(t, 2, report.Upserted)
}

func TestHandleHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := doRequest(t, env.router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
