package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/apibridge/catalog"
	"github.com/BaSui01/apibridge/types"
)

func strptr(s string) *string { return &s }

func newTestStore(t *testing.T) *catalog.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	store := catalog.NewStore(db, zap.NewNop())
	require.NoError(t, store.AutoMigrate())
	return store
}

func seedExecutorSource(t *testing.T, store *catalog.Store, baseURL string) *catalog.Source {
	t.Helper()
	ctx := context.Background()

	src, err := store.UpsertSource(ctx, &catalog.Source{
		Name:    "flytel",
		BaseURL: baseURL,
		SpecURL: baseURL + "/swagger.json",
	})
	require.NoError(t, err)

	bodyRef := "CreatePassengerRequest"
	require.NoError(t, store.UpsertOperations(ctx, src.ID, []catalog.Operation{
		{
			OperationID:  "getAirports",
			Method:       "GET",
			PathTemplate: "/api/airports",
			Resource:     strptr("airports"),
			Action:       catalog.ActionList,
		},
		{
			OperationID:   "getAirport",
			Method:        "GET",
			PathTemplate:  "/api/airports/{airportId}",
			Resource:      strptr("airports"),
			Action:        catalog.ActionGetByID,
			HasPathParams: true,
		},
		{
			OperationID:    "createPassenger",
			Method:         "POST",
			PathTemplate:   "/api/passengers",
			RequestBodyRef: &bodyRef,
			Resource:       strptr("passengers"),
			Action:         catalog.ActionCreate,
		},
	}))
	return src
}

func TestBuildRequest_PathTemplating(t *testing.T) {
	op := &catalog.Operation{
		Method:       "GET",
		PathTemplate: "/api/airports/{airportId}/gates/{gateId}",
	}

	req, err := BuildRequest(context.Background(), op, "https://upstream.example.com/", Call{
		PathParams: map[string]string{"airportId": "42", "gateId": "B 7"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://upstream.example.com/api/airports/42/gates/B%207", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
}

func TestBuildRequest_MissingPathParam(t *testing.T) {
	op := &catalog.Operation{
		Method:       "GET",
		PathTemplate: "/api/airports/{airportId}",
	}

	_, err := BuildRequest(context.Background(), op, "https://upstream.example.com", Call{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrMissingParameter))
	assert.Contains(t, err.Error(), "airportId")
}

func TestBuildRequest_QueryAssembly(t *testing.T) {
	op := &catalog.Operation{
		Method:       "GET",
		PathTemplate: "/api/flights",
	}

	req, err := BuildRequest(context.Background(), op, "https://upstream.example.com", Call{
		QueryParams: map[string]string{
			"from":   "LIS",
			"to":     "",
			"search": "wi fi",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "LIS", req.URL.Query().Get("from"))
	assert.Equal(t, "wi fi", req.URL.Query().Get("search"))
	assert.False(t, req.URL.Query().Has("to"), "empty query values are dropped")
}

func TestBuildRequest_BodyGating(t *testing.T) {
	bodyRef := "(has body)"
	payload := json.RawMessage(`{"name":"Ada"}`)

	withBody := &catalog.Operation{Method: "POST", PathTemplate: "/api/passengers", RequestBodyRef: &bodyRef}
	req, err := BuildRequest(context.Background(), withBody, "https://upstream.example.com", Call{Body: payload})
	require.NoError(t, err)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	got, _ := io.ReadAll(req.Body)
	assert.JSONEq(t, string(payload), string(got))

	// Operations without a declared body never send one, even when given.
	noBody := &catalog.Operation{Method: "POST", PathTemplate: "/api/ping"}
	req, err = BuildRequest(context.Background(), noBody, "https://upstream.example.com", Call{Body: payload})
	require.NoError(t, err)
	assert.Nil(t, req.Body)
	assert.Empty(t, req.Header.Get("Content-Type"))
}

func TestInvoke_Success(t *testing.T) {
	var gotAuth, gotAccept, gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"airports":[{"id":1}]}`))
	}))
	defer upstream.Close()

	store := newTestStore(t)
	src := seedExecutorSource(t, store, upstream.URL)

	exec := New(store, src, Tenant{BearerToken: "tok-123"}, Options{})
	result, err := exec.Invoke(context.Background(), Call{OperationID: "getAirports"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.JSONEq(t, `{"airports":[{"id":1}]}`, string(result.Body))
	assert.NotEqual(t, "", result.InvocationID.String())
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "/api/airports", gotPath)
}

func TestInvoke_PathParams(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/airports/42", r.URL.Path)
		w.Write([]byte(`{"id":42}`))
	}))
	defer upstream.Close()

	store := newTestStore(t)
	src := seedExecutorSource(t, store, upstream.URL)

	exec := New(store, src, Tenant{}, Options{})
	result, err := exec.Invoke(context.Background(), Call{
		OperationID: "getAirport",
		PathParams:  map[string]string{"airportId": "42"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestInvoke_BodyPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"Ada"}`, string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":7,"name":"Ada"}`))
	}))
	defer upstream.Close()

	store := newTestStore(t)
	src := seedExecutorSource(t, store, upstream.URL)

	exec := New(store, src, Tenant{}, Options{})
	result, err := exec.Invoke(context.Background(), Call{
		OperationID: "createPassenger",
		Body:        json.RawMessage(`{"name":"Ada"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.StatusCode)
}

func TestInvoke_UpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"backend down"}`))
	}))
	defer upstream.Close()

	store := newTestStore(t)
	src := seedExecutorSource(t, store, upstream.URL)

	exec := New(store, src, Tenant{}, Options{})
	result, err := exec.Invoke(context.Background(), Call{OperationID: "getAirports"})

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
	assert.True(t, types.IsRetryable(err))

	// The raw upstream body is still delivered alongside the error.
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusBadGateway, result.StatusCode)
	assert.JSONEq(t, `{"error":"backend down"}`, string(result.Body))
}

func TestInvoke_OperationNotFound(t *testing.T) {
	store := newTestStore(t)
	src := seedExecutorSource(t, store, "https://upstream.example.com")

	exec := New(store, src, Tenant{}, Options{})
	_, err := exec.Invoke(context.Background(), Call{OperationID: "teleport"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestInvoke_Timeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer upstream.Close()

	store := newTestStore(t)
	src := seedExecutorSource(t, store, upstream.URL)

	exec := New(store, src, Tenant{}, Options{Timeout: 20 * time.Millisecond})
	_, err := exec.Invoke(context.Background(), Call{OperationID: "getAirports"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTimeout))
	assert.True(t, types.IsRetryable(err))
}

func TestInvoke_ConnectionError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := upstream.URL
	upstream.Close()

	store := newTestStore(t)
	src := seedExecutorSource(t, store, baseURL)

	exec := New(store, src, Tenant{}, Options{})
	_, err := exec.Invoke(context.Background(), Call{OperationID: "getAirports"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConnection))
}
