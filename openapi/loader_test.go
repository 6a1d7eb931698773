package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/apibridge/types"
)

const testDoc = `{
	"openapi": "3.0.1",
	"info": {"title": "Flytel API", "version": "1.0"},
	"servers": [{"url": "https://flytel.example.com"}],
	"paths": {
		"/api/airports": {
			"get": {"operationId": "getAirports", "summary": "List airports", "tags": ["Airports"]}
		}
	}
}`

func TestLoader_Load(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testDoc))
	}))
	defer server.Close()

	loader := NewLoader(LoaderConfig{}, zap.NewNop())

	f, err := loader.Load(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Flytel API", f.Document.Info.Title)
	assert.Len(t, f.Document.Paths, 1)
	assert.JSONEq(t, testDoc, string(f.Raw))

	// Every load re-fetches so syncs observe upstream edits.
	_, err = loader.Load(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func TestLoader_Load_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	loader := NewLoader(LoaderConfig{}, zap.NewNop())
	_, err := loader.Load(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, types.ErrFetchFailure, types.GetErrorCode(err))
}

func TestLoader_Load_MalformedDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	loader := NewLoader(LoaderConfig{}, zap.NewNop())
	_, err := loader.Load(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, types.ErrFetchFailure, types.GetErrorCode(err))
}

func TestLoader_Load_UnsupportedScheme(t *testing.T) {
	loader := NewLoader(LoaderConfig{}, zap.NewNop())
	_, err := loader.Load(context.Background(), "file:///tmp/swagger.json")
	require.Error(t, err)
	assert.Equal(t, types.ErrFetchFailure, types.GetErrorCode(err))
}
