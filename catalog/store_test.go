package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/apibridge/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	store := NewStore(db, zap.NewNop())
	require.NoError(t, store.AutoMigrate())
	return store
}

func seedSource(t *testing.T, store *Store, name string) *Source {
	t.Helper()

	src, err := store.UpsertSource(context.Background(), &Source{
		Name:    name,
		BaseURL: "https://" + name + ".example.com",
		SpecURL: "https://" + name + ".example.com/swagger.json",
		RawSpec: `{"openapi":"3.0.1"}`,
	})
	require.NoError(t, err)
	return src
}

func TestStore_UpsertSource_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := seedSource(t, store, "flytel")
	second, err := store.UpsertSource(ctx, &Source{
		Name:    "flytel",
		BaseURL: "https://flytel-v2.example.com",
		SpecURL: "https://flytel.example.com/swagger.json",
		RawSpec: `{"openapi":"3.0.2"}`,
	})
	require.NoError(t, err)

	// Same row updated in place, not duplicated.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "https://flytel-v2.example.com", second.BaseURL)

	sources, err := store.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestStore_UpsertOperations_UpdateInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, store, "flytel")

	rows := []Operation{{
		OperationID:   "getAirports",
		Method:        "GET",
		PathTemplate:  "/api/airports",
		Summary:       "List airports",
		Resource:      strptr("airports"),
		Action:        ActionList,
		HasPathParams: false,
	}}
	require.NoError(t, store.UpsertOperations(ctx, src.ID, rows))

	// Re-sync with a renamed summary and a new parameter.
	updated := []Operation{{
		OperationID:  "getAirports",
		Method:       "GET",
		PathTemplate: "/api/airports",
		Summary:      "List every airport",
		Parameters: ParameterSpecs{
			{Name: "country", In: "query", Required: false, Type: "string"},
		},
		Resource:      strptr("airports"),
		Action:        ActionList,
		HasPathParams: false,
	}}
	require.NoError(t, store.UpsertOperations(ctx, src.ID, updated))

	ops, err := store.ListOperations(ctx, OperationQuery{SourceID: src.ID})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "List every airport", ops[0].Summary)
	require.Len(t, ops[0].Parameters, 1)
	assert.Equal(t, "country", ops[0].Parameters[0].Name)
}

func TestStore_UpsertOperations_NonRemoval(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, store, "flytel")

	require.NoError(t, store.UpsertOperations(ctx, src.ID, []Operation{
		{OperationID: "getAirports", Method: "GET", PathTemplate: "/api/airports", Action: ActionList, Resource: strptr("airports")},
		{OperationID: "getHotels", Method: "GET", PathTemplate: "/api/hotels", Action: ActionList, Resource: strptr("hotels")},
	}))

	// The upstream description dropped getHotels; a plain re-sync keeps it.
	require.NoError(t, store.UpsertOperations(ctx, src.ID, []Operation{
		{OperationID: "getAirports", Method: "GET", PathTemplate: "/api/airports", Action: ActionList, Resource: strptr("airports")},
	}))

	ops, err := store.ListOperations(ctx, OperationQuery{SourceID: src.ID})
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestStore_PruneStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, store, "flytel")

	require.NoError(t, store.UpsertOperations(ctx, src.ID, []Operation{
		{OperationID: "getAirports", Method: "GET", PathTemplate: "/api/airports", Action: ActionList, Resource: strptr("airports")},
		{OperationID: "getHotels", Method: "GET", PathTemplate: "/api/hotels", Action: ActionList, Resource: strptr("hotels")},
	}))

	pruned, err := store.PruneStale(ctx, src.ID, []string{"getAirports"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	ops, err := store.ListOperations(ctx, OperationQuery{SourceID: src.ID})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "getAirports", ops[0].OperationID)
}

func TestStore_ListOperations_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, store, "flytel")

	truthy := true
	require.NoError(t, store.UpsertOperations(ctx, src.ID, []Operation{
		{OperationID: "getAirports", Method: "GET", PathTemplate: "/api/airports", Action: ActionList, Resource: strptr("airports")},
		{OperationID: "getAirport", Method: "GET", PathTemplate: "/api/airports/{id}", Action: ActionGetByID, Resource: strptr("airports"), HasPathParams: true},
		{OperationID: "createAirport", Method: "POST", PathTemplate: "/api/airports", Action: ActionCreate, Resource: strptr("airports")},
		{OperationID: "getHotels", Method: "GET", PathTemplate: "/api/hotels", Action: ActionList, Resource: strptr("hotels")},
	}))

	byResource, err := store.ListOperations(ctx, OperationQuery{SourceID: src.ID, Resource: "airports"})
	require.NoError(t, err)
	assert.Len(t, byResource, 3)

	// (resource, action) narrows to exactly one candidate: "list of
	// airports" resolves unambiguously.
	byAction, err := store.ListOperations(ctx, OperationQuery{SourceID: src.ID, Resource: "airports", Action: ActionList})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "getAirports", byAction[0].OperationID)

	byParams, err := store.ListOperations(ctx, OperationQuery{SourceID: src.ID, Resource: "airports", HasPathParams: &truthy})
	require.NoError(t, err)
	require.Len(t, byParams, 1)
	assert.Equal(t, "getAirport", byParams[0].OperationID)
}

func TestStore_ListOperations_BySourceName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, store, "flytel")

	require.NoError(t, store.UpsertOperations(ctx, src.ID, []Operation{
		{OperationID: "getAirports", Method: "GET", PathTemplate: "/api/airports", Action: ActionList, Resource: strptr("airports")},
	}))

	ops, err := store.ListOperations(ctx, OperationQuery{SourceName: "flytel"})
	require.NoError(t, err)
	assert.Len(t, ops, 1)

	_, err = store.ListOperations(ctx, OperationQuery{SourceName: "unknown"})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestStore_SingleTenantIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Two tenants expose an identical (customers, list) operation.
	flytel := seedSource(t, store, "flytel")
	hotelio := seedSource(t, store, "hotelio")

	require.NoError(t, store.UpsertOperations(ctx, flytel.ID, []Operation{
		{OperationID: "listCustomers", Method: "GET", PathTemplate: "/api/customers", Action: ActionList, Resource: strptr("customers")},
	}))
	require.NoError(t, store.UpsertOperations(ctx, hotelio.ID, []Operation{
		{OperationID: "listCustomers", Method: "GET", PathTemplate: "/v2/customers", Action: ActionList, Resource: strptr("customers")},
	}))

	ops, err := store.ListOperations(ctx, OperationQuery{SourceID: flytel.ID, Resource: "customers", Action: ActionList})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "/api/customers", ops[0].PathTemplate)
}

func TestStore_GetOperation_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, store, "flytel")

	_, err := store.GetOperation(ctx, src.ID, "hallucinatedOperation")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, store, "flytel")

	err := store.WithTx(ctx, func(tx *Store) error {
		if err := tx.UpsertOperations(ctx, src.ID, []Operation{
			{OperationID: "getAirports", Method: "GET", PathTemplate: "/api/airports", Action: ActionList, Resource: strptr("airports")},
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	ops, err := store.ListOperations(ctx, OperationQuery{SourceID: src.ID})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestStore_WithTx_RetriesTransientFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	attempts := 0
	err := store.WithTx(ctx, func(tx *Store) error {
		attempts++
		if attempts < 3 {
			return errors.New("deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestStore_WithTx_NonRetryableFailsImmediately(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	attempts := 0
	err := store.WithTx(ctx, func(tx *Store) error {
		attempts++
		return assert.AnError
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
