package openapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathItem_Operations_StableOrder(t *testing.T) {
	item := PathItem{
		Delete: &Operation{OperationID: "deleteAirport"},
		Get:    &Operation{OperationID: "getAirport"},
		Post:   &Operation{OperationID: "createAirport"},
	}

	ops := item.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, "GET", ops[0].Method)
	assert.Equal(t, "POST", ops[1].Method)
	assert.Equal(t, "DELETE", ops[2].Method)
}

func TestDocument_BaseURL(t *testing.T) {
	tests := []struct {
		name     string
		doc      Document
		override string
		specURL  string
		want     string
	}{
		{
			name: "servers entry wins",
			doc:  Document{Servers: []Server{{URL: "https://api.example.com/"}}},
			want: "https://api.example.com",
		},
		{
			name:     "override when no servers",
			doc:      Document{},
			override: "https://override.example.com/",
			want:     "https://override.example.com",
		},
		{
			name:    "derived from spec URL",
			doc:     Document{},
			specURL: "https://host.example.com/v3/api-docs/swagger.json",
			want:    "https://host.example.com",
		},
		{
			name: "nothing resolves",
			doc:  Document{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.doc.BaseURL(tt.override, tt.specURL))
		})
	}
}

func TestOperation_BodyRef(t *testing.T) {
	t.Run("no body", func(t *testing.T) {
		op := &Operation{}
		ref, has := op.BodyRef()
		assert.False(t, has)
		assert.Empty(t, ref)
	})

	t.Run("json body with ref", func(t *testing.T) {
		op := &Operation{RequestBody: &RequestBody{
			Content: map[string]MediaType{
				"application/json": {Schema: &JSONSchema{Ref: "#/components/schemas/CreatePassengerRequest"}},
			},
		}}
		ref, has := op.BodyRef()
		assert.True(t, has)
		assert.Equal(t, "CreatePassengerRequest", ref)
	})

	t.Run("json body without ref", func(t *testing.T) {
		op := &Operation{RequestBody: &RequestBody{
			Content: map[string]MediaType{
				"application/json": {Schema: &JSONSchema{Type: "object"}},
			},
		}}
		ref, has := op.BodyRef()
		assert.True(t, has)
		assert.Equal(t, "(has body)", ref)
	})

	t.Run("non-json content ignored", func(t *testing.T) {
		op := &Operation{RequestBody: &RequestBody{
			Content: map[string]MediaType{
				"application/xml": {Schema: &JSONSchema{Type: "object"}},
			},
		}}
		_, has := op.BodyRef()
		assert.False(t, has)
	})

	t.Run("application/json wins over other json media types", func(t *testing.T) {
		op := &Operation{RequestBody: &RequestBody{
			Content: map[string]MediaType{
				"application/problem+json": {Schema: &JSONSchema{Type: "object"}},
				"application/json":         {Schema: &JSONSchema{Ref: "#/components/schemas/CreatePassengerRequest"}},
			},
		}}
		// Repeated calls must agree regardless of map iteration order.
		for i := 0; i < 100; i++ {
			ref, has := op.BodyRef()
			require.True(t, has)
			require.Equal(t, "CreatePassengerRequest", ref)
		}
	})

	t.Run("multiple non-preferred json types resolve in name order", func(t *testing.T) {
		op := &Operation{RequestBody: &RequestBody{
			Content: map[string]MediaType{
				"application/vnd.api+json": {Schema: &JSONSchema{Ref: "#/components/schemas/UpdateBooking"}},
				"text/json":                {Schema: &JSONSchema{Type: "object"}},
			},
		}}
		for i := 0; i < 100; i++ {
			ref, has := op.BodyRef()
			require.True(t, has)
			require.Equal(t, "UpdateBooking", ref)
		}
	})
}

func TestOperation_DisplaySummary(t *testing.T) {
	op := &Operation{Description: "Lists every registered airport"}
	assert.Equal(t, "Lists every registered airport", op.DisplaySummary(2048))

	op = &Operation{Summary: "short"}
	assert.Equal(t, "sho", op.DisplaySummary(3))
}

func TestOperation_Tag(t *testing.T) {
	assert.Nil(t, (&Operation{}).Tag())

	op := &Operation{Tags: []string{"Airports", "Admin"}}
	tag := op.Tag()
	require.NotNil(t, tag)
	assert.Equal(t, "Airports", *tag)
}
