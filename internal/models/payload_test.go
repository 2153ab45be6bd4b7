package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventPayload_DecodesKnownFields(t *testing.T) {
	doc := `{
		"event_id": "E1",
		"event_type": "purchase",
		"event_time": "2024-03-01T12:30:00.000Z",
		"user_id": "user-7",
		"session_id": "sess-9",
		"product_id": "prod-3",
		"category": "cat-1",
		"price": 49.9,
		"page": "/product",
		"referrer": "organic",
		"device_family": "mobile",
		"country": "IN"
	}`

	var p EventPayload
	require.NoError(t, json.Unmarshal([]byte(doc), &p))

	assert.Equal(t, "E1", p.EventID)
	assert.Equal(t, "purchase", p.EventType)
	assert.Equal(t, "2024-03-01T12:30:00.000Z", p.EventTime)
	assert.Equal(t, "user-7", p.UserID)
	assert.Equal(t, "sess-9", p.SessionID)
	assert.Equal(t, "prod-3", p.ProductID)
	assert.Equal(t, "cat-1", p.Category)
	assert.Equal(t, 49.9, p.Price)
	assert.Equal(t, "/product", p.Page)
	assert.Equal(t, "organic", p.Referrer)
	assert.Equal(t, "mobile", p.DeviceFamily)
	assert.Equal(t, "IN", p.Country)
	assert.Nil(t, p.Properties)
}

func TestEventPayload_FoldsUnknownKeys(t *testing.T) {
	doc := `{"event_type":"page_view","ab_variant":"b","scroll_depth":0.8}`

	var p EventPayload
	require.NoError(t, json.Unmarshal([]byte(doc), &p))

	assert.Equal(t, "b", p.Properties["ab_variant"])
	assert.Equal(t, 0.8, p.Properties["scroll_depth"])
}

func TestEventPayload_ExplicitPropertiesWinOnCollision(t *testing.T) {
	doc := `{"properties":{"source":"explicit"},"source":"top-level"}`

	var p EventPayload
	require.NoError(t, json.Unmarshal([]byte(doc), &p))

	assert.Equal(t, "explicit", p.Properties["source"])
}

func TestEventPayload_NullValuesTreatedAsAbsent(t *testing.T) {
	doc := `{"user_id":null,"price":null,"properties":null}`

	var p EventPayload
	require.NoError(t, json.Unmarshal([]byte(doc), &p))

	assert.Equal(t, "", p.UserID)
	assert.Equal(t, float64(0), p.Price)
	assert.Nil(t, p.Properties)
}

func TestEventPayload_RejectsWrongTypes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"string field as number", `{"user_id":42}`},
		{"price as string", `{"price":"12.50"}`},
		{"properties as array", `{"properties":[1,2]}`},
		{"document is a scalar", `"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p EventPayload
			assert.Error(t, json.Unmarshal([]byte(tt.doc), &p))
		})
	}
}
