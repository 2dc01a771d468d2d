package catalog_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vasiliy-maslov/partsbot/internal/catalog"
)

func TestTransformAvailability(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantDisplay string
		wantQty     int
		wantNumeric bool
	}{
		{name: "special_order_sentinel", raw: `-10`, wantDisplay: "Под заказ"},
		{name: "negative_becomes_glyphs", raw: `-3`, wantDisplay: "+++"},
		{name: "fractional_near_sentinel_stays_glyphs", raw: `-10.5`, wantDisplay: "++++++++++"},
		{name: "positive_passthrough", raw: `5`, wantDisplay: "5", wantQty: 5, wantNumeric: true},
		{name: "numeric_string_passthrough", raw: `"7"`, wantDisplay: "7", wantQty: 7, wantNumeric: true},
		{name: "negative_string", raw: `"-2"`, wantDisplay: "++"},
		{name: "zero", raw: `0`, wantDisplay: "0", wantQty: 0, wantNumeric: true},
		{name: "non_numeric_string", raw: `"много"`, wantDisplay: "много"},
		{name: "null", raw: `null`, wantDisplay: "-"},
		{name: "empty", raw: ``, wantDisplay: "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.TransformAvailability(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantDisplay, got.Display)
			assert.Equal(t, tt.wantQty, got.Qty)
			assert.Equal(t, tt.wantNumeric, got.Numeric)
		})
	}
}

func TestAvailability_AllowsQuantity(t *testing.T) {
	numeric := catalog.TransformAvailability(json.RawMessage(`5`))
	assert.True(t, numeric.AllowsQuantity(2))
	assert.True(t, numeric.AllowsQuantity(5))
	assert.False(t, numeric.AllowsQuantity(6))

	// Для нечисловых остатков проверка количества пропускается.
	special := catalog.TransformAvailability(json.RawMessage(`-10`))
	assert.True(t, special.AllowsQuantity(100))

	glyphs := catalog.TransformAvailability(json.RawMessage(`-3`))
	assert.True(t, glyphs.AllowsQuantity(50))
}
