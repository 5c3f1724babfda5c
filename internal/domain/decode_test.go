package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

func TestDecodeItem_LooseNumbers(t *testing.T) {
	doc := docstore.Document{
		ID:      "i1",
		Version: 4,
		Data: json.RawMessage(`{"userId":"u1","name":"Hammer","productCode":"A1","category":"Tools",
			"unit":"pcs","currentStock":"15","minimumStock":10,"usage":null,"price":"12.50"}`),
	}

	it, err := DecodeItem(doc)
	require.NoError(t, err)
	assert.Equal(t, "i1", it.ID)
	assert.Equal(t, int64(4), it.Version)
	assert.Equal(t, 15, it.CurrentStock)
	assert.Equal(t, 10, it.MinimumStock)
	assert.Equal(t, 0, it.Usage)
	assert.True(t, decimal.RequireFromString("12.5").Equal(it.Price))
}

func TestDecodeItem_RejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":         `{`,
		"text stock":       `{"name":"x","productCode":"A1","currentStock":"lots"}`,
		"fractional stock": `{"name":"x","productCode":"A1","currentStock":1.5}`,
		"negative stock":   `{"name":"x","productCode":"A1","currentStock":-1}`,
		"missing code":     `{"name":"x","currentStock":1}`,
		"negative price":   `{"name":"x","productCode":"A1","price":-3}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeItem(docstore.Document{ID: "i", Data: json.RawMessage(data)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestItemRoundTripKeepsStoreFieldsOut(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	it := Item{ID: "i1", Version: 9, UserID: "u1", Name: "Saw", ProductCode: "S1", Unit: "pcs",
		CurrentStock: 3, MinimumStock: 5, Price: decimal.NewFromInt(40), CreatedAt: now, LastUpdated: now}

	data, err := EncodeItem(it)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "id")
	assert.NotContains(t, raw, "version")

	back, err := DecodeItem(docstore.Document{ID: "i1", Version: 9, Data: data})
	require.NoError(t, err)
	assert.Equal(t, it.CurrentStock, back.CurrentStock)
	assert.True(t, it.Price.Equal(back.Price))
	assert.True(t, now.Equal(back.CreatedAt))
}

func TestDecodeMovement(t *testing.T) {
	m, err := DecodeMovement(docstore.Document{ID: "m1", Data: json.RawMessage(`{"productCode":" A1 ","type":"OUT","quantity":"3"}`)})
	require.NoError(t, err)
	assert.Equal(t, "A1", m.ProductCode)
	assert.Equal(t, MovementOut, m.Type)
	assert.Equal(t, -3, m.Delta())

	_, err = DecodeMovement(docstore.Document{ID: "m2", Data: json.RawMessage(`{"productCode":"A1","type":"sideways","quantity":3}`)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = DecodeMovement(docstore.Document{ID: "m3", Data: json.RawMessage(`{"productCode":"A1","type":"in","quantity":0}`)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDecodeSettings_DefaultsForMissingFields(t *testing.T) {
	s, err := DecodeSettings(docstore.Document{ID: "u1", Data: json.RawMessage(`{"lowStockThreshold":"25","emailNotifications":false}`)})
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, 25, s.LowStockThreshold)
	assert.False(t, s.EmailNotifications)
	assert.True(t, s.LowStockAlerts)
	assert.Equal(t, "₱", s.Currency)
	assert.Equal(t, 1, s.RefreshInterval)
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 12, ParseCount("12"))
	assert.Equal(t, 12, ParseCount(" 12pcs"))
	assert.Equal(t, 7, ParseCount("7.9"))
	assert.Equal(t, 0, ParseCount("abc"))
	assert.Equal(t, 0, ParseCount(""))
	assert.Equal(t, -4, ParseCount("-4"))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(BorrowPending, BorrowApproved))
	assert.True(t, CanTransition(BorrowApproved, BorrowReturned))
	assert.False(t, CanTransition(BorrowPending, BorrowReturned))
	assert.False(t, CanTransition(BorrowApproved, BorrowPending))
	assert.False(t, CanTransition(BorrowReturned, BorrowApproved))
	assert.False(t, CanTransition("lost", BorrowReturned))
}
