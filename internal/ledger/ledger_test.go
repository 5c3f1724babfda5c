package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore/memory"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

var fixedNow = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(memory.New(), zap.NewNop())
	l.now = func() time.Time { return fixedNow }
	return l
}

func text(s string) *Text {
	t := Text(s)
	return &t
}

func TestCreate_DefaultsAndCoercion(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	it, err := l.Create(ctx, "u1", ItemDraft{
		Name:         "Hammer",
		ProductCode:  " A1 ",
		Unit:         "pcs",
		CurrentStock: "10",
		MinimumStock: "",
		Usage:        "many",
		Price:        "12.5",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, it.ID)
	assert.Equal(t, "A1", it.ProductCode)
	assert.Equal(t, domain.DefaultCategory, it.Category)
	assert.Equal(t, 10, it.CurrentStock)
	assert.Equal(t, 10, it.MinimumStock, "minimum seeded from current stock")
	assert.Equal(t, 0, it.Usage, "invalid numeric text becomes 0")
	assert.True(t, decimal.RequireFromString("12.5").Equal(it.Price))
	assert.Equal(t, fixedNow, it.CreatedAt)
	assert.Equal(t, fixedNow, it.LastUpdated)
	assert.Equal(t, 0, it.VarianceQuantity)

	stored, err := l.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.CurrentStock, stored.CurrentStock)
	assert.Equal(t, "u1", stored.UserID)
}

func TestCreate_ComputesInitialVariance(t *testing.T) {
	l := newLedger(t)
	it, err := l.Create(context.Background(), "u1", ItemDraft{
		Name: "Tape", ProductCode: "T1", Unit: "roll", CurrentStock: "7", MinimumStock: "10",
	})
	require.NoError(t, err)
	assert.Equal(t, -3, it.VarianceQuantity)
	assert.InDelta(t, -30.0, it.VariancePercentage, 1e-9)
}

func TestCreate_Validation(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	_, err := l.Create(ctx, "u1", ItemDraft{Name: " ", ProductCode: "", Unit: ""})
	require.Error(t, err)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors, 3)

	_, err = l.Create(ctx, "u1", ItemDraft{Name: "x", ProductCode: "N1", Unit: "pcs", CurrentStock: "-2"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	items, err := l.List(ctx, "u1", ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items, "nothing written on validation failure")
}

func TestCreate_ProductCodeUniquePerUser(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	draft := ItemDraft{Name: "Drill", ProductCode: "D1", Unit: "pcs", CurrentStock: "1"}

	_, err := l.Create(ctx, "u1", draft)
	require.NoError(t, err)

	_, err = l.Create(ctx, "u1", draft)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = l.Create(ctx, "u2", draft)
	assert.NoError(t, err, "another user may reuse the code")
}

func TestApplyDelta(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	it, err := l.Create(ctx, "u1", ItemDraft{Name: "Nail", ProductCode: "N1", Unit: "box", CurrentStock: "10", MinimumStock: "10"})
	require.NoError(t, err)

	got, err := l.ApplyDelta(ctx, it.ID, -3)
	require.NoError(t, err)
	assert.Equal(t, 7, got.CurrentStock)
	assert.Equal(t, -3, got.VarianceQuantity)
	assert.InDelta(t, -30.0, got.VariancePercentage, 1e-9)
	assert.Greater(t, got.Version, it.Version)

	got, err = l.ApplyDelta(ctx, it.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, got.CurrentStock)
	assert.Equal(t, 0, got.VarianceQuantity)
}

func TestApplyDelta_NeverNegative(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	it, err := l.Create(ctx, "u1", ItemDraft{Name: "Nail", ProductCode: "N1", Unit: "box", CurrentStock: "2"})
	require.NoError(t, err)

	_, err = l.ApplyDelta(ctx, it.ID, -3)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)
	var oos *domain.OutOfStockError
	require.True(t, errors.As(err, &oos))
	assert.Equal(t, 2, oos.Available)

	stored, err := l.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentStock)
	assert.Equal(t, it.Version, stored.Version, "failed delta must not write")

	_, err = l.ApplyDelta(ctx, it.ID, -2)
	require.NoError(t, err)
}

func TestApplyDelta_MissingItem(t *testing.T) {
	l := newLedger(t)
	_, err := l.ApplyDelta(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	it, err := l.Create(ctx, "u1", ItemDraft{Name: "Saw", ProductCode: "S1", Unit: "pcs", CurrentStock: "20", MinimumStock: "20"})
	require.NoError(t, err)

	got, err := l.Update(ctx, it.ID, ItemPatch{CurrentStock: text("5"), Price: text("oops"), Category: text("")})
	require.NoError(t, err)
	assert.Equal(t, 5, got.CurrentStock)
	assert.Equal(t, 20, got.MinimumStock)
	assert.True(t, got.Price.IsZero())
	assert.Equal(t, domain.DefaultCategory, got.Category)
	assert.Equal(t, -15, got.VarianceQuantity)
	assert.Equal(t, "Saw", got.Name)

	got, err = l.Update(ctx, it.ID, ItemPatch{MinimumStock: text("0")})
	require.NoError(t, err)
	assert.Equal(t, 5, got.MinimumStock, "zero minimum is seeded from current stock")

	_, err = l.Update(ctx, it.ID, ItemPatch{Name: text("")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.Update(ctx, "missing", ItemPatch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_ProductCodeConflict(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	_, err := l.Create(ctx, "u1", ItemDraft{Name: "A", ProductCode: "A1", Unit: "pcs"})
	require.NoError(t, err)
	b, err := l.Create(ctx, "u1", ItemDraft{Name: "B", ProductCode: "B1", Unit: "pcs"})
	require.NoError(t, err)

	_, err = l.Update(ctx, b.ID, ItemPatch{ProductCode: text("A1")})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = l.Update(ctx, b.ID, ItemPatch{ProductCode: text("B1"), Name: text("B2")})
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	it, err := l.Create(ctx, "u1", ItemDraft{Name: "A", ProductCode: "A1", Unit: "pcs"})
	require.NoError(t, err)

	require.NoError(t, l.Delete(ctx, it.ID))
	_, err = l.Get(ctx, it.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, l.Delete(ctx, it.ID), domain.ErrNotFound)
}

func TestList_SearchAndCategory(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	for _, d := range []ItemDraft{
		{Name: "Claw Hammer", ProductCode: "H1", Unit: "pcs", Category: "Tools"},
		{Name: "Wire", ProductCode: "W1", Unit: "m", Category: "Electrical"},
		{Name: "Pipe", ProductCode: "P1", Unit: "m", Category: "Plumbing"},
	} {
		_, err := l.Create(ctx, "u1", d)
		require.NoError(t, err)
	}
	_, err := l.Create(ctx, "u2", ItemDraft{Name: "Hammer", ProductCode: "H1", Unit: "pcs"})
	require.NoError(t, err)

	all, err := l.List(ctx, "u1", ItemFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Claw Hammer", all[0].Name, "creation order")

	got, err := l.List(ctx, "u1", ItemFilter{Search: "hammer"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = l.List(ctx, "u1", ItemFilter{Search: "elec"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "W1", got[0].ProductCode)

	got, err = l.List(ctx, "u1", ItemFilter{Category: "Plumbing", Search: "w"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
