package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore/memory"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

func TestGet_Defaults(t *testing.T) {
	svc := NewService(memory.New(), zap.NewNop())

	got, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings("u1"), got)
}

func TestSave_FullReplace(t *testing.T) {
	svc := NewService(memory.New(), zap.NewNop())
	ctx := context.Background()

	in := domain.DefaultSettings("u1")
	in.LowStockThreshold = 3
	in.EmailNotifications = false
	_, err := svc.Save(ctx, in)
	require.NoError(t, err)

	in.Currency = "$"
	_, err = svc.Save(ctx, in)
	require.NoError(t, err)

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, in, got)

	other, err := svc.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 10, other.LowStockThreshold)
}

func TestSave_Validation(t *testing.T) {
	svc := NewService(memory.New(), zap.NewNop())
	in := domain.DefaultSettings("u1")
	in.RefreshInterval = 0

	_, err := svc.Save(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Save(context.Background(), domain.Settings{Currency: "₱", RefreshInterval: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
