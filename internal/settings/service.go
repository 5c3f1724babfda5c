// Package settings stores the per-user preferences document.
package settings

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

type Service struct {
	store docstore.Store
	log   *zap.Logger
}

func NewService(store docstore.Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log.With(zap.String("component", "settings"))}
}

// Get returns the user's settings, or the defaults when none were saved.
func (s *Service) Get(ctx context.Context, userID string) (domain.Settings, error) {
	doc, err := s.store.Get(ctx, domain.CollectionSettings, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.DefaultSettings(userID), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return domain.DecodeSettings(doc)
}

// Save replaces the whole settings document.
func (s *Service) Save(ctx context.Context, in domain.Settings) (domain.Settings, error) {
	if in.UserID == "" {
		return domain.Settings{}, domain.NewValidationError("userId", "required")
	}
	if err := in.Validate(); err != nil {
		return domain.Settings{}, err
	}
	data, err := domain.EncodeSettings(in)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if _, err := s.store.Set(ctx, domain.CollectionSettings, in.UserID, data); err != nil {
		return domain.Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	s.log.Info("settings saved", zap.String("user_id", in.UserID))
	return in, nil
}
