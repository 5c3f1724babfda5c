package domain

import (
	"encoding/json"
	"fmt"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

type Settings struct {
	UserID             string `json:"userId"`
	EmailNotifications bool   `json:"emailNotifications"`
	LowStockAlerts     bool   `json:"lowStockAlerts"`
	Currency           string `json:"currency"`
	LowStockThreshold  int    `json:"lowStockThreshold"`
	RefreshInterval    int    `json:"refreshInterval"`
}

func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:             userID,
		EmailNotifications: true,
		LowStockAlerts:     true,
		Currency:           "₱",
		LowStockThreshold:  10,
		RefreshInterval:    1,
	}
}

func (s Settings) Validate() error {
	verr := &ValidationError{}
	if s.Currency == "" {
		verr.Add("currency", "required")
	}
	if s.LowStockThreshold < 0 {
		verr.Add("lowStockThreshold", "must not be negative")
	}
	if s.RefreshInterval < 1 {
		verr.Add("refreshInterval", "must be at least 1 minute")
	}
	return verr.Err()
}

type settingsDoc struct {
	EmailNotifications bool     `json:"emailNotifications"`
	LowStockAlerts     bool     `json:"lowStockAlerts"`
	Currency           string   `json:"currency"`
	LowStockThreshold  looseInt `json:"lowStockThreshold"`
	RefreshInterval    looseInt `json:"refreshInterval"`
}

// DecodeSettings reads a settings document keyed by user id.
func DecodeSettings(doc docstore.Document) (Settings, error) {
	def := DefaultSettings(doc.ID)
	// absent fields keep their defaults
	d := settingsDoc{
		EmailNotifications: def.EmailNotifications,
		LowStockAlerts:     def.LowStockAlerts,
		Currency:           def.Currency,
		LowStockThreshold:  looseInt(def.LowStockThreshold),
		RefreshInterval:    looseInt(def.RefreshInterval),
	}
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return Settings{}, NewValidationError("document", fmt.Sprintf("settings %s: %v", doc.ID, err))
	}
	s := Settings{
		UserID:             doc.ID,
		EmailNotifications: d.EmailNotifications,
		LowStockAlerts:     d.LowStockAlerts,
		Currency:           d.Currency,
		LowStockThreshold:  int(d.LowStockThreshold),
		RefreshInterval:    int(d.RefreshInterval),
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func EncodeSettings(s Settings) (json.RawMessage, error) {
	return json.Marshal(settingsDoc{
		EmailNotifications: s.EmailNotifications,
		LowStockAlerts:     s.LowStockAlerts,
		Currency:           s.Currency,
		LowStockThreshold:  looseInt(s.LowStockThreshold),
		RefreshInterval:    looseInt(s.RefreshInterval),
	})
}
