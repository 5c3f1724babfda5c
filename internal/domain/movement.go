package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

// Movement sources recorded by the API.
const (
	SourceScan        = "scan"
	SourceManual      = "manual"
	SourceQuickUpdate = "quick-update"
)

func IsMovementSource(s string) bool {
	switch s {
	case SourceScan, SourceManual, SourceQuickUpdate:
		return true
	}
	return false
}

// StockMovement is an append-only fact: stock entering or leaving.
type StockMovement struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId,omitempty"`
	ProductCode string       `json:"productCode"`
	Type        MovementType `json:"type"`
	Quantity    int          `json:"quantity"`
	Source      string       `json:"source,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Delta is the signed stock change the movement stands for.
func (m StockMovement) Delta() int {
	if m.Type == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}

func (m StockMovement) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(m.ProductCode) == "" {
		verr.Add("productCode", "required")
	}
	if m.Type != MovementIn && m.Type != MovementOut {
		verr.Add("type", `must be "in" or "out"`)
	}
	if m.Quantity <= 0 {
		verr.Add("quantity", "must be a positive integer")
	}
	return verr.Err()
}

type movementDoc struct {
	UserID      string       `json:"userId,omitempty"`
	ProductCode string       `json:"productCode"`
	Type        MovementType `json:"type"`
	Quantity    looseInt     `json:"quantity"`
	Source      string       `json:"source,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

func DecodeMovement(doc docstore.Document) (StockMovement, error) {
	var d movementDoc
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return StockMovement{}, NewValidationError("document", fmt.Sprintf("movement %s: %v", doc.ID, err))
	}
	m := StockMovement{
		ID:          doc.ID,
		UserID:      d.UserID,
		ProductCode: strings.TrimSpace(d.ProductCode),
		Type:        MovementType(strings.ToLower(string(d.Type))),
		Quantity:    int(d.Quantity),
		Source:      d.Source,
		Timestamp:   d.Timestamp,
	}
	if err := m.Validate(); err != nil {
		return StockMovement{}, err
	}
	return m, nil
}

func EncodeMovement(m StockMovement) (json.RawMessage, error) {
	return json.Marshal(movementDoc{
		UserID:      m.UserID,
		ProductCode: m.ProductCode,
		Type:        m.Type,
		Quantity:    looseInt(m.Quantity),
		Source:      m.Source,
		Timestamp:   m.Timestamp,
	})
}
