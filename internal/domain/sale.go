package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

// Sale is a recorded usage of an item, kept as optional history for the
// dashboard.
type Sale struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ItemID      string    `json:"itemId"`
	ProductCode string    `json:"productCode"`
	Quantity    int       `json:"quantity"`
	Timestamp   time.Time `json:"timestamp"`
}

type saleDoc struct {
	UserID      string    `json:"userId"`
	ItemID      string    `json:"itemId"`
	ProductCode string    `json:"productCode"`
	Quantity    looseInt  `json:"quantity"`
	Timestamp   time.Time `json:"timestamp"`
}

func DecodeSale(doc docstore.Document) (Sale, error) {
	var d saleDoc
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return Sale{}, NewValidationError("document", fmt.Sprintf("sale %s: %v", doc.ID, err))
	}
	if d.Quantity < 0 {
		return Sale{}, NewValidationError("quantity", "must not be negative")
	}
	return Sale{
		ID:          doc.ID,
		UserID:      d.UserID,
		ItemID:      d.ItemID,
		ProductCode: d.ProductCode,
		Quantity:    int(d.Quantity),
		Timestamp:   d.Timestamp,
	}, nil
}

func EncodeSale(s Sale) (json.RawMessage, error) {
	return json.Marshal(saleDoc{
		UserID:      s.UserID,
		ItemID:      s.ItemID,
		ProductCode: s.ProductCode,
		Quantity:    looseInt(s.Quantity),
		Timestamp:   s.Timestamp,
	})
}
