package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

type BorrowStatus string

const (
	BorrowPending  BorrowStatus = "pending"
	BorrowApproved BorrowStatus = "approved"
	BorrowReturned BorrowStatus = "returned"
)

// validNext: pending -> approved -> returned; returned is terminal.
var validNext = map[BorrowStatus]map[BorrowStatus]bool{
	BorrowPending:  {BorrowApproved: true},
	BorrowApproved: {BorrowReturned: true},
	BorrowReturned: {},
}

func CanTransition(from, to BorrowStatus) bool {
	m, ok := validNext[from]
	if !ok {
		return false
	}
	return m[to]
}

// BorrowableCategories are the item categories that may be lent out.
var BorrowableCategories = []string{"Tools", "Electrical", "Plumbing", "Carpentry", "Paint", "Hardware"}

func IsBorrowable(category string) bool {
	for _, c := range BorrowableCategories {
		if c == category {
			return true
		}
	}
	return false
}

type BorrowRequest struct {
	ID                 string       `json:"id"`
	ItemID             string       `json:"itemId"`
	ItemName           string       `json:"itemName"`
	ItemCategory       string       `json:"itemCategory"`
	ItemUnit           string       `json:"itemUnit"`
	CurrentStock       int          `json:"currentStock"`
	Quantity           int          `json:"quantity"`
	Purpose            string       `json:"purpose"`
	ExpectedReturnDate time.Time    `json:"expectedReturnDate"`
	Status             BorrowStatus `json:"status"`
	RequestedBy        string       `json:"requestedBy"`
	RequestedAt        time.Time    `json:"requestedAt"`
	ApprovedBy         string       `json:"approvedBy,omitempty"`
	ApprovedAt         *time.Time   `json:"approvedAt,omitempty"`
	ReturnedAt         *time.Time   `json:"returnedAt,omitempty"`
	Version            int64        `json:"version"`
}

type borrowDoc struct {
	ItemID             string       `json:"itemId"`
	ItemName           string       `json:"itemName"`
	ItemCategory       string       `json:"itemCategory"`
	ItemUnit           string       `json:"itemUnit"`
	CurrentStock       looseInt     `json:"currentStock"`
	Quantity           looseInt     `json:"quantity"`
	Purpose            string       `json:"purpose"`
	ExpectedReturnDate time.Time    `json:"expectedReturnDate"`
	Status             BorrowStatus `json:"status"`
	RequestedBy        string       `json:"requestedBy"`
	RequestedAt        time.Time    `json:"requestedAt"`
	ApprovedBy         string       `json:"approvedBy,omitempty"`
	ApprovedAt         *time.Time   `json:"approvedAt,omitempty"`
	ReturnedAt         *time.Time   `json:"returnedAt,omitempty"`
}

func DecodeBorrowRequest(doc docstore.Document) (BorrowRequest, error) {
	var d borrowDoc
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return BorrowRequest{}, NewValidationError("document", fmt.Sprintf("borrow request %s: %v", doc.ID, err))
	}
	if _, ok := validNext[d.Status]; !ok {
		return BorrowRequest{}, NewValidationError("status", fmt.Sprintf("unknown status %q", d.Status))
	}
	if d.ItemID == "" {
		return BorrowRequest{}, NewValidationError("itemId", "required")
	}
	return BorrowRequest{
		ID:                 doc.ID,
		ItemID:             d.ItemID,
		ItemName:           d.ItemName,
		ItemCategory:       d.ItemCategory,
		ItemUnit:           d.ItemUnit,
		CurrentStock:       int(d.CurrentStock),
		Quantity:           int(d.Quantity),
		Purpose:            d.Purpose,
		ExpectedReturnDate: d.ExpectedReturnDate,
		Status:             d.Status,
		RequestedBy:        d.RequestedBy,
		RequestedAt:        d.RequestedAt,
		ApprovedBy:         d.ApprovedBy,
		ApprovedAt:         d.ApprovedAt,
		ReturnedAt:         d.ReturnedAt,
		Version:            doc.Version,
	}, nil
}

func EncodeBorrowRequest(r BorrowRequest) (json.RawMessage, error) {
	return json.Marshal(borrowDoc{
		ItemID:             r.ItemID,
		ItemName:           r.ItemName,
		ItemCategory:       r.ItemCategory,
		ItemUnit:           r.ItemUnit,
		CurrentStock:       looseInt(r.CurrentStock),
		Quantity:           looseInt(r.Quantity),
		Purpose:            r.Purpose,
		ExpectedReturnDate: r.ExpectedReturnDate,
		Status:             r.Status,
		RequestedBy:        r.RequestedBy,
		RequestedAt:        r.RequestedAt,
		ApprovedBy:         r.ApprovedBy,
		ApprovedAt:         r.ApprovedAt,
		ReturnedAt:         r.ReturnedAt,
	})
}
