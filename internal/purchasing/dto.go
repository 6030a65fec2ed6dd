package purchasing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

// ImportInput is a supplier purchase order as keyed in by purchasing staff.
// Unit costs arrive as typed, e.g. "1.234,50" or "12,5".
type ImportInput struct {
	SupplierName string       `json:"supplier_name" validate:"required,max=255"`
	Reference    string       `json:"reference" validate:"required,max=64"`
	LocationID   uuid.UUID    `json:"location_id" validate:"required"`
	Currency     string       `json:"currency" validate:"required,currency"`
	Lines        []ImportLine `json:"lines" validate:"required,min=1,max=500,dive"`
}

// ImportLine names the variant by id or by SKU.
type ImportLine struct {
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	SKU       string     `json:"sku,omitempty"`
	Quantity  int        `json:"quantity"`
	UnitCost  string     `json:"unit_cost"`
}

// LineError describes why one import line was rejected. Line is 1-based.
type LineError struct {
	Line    int    `json:"line"`
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

type PurchaseOrderView struct {
	ID           uuid.UUID                 `json:"id"`
	SupplierName string                    `json:"supplier_name"`
	Reference    string                    `json:"reference"`
	LocationID   uuid.UUID                 `json:"location_id"`
	Status       enums.PurchaseOrderStatus `json:"status"`
	Currency     string                    `json:"currency"`
	TotalCost    decimal.Decimal           `json:"total_cost"`
	ReceivedAt   *time.Time                `json:"received_at,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	Lines        []LineView                `json:"lines"`
}

type LineView struct {
	ID          uuid.UUID       `json:"id"`
	VariantID   uuid.UUID       `json:"variant_id"`
	Quantity    int             `json:"quantity"`
	RawUnitCost string          `json:"raw_unit_cost"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// ReceiveResult reports what receiving applied. Already applied lines are
// counted as skipped so a retried receive is visible as such.
type ReceiveResult struct {
	PurchaseOrder PurchaseOrderView `json:"purchase_order"`
	Applied       int               `json:"applied"`
	Skipped       int               `json:"skipped"`
}

func toView(po models.PurchaseOrder) PurchaseOrderView {
	view := PurchaseOrderView{
		ID:           po.ID,
		SupplierName: po.SupplierName,
		Reference:    po.Reference,
		LocationID:   po.LocationID,
		Status:       po.Status,
		Currency:     po.Currency,
		TotalCost:    decimal.Zero,
		ReceivedAt:   po.ReceivedAt,
		CreatedAt:    po.CreatedAt,
		Lines:        make([]LineView, 0, len(po.Lines)),
	}
	for _, line := range po.Lines {
		view.Lines = append(view.Lines, LineView{
			ID:          line.ID,
			VariantID:   line.VariantID,
			Quantity:    line.Quantity,
			RawUnitCost: line.RawUnitCost,
			UnitCost:    line.UnitCost,
		})
		view.TotalCost = view.TotalCost.Add(line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return view
}
