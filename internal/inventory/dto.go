package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

// Direction is the caller-supplied sign for neutral movement types.
type Direction int

const (
	DirectionNone Direction = 0
	DirectionIn   Direction = 1
	DirectionOut  Direction = -1
)

// StockKey identifies one StockLevel row.
type StockKey struct {
	VariantID  uuid.UUID
	LocationID uuid.UUID
}

func (k StockKey) String() string {
	return k.VariantID.String() + "/" + k.LocationID.String()
}

func (k StockKey) less(other StockKey) bool {
	if k.VariantID != other.VariantID {
		return k.VariantID.String() < other.VariantID.String()
	}
	return k.LocationID.String() < other.LocationID.String()
}

// Reference names the business record a movement belongs to. The zero value
// means the movement is not tied to any record.
type Reference struct {
	Type enums.ReferenceType
	ID   string
}

func (r Reference) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// MovementInput is the request to apply a single stock movement.
type MovementInput struct {
	VariantID  uuid.UUID
	LocationID uuid.UUID
	Type       enums.MovementType
	Quantity   int
	Direction  Direction
	Reference  Reference
	Note       *string
	OccurredAt time.Time
}

// VoidInput blocks a not yet applied movement of Type for Reference on Key.
type VoidInput struct {
	Key       StockKey
	Reference Reference
	Type      enums.MovementType
	Reason    string
}

// TransferInput moves stock between two locations of the same variant.
type TransferInput struct {
	TransferID     string
	VariantID      uuid.UUID
	FromLocationID uuid.UUID
	ToLocationID   uuid.UUID
	Quantity       int
	Note           *string
	OccurredAt     time.Time
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Out models.InventoryMovement `json:"out"`
	In  models.InventoryMovement `json:"in"`
}

// StockLevelView is the API shape of a StockLevel. Keys without a row report zero.
type StockLevelView struct {
	VariantID  uuid.UUID  `json:"variant_id"`
	LocationID uuid.UUID  `json:"location_id"`
	OnHand     int        `json:"on_hand"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// MovementView is the API shape of an InventoryMovement.
type MovementView struct {
	ID            uuid.UUID          `json:"id"`
	VariantID     uuid.UUID          `json:"variant_id"`
	LocationID    uuid.UUID          `json:"location_id"`
	Type          enums.MovementType `json:"type"`
	QuantityDelta int                `json:"quantity_delta"`
	BalanceAfter  int                `json:"balance_after"`
	ReferenceType *string            `json:"reference_type,omitempty"`
	ReferenceID   *string            `json:"reference_id,omitempty"`
	Note          *string            `json:"note,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
	CreatedAt     time.Time          `json:"created_at"`
}

// MovementList is one page of movements for a key, newest first.
type MovementList struct {
	Movements  []MovementView `json:"movements"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// MovementSummary aggregates the movement history of a key.
type MovementSummary struct {
	Count int64
	Sum   int64
	// Opening is the on-hand count before the lowest-sequence movement.
	Opening int64
}

// ReconcileResult compares a StockLevel with its movement history.
type ReconcileResult struct {
	VariantID     uuid.UUID `json:"variant_id"`
	LocationID    uuid.UUID `json:"location_id"`
	OnHand        int64     `json:"on_hand"`
	Opening       int64     `json:"opening"`
	MovementSum   int64     `json:"movement_sum"`
	MovementCount int64     `json:"movement_count"`
	Drift         int64     `json:"drift"`
}

// InSync reports whether on_hand equals opening plus the sum of deltas.
func (r ReconcileResult) InSync() bool {
	return r.Drift == 0
}

func NewMovementView(m models.InventoryMovement) MovementView {
	return MovementView{
		ID:            m.ID,
		VariantID:     m.VariantID,
		LocationID:    m.LocationID,
		Type:          m.Type,
		QuantityDelta: m.QuantityDelta,
		BalanceAfter:  m.BalanceAfter,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Note:          m.Note,
		OccurredAt:    m.OccurredAt,
		CreatedAt:     m.CreatedAt,
	}
}
