package enums

// MovementType maps to the movement_type_enum enum in Postgres.
type MovementType string

const (
	MovementSale             MovementType = "sale"
	MovementReturn           MovementType = "return"
	MovementCancellation     MovementType = "cancellation"
	MovementAdjustment       MovementType = "adjustment"
	MovementPurchaseReceived MovementType = "purchase_received"
	MovementDamaged          MovementType = "damaged"
	MovementTransfer         MovementType = "transfer"
)

// MovementEffect is the sign a movement type implies for on-hand stock.
type MovementEffect int

const (
	// EffectNeutral means the caller supplies the direction.
	EffectNeutral   MovementEffect = 0
	EffectAddition  MovementEffect = 1
	EffectDeduction MovementEffect = -1
)

var movementEffects = map[MovementType]MovementEffect{
	MovementSale:             EffectDeduction,
	MovementDamaged:          EffectDeduction,
	MovementReturn:           EffectAddition,
	MovementCancellation:     EffectAddition,
	MovementPurchaseReceived: EffectAddition,
	MovementAdjustment:       EffectNeutral,
	MovementTransfer:         EffectNeutral,
}

var movementTypes = set[MovementType]{
	MovementSale,
	MovementReturn,
	MovementCancellation,
	MovementAdjustment,
	MovementPurchaseReceived,
	MovementDamaged,
	MovementTransfer,
}

// IsValid reports whether the value matches the canonical movement_type enum.
func (m MovementType) IsValid() bool {
	_, ok := movementEffects[m]
	return ok
}

// Effect returns the policy sign for the movement type.
func (m MovementType) Effect() MovementEffect {
	return movementEffects[m]
}

func (m MovementType) IsDeduction() bool { return m.IsValid() && m.Effect() == EffectDeduction }

func (m MovementType) IsAddition() bool { return m.IsValid() && m.Effect() == EffectAddition }

func (m MovementType) IsNeutral() bool { return m.IsValid() && m.Effect() == EffectNeutral }

// MovementTypes returns every movement type in declaration order.
func MovementTypes() []MovementType {
	return movementTypes.values()
}

func ParseMovementType(value string) (MovementType, error) {
	return movementTypes.parse("movement type", value)
}
