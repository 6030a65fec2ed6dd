package enums

// ReferenceType names the business record a stock movement was applied for.
type ReferenceType string

const (
	ReferenceOrderItem         ReferenceType = "order_item"
	ReferenceOrderReturn       ReferenceType = "order_return"
	ReferencePurchaseOrderLine ReferenceType = "purchase_order_line"
	ReferenceStockTransfer     ReferenceType = "stock_transfer"
	ReferenceManual            ReferenceType = "manual"
)

var referenceTypes = set[ReferenceType]{
	ReferenceOrderItem,
	ReferenceOrderReturn,
	ReferencePurchaseOrderLine,
	ReferenceStockTransfer,
	ReferenceManual,
}

func (r ReferenceType) IsValid() bool { return referenceTypes.contains(r) }

func ParseReferenceType(value string) (ReferenceType, error) {
	return referenceTypes.parse("reference type", value)
}
