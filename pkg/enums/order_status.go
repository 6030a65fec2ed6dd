package enums

// OrderStatus maps to the order_status_enum enum in Postgres.
type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "created"
	OrderStatusCanceled OrderStatus = "canceled"
)

func (s OrderStatus) IsValid() bool {
	return s == OrderStatusCreated || s == OrderStatusCanceled
}

// ReturnStatus tracks an order return from request to restock.
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "requested"
	ReturnStatusCompleted ReturnStatus = "completed"
)

func (s ReturnStatus) IsValid() bool {
	return s == ReturnStatusRequested || s == ReturnStatusCompleted
}

// PurchaseOrderStatus tracks supplier purchase orders.
type PurchaseOrderStatus string

const (
	PurchaseOrderDraft    PurchaseOrderStatus = "draft"
	PurchaseOrderReceived PurchaseOrderStatus = "received"
)

func (s PurchaseOrderStatus) IsValid() bool {
	return s == PurchaseOrderDraft || s == PurchaseOrderReceived
}

// SalesChannel identifies where an order originated.
type SalesChannel string

const (
	ChannelManual   SalesChannel = "manual"
	ChannelTrendyol SalesChannel = "trendyol"
	ChannelShopify  SalesChannel = "shopify"
)

var salesChannels = set[SalesChannel]{ChannelManual, ChannelTrendyol, ChannelShopify}

func (c SalesChannel) IsValid() bool { return salesChannels.contains(c) }

// IsMarketplace reports whether orders on c arrive through a webhook.
func (c SalesChannel) IsMarketplace() bool { return c.IsValid() && c != ChannelManual }

func ParseSalesChannel(value string) (SalesChannel, error) {
	return salesChannels.parse("sales channel", value)
}
