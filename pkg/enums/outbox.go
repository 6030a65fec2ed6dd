package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateOrderItem   OutboxAggregateType = "order_item"
	AggregateOrderReturn OutboxAggregateType = "order_return"
)

var aggregateTypes = set[OutboxAggregateType]{AggregateOrder, AggregateOrderItem, AggregateOrderReturn}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.contains(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType maps to the event_type enum in Postgres. Every value has a
// decoder in the outbox registry.
type OutboxEventType string

const (
	EventOrderItemCreated     OutboxEventType = "order_item_created"
	EventOrderItemCanceled    OutboxEventType = "order_item_canceled"
	EventOrderReturnCompleted OutboxEventType = "order_return_completed"
)

var eventTypes = set[OutboxEventType]{EventOrderItemCreated, EventOrderItemCanceled, EventOrderReturnCompleted}

func (e OutboxEventType) IsValid() bool { return eventTypes.contains(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse("event type", value)
}

// OutboxEventTypes lists the event types in declaration order.
func OutboxEventTypes() []OutboxEventType { return eventTypes.values() }

// OutboxDLQErrorReason records why a row left the outbox for the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonDecodeFailed OutboxDLQErrorReason = "decode_failed"
)

var dlqReasons = set[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonDecodeFailed}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.contains(r) }
