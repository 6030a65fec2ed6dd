package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/retailops-backend/api/responses"
	"github.com/angelmondragon/retailops-backend/api/validators"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
)

const maxDLQLimit = 200

// DLQService is the operator surface of *outbox.DLQService.
type DLQService interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Replay(ctx context.Context, id uuid.UUID) (*models.OutboxDLQ, error)
}

type dlqEntryResponse struct {
	ID            uuid.UUID                  `json:"id"`
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	ErrorReason   enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage  *string                    `json:"error_message,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	Payload       json.RawMessage            `json:"payload"`
	FailedAt      time.Time                  `json:"failed_at"`
	ReplayedAt    *time.Time                 `json:"replayed_at,omitempty"`
}

func newDLQEntryResponse(entry models.OutboxDLQ) dlqEntryResponse {
	return dlqEntryResponse{
		ID:            entry.ID,
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		AggregateType: entry.AggregateType,
		AggregateID:   entry.AggregateID,
		ErrorReason:   entry.ErrorReason,
		ErrorMessage:  entry.ErrorMessage,
		AttemptCount:  entry.AttemptCount,
		Payload:       entry.Payload,
		FailedAt:      entry.FailedAt,
		ReplayedAt:    entry.ReplayedAt,
	}
}

// ListDLQ returns dead-lettered events, unreplayed only unless include_replayed is set.
func ListDLQ(svc DLQService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dlq service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxDLQLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		includeReplayed, err := validators.ParseQueryBool(r, "include_replayed", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventType := strings.TrimSpace(r.URL.Query().Get("event_type"))
		if eventType != "" && !enums.OutboxEventType(eventType).IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown event_type").
				WithDetails(map[string]string{"event_type": eventType}))
			return
		}

		rows, err := svc.List(r.Context(), outbox.DLQFilter{
			EventType:       eventType,
			IncludeReplayed: includeReplayed,
			Limit:           limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries := make([]dlqEntryResponse, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, newDLQEntryResponse(row))
		}
		responses.WriteSuccess(w, map[string]any{"entries": entries})
	}
}

func ReplayDLQ(svc DLQService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dlq service unavailable"))
			return
		}
		id, err := validators.PathUUID(r, "dlqId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.Replay(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDLQEntryResponse(*entry))
	}
}
