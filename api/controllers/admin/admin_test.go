package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/retailops-backend/internal/integrations"
	"github.com/angelmondragon/retailops-backend/pkg/db/dbtest"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	client := dbtest.New(t)
	repo := outbox.NewRepository(client.DB())
	dlq := outbox.NewDLQRepository(client.DB())
	integrationSvc, err := integrations.NewService(integrations.NewRepository(client.DB()))
	require.NoError(t, err)

	r := chi.NewRouter()
	dlqSvc := outbox.NewDLQService(client, repo, dlq, nil)
	r.Get("/admin/dlq", ListDLQ(dlqSvc, nil))
	r.Post("/admin/dlq/{dlqId}/replay", ReplayDLQ(dlqSvc, nil))
	r.Post("/admin/integrations", RegisterIntegration(integrationSvc, nil))
	r.Get("/admin/channels/{channel}/integration", ActiveIntegration(integrationSvc, nil))
	r.Post("/admin/integrations/{integrationId}/deactivate", DeactivateIntegration(integrationSvc, nil))

	require.NoError(t, client.DB().Create(&models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventOrderItemCreated,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		AttemptCount:  1,
	}).Error)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type dlqListBody struct {
	Data struct {
		Entries []dlqEntryResponse `json:"entries"`
	} `json:"data"`
}

func TestDLQListAndReplay(t *testing.T) {
	h := newRouter(t)

	rec := do(h, http.MethodGet, "/admin/dlq", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var listed dlqListBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Data.Entries, 1)
	entry := listed.Data.Entries[0]

	rec = do(h, http.MethodPost, "/admin/dlq/"+entry.ID.String()+"/replay", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"replayed_at"`)

	rec = do(h, http.MethodPost, "/admin/dlq/"+entry.ID.String()+"/replay", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(h, http.MethodGet, "/admin/dlq", "")
	listed = dlqListBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Empty(t, listed.Data.Entries)

	rec = do(h, http.MethodGet, "/admin/dlq?include_replayed=true&event_type="+string(enums.EventOrderItemCreated), "")
	listed = dlqListBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Data.Entries, 1)
}

func TestDLQListRejectsBadFilters(t *testing.T) {
	h := newRouter(t)
	require.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/admin/dlq?event_type=nope", "").Code)
	require.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/admin/dlq?limit=5000", "").Code)
	require.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/admin/dlq/not-a-uuid/replay", "").Code)
	require.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/admin/dlq/"+uuid.NewString()+"/replay", "").Code)
}

func TestIntegrationLifecycleHidesSecret(t *testing.T) {
	h := newRouter(t)

	rec := do(h, http.MethodPost, "/admin/integrations", `{"channel":"trendyol","name":"Trendyol TR","secret":"supplier-key-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "supplier-key-1")

	var created struct {
		Data integrationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(h, http.MethodGet, "/admin/channels/trendyol/integration", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), created.Data.ID.String())
	require.NotContains(t, rec.Body.String(), "supplier-key-1")

	rec = do(h, http.MethodPost, "/admin/integrations/"+created.Data.ID.String()+"/deactivate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/admin/channels/trendyol/integration", "").Code)
	require.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/admin/channels/ebay/integration", "").Code)
}

func TestRegisterIntegrationValidation(t *testing.T) {
	h := newRouter(t)
	rec := do(h, http.MethodPost, "/admin/integrations", `{"channel":"manual","name":"x","secret":"12345678"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(h, http.MethodPost, "/admin/integrations", `{"channel":"shopify","name":"x","secret":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
