package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestWebhookService(t)
	router := gin.New()
	passthrough := func(c *gin.Context) { c.Next() }
	NewHandler(svc).RegisterRoutes(router.Group("/api/v2"), passthrough, passthrough)
	return router, svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateSubscriptionReturnsSecretOnce(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v2/webhooks", gin.H{
		"name":   "crm sync",
		"url":    "https://crm.example/hooks/andorinha",
		"events": []string{"USER_CREATED", "POST_PUBLISHED"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	secret, _ := created["secret"].(string)
	assert.Len(t, secret, 64, "secret is 32 random bytes hex-encoded")

	rec = doJSON(t, router, http.MethodGet, "/api/v2/webhooks/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeBody(t, rec)
	assert.Equal(t, "crm sync", fetched["name"])
	assert.NotContains(t, fetched, "secret", "secret must not be readable after creation")

	rec = doJSON(t, router, http.MethodGet, "/api/v2/webhooks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), secret)
}

func TestCreateSubscriptionRejectsBadInput(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v2/webhooks", gin.H{
		"name": "broken", "url": "not-a-url",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v2/webhooks", gin.H{
		"url": "https://example.com/hook",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "name is required")
}

func TestUpdateAndDeleteSubscription(t *testing.T) {
	router, svc := newTestRouter(t)
	sub, _ := mustCreate(t, svc, "hook", "https://example.com/hook", []string{"USER_CREATED"})

	rec := doJSON(t, router, http.MethodPatch, "/api/v2/webhooks/"+sub.ID, gin.H{
		"is_active": false,
		"events":    []string{"CASE_CREATED"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody(t, rec)
	assert.Equal(t, false, updated["is_active"])
	assert.Equal(t, []interface{}{"CASE_CREATED"}, updated["events"])

	rec = doJSON(t, router, http.MethodDelete, "/api/v2/webhooks/"+sub.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v2/webhooks/"+sub.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRotateSecretEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)
	sub, original := mustCreate(t, svc, "hook", "https://example.com/hook", nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v2/webhooks/"+sub.ID+"/rotate-secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	rotated, _ := body["secret"].(string)
	assert.Len(t, rotated, 64)
	assert.NotEqual(t, original, rotated)

	rec = doJSON(t, router, http.MethodPost, "/api/v2/webhooks/missing/rotate-secret", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEventKindsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v2/webhooks/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{
		"USER_CREATED", "USER_UPDATED", "USER_DELETED",
		"POST_PUBLISHED", "POST_UNPUBLISHED",
		"CASE_CREATED", "SERVICE_CREATED",
	}, body.Data)
}

func TestTestEndpointDeliversSynchronously(t *testing.T) {
	router, svc := newTestRouter(t)

	var gotSig string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		w.Write([]byte(`pong`))
	}))
	defer target.Close()

	sub, _ := mustCreate(t, svc, "hook", target.URL, []string{"USER_CREATED"})

	rec := doJSON(t, router, http.MethodPost, "/api/v2/webhooks/"+sub.ID+"/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(http.StatusOK), body["status_code"])
	assert.Equal(t, "pong", body["response"])
	assert.Equal(t, "test-signature", gotSig)
}

func TestListLogsEndpointFilters(t *testing.T) {
	router, svc := newTestRouter(t)

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`ok`))
	}))
	defer target.Close()

	a, _ := mustCreate(t, svc, "a", target.URL, []string{"USER_CREATED"})
	_, _ = mustCreate(t, svc, "b", target.URL, []string{"USER_CREATED"})

	svc.Dispatch(EventUserCreated, map[string]interface{}{"userId": "u1"})
	svc.Drain()

	rec := doJSON(t, router, http.MethodGet, "/api/v2/webhooks/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paged struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paged))
	assert.Equal(t, int64(2), paged.Pagination.Total)

	rec = doJSON(t, router, http.MethodGet, "/api/v2/webhooks/logs?subscriptionId="+a.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paged))
	assert.Equal(t, int64(1), paged.Pagination.Total)
	require.Len(t, paged.Data, 1)
	assert.Equal(t, a.ID, paged.Data[0]["subscription_id"])
}
