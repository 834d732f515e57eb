package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andorinha-digital/core/internal/models"
	"github.com/andorinha-digital/core/internal/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Concurrent delivery goroutines share this database; a single connection
	// serializes their writes.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.WebhookSubscriptionModel{},
		&models.WebhookDeliveryModel{},
	))
	return db
}

func newTestWebhookService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(newTestDB(t), zap.NewNop(), "https://andorinha.example")
	svc.deliverer.backoffBase = time.Millisecond
	return svc
}

func mustCreate(t *testing.T, svc *Service, name, url string, events []string) (*models.WebhookSubscriptionModel, string) {
	t.Helper()
	sub, secret, err := svc.Create(&CreateSubscriptionDTO{
		Name:   name,
		URL:    url,
		Events: events,
	})
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	return sub, secret
}

func deliveriesFor(t *testing.T, svc *Service, subID string) []models.WebhookDeliveryModel {
	t.Helper()
	var rows []models.WebhookDeliveryModel
	require.NoError(t, svc.db.Where("subscription_id = ?", subID).Order("created_at").Find(&rows).Error)
	return rows
}

func TestCreateValidatesURL(t *testing.T) {
	svc := newTestWebhookService(t)

	for _, bad := range []string{"not-a-url", "ftp://example.com/hook", "http://", "//missing-scheme"} {
		_, _, err := svc.Create(&CreateSubscriptionDTO{Name: "x", URL: bad})
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q should be rejected", bad)
	}

	var count int64
	svc.db.Model(&models.WebhookSubscriptionModel{}).Count(&count)
	assert.Zero(t, count, "invalid configuration must be rejected before persistence")
}

func TestCreateNormalizesEvents(t *testing.T) {
	svc := newTestWebhookService(t)

	sub, _ := mustCreate(t, svc, "hook", "https://example.com/hook",
		[]string{"user_created", "USER_CREATED", " post_published ", "NOT_AN_EVENT"})

	assert.ElementsMatch(t, []string{"USER_CREATED", "POST_PUBLISHED"}, []string(sub.Events))
}

func TestRotateSecretReplacesInPlace(t *testing.T) {
	svc := newTestWebhookService(t)
	sub, original := mustCreate(t, svc, "hook", "https://example.com/hook", []string{"USER_CREATED"})

	rotated, err := svc.RotateSecret(sub.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated)
	assert.NotEqual(t, original, rotated)

	stored, err := svc.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, rotated, stored.Secret)
	assert.Equal(t, sub.ID, stored.ID, "rotation must not change identity")

	_, err = svc.RotateSecret("missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatchFansOutToMatchingActiveSubscriptions(t *testing.T) {
	svc := newTestWebhookService(t)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`received`))
	}))
	defer srv.Close()

	first, _ := mustCreate(t, svc, "first", srv.URL, []string{"USER_CREATED"})
	second, _ := mustCreate(t, svc, "second", srv.URL, []string{"USER_CREATED", "POST_PUBLISHED"})
	otherEvent, _ := mustCreate(t, svc, "other-event", srv.URL, []string{"POST_PUBLISHED"})
	inactive, _ := mustCreate(t, svc, "inactive", srv.URL, []string{"USER_CREATED"})
	off := false
	_, err := svc.Update(inactive.ID, &UpdateSubscriptionDTO{IsActive: &off})
	require.NoError(t, err)

	svc.Dispatch(EventUserCreated, map[string]interface{}{"userId": "u1"})
	svc.Drain()

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "exactly one POST per matching subscription")

	assert.Len(t, deliveriesFor(t, svc, first.ID), 1)
	assert.Len(t, deliveriesFor(t, svc, second.ID), 1)
	assert.Empty(t, deliveriesFor(t, svc, otherEvent.ID), "non-matching event set must not be delivered")
	assert.Empty(t, deliveriesFor(t, svc, inactive.ID), "inactive subscription must not be delivered")

	row := deliveriesFor(t, svc, first.ID)[0]
	assert.True(t, row.Success)
	assert.Equal(t, "USER_CREATED", row.Event)
	assert.Equal(t, 0, row.RetriesCount)
	require.NotNil(t, row.StatusCode)
	assert.Equal(t, http.StatusOK, *row.StatusCode)
	require.NotNil(t, row.Response)
	assert.Equal(t, "received", *row.Response)
}

func TestDispatchSubscriberFailureIsIsolated(t *testing.T) {
	svc := newTestWebhookService(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	healthy, _ := mustCreate(t, svc, "healthy", srv.URL, []string{"POST_PUBLISHED"})
	unreachable, _ := mustCreate(t, svc, "unreachable", "http://127.0.0.1:1", []string{"POST_PUBLISHED"})

	svc.Dispatch(EventPostPublished, map[string]interface{}{"postId": "p1"})
	svc.Drain()

	healthyRows := deliveriesFor(t, svc, healthy.ID)
	require.Len(t, healthyRows, 1)
	assert.True(t, healthyRows[0].Success)

	failedRows := deliveriesFor(t, svc, unreachable.ID)
	require.Len(t, failedRows, 1)
	assert.False(t, failedRows[0].Success)
	assert.Nil(t, failedRows[0].StatusCode)
	require.NotNil(t, failedRows[0].Error)
	assert.NotEmpty(t, *failedRows[0].Error)
	assert.Equal(t, DefaultMaxAttempts-1, failedRows[0].RetriesCount)
}

func TestDispatchRecordsRetryCount(t *testing.T) {
	svc := newTestWebhookService(t)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	sub, _ := mustCreate(t, svc, "flaky", srv.URL, []string{"USER_CREATED"})

	svc.Dispatch(EventUserCreated, map[string]interface{}{"userId": "u1"})
	svc.Drain()

	rows := deliveriesFor(t, svc, sub.ID)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Success)
	assert.Equal(t, 2, rows[0].RetriesCount)
}

func TestDispatchWithNoSubscribersIsNoOp(t *testing.T) {
	svc := newTestWebhookService(t)

	svc.Dispatch(EventCaseCreated, map[string]interface{}{"caseId": "c1"})
	svc.Drain()

	var count int64
	svc.db.Model(&models.WebhookDeliveryModel{}).Count(&count)
	assert.Zero(t, count)
}

func TestDispatchEndToEndBodyAndSignature(t *testing.T) {
	svc := newTestWebhookService(t)

	type captured struct {
		body      []byte
		signature string
		event     string
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{
			body:      body,
			signature: r.Header.Get("X-Webhook-Signature"),
			event:     r.Header.Get("X-Webhook-Event"),
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	_, secret := mustCreate(t, svc, "hook", srv.URL, []string{"USER_CREATED"})

	svc.Dispatch(EventUserCreated, map[string]interface{}{"userId": "u1", "name": "Ann"})
	svc.Drain()

	c := <-got
	assert.Equal(t, "USER_CREATED", c.event)
	assert.Equal(t, Sign(c.body, secret), c.signature,
		"signature header must be the HMAC of the exact transmitted body")

	var payload Payload
	require.NoError(t, json.Unmarshal(c.body, &payload))
	assert.Equal(t, EventUserCreated, payload.Event)
	assert.Equal(t, map[string]interface{}{"userId": "u1", "name": "Ann"}, payload.Data)
	_, err := time.Parse(time.RFC3339, payload.Timestamp)
	assert.NoError(t, err, "timestamp must be ISO-8601")
}

func TestTestDeliveryLogsWithoutMutatingSubscription(t *testing.T) {
	svc := newTestWebhookService(t)

	var sigHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sigHeader = r.Header.Get("X-Webhook-Signature")
		w.Write([]byte(`pong`))
	}))
	defer srv.Close()

	sub, _ := mustCreate(t, svc, "hook", srv.URL, []string{"USER_CREATED"})
	before, err := svc.GetByID(sub.ID)
	require.NoError(t, err)

	out, err := svc.TestDelivery(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, "pong", out.Response)
	assert.Equal(t, "test-signature", sigHeader)

	rows := deliveriesFor(t, svc, sub.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].RetriesCount)

	after, err := svc.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Secret, after.Secret)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt, "test delivery must not mutate the subscription")

	_, err = svc.TestDelivery(context.Background(), "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDeliveriesFiltersBySubscription(t *testing.T) {
	svc := newTestWebhookService(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	a, _ := mustCreate(t, svc, "a", srv.URL, []string{"USER_CREATED"})
	b, _ := mustCreate(t, svc, "b", srv.URL, []string{"USER_CREATED"})

	svc.Dispatch(EventUserCreated, map[string]interface{}{"userId": "u1"})
	svc.Drain()

	all, pag, err := svc.ListDeliveries(pagination.Query{Page: 1, Size: 50}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pag.Total)
	assert.Len(t, all, 2)

	onlyA, pag, err := svc.ListDeliveries(pagination.Query{Page: 1, Size: 50}, &a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pag.Total)
	require.Len(t, onlyA, 1)
	assert.Equal(t, a.ID, onlyA[0].SubscriptionID)

	count, err := svc.DeliveryCount(b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
