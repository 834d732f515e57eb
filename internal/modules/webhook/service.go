package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/andorinha-digital/core/internal/models"
	"github.com/andorinha-digital/core/internal/pkg/pagination"
	"github.com/andorinha-digital/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidURL = errors.New("invalid URL format")
	ErrNotFound   = errors.New("webhook subscription not found")
)

// maxConcurrentDeliveries caps simultaneous outbound calls across all events.
// Generous for the expected tens of subscriptions; it only matters when many
// events fire at once.
const maxConcurrentDeliveries = 16

// Service owns webhook subscriptions, the delivery log, and event dispatch.
type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	deliverer *Deliverer
	client    *Client
	publicURL string

	sem      chan struct{}
	inflight sync.WaitGroup
}

func NewService(db *gorm.DB, logger *zap.Logger, publicURL string) *Service {
	client := NewClient()
	return &Service{
		db:        db,
		logger:    logger,
		deliverer: NewDeliverer(client),
		client:    client,
		publicURL: publicURL,
		sem:       make(chan struct{}, maxConcurrentDeliveries),
	}
}

// Drain blocks until all in-flight deliveries have reached a terminal outcome
// and been logged. Used on shutdown and in tests; request handlers never call it.
func (s *Service) Drain() { s.inflight.Wait() }

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}
	return nil
}

// Create registers a subscription and returns it together with the plaintext
// secret. The secret is never queryable afterwards.
func (s *Service) Create(dto *CreateSubscriptionDTO) (*models.WebhookSubscriptionModel, string, error) {
	if err := validateTargetURL(dto.URL); err != nil {
		return nil, "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, "", err
	}

	sub := models.WebhookSubscriptionModel{
		Name:        dto.Name,
		URL:         dto.URL,
		Secret:      secret,
		Events:      normalizeEvents(dto.Events),
		IsActive:    true,
		Description: dto.Description,
	}
	if err := s.db.Create(&sub).Error; err != nil {
		return nil, "", err
	}
	return &sub, secret, nil
}

func (s *Service) GetByID(id string) (*models.WebhookSubscriptionModel, error) {
	var sub models.WebhookSubscriptionModel
	if err := s.db.First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (s *Service) Update(id string, dto *UpdateSubscriptionDTO) (*models.WebhookSubscriptionModel, error) {
	sub, err := s.GetByID(id)
	if err != nil || sub == nil {
		return sub, err
	}

	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = *dto.Name
	}
	if dto.URL != nil {
		if err := validateTargetURL(*dto.URL); err != nil {
			return nil, err
		}
		updates["url"] = *dto.URL
	}
	if dto.Events != nil {
		updates["events"] = models.StringArray(normalizeEvents(dto.Events))
	}
	if dto.Description != nil {
		updates["description"] = *dto.Description
	}
	if dto.IsActive != nil {
		updates["is_active"] = *dto.IsActive
	}
	return sub, s.db.Model(sub).Updates(updates).Error
}

func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.WebhookSubscriptionModel{}, "id = ?", id).Error
}

// RotateSecret replaces the subscription's secret in place and returns the new
// plaintext exactly once.
func (s *Service) RotateSecret(id string) (string, error) {
	sub, err := s.GetByID(id)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", ErrNotFound
	}
	secret, err := generateSecret()
	if err != nil {
		return "", err
	}
	return secret, s.db.Model(sub).Update("secret", secret).Error
}

// List returns all subscriptions newest-first, with per-subscription delivery
// counts for the admin table.
func (s *Service) List() ([]models.WebhookSubscriptionModel, map[string]int64, error) {
	var items []models.WebhookSubscriptionModel
	if err := s.db.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, nil, err
	}

	type row struct {
		SubscriptionID string
		Count          int64
	}
	var rows []row
	err := s.db.Model(&models.WebhookDeliveryModel{}).
		Select("subscription_id, count(*) as count").
		Group("subscription_id").
		Scan(&rows).Error
	if err != nil {
		return nil, nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.SubscriptionID] = r.Count
	}
	return items, counts, nil
}

// DeliveryCount returns the number of logged deliveries for one subscription.
func (s *Service) DeliveryCount(id string) (int64, error) {
	var count int64
	err := s.db.Model(&models.WebhookDeliveryModel{}).
		Where("subscription_id = ?", id).
		Count(&count).Error
	return count, err
}

// Dispatch fans an event out to every active subscription interested in it.
// It returns as soon as the fan-out has been initiated; the caller's request
// is never blocked on delivery. Each subscriber is delivered to independently:
// one target's failure cannot affect another's delivery or log entry.
func (s *Service) Dispatch(event Event, data map[string]interface{}) {
	var subs []models.WebhookSubscriptionModel
	if err := s.db.Where("is_active = ?", true).Find(&subs).Error; err != nil {
		s.logger.Error("webhook: loading subscriptions failed", zap.String("event", string(event)), zap.Error(err))
		return
	}

	matched := subs[:0]
	for _, sub := range subs {
		if sub.Events.Contains(string(event)) {
			matched = append(matched, sub)
		}
	}
	if len(matched) == 0 {
		s.logger.Info("webhook: no active subscriptions for event", zap.String("event", string(event)))
		return
	}

	payload, err := buildPayload(event, data)
	if err != nil {
		s.logger.Error("webhook: payload serialization failed", zap.String("event", string(event)), zap.Error(err))
		return
	}

	for _, sub := range matched {
		sub := sub
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.sem <- struct{}{}
			defer func() { <-s.sem }()
			s.deliverTo(&sub, event, payload)
		}()
	}

	s.logger.Info("webhook: dispatched",
		zap.String("event", string(event)),
		zap.Int("subscriptions", len(matched)),
	)
}

// deliverTo runs one subscriber's delivery chain to its terminal outcome and
// appends exactly one delivery-log row.
func (s *Service) deliverTo(sub *models.WebhookSubscriptionModel, event Event, payload []byte) {
	out, attempts := s.deliverer.DeliverWithRetry(context.Background(), sub.URL, payload, sub.Secret, event)
	s.appendLog(sub.ID, event, payload, out, attempts-1)

	if out.Succeeded() {
		s.logger.Info("webhook: delivered",
			zap.String("event", string(event)),
			zap.String("subscription", sub.Name),
			zap.Int("status", out.StatusCode),
			zap.Int("attempts", attempts),
		)
	} else {
		s.logger.Warn("webhook: delivery failed",
			zap.String("event", string(event)),
			zap.String("subscription", sub.Name),
			zap.String("url", sub.URL),
			zap.Int("status", out.StatusCode),
			zap.Int("attempts", attempts),
			zap.String("error", out.Error),
		)
	}
}

// appendLog writes the immutable delivery record. A failed write is reported
// to the operational log and swallowed; it must never propagate into the
// domain operation that fired the event.
func (s *Service) appendLog(subscriptionID string, event Event, payload []byte, out Outcome, retries int) {
	entry := models.WebhookDeliveryModel{
		SubscriptionID: subscriptionID,
		Event:          string(event),
		Payload:        string(payload),
		Success:        out.Succeeded(),
		RetriesCount:   retries,
	}
	if out.Kind != OutcomeNetworkFailure {
		entry.StatusCode = &out.StatusCode
		resp := out.Response
		entry.Response = &resp
	}
	if out.Error != "" {
		errText := out.Error
		entry.Error = &errText
	}

	if err := s.db.Create(&entry).Error; err != nil {
		s.logger.Error("webhook: delivery log write failed",
			zap.String("subscription_id", subscriptionID),
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
}

// ListDeliveries returns delivery-log entries newest-first, optionally
// filtered by subscription.
func (s *Service) ListDeliveries(q pagination.Query, subscriptionID *string) ([]models.WebhookDeliveryModel, response.Pagination, error) {
	tx := s.db.Model(&models.WebhookDeliveryModel{}).Order("created_at DESC")
	if subscriptionID != nil {
		tx = tx.Where("subscription_id = ?", *subscriptionID)
	}
	var items []models.WebhookDeliveryModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// TestDelivery sends one synthetic payload to the subscription with a
// placeholder signature so an operator can sanity-check connectivity. Single
// attempt, no retry; the outcome is returned synchronously and logged like a
// normal dispatch.
func (s *Service) TestDelivery(ctx context.Context, id string) (Outcome, error) {
	sub, err := s.GetByID(id)
	if err != nil {
		return Outcome{}, err
	}
	if sub == nil {
		return Outcome{}, ErrNotFound
	}

	payload, err := buildPayload(EventUserCreated, map[string]interface{}{
		"test":    true,
		"message": "This is a test webhook event",
	})
	if err != nil {
		return Outcome{}, err
	}

	out := s.client.Attempt(ctx, sub.URL, payload, "test-signature", EventUserCreated)
	s.appendLog(sub.ID, EventUserCreated, payload, out, 0)
	return out, nil
}

// --- Event helpers used by the domain modules ---

func (s *Service) siteURL(path string) string {
	return fmt.Sprintf("%s%s", s.publicURL, path)
}

func (s *Service) DispatchUserCreated(u *models.UserModel) {
	s.Dispatch(EventUserCreated, map[string]interface{}{
		"userId": u.ID, "name": u.Name, "email": u.Email, "role": u.Role,
	})
}

func (s *Service) DispatchUserUpdated(u *models.UserModel) {
	s.Dispatch(EventUserUpdated, map[string]interface{}{
		"userId": u.ID, "name": u.Name, "email": u.Email, "role": u.Role,
	})
}

func (s *Service) DispatchUserDeleted(userID, email string) {
	s.Dispatch(EventUserDeleted, map[string]interface{}{
		"userId": userID, "email": email,
	})
}

func (s *Service) DispatchPostPublished(p *models.PostModel, author string) {
	s.Dispatch(EventPostPublished, map[string]interface{}{
		"postId": p.ID, "title": p.Title, "slug": p.Slug, "author": author,
		"url": s.siteURL("/blog/" + p.Slug),
	})
}

func (s *Service) DispatchPostUnpublished(p *models.PostModel) {
	s.Dispatch(EventPostUnpublished, map[string]interface{}{
		"postId": p.ID, "title": p.Title,
	})
}

func (s *Service) DispatchCaseCreated(cs *models.CaseStudyModel) {
	s.Dispatch(EventCaseCreated, map[string]interface{}{
		"caseId": cs.ID, "title": cs.Title, "slug": cs.Slug, "client": cs.Client,
		"url": s.siteURL("/cases/" + cs.Slug),
	})
}

func (s *Service) DispatchServiceCreated(o *models.OfferingModel) {
	s.Dispatch(EventServiceCreated, map[string]interface{}{
		"serviceId": o.ID, "title": o.Title, "slug": o.Slug,
		"url": s.siteURL("/servicos/" + o.Slug),
	})
}
