package webhook

import (
	"time"

	"github.com/andorinha-digital/core/internal/models"
)

type CreateSubscriptionDTO struct {
	Name        string   `json:"name"   binding:"required"`
	URL         string   `json:"url"    binding:"required"`
	Events      []string `json:"events"`
	Description string   `json:"description"`
}

type UpdateSubscriptionDTO struct {
	Name        *string  `json:"name"`
	URL         *string  `json:"url"`
	Events      []string `json:"events"`
	Description *string  `json:"description"`
	IsActive    *bool    `json:"is_active"`
}

// subscriptionResponse is the persisted projection of a subscription. The
// plaintext secret is deliberately absent; it is only ever returned by the
// create and rotate-secret operations.
type subscriptionResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	Events        []string  `json:"events"`
	IsActive      bool      `json:"is_active"`
	Description   string    `json:"description"`
	DeliveryCount int64     `json:"delivery_count"`
	Created       time.Time `json:"created"`
	Modified      time.Time `json:"modified"`
}

func toResponse(sub *models.WebhookSubscriptionModel, deliveries int64) subscriptionResponse {
	events := []string(sub.Events)
	if events == nil {
		events = []string{}
	}
	return subscriptionResponse{
		ID: sub.ID, Name: sub.Name, URL: sub.URL,
		Events: events, IsActive: sub.IsActive, Description: sub.Description,
		DeliveryCount: deliveries,
		Created:       sub.CreatedAt, Modified: sub.UpdatedAt,
	}
}

// createdResponse carries the one-time plaintext secret alongside the
// subscription projection.
type createdResponse struct {
	subscriptionResponse
	Secret string `json:"secret"`
}
