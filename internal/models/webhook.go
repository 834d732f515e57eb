package models

// WebhookSubscriptionModel is a registered webhook endpoint with its own
// secret and event interest set.
type WebhookSubscriptionModel struct {
	Base
	Name        string      `json:"name"        gorm:"not null"`
	URL         string      `json:"url"         gorm:"not null"`
	Secret      string      `json:"-"           gorm:"not null"`
	Events      StringArray `json:"events"      gorm:"type:text"`
	IsActive    bool        `json:"is_active"   gorm:"default:true"`
	Description string      `json:"description" gorm:"type:text"`

	Logs []WebhookDeliveryModel `json:"logs,omitempty" gorm:"foreignKey:SubscriptionID"`
}

func (WebhookSubscriptionModel) TableName() string { return "webhook_subscriptions" }

// WebhookDeliveryModel is the append-only record of one subscriber's terminal
// outcome for one dispatched event. Rows are never mutated after creation.
type WebhookDeliveryModel struct {
	Base
	SubscriptionID string  `json:"subscription_id" gorm:"index;not null"`
	Event          string  `json:"event"           gorm:"index;not null"`
	Payload        string  `json:"payload"         gorm:"type:longtext"`
	Response       *string `json:"response"        gorm:"type:longtext"`
	StatusCode     *int    `json:"status_code"`
	Success        bool    `json:"success"`
	Error          *string `json:"error"           gorm:"type:text"`
	RetriesCount   int     `json:"retries_count"`
}

func (WebhookDeliveryModel) TableName() string { return "webhook_deliveries" }
