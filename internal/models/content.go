package models

import "time"

// PostModel is a blog post on the marketing site.
type PostModel struct {
	Base
	Title       string     `json:"title"     gorm:"not null"`
	Slug        string     `json:"slug"      gorm:"uniqueIndex;not null"`
	Text        string     `json:"text"      gorm:"type:longtext"`
	Summary     string     `json:"summary"   gorm:"type:text"`
	AuthorID    string     `json:"author_id" gorm:"index"`
	Published   bool       `json:"published" gorm:"default:false"`
	PublishedAt *time.Time `json:"published_at"`
}

func (PostModel) TableName() string { return "posts" }

// CaseStudyModel is a client case study.
type CaseStudyModel struct {
	Base
	Title  string `json:"title"  gorm:"not null"`
	Slug   string `json:"slug"   gorm:"uniqueIndex;not null"`
	Client string `json:"client"`
	Text   string `json:"text"   gorm:"type:longtext"`
}

func (CaseStudyModel) TableName() string { return "case_studies" }

// OfferingModel is a service the agency offers.
type OfferingModel struct {
	Base
	Title       string `json:"title"       gorm:"not null"`
	Slug        string `json:"slug"        gorm:"uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text"`
}

func (OfferingModel) TableName() string { return "services" }
