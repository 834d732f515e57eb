package models

import "time"

const (
	RoleAdmin  = "ADMIN"
	RoleEditor = "EDITOR"
)

// UserModel represents a back-office user.
type UserModel struct {
	Base
	Name          string     `json:"name"            gorm:"not null"`
	Email         string     `json:"email"           gorm:"uniqueIndex;not null"`
	Password      string     `json:"-"               gorm:"not null"`
	Role          string     `json:"role"            gorm:"default:EDITOR"`
	LastLoginTime *time.Time `json:"last_login_time"`
	LastLoginIP   string     `json:"last_login_ip"`
}

func (UserModel) TableName() string { return "users" }

// UserSession is a revocable login session bound to a JWT.
type UserSession struct {
	Base
	UserID    string     `json:"-"          gorm:"index;not null"`
	IP        string     `json:"ip"`
	UA        string     `json:"ua"         gorm:"type:text"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index"`
	RevokedAt *time.Time `json:"-"          gorm:"index"`
}

func (UserSession) TableName() string { return "user_sessions" }
