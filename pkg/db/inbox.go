package db

import "time"

// Tenant is the isolation boundary; every other row belongs to exactly one.
type Tenant struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// Inbox groups conversations arriving on one channel, e.g. a phone number.
type Inbox struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string    `json:"tenant_id" gorm:"index;size:36;not null"`
	PhoneNumber string    `json:"phone_number" gorm:"size:32"`
	DisplayName string    `json:"display_name" gorm:"size:200"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Inbox) TableName() string {
	return "inboxes"
}
