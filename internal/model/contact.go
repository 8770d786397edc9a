package model

import (
	"time"

	"gorm.io/datatypes"
)

// Contact represents a contact in the PostgreSQL database. One contact exists
// per (company_id, phone_number); the composite unique index is the anchor for
// the find-or-create conflict recovery in the identity resolver.
type Contact struct {
	ID            string         `json:"id" gorm:"primaryKey;type:text"`
	CompanyID     string         `json:"company_id" gorm:"column:company_id;uniqueIndex:idx_contacts_company_phone;type:text" validate:"required"`
	PhoneNumber   string         `json:"phone_number" gorm:"column:phone_number;uniqueIndex:idx_contacts_company_phone;type:text" validate:"required"`
	PushName      string         `json:"push_name,omitempty" gorm:"type:text"` // Display name from provider metadata
	OptOut        bool           `json:"opt_out,omitempty" gorm:"column:opt_out;default:false"`
	Qualification string         `json:"qualification,omitempty" gorm:"type:text"` // Free-form tag assigned by the AI
	CreatedAt     time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
	LastMetadata  datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the table name for the Contact model.
func (Contact) TableName() string {
	return "contacts"
}

// ContactUpdateColumns lists the columns a routine contact refresh may touch.
func ContactUpdateColumns() []string {
	return []string{
		"push_name", "qualification", "updated_at",
	}
}
