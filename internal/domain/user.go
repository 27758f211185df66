package domain

import (
	"strings"
	"time"
)

// User document fields.
const (
	FieldEmail        = "email_id"
	FieldFirstName    = "first_name"
	FieldLastName     = "last_name"
	FieldPasswordHash = "password_hash"
	FieldAccountDate  = "account_date"
	FieldContact      = "contact"
	FieldAddress      = "address"
	FieldBranch       = "branch"
	FieldRole         = "role"
)

// RoleBuyer is the role every new member starts with.
const RoleBuyer = "buyer"

// User is a registered marketplace member. Email is the identity written
// into uploaded_by and favourited_by.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Contact      string    `json:"contact,omitempty"`
	Address      string    `json:"address,omitempty"`
	Branch       string    `json:"branch,omitempty"`
	Role         string    `json:"role"`
	AccountDate  time.Time `json:"account_date"`
	PasswordHash string    `json:"-"`
}

// DisplayName is the first name, or the email when no name was given.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return u.Email
}

// UserFromDocument maps a users-collection document.
func UserFromDocument(id string, raw map[string]any) User {
	u := User{
		ID:           id,
		Email:        asString(raw[FieldEmail]),
		FirstName:    asString(raw[FieldFirstName]),
		LastName:     asString(raw[FieldLastName]),
		Contact:      asString(raw[FieldContact]),
		Address:      asString(raw[FieldAddress]),
		Branch:       asString(raw[FieldBranch]),
		Role:         asString(raw[FieldRole]),
		PasswordHash: asString(raw[FieldPasswordHash]),
	}
	if t := asTime(raw[FieldAccountDate]); t != nil {
		u.AccountDate = *t
	}
	return u
}

// NormalizeEmail lowercases and trims an email identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
