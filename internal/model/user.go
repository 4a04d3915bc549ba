package model

import (
	"gorm.io/gorm"
)

type UserType string

const (
	UserTypeRegular UserType = "regular"
	UserTypeGuest   UserType = "guest"
)

type AccountType string

const (
	AccountIndividual AccountType = "individual"
	AccountBusiness   AccountType = "business"
)

type User struct {
	gorm.Model
	Email            string      `json:"email" gorm:"uniqueIndex;not null"`
	Password         string      `json:"-"`
	Type             UserType    `json:"type" gorm:"not null;default:'regular'"`
	AccountType      AccountType `json:"account_type" gorm:"not null;default:'individual'"`
	AvatarURL        string      `json:"avatar_url"`
	StripeCustomerID *string     `json:"-" gorm:"uniqueIndex"`

	Subscription *Subscription `json:"-" gorm:"foreignKey:UserID"`
}

func (u *User) GetPublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":          u.ID,
		"email":       u.Email,
		"type":        u.Type,
		"accountType": u.AccountType,
		"avatarUrl":   u.AvatarURL,
		"created_at":  u.CreatedAt,
	}
}

// CustomerID returns the linked processor customer id, or "".
func (u *User) CustomerID() string {
	if u.StripeCustomerID == nil {
		return ""
	}
	return *u.StripeCustomerID
}
