package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           string    `bun:"id,pk" json:"id"`
	Username     string    `bun:"username,unique,notnull" json:"username"`
	Email        string    `bun:"email,unique,notnull" json:"email"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	FirstName    string    `bun:"first_name" json:"first_name,omitempty"`
	LastName     string    `bun:"last_name" json:"last_name,omitempty"`
	PhoneNumber  string    `bun:"phone_number" json:"phone_number,omitempty"`
	IsActive     bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// FullName falls back to the username when no name was given.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

type AddressType string

const (
	AddressBilling  AddressType = "billing"
	AddressShipping AddressType = "shipping"
	AddressHome     AddressType = "home"
)

type Address struct {
	bun.BaseModel `bun:"table:addresses"`

	ID            int64       `bun:"id,pk,autoincrement" json:"id"`
	UserID        string      `bun:"user_id,notnull" json:"user_id"`
	StreetAddress string      `bun:"street_address,notnull" json:"street_address"`
	City          string      `bun:"city,notnull" json:"city"`
	State         string      `bun:"state,notnull" json:"state"`
	Country       string      `bun:"country,notnull" json:"country"`
	ZipCode       string      `bun:"zip_code,notnull" json:"zip_code"`
	AddressType   AddressType `bun:"address_type,notnull" json:"address_type"`
}
