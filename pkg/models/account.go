package models

import "time"

type Address struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Label       string    `json:"label,omitempty"`
	FullAddress string    `json:"full_address"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

type AddAddressRequest struct {
	Label       string `json:"label,omitempty"`
	FullAddress string `json:"full_address"`
	IsDefault   bool   `json:"is_default,omitempty"`
}

type UserProfile struct {
	ID          string     `json:"id"`
	FullName    string     `json:"full_name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	Email       string     `json:"email,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type UpdateProfileRequest struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
}
