package model

import "time"

const RoleUser = "USER"

// User is the identity record. A non-nil DeletedAt marks a soft-deleted
// account. PasswordHash never leaves the store in JSON form, so cached
// snapshots carry no hash.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          string     `json:"role"`
	PasswordHash  string     `json:"-"`
	EmailVerified bool       `json:"emailVerified"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (u User) Deleted() bool {
	return u.DeletedAt != nil
}

type RefreshToken struct {
	Token      string
	UserID     string
	ExpiryDate time.Time
}

// UserUpdate carries the mutable profile fields; nil means unchanged.
type UserUpdate struct {
	Name          *string
	Email         *string
	DeletedAt     *time.Time
	PasswordHash  *string
	EmailVerified *bool
}

func (u UserUpdate) Apply(user *User) {
	if u.Name != nil {
		user.Name = *u.Name
	}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.DeletedAt != nil {
		deletedAt := *u.DeletedAt
		user.DeletedAt = &deletedAt
	}
	if u.PasswordHash != nil {
		user.PasswordHash = *u.PasswordHash
	}
	if u.EmailVerified != nil {
		user.EmailVerified = *u.EmailVerified
	}
}
