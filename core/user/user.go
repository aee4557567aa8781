package user

import "time"

type User struct {
	ID           string    `json:"id" db:"user_id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	Role         string    `json:"role" db:"role"`
	Active       bool      `json:"active" db:"active"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
	LastLogin    time.Time `json:"-" db:"last_login"`
}

type UserSignup struct {
	Username        string `json:"username" validate:"required,min=3,max=50,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type ProfileUp struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50,alphanum_"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type PasswordUp struct {
	Current string `json:"current" validate:"required"`
	New     string `json:"new" validate:"required,min=6"`
	Confirm string `json:"confirm" validate:"required,eqfield=New"`
}
