package api

import "time"

// UserProfile is the identity returned by GET/PUT user/
type UserProfile struct {
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	RegistrationDate time.Time `json:"registrationDate"`
	IsAdmin          bool      `json:"is_admin"`
	IsSuperuser      bool      `json:"is_superuser"`
	IsStaff          bool      `json:"is_staff"`
}

// ProfileUpdate is the body of PUT user/. Empty fields keep their current value.
type ProfileUpdate struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}
