package domain

import "time"

// User is the public identity exposed to other participants.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty"`
	CreatedAt    time.Time `json:"-"`
}

// DisplayName falls back to the username when no name is set.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Public strips fields that must not leave the server.
func (u User) Public() User {
	return User{ID: u.ID, Username: u.Username, Name: u.Name, ProfileImage: u.ProfileImage}
}
