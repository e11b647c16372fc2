package domain

import (
	"time"
)

// User represents a member of the archive. Users are created on their first
// sign-in and stay unapproved until an admin approves them.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Email     string    `bson:"email" json:"email"` // Should be unique
	Name      string    `bson:"name" json:"name"`
	Image     string    `bson:"image" json:"image"`
	Approved  bool      `bson:"approved" json:"approved"`
	IsAdmin   bool      `bson:"isAdmin" json:"isAdmin"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// NewUser is the input for registering a user on first sign-in.
type NewUser struct {
	Email string
	Name  string
	Image string
}

// CanUpload reports whether the user may add photos.
func (u *User) CanUpload() bool {
	return u != nil && u.Approved
}

// CanModerate reports whether the user may delete photos and approve users.
func (u *User) CanModerate() bool {
	return u != nil && u.IsAdmin
}

// Author returns the public view of the user.
func (u *User) Author() *Author {
	if u == nil {
		return nil
	}
	return &Author{Name: u.Name, Image: u.Image}
}
