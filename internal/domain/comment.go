package domain

import "time"

// Comment is a short text attached to a photo. Comments are never edited and
// disappear together with their photo.
type Comment struct {
	ID        string    `bson:"_id" json:"id"`
	PhotoID   string    `bson:"photoId" json:"photoId"`
	UserID    string    `bson:"userId" json:"userId"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`

	Author *Author `bson:"-" json:"user,omitempty"`
}

// NewComment is the input for creating a comment row.
type NewComment struct {
	PhotoID string
	UserID  string
	Content string
}
