package domain

import (
	"time"
)

// Photo stores metadata about an image uploaded by an approved user.
// The image bytes live in the object store under BlobPath.
type Photo struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"userId" json:"userId"`
	URL         string    `bson:"url" json:"url"`    // Resolved address, public link or proxy path
	BlobPath    string    `bson:"blobPath" json:"-"` // Object store reference, internal use
	Title       *string   `bson:"title,omitempty" json:"title,omitempty"`
	Description *string   `bson:"description,omitempty" json:"description,omitempty"`
	Year        int       `bson:"year" json:"year"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`

	Author *Author `bson:"-" json:"user,omitempty"` // Joined on read paths only
}

// NewPhoto is the input for creating a photo row. ID and CreatedAt are
// assigned by the store.
type NewPhoto struct {
	UserID      string
	URL         string
	BlobPath    string
	Title       *string
	Description *string
	Year        int
}

// Author is the public part of a user shown next to photos and comments.
type Author struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// MinYear is the earliest year a photo can be filed under.
const MinYear = 1988
