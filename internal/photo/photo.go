// Package photo manages user photos: the main-photo rule, the remote image
// behind each photo, and their persistence.
package photo

import "time"

// Photo is one image in a user's collection. PublicID is nil when the image
// was never stored in the image store (e.g. a seeded placeholder URL).
type Photo struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	URL         string    `json:"url"`
	PublicID    *string   `json:"publicId,omitempty"`
	Description string    `json:"description"`
	IsMain      bool      `json:"isMain"`
	DateAdded   time.Time `json:"dateAdded"`
}

// User is the aggregate owning a photo collection. It is the authority for the
// rule that a user with photos has exactly one main photo.
type User struct {
	ID       int64
	Username string
	Photos   []*Photo
}

// MainPhoto returns the user's main photo, or nil when there is none.
func (u *User) MainPhoto() *Photo {
	for _, p := range u.Photos {
		if p.IsMain {
			return p
		}
	}
	return nil
}

// Owns reports whether photoID is in the user's collection.
func (u *User) Owns(photoID int64) bool {
	for _, p := range u.Photos {
		if p.ID == photoID {
			return true
		}
	}
	return false
}

// Upload is the payload of an AddPhoto request.
type Upload struct {
	Data        []byte
	Filename    string
	Description string
}
