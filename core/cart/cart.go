package cart

import (
	"time"
)

type Cart struct {
	UserID    string       `json:"-" db:"user_id"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time    `json:"updatedAt" db:"updated_at"`
	Version   int          `json:"-" db:"version"`
	Items     []ItemCourse `json:"items" db:"-"`
	Total     int          `json:"total" db:"-"`
}

type Item struct {
	UserID    string    `json:"-" db:"user_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type ItemNew struct {
	CourseID string `json:"courseId" validate:"required"`
}

// ItemCourse joins a cart row with the course it references, which is
// what the cart page renders.
type ItemCourse struct {
	Item
	Title        string `json:"title" db:"title"`
	Price        int    `json:"price" db:"price"`
	Category     string `json:"category" db:"category"`
	ThumbnailURL string `json:"thumbnailUrl" db:"thumbnail_url"`
}
