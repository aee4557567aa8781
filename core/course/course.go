package course

import (
	"time"

	"github.com/swasthik/sarathi/core/content"
)

// Categories is the fixed set of exam-preparation categories a course
// can be filed under.
var Categories = []string{
	"general", "nepali", "english", "math", "science",
	"constitution", "computer", "current_affairs", "aptitude", "other",
}

type Course struct {
	ID           string    `json:"id" db:"course_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	Price        int       `json:"price" db:"price"`
	Category     string    `json:"category" db:"category"`
	ThumbnailURL string    `json:"thumbnailUrl" db:"thumbnail_url"`
	InstructorID string    `json:"instructorId" db:"instructor_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
	Version      int       `json:"-" db:"version"`
}

// CourseNew carries the fields of the admin's multipart course form.
// The thumbnail file travels alongside and is handled separately.
type CourseNew struct {
	Title       string `validate:"required,min=5,max=200"`
	Description string `validate:"required,min=20"`
	Price       int    `validate:"gte=0"`
	Category    string `validate:"required,oneof=general nepali english math science constitution computer current_affairs aptitude other"`
}

// CourseOwned joins a course with the owner's progress.
type CourseOwned struct {
	Course
	Progress int `json:"progress" db:"progress"`
}

// CourseDetail carries everything the course page needs.
type CourseDetail struct {
	Course
	Contents []content.Content `json:"contents"`
	Enrolled bool              `json:"enrolled"`
	InCart   bool              `json:"inCart"`
}
