package content

import (
	"time"

	"github.com/swasthik/sarathi/storage"
)

// Kinds maps the content classification to its storage location.
var Kinds = map[string]storage.Kind{
	"video": storage.KindVideo,
	"pdf":   storage.KindPDF,
	"slide": storage.KindSlide,
}

type Content struct {
	ID           string    `json:"id" db:"content_id"`
	CourseID     string    `json:"courseId" db:"course_id"`
	Title        string    `json:"title" db:"title"`
	Kind         string    `json:"kind" db:"kind"`
	Path         string    `json:"-" db:"path"`
	Size         int64     `json:"size" db:"size"`
	DisplayOrder int       `json:"displayOrder" db:"display_order"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
	Version      int       `json:"-" db:"version"`
}

// ContentNew carries the text fields of the admin's multipart upload
// form. The file travels alongside and is handled separately.
type ContentNew struct {
	CourseID     string `validate:"required"`
	Title        string `validate:"required,min=3,max=200"`
	Kind         string `validate:"required,oneof=video pdf slide"`
	DisplayOrder int    `validate:"gte=0"`
}
