// Package admin serves the staff side of the platform: aggregate
// dashboard numbers, per-course analytics and student management.
package admin

import (
	"time"

	"github.com/swasthik/sarathi/core/course"
	"github.com/swasthik/sarathi/core/payment"
	"github.com/swasthik/sarathi/core/user"
)

type Totals struct {
	Students    int `json:"students" db:"students"`
	Courses     int `json:"courses" db:"courses"`
	Enrollments int `json:"enrollments" db:"enrollments"`
	Revenue     int `json:"revenue" db:"revenue"`
}

type RecentEnrollment struct {
	Username  string    `json:"username" db:"username"`
	CourseID  string    `json:"courseId" db:"course_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type TopCourse struct {
	CourseID    string `json:"courseId" db:"course_id"`
	Title       string `json:"title" db:"title"`
	Enrollments int    `json:"enrollments" db:"enrollments"`
}

type Dashboard struct {
	Totals            Totals             `json:"totals"`
	RecentEnrollments []RecentEnrollment `json:"recentEnrollments"`
	TopCourses        []TopCourse        `json:"topCourses"`
}

type CourseStats struct {
	CourseID    string `json:"courseId" db:"course_id"`
	Title       string `json:"title" db:"title"`
	Category    string `json:"category" db:"category"`
	Price       int    `json:"price" db:"price"`
	Enrollments int    `json:"enrollments" db:"enrollments"`
	Revenue     int    `json:"revenue" db:"revenue"`
}

type CategoryStats struct {
	Category    string `json:"category" db:"category"`
	Courses     int    `json:"courses" db:"courses"`
	Enrollments int    `json:"enrollments" db:"enrollments"`
}

type RecentPayment struct {
	Username  string    `json:"username" db:"username"`
	Title     string    `json:"title" db:"title"`
	Amount    int       `json:"amount" db:"amount"`
	Provider  string    `json:"provider" db:"provider"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type Analytics struct {
	Courses    []CourseStats   `json:"courses"`
	Categories []CategoryStats `json:"categories"`
	Payments   []RecentPayment `json:"payments"`
}

type Student struct {
	ID          string    `json:"id" db:"user_id"`
	Username    string    `json:"username" db:"username"`
	Email       string    `json:"email" db:"email"`
	Active      bool      `json:"active" db:"active"`
	Enrollments int       `json:"enrollments" db:"enrollments"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

type StudentDetail struct {
	user.User
	Courses  []course.CourseOwned    `json:"courses"`
	Payments []payment.PaymentDetail `json:"payments"`
}
